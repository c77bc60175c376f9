// Package theme provides the Lip Gloss palette and reusable styles shared by
// the console writer and the TUI. It imports nothing internal except event
// to avoid import cycles.
package theme

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/live-watch/livewatch/internal/event"
)

// Category colors.
var (
	ColorComment     = lipgloss.Color("#86efac")
	ColorGift        = lipgloss.Color("#fb923c")
	ColorLike        = lipgloss.Color("#f9a8d4")
	ColorShare       = lipgloss.Color("#67e8f9")
	ColorFollow      = lipgloss.Color("#fde047")
	ColorViewerCount = lipgloss.Color("#a5b4fc")
	ColorConnect     = lipgloss.Color("#22c55e")
	ColorDisconnect  = lipgloss.Color("#c084fc")
	ColorSystem      = lipgloss.Color("#9ca3af")
)

// Session state colors.
var (
	ColorIdle         = lipgloss.Color("#4b5563")
	ColorConnecting   = lipgloss.Color("#7c3aed")
	ColorConnected    = lipgloss.Color("#16a34a")
	ColorStopping     = lipgloss.Color("#d97706")
	ColorDisconnected = lipgloss.Color("#854d0e")
	ColorFailed       = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder    = lipgloss.Color("#4b5563")
	ColorDimmed    = lipgloss.Color("#6b7280")
	ColorBright    = lipgloss.Color("#f9fafb")
	ColorTimestamp = lipgloss.Color("#eab308")
	ColorHealthy   = lipgloss.Color("#22c55e")
	ColorWarning   = lipgloss.Color("#d97706")
	ColorDanger    = lipgloss.Color("#dc2626")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// CategoryColor returns the feed color for c.
func CategoryColor(c event.Category) lipgloss.Color {
	switch c {
	case event.Comment:
		return ColorComment
	case event.Gift:
		return ColorGift
	case event.Like:
		return ColorLike
	case event.Share:
		return ColorShare
	case event.Follow:
		return ColorFollow
	case event.ViewerCount:
		return ColorViewerCount
	case event.Connect:
		return ColorConnect
	case event.Disconnect:
		return ColorDisconnect
	case event.System:
		return ColorSystem
	default:
		return ColorDefault
	}
}

// CategoryGlyph returns the marker printed in front of a feed line.
func CategoryGlyph(c event.Category) string {
	switch c {
	case event.Comment:
		return "💬"
	case event.Gift:
		return "🎁"
	case event.Like:
		return "❤️"
	case event.Share:
		return "🔗"
	case event.Follow:
		return "⭐"
	case event.ViewerCount:
		return "👀"
	case event.Connect:
		return "✅"
	case event.Disconnect:
		return "❌"
	default:
		return "·"
	}
}

// CategoryLabel is the human-facing name of a toggleable category.
func CategoryLabel(c event.Category) string {
	switch c {
	case event.Comment:
		return "Comments"
	case event.Gift:
		return "Gifts"
	case event.Like:
		return "Likes"
	case event.Share:
		return "Shares"
	case event.Follow:
		return "Follows"
	case event.ViewerCount:
		return "Viewer count"
	default:
		return c.String()
	}
}

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "idle":
		return ColorIdle
	case "connecting":
		return ColorConnecting
	case "connected":
		return ColorConnected
	case "stopping":
		return ColorStopping
	case "disconnected":
		return ColorDisconnected
	case "failed":
		return ColorFailed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph for a session state name.
func StateGlyph(state string) string {
	switch state {
	case "idle":
		return "○"
	case "connecting":
		return "◎"
	case "connected":
		return "●"
	case "stopping":
		return "◌"
	case "disconnected":
		return "✗"
	case "failed":
		return "!"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleTimestamp = lipgloss.NewStyle().
			Foreground(ColorTimestamp)
)
