package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
)

const helpIntro = `# livewatch

Type a room id, pick which events to show and press **enter** to start.
The switches are locked while a session is running; stop it to change them.
Room and switches are saved every time a session starts.

| key | action |
|-----|--------|
`

func helpMarkdown(keys KeyMap) string {
	var b strings.Builder
	b.WriteString(helpIntro)
	for _, k := range []key.Binding{
		keys.Start, keys.Stop, keys.Focus, keys.Up, keys.Down, keys.Toggle,
		keys.Clear, keys.Help, keys.Escape, keys.Quit, keys.Interrupt,
	} {
		h := k.Help()
		fmt.Fprintf(&b, "| `%s` | %s |\n", h.Key, h.Desc)
	}
	b.WriteString("\nScroll the feed with **pgup**/**pgdown** or the mouse wheel.\n")
	return b.String()
}

// renderHelp renders the help text for width columns. It falls back to the
// raw markdown when glamour cannot render it.
func renderHelp(keys KeyMap, width int) string {
	md := helpMarkdown(keys)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		logger.WithError(err).Debug("help renderer unavailable")
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		logger.WithError(err).Debug("rendering help failed")
		return md
	}
	return out
}
