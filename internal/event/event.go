// Package event defines the normalized shape of live-session events as they
// leave the dispatcher and reach a presentation sink.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

type Category int

const (
	Comment Category = iota
	Gift
	Like
	Share
	Follow
	ViewerCount
	Connect
	Disconnect
	System
)

var categoryNames = map[Category]string{
	Comment:     "comment",
	Gift:        "gift",
	Like:        "like",
	Share:       "share",
	Follow:      "follow",
	ViewerCount: "viewer_count",
	Connect:     "connect",
	Disconnect:  "disconnect",
	System:      "system",
}

var categoryFromName = map[string]Category{
	"comment":      Comment,
	"gift":         Gift,
	"like":         Like,
	"share":        Share,
	"follow":       Follow,
	"viewer_count": ViewerCount,
	"connect":      Connect,
	"disconnect":   Disconnect,
	"system":       System,
}

// Toggleable lists the categories an operator can switch on and off, in
// display order.
var Toggleable = []Category{Comment, Gift, Like, Share, Follow, ViewerCount}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// IsToggleable reports whether c is subject to the operator's filter.
func (c Category) IsToggleable() bool {
	return c >= Comment && c <= ViewerCount
}

// ConfigKey is the key under which c's toggle is persisted.
func (c Category) ConfigKey() string {
	return "show_" + c.String()
}

// ParseCategory maps a category name back to its value.
func ParseCategory(s string) (Category, bool) {
	c, ok := categoryFromName[s]
	return c, ok
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, ok := categoryFromName[s]
	if !ok {
		return fmt.Errorf("unknown category %q", s)
	}
	*c = v
	return nil
}

// Display defaults for fields the live client left out.
const (
	DefaultNickname = "Ẩn danh"
	DefaultGiftName = "Quà"
)

// Normalized is one event after field resolution. Every field carries a
// defined value; which ones are meaningful depends on Category.
type Normalized struct {
	Category Category
	Time     time.Time
	UserID   string
	Nickname string

	// Text is the comment body for Comment and the message for System
	// and Disconnect.
	Text string

	GiftName    string
	RepeatCount int

	LikeCount  int
	TotalLikes int

	Viewers int

	// Room is set on Connect.
	Room string
}

// Line renders the event as a single feed line without timestamp.
func (n Normalized) Line() string {
	switch n.Category {
	case Comment:
		if n.UserID == "" {
			return fmt.Sprintf("%s: %s", n.Nickname, n.Text)
		}
		return fmt.Sprintf("%s (%s): %s", n.Nickname, n.UserID, n.Text)
	case Gift:
		return fmt.Sprintf("%s sent %dx %s", n.Nickname, n.RepeatCount, n.GiftName)
	case Like:
		return fmt.Sprintf("%s sent %d likes (total: %d)", n.Nickname, n.LikeCount, n.TotalLikes)
	case Share:
		return fmt.Sprintf("%s shared the live", n.Nickname)
	case Follow:
		return fmt.Sprintf("%s followed", n.Nickname)
	case ViewerCount:
		return fmt.Sprintf("%d viewers watching", n.Viewers)
	case Connect:
		return fmt.Sprintf("Connected to @%s", n.Room)
	case Disconnect:
		if n.Text != "" {
			return "Connection lost: " + n.Text
		}
		return "Connection lost"
	default:
		return n.Text
	}
}

// NewViewerLine announces a user's first comment of the session.
func NewViewerLine(n Normalized) string {
	if n.UserID == "" {
		return "New viewer: " + n.Nickname
	}
	return fmt.Sprintf("New viewer: %s (@%s)", n.Nickname, n.UserID)
}
