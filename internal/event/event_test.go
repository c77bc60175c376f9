package event

import (
	"encoding/json"
	"testing"
)

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		ev   Normalized
		want string
	}{
		{"comment with uid", Normalized{Category: Comment, Nickname: "Alice", UserID: "alice", Text: "hi"}, "Alice (alice): hi"},
		{"comment without uid", Normalized{Category: Comment, Nickname: "Alice", Text: "hi"}, "Alice: hi"},
		{"gift", Normalized{Category: Gift, Nickname: "Bob", GiftName: "Rose", RepeatCount: 5}, "Bob sent 5x Rose"},
		{"like", Normalized{Category: Like, Nickname: "Cat", LikeCount: 3, TotalLikes: 120}, "Cat sent 3 likes (total: 120)"},
		{"share", Normalized{Category: Share, Nickname: "Dan"}, "Dan shared the live"},
		{"follow", Normalized{Category: Follow, Nickname: "Eve"}, "Eve followed"},
		{"viewers", Normalized{Category: ViewerCount, Viewers: 42}, "42 viewers watching"},
		{"connect", Normalized{Category: Connect, Room: "alice"}, "Connected to @alice"},
		{"disconnect", Normalized{Category: Disconnect}, "Connection lost"},
		{"disconnect with reason", Normalized{Category: Disconnect, Text: "EOF"}, "Connection lost: EOF"},
		{"system", Normalized{Category: System, Text: "boom"}, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.Line(); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewViewerLine(t *testing.T) {
	got := NewViewerLine(Normalized{Nickname: "Alice", UserID: "alice"})
	if got != "New viewer: Alice (@alice)" {
		t.Errorf("got %q", got)
	}
	got = NewViewerLine(Normalized{Nickname: DefaultNickname})
	if got != "New viewer: "+DefaultNickname {
		t.Errorf("got %q", got)
	}
}

func TestToggleable(t *testing.T) {
	if len(Toggleable) != 6 {
		t.Fatalf("expected 6 toggleable categories, got %d", len(Toggleable))
	}
	for _, c := range Toggleable {
		if !c.IsToggleable() {
			t.Errorf("%s should be toggleable", c)
		}
	}
	for _, c := range []Category{Connect, Disconnect, System} {
		if c.IsToggleable() {
			t.Errorf("%s should not be toggleable", c)
		}
	}
	if ViewerCount.ConfigKey() != "show_viewer_count" {
		t.Errorf("unexpected config key %q", ViewerCount.ConfigKey())
	}
}

func TestCategoryJSON(t *testing.T) {
	data, err := json.Marshal(ViewerCount)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"viewer_count"` {
		t.Errorf("marshal = %s", data)
	}
	var c Category
	if err := json.Unmarshal([]byte(`"gift"`), &c); err != nil {
		t.Fatal(err)
	}
	if c != Gift {
		t.Errorf("unmarshal = %v, want gift", c)
	}
	if err := json.Unmarshal([]byte(`"bogus"`), &c); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory("follow"); !ok || c != Follow {
		t.Errorf("ParseCategory(follow) = %v, %v", c, ok)
	}
	if _, ok := ParseCategory("nope"); ok {
		t.Error("expected unknown name to fail")
	}
	if Category(99).String() != "unknown" {
		t.Error("out-of-range category should stringify as unknown")
	}
}
