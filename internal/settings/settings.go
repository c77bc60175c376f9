// Package settings persists the operator's session document: the room to
// watch and which event categories are shown.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/live-watch/livewatch/internal/event"
	"github.com/live-watch/livewatch/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	fileName   = "config.json"
	appDirName = "livewatch"
)

var logger = logging.Module("settings")

// SessionConfig is the room identifier plus one toggle per toggleable
// category. After Load every toggleable category has an entry.
type SessionConfig struct {
	RoomID  string
	Toggles map[event.Category]bool
}

// Default returns an empty room with every category enabled.
func Default() SessionConfig {
	cfg := SessionConfig{Toggles: make(map[event.Category]bool, len(event.Toggleable))}
	for _, c := range event.Toggleable {
		cfg.Toggles[c] = true
	}
	return cfg
}

// Enabled reports whether c should be shown. Categories outside the
// toggleable set are always enabled.
func (c SessionConfig) Enabled(cat event.Category) bool {
	if !cat.IsToggleable() {
		return true
	}
	v, ok := c.Toggles[cat]
	return !ok || v
}

// Clone returns a copy that shares no map with c.
func (c SessionConfig) Clone() SessionConfig {
	cp := SessionConfig{RoomID: c.RoomID, Toggles: make(map[event.Category]bool, len(c.Toggles))}
	for k, v := range c.Toggles {
		cp.Toggles[k] = v
	}
	return cp
}

// NormalizeRoomID strips surrounding whitespace and one leading "@".
func NormalizeRoomID(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "@")
}

// document is the on-disk shape. Toggles are pointers so a missing key can
// be told apart from an explicit false.
type document struct {
	RoomID          string `json:"room_unique_id" yaml:"room_unique_id"`
	ShowComment     *bool  `json:"show_comment" yaml:"show_comment"`
	ShowGift        *bool  `json:"show_gift" yaml:"show_gift"`
	ShowLike        *bool  `json:"show_like" yaml:"show_like"`
	ShowShare       *bool  `json:"show_share" yaml:"show_share"`
	ShowFollow      *bool  `json:"show_follow" yaml:"show_follow"`
	ShowViewerCount *bool  `json:"show_viewer_count" yaml:"show_viewer_count"`
}

func (d *document) field(c event.Category) **bool {
	switch c {
	case event.Comment:
		return &d.ShowComment
	case event.Gift:
		return &d.ShowGift
	case event.Like:
		return &d.ShowLike
	case event.Share:
		return &d.ShowShare
	case event.Follow:
		return &d.ShowFollow
	case event.ViewerCount:
		return &d.ShowViewerCount
	}
	return nil
}

// Store loads and saves a SessionConfig at a fixed path.
type Store struct {
	path string
}

// NewStore creates a Store for the given file. Pass an empty string to use
// the default location under the user's config directory. A path ending in
// .yaml or .yml is stored as YAML, anything else as JSON.
func NewStore(path string) *Store {
	if path == "" {
		path = defaultPath()
	}
	return &Store{path: path}
}

// Path returns the full path to the session document.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the session document. It never fails: a missing file yields
// defaults, an unreadable or corrupt one yields defaults and a warning.
func (s *Store) Load() SessionConfig {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Warnf("reading %s, using defaults", s.path)
		}
		return Default()
	}

	var doc document
	if s.isYAML() {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		logger.WithError(err).Warnf("parsing %s, using defaults", s.path)
		return Default()
	}

	cfg := Default()
	cfg.RoomID = NormalizeRoomID(doc.RoomID)
	for _, c := range event.Toggleable {
		if v := *doc.field(c); v != nil {
			cfg.Toggles[c] = *v
		}
	}
	return cfg
}

// Save writes cfg using an atomic temp-file-then-rename pattern. The parent
// directory is created if it does not already exist.
func (s *Store) Save(cfg SessionConfig) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	doc := document{RoomID: NormalizeRoomID(cfg.RoomID)}
	for _, c := range event.Toggleable {
		v := cfg.Enabled(c)
		*doc.field(c) = &v
	}

	var data []byte
	var err error
	if s.isYAML() {
		data, err = yaml.Marshal(&doc)
	} else {
		data, err = json.MarshalIndent(&doc, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming settings file: %w", err)
	}
	committed = true

	return nil
}

// defaultPath returns <user config dir>/livewatch/config.json, respecting
// XDG_CONFIG_HOME if set.
func defaultPath() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, appDirName, fileName)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, appDirName, fileName)
}
