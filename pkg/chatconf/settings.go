package chatconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// File names inside the configuration directory.
const (
	SettingsFile = "config.yml"
	MessagesFile = "messages.yml"
	FilterFile   = "filter.yml"
	EmotesFile   = "emotes.yml"
	ChannelsDir  = "channels"
)

// DirectTemplate is one of the three private-message renderings.
type DirectTemplate struct {
	Segments Segments `yaml:"segments"`
	Sounds   []string `yaml:"sounds"`
}

// Announcement overrides the host's join or quit message.
type Announcement struct {
	Override bool    `yaml:"override"`
	Message  *string `yaml:"message"` // unset, empty or "null" silences the message
}

// Template returns the template to announce given the host's own one. ok is
// false when nothing should be announced.
func (a Announcement) Template(host string) (tmpl string, ok bool) {
	if !a.Override {
		return host, host != ""
	}
	if a.Message == nil || *a.Message == "" || *a.Message == "null" {
		return "", false
	}
	return *a.Message, true
}

// Settings holds config.yml.
type Settings struct {
	// --- Identity ---
	Server string `yaml:"server"` // this process's name, <server> placeholder and relay identity

	// --- Optional integrations ---
	Hooks struct {
		GroupLookup  bool `yaml:"group_lookup"`
		ExternalSink bool `yaml:"external_sink"`
	} `yaml:"hooks"`

	// --- Private messages ---
	PrivateMessages struct {
		Sender   DirectTemplate `yaml:"sender"`
		Receiver DirectTemplate `yaml:"receiver"`
		Spy      DirectTemplate `yaml:"spy"`
	} `yaml:"private_messages"`

	// --- Join and quit messages ---
	JoinMessage Announcement `yaml:"join_message"`
	QuitMessage Announcement `yaml:"quit_message"`

	// --- Chat log ---
	SQL struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`    // SQLite file
		Timeout int    `yaml:"timeout"` // busy timeout in seconds
		Buffer  int    `yaml:"buffer"`  // pending entries before dropping
	} `yaml:"sql"`

	// --- Spy preferences ---
	Bolt struct {
		Path string `yaml:"path"`
	} `yaml:"bolt"`

	// --- Cross-process relay ---
	Relay struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`    // hub to dial, e.g. ws://proxy:25580/relay
		Listen  string `yaml:"listen"` // non-empty: also run the hub here
		Secret  string `yaml:"secret"` // HS256 key shared by hub and clients
	} `yaml:"relay"`

	// --- Admin HTTP ---
	Admin struct {
		Listen       string `yaml:"listen"`
		PasswordHash string `yaml:"password_hash"` // bcrypt; CHANRELAY_ADMIN_PASS overrides
	} `yaml:"admin"`

	// --- Logging ---
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	s := &Settings{Server: "server"}
	s.Hooks.GroupLookup = true
	s.Hooks.ExternalSink = true
	s.PrivateMessages.Sender = DirectTemplate{Segments: Segments{
		{ID: "header", Template: "<gray>[<green>me</green> » <green><receiver></green>]</gray> "},
		{ID: "message", Template: "<white><message>"},
	}}
	s.PrivateMessages.Receiver = DirectTemplate{Segments: Segments{
		{ID: "header", Template: "<gray>[<green><sender></green> » <green>me</green>]</gray> "},
		{ID: "message", Template: "<white><message>"},
	}}
	s.PrivateMessages.Spy = DirectTemplate{Segments: Segments{
		{ID: "header", Template: "<dark_gray>[Spy] <gray><sender> » <receiver>: "},
		{ID: "message", Template: "<gray><message>"},
	}}
	s.SQL.Path = "chatlog.db"
	s.SQL.Timeout = 5
	s.SQL.Buffer = 256
	s.Log.Level = "info"
	return s
}

// LoadSettings reads config.yml over the defaults. A missing file yields the
// defaults.
func LoadSettings(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	if s.SQL.Path != "" && !filepath.IsAbs(s.SQL.Path) {
		s.SQL.Path = filepath.Join(filepath.Dir(path), s.SQL.Path)
	}
	if s.Bolt.Path != "" && !filepath.IsAbs(s.Bolt.Path) {
		s.Bolt.Path = filepath.Join(filepath.Dir(path), s.Bolt.Path)
	}
	return s, nil
}

// Config is everything loaded from one configuration directory.
type Config struct {
	Dir      string
	Settings *Settings
	Messages Messages
	Filter   *FilterRules
	Emotes   *EmoteConfig
	Channels []*chatdb.Channel
}

// ChannelDir returns the channel definitions directory.
func (c *Config) ChannelDir() string { return filepath.Join(c.Dir, ChannelsDir) }
