package chatconf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

const globalYAML = `
name: global
displayName: Global
aliases: [g, all]
settings:
  default: true
  bungeecord: true
  DiscordSRV: true
formats:
  admin:
    settings:
      all: true
    segments:
      prefix: "<red>[Admin] "
      name: "<player>: "
      message: "<message>"
  default:
    settings:
      color: true
    segments:
      name: "<gray><player>: "
      message: "<white><message>"
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestParseChannelKeepsOrder(t *testing.T) {
	ch, err := ParseChannel([]byte(globalYAML))
	require.NoError(t, err)

	assert.Equal(t, "GLOBAL", ch.Name)
	assert.Equal(t, "Global", ch.DisplayName)
	assert.Equal(t, []string{"G", "ALL"}, ch.Aliases)
	assert.True(t, ch.Default)
	assert.True(t, ch.CrossServer)
	assert.True(t, ch.ExternalSink)
	assert.Equal(t, -1, ch.Range)
	assert.False(t, ch.Ranged())

	require.Len(t, ch.Formats, 2)
	assert.Equal(t, "admin", ch.Formats[0].ID)
	assert.Equal(t, "default", ch.Formats[1].ID)

	admin := ch.Formats[0]
	assert.Equal(t, chatdb.TagAll, admin.Tags())
	require.Len(t, admin.Segments, 3)
	assert.Equal(t, []string{"prefix", "name", "message"},
		[]string{admin.Segments[0].ID, admin.Segments[1].ID, admin.Segments[2].ID})
	assert.Equal(t, 2, admin.MessageSegment())

	assert.Equal(t, chatdb.TagColor, ch.Formats[1].Tags())
}

func TestParseChannelDefaults(t *testing.T) {
	ch, err := ParseChannel([]byte(`
name: local
settings:
  range: 50
formats:
  default:
    segments:
      message: "<message>"
`))
	require.NoError(t, err)
	assert.False(t, ch.Default, "unset default means not default")
	assert.Equal(t, "LOCAL", ch.DisplayName)
	assert.Equal(t, 50, ch.Range)
	assert.True(t, ch.Ranged())
}

func TestParseChannelErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no default format", "name: x\nformats:\n  staff:\n    segments:\n      m: \"<message>\"\n"},
		{"no formats", "name: x\n"},
		{"no name", "formats:\n  default:\n    segments:\n      m: \"<message>\"\n"},
		{"two message segments", "name: x\nformats:\n  default:\n    segments:\n      a: \"<message>\"\n      b: \"<message>\"\n"},
		{"formats not a mapping", "name: x\nformats: [1, 2]\n"},
		{"bad yaml", "name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChannel([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadChannelDirSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "global.yml"), globalYAML)
	writeFile(t, filepath.Join(dir, "broken.yml"), "name: broken\nformats:\n  staff:\n    segments:\n      m: x\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	channels, err := LoadChannelDir(dir, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "GLOBAL", channels[0].Name)

	_, err = LoadChannelFile(filepath.Join(dir, "broken.yml"))
	var cfgErr *chatdb.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Source, "broken.yml")
}

func TestLoadChannelDirMissing(t *testing.T) {
	_, err := LoadChannelDir(filepath.Join(t.TempDir(), "nope"), zerolog.Nop())
	assert.Error(t, err)
}

func TestLoadMessagesFlattens(t *testing.T) {
	path := filepath.Join(t.TempDir(), MessagesFile)
	writeFile(t, path, `
Channel:
  Switch: "switched to <channel>"
Filter:
  Regex: "nope"
`)
	m, err := LoadMessages(path)
	require.NoError(t, err)
	assert.Equal(t, "switched to <channel>", m.Get(chatdb.MsgChannelSwitch))
	assert.Equal(t, "nope", m.Get(chatdb.MsgFilterRegex))
	assert.Equal(t, chatdb.DefaultMessages[chatdb.MsgReplyUsage], m.Get(chatdb.MsgReplyUsage))
	assert.Equal(t, "Unknown.Key", m.Get("Unknown.Key"))
}

func TestLoadFilterRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), FilterFile)
	writeFile(t, path, `
RegexFilter:
  enabled: true
  silent: true
  filter:
    - "(?i)badword"
    - "[0-9]{3}\\.[0-9]{3}"
RepeatMessageFilter:
  enabled: true
MiscCharacters:
  characters: [".", "_"]
FilteredPrefix: "<gray>[F] "
`)
	r, err := LoadFilterRules(path)
	require.NoError(t, err)
	assert.True(t, r.Regex.Enabled)
	assert.True(t, r.Regex.Silent)
	assert.Equal(t, []string{"(?i)badword", `[0-9]{3}\.[0-9]{3}`}, r.Regex.Patterns)
	assert.True(t, r.Repeat.Enabled)
	assert.True(t, r.RepeatSilent())
	assert.Equal(t, []string{".", "_"}, r.Noise.Characters)
	assert.Equal(t, "<gray>[F] ", r.FilteredPrefix)
}

func TestLoadFilterRulesMissingUsesDefaults(t *testing.T) {
	r, err := LoadFilterRules(filepath.Join(t.TempDir(), FilterFile))
	require.NoError(t, err)
	assert.False(t, r.Regex.Enabled)
	assert.True(t, r.Repeat.Enabled)
	assert.NotEmpty(t, r.FilteredPrefix)
}

func TestLoadEmotesOrdered(t *testing.T) {
	path := filepath.Join(t.TempDir(), EmotesFile)
	writeFile(t, path, `
emotes:
  shrug:
    identifier: ":shrug:"
    emote: "¯\\_(ツ)_/¯"
  heart:
    identifier: "<3"
    emote: "<red>❤</red>"
    permission: emotes.heart
`)
	cfg, err := LoadEmotes(path)
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	require.Len(t, cfg.Emotes, 2)
	assert.Equal(t, ":shrug:", cfg.Emotes[0].Identifier)
	assert.Equal(t, "emotes.heart", cfg.Emotes[1].Permission)
	assert.Equal(t, 2, cfg.Set().Len())
}

func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SettingsFile)
	writeFile(t, path, `
server: lobby
hooks:
  group_lookup: false
private_messages:
  sender:
    segments:
      b: "B"
      a: "A <message>"
    sounds: [ui.click]
sql:
  enabled: true
  path: logs.db
relay:
  enabled: true
  url: ws://proxy/relay
  secret: s3cret
admin:
  listen: 127.0.0.1:8090
join_message:
  override: true
  message: "<green>+ <player>"
quit_message:
  override: true
  message: null
`)
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "lobby", s.Server)
	assert.False(t, s.Hooks.GroupLookup)
	assert.True(t, s.Hooks.ExternalSink, "default kept")

	seg := s.PrivateMessages.Sender.Segments
	require.Len(t, seg, 2)
	assert.Equal(t, "b", seg[0].ID)
	assert.Equal(t, "a", seg[1].ID)
	assert.Equal(t, []string{"ui.click"}, s.PrivateMessages.Sender.Sounds)
	assert.NotEmpty(t, s.PrivateMessages.Receiver.Segments, "default kept")

	assert.True(t, s.SQL.Enabled)
	assert.Equal(t, filepath.Join(dir, "logs.db"), s.SQL.Path)
	assert.Equal(t, "ws://proxy/relay", s.Relay.URL)
	assert.Equal(t, "127.0.0.1:8090", s.Admin.Listen)

	tmpl, ok := s.JoinMessage.Template("<yellow><player> joined")
	assert.True(t, ok)
	assert.Equal(t, "<green>+ <player>", tmpl)
	_, ok = s.QuitMessage.Template("<yellow><player> left")
	assert.False(t, ok, "null silences the quit message")
}

func TestAnnouncementTemplate(t *testing.T) {
	msg := func(s string) *string { return &s }
	tests := []struct {
		name string
		a    Announcement
		host string
		want string
		ok   bool
	}{
		{"host message kept", Announcement{}, "joined", "joined", true},
		{"host silent", Announcement{}, "", "", false},
		{"override", Announcement{Override: true, Message: msg("hi <player>")}, "joined", "hi <player>", true},
		{"override unset", Announcement{Override: true}, "joined", "", false},
		{"override null", Announcement{Override: true, Message: msg("null")}, "joined", "", false},
		{"override empty", Announcement{Override: true, Message: msg("")}, "joined", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.a.Template(tc.host)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadBundle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, SettingsFile), "server: survival\n")
	writeFile(t, filepath.Join(dir, ChannelsDir, "global.yml"), globalYAML)

	cfg, err := Load(dir, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "survival", cfg.Settings.Server)
	assert.Len(t, cfg.Channels, 1)
	assert.False(t, cfg.Emotes.Enabled)
	assert.Equal(t, filepath.Join(dir, ChannelsDir), cfg.ChannelDir())
}
