package chatconf

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Load reads every configuration file under dir. Only unreadable or
// unparseable top-level files are errors; individual channel definitions
// that fail validation are skipped with a warning.
func Load(dir string, log zerolog.Logger) (*Config, error) {
	cfg := &Config{Dir: dir}
	var err error

	if cfg.Settings, err = LoadSettings(filepath.Join(dir, SettingsFile)); err != nil {
		return nil, err
	}
	if cfg.Messages, err = LoadMessages(filepath.Join(dir, MessagesFile)); err != nil {
		return nil, err
	}
	if cfg.Filter, err = LoadFilterRules(filepath.Join(dir, FilterFile)); err != nil {
		return nil, err
	}
	if cfg.Emotes, err = LoadEmotes(filepath.Join(dir, EmotesFile)); err != nil {
		return nil, err
	}
	if cfg.Channels, err = LoadChannelDir(cfg.ChannelDir(), log); err != nil {
		return nil, fmt.Errorf("loading channels: %w", err)
	}

	log.Info().
		Str("dir", dir).
		Str("server", cfg.Settings.Server).
		Int("messages", len(cfg.Messages)).
		Int("patterns", len(cfg.Filter.Regex.Patterns)).
		Int("emotes", len(cfg.Emotes.Emotes)).
		Int("channels", len(cfg.Channels)).
		Msg("Configuration loaded")
	return cfg, nil
}
