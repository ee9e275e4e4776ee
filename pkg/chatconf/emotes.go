package chatconf

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/chanrelay/pkg/emotes"
)

// EmoteConfig holds emotes.yml. Emotes are keyed by name; the key itself is
// not used beyond keeping the file readable.
type EmoteConfig struct {
	Enabled bool
	Emotes  []emotes.Emote
}

type emoteFile struct {
	Enabled *bool     `yaml:"enabled"`
	Emotes  yaml.Node `yaml:"emotes"`
}

// Set builds the emote set described by the config.
func (c *EmoteConfig) Set() *emotes.Set {
	if c == nil {
		return emotes.NewSet(false, nil)
	}
	return emotes.NewSet(c.Enabled, c.Emotes)
}

// LoadEmotes reads emotes.yml. A missing file disables emotes.
func LoadEmotes(path string) (*EmoteConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &EmoteConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var ef emoteFile
	if err := yaml.Unmarshal(data, &ef); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	cfg := &EmoteConfig{Enabled: ef.Enabled == nil || *ef.Enabled}
	pairs, err := mappingPairs(&ef.Emotes)
	if err != nil {
		return nil, fmt.Errorf("%s: emotes: %w", path, err)
	}
	for _, p := range pairs {
		var e emotes.Emote
		if err := p.value.Decode(&e); err != nil {
			return nil, fmt.Errorf("%s: emote %q: %w", path, p.key, err)
		}
		cfg.Emotes = append(cfg.Emotes, e)
	}
	return cfg, nil
}
