package chatconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// channelFile mirrors one channels/*.yml definition.
type channelFile struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"displayName"`
	Aliases     []string `yaml:"aliases"`
	Permission  string   `yaml:"permission"`
	Settings    struct {
		Default      *bool `yaml:"default"`
		CrossServer  bool  `yaml:"bungeecord"`
		ExternalSink bool  `yaml:"DiscordSRV"`
		Range        *int  `yaml:"range"`
	} `yaml:"settings"`
	Formats yaml.Node `yaml:"formats"`
}

type formatFile struct {
	Settings struct {
		All         bool `yaml:"all"`
		Color       bool `yaml:"color"`
		Decorations bool `yaml:"decorations"`
		Events      bool `yaml:"events"`
	} `yaml:"settings"`
	Segments Segments `yaml:"segments"`
}

// ParseChannel decodes and validates a single channel definition. An unset
// settings.default means "not default".
func ParseChannel(data []byte) (*chatdb.Channel, error) {
	var cf channelFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	ch := &chatdb.Channel{
		Name:         cf.Name,
		DisplayName:  cf.DisplayName,
		Aliases:      append([]string(nil), cf.Aliases...),
		Permission:   cf.Permission,
		CrossServer:  cf.Settings.CrossServer,
		ExternalSink: cf.Settings.ExternalSink,
		Range:        -1,
	}
	if cf.Settings.Default != nil {
		ch.Default = *cf.Settings.Default
	}
	if cf.Settings.Range != nil {
		ch.Range = *cf.Settings.Range
	}

	pairs, err := mappingPairs(&cf.Formats)
	if err != nil {
		return nil, fmt.Errorf("formats: %w", err)
	}
	for _, p := range pairs {
		var ff formatFile
		if err := p.value.Decode(&ff); err != nil {
			return nil, fmt.Errorf("format %q: %w", p.key, err)
		}
		ch.Formats = append(ch.Formats, &chatdb.Format{
			ID:          p.key,
			Segments:    []chatdb.Segment(ff.Segments),
			Color:       ff.Settings.Color,
			Decorations: ff.Settings.Decorations,
			Events:      ff.Settings.Events,
			All:         ff.Settings.All,
		})
	}

	ch.Normalize()
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	return ch, nil
}

// LoadChannelFile reads one channel definition from disk.
func LoadChannelFile(path string) (*chatdb.Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &chatdb.ConfigurationError{Source: path, Err: err}
	}
	ch, err := ParseChannel(data)
	if err != nil {
		return nil, &chatdb.ConfigurationError{Source: path, Err: err}
	}
	return ch, nil
}

// LoadChannelDir loads every *.yml / *.yaml file in dir in name order.
// Malformed definitions are skipped with a warning; only an unreadable
// directory is an error.
func LoadChannelDir(dir string, log zerolog.Logger) ([]*chatdb.Channel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading channel dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var channels []*chatdb.Channel
	for _, name := range names {
		ch, err := LoadChannelFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping channel definition")
			continue
		}
		channels = append(channels, ch)
	}
	log.Info().Int("channels", len(channels)).Str("dir", dir).Msg("Loaded channel definitions")
	return channels, nil
}
