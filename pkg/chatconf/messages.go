package chatconf

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Messages maps message keys to markup templates. Lookups fall back to the
// built-in defaults.
type Messages map[chatdb.MessageKey]string

// Get returns the template for key.
func (m Messages) Get(key chatdb.MessageKey) string {
	if v, ok := m[key]; ok {
		return v
	}
	if v, ok := chatdb.DefaultMessages[key]; ok {
		return v
	}
	return string(key)
}

// LoadMessages reads messages.yml. Nested mappings are flattened into dotted
// keys, so
//
//	Channel:
//	  Switch: "..."
//
// yields the key "Channel.Switch". A missing file yields the defaults only.
func LoadMessages(path string) (Messages, error) {
	m := Messages{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	if err := flatten(&root, "", m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func flatten(node *yaml.Node, prefix string, out Messages) error {
	pairs, err := mappingPairs(node)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		key := p.key
		if prefix != "" {
			key = prefix + "." + key
		}
		switch p.value.Kind {
		case yaml.MappingNode:
			if err := flatten(p.value, key, out); err != nil {
				return err
			}
		case yaml.ScalarNode:
			out[chatdb.MessageKey(key)] = p.value.Value
		default:
			return fmt.Errorf("line %d: %s must be a string", p.value.Line, key)
		}
	}
	return nil
}
