package chatconf

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Segments is an ordered id -> template mapping. YAML mapping order is kept
// because it decides the rendered layout.
type Segments []chatdb.Segment

func (s *Segments) UnmarshalYAML(node *yaml.Node) error {
	pairs, err := mappingPairs(node)
	if err != nil {
		return err
	}
	out := make(Segments, 0, len(pairs))
	for _, p := range pairs {
		var tmpl string
		if err := p.value.Decode(&tmpl); err != nil {
			return fmt.Errorf("segment %q: %w", p.key, err)
		}
		out = append(out, chatdb.Segment{ID: p.key, Template: tmpl})
	}
	*s = out
	return nil
}

type pair struct {
	key   string
	value *yaml.Node
}

// mappingPairs returns the key/value pairs of a mapping node in document
// order. A missing or null node yields no pairs.
func mappingPairs(node *yaml.Node) ([]pair, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	pairs := make([]pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, pair{key: node.Content[i].Value, value: node.Content[i+1]})
	}
	return pairs, nil
}
