package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PermissionsFile is the permission table inside the configuration directory.
const PermissionsFile = "permissions.yml"

// Permissions maps participant names to permission nodes. A node ending in
// ".*" grants every node under that prefix and "*" grants everything.
// Groups names each participant's primary group for format selection.
type Permissions struct {
	Default []string            `yaml:"default"`
	Players map[string][]string `yaml:"players"`
	Groups  map[string]string   `yaml:"groups"`
}

// LoadPermissions reads a permission table. A missing file grants nothing
// beyond the empty default list.
func LoadPermissions(path string) (*Permissions, error) {
	p := &Permissions{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	// Names are case-insensitive.
	players := make(map[string][]string, len(p.Players))
	for name, nodes := range p.Players {
		key := strings.ToLower(name)
		players[key] = append(players[key], nodes...)
	}
	p.Players = players
	groups := make(map[string]string, len(p.Groups))
	for name, group := range p.Groups {
		groups[strings.ToLower(name)] = group
	}
	p.Groups = groups
	return p, nil
}

// Group returns name's primary group.
func (p *Permissions) Group(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	g, ok := p.Groups[strings.ToLower(name)]
	return g, ok && g != ""
}

// Allows reports whether name holds node.
func (p *Permissions) Allows(name, node string) bool {
	if p == nil {
		return false
	}
	return grants(p.Default, node) || grants(p.Players[strings.ToLower(name)], node)
}

func grants(held []string, node string) bool {
	for _, g := range held {
		switch {
		case g == "*", strings.EqualFold(g, node):
			return true
		case strings.HasSuffix(g, ".*") && strings.HasPrefix(strings.ToLower(node), strings.ToLower(g[:len(g)-1])):
			return true
		}
	}
	return false
}
