package emotes

import (
	"strings"

	"github.com/google/uuid"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// Emote replaces Identifier with Replacement markup. An empty Permission
// makes the emote available to everyone.
type Emote struct {
	Identifier  string `yaml:"identifier"`
	Replacement string `yaml:"emote"`
	Permission  string `yaml:"permission"`
}

// Set is an immutable list of emotes applied in declaration order.
type Set struct {
	enabled bool
	emotes  []Emote
}

// NewSet builds a set. A disabled set leaves text untouched.
func NewSet(enabled bool, list []Emote) *Set {
	cp := make([]Emote, 0, len(list))
	for _, e := range list {
		if e.Identifier == "" {
			continue
		}
		cp = append(cp, e)
	}
	return &Set{enabled: enabled, emotes: cp}
}

// Len returns the number of registered emotes.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.emotes)
}

// Replace substitutes every emote regardless of permission. Used on
// trusted template text.
func (s *Set) Replace(text string) string {
	if s == nil || !s.enabled {
		return text
	}
	for _, e := range s.emotes {
		text = strings.ReplaceAll(text, e.Identifier, e.Replacement)
	}
	return text
}

// ReplaceFor substitutes only the emotes the participant may use.
func (s *Set) ReplaceFor(text string, id uuid.UUID, perms chatdb.PermissionOracle) string {
	if s == nil || !s.enabled {
		return text
	}
	for _, e := range s.emotes {
		if e.Permission != "" && (perms == nil || !perms.Has(id, e.Permission)) {
			continue
		}
		text = strings.ReplaceAll(text, e.Identifier, e.Replacement)
	}
	return text
}
