package chatdb

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// MessagePlaceholder marks the format segment that carries the sender's text.
const MessagePlaceholder = "<message>"

// RawMessagePlaceholder is replaced with the unprocessed text inside the
// message segment only.
const RawMessagePlaceholder = "<message_raw>"

// DefaultFormatID is the fallback format every channel must define.
const DefaultFormatID = "default"

// Vec3 is a position in a participant's world.
type Vec3 struct {
	X, Y, Z float64
}

// Distance returns the Euclidean distance between two positions.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Participant is a snapshot of a connected player as reported by the host.
type Participant struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	World       string
	Pos         Vec3
}

// Display returns the display name, falling back to the login name.
func (p Participant) Display() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// TagSet is the set of markup tag families a formatter may interpret.
type TagSet uint8

const (
	TagColor      TagSet = 1 << iota // color, rainbow, gradient
	TagDecoration                    // bold, italic, font, reset, ...
	TagEvent                         // click, hover, insertion, selector, ...
	TagOther                         // every other tag the formatter knows
)

// TagAll enables every tag family.
const TagAll = TagColor | TagDecoration | TagEvent | TagOther

// Has reports whether every family in o is enabled.
func (t TagSet) Has(o TagSet) bool { return t&o == o }

func (t TagSet) String() string {
	if t == 0 {
		return "none"
	}
	if t == TagAll {
		return "all"
	}
	var parts []string
	if t.Has(TagColor) {
		parts = append(parts, "color")
	}
	if t.Has(TagDecoration) {
		parts = append(parts, "decorations")
	}
	if t.Has(TagEvent) {
		parts = append(parts, "events")
	}
	if t.Has(TagOther) {
		parts = append(parts, "other")
	}
	return strings.Join(parts, "|")
}

// Segment is one named template piece of a format.
type Segment struct {
	ID       string
	Template string
}

// Format is a named template used to render a message in a channel.
type Format struct {
	ID          string
	Segments    []Segment
	Color       bool
	Decorations bool
	Events      bool
	All         bool // supersedes Color, Decorations and Events
}

// Tags returns the tag families the sender's text may use under this format.
func (f *Format) Tags() TagSet {
	if f.All {
		return TagAll
	}
	var t TagSet
	if f.Color {
		t |= TagColor
	}
	if f.Decorations {
		t |= TagDecoration
	}
	if f.Events {
		t |= TagEvent
	}
	return t
}

// MessageSegment returns the index of the segment carrying the message body,
// or -1 if the format has none.
func (f *Format) MessageSegment() int {
	for i, s := range f.Segments {
		if strings.Contains(s.Template, MessagePlaceholder) {
			return i
		}
	}
	return -1
}

// Validate checks the per-format invariants.
func (f *Format) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("format has no id")
	}
	n := 0
	for _, s := range f.Segments {
		if strings.Contains(s.Template, MessagePlaceholder) {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("format %q: %d segments contain %s, at most one allowed", f.ID, n, MessagePlaceholder)
	}
	return nil
}

// Channel is a named, permission-scoped chat scope.
type Channel struct {
	Name         string // uppercase primary key
	DisplayName  string
	Aliases      []string // uppercase
	Permission   string   // empty = unrestricted
	Default      bool
	CrossServer  bool // re-broadcast to sibling processes
	ExternalSink bool // mirror to the external chat bridge
	Range        int  // <= 0 means global
	Formats      []*Format
}

// Format returns the format with the given id, or nil.
func (c *Channel) Format(id string) *Format {
	for _, f := range c.Formats {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Ranged reports whether messages are limited by distance.
func (c *Channel) Ranged() bool { return c.Range > 0 }

// Normalize uppercases the name and aliases and fills in the display name.
func (c *Channel) Normalize() {
	c.Name = strings.ToUpper(strings.TrimSpace(c.Name))
	for i, a := range c.Aliases {
		c.Aliases[i] = strings.ToUpper(strings.TrimSpace(a))
	}
	if c.DisplayName == "" {
		c.DisplayName = c.Name
	}
}

// Validate checks that the channel can be loaded.
func (c *Channel) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channel has no name")
	}
	seen := make(map[string]bool, len(c.Formats))
	for _, f := range c.Formats {
		if seen[f.ID] {
			return fmt.Errorf("channel %s: duplicate format %q", c.Name, f.ID)
		}
		seen[f.ID] = true
		if err := f.Validate(); err != nil {
			return fmt.Errorf("channel %s: %w", c.Name, err)
		}
	}
	if !seen[DefaultFormatID] {
		return fmt.Errorf("channel %s: missing %q format", c.Name, DefaultFormatID)
	}
	return nil
}

// RichMessage is an already-rendered message in serialized markup form.
// The core never inspects it beyond concatenation; parsing belongs to the
// formatter.
type RichMessage struct {
	Markup string
}

// Concat joins rendered parts in order.
func Concat(parts ...RichMessage) RichMessage {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Markup)
	}
	return RichMessage{Markup: b.String()}
}

// IsZero reports whether the message is empty.
func (m RichMessage) IsZero() bool { return m.Markup == "" }

func (m RichMessage) String() string { return m.Markup }

// FilterResult is the outcome of running a message through one filter or a
// whole chain.
type FilterResult struct {
	Passed  bool
	Visible bool   // failure is shown to the sender
	Message string // failure text, markup
}

// Pass is the passing result.
var Pass = FilterResult{Passed: true}
