// Package format picks the format a participant's message is rendered with
// and renders it.
package format

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/emotes"
	"github.com/crystal-mush/chanrelay/pkg/markup"
)

// GroupLookup reports a participant's primary permission group. A group
// whose name matches a format id selects that format directly.
type GroupLookup interface {
	PrimaryGroup(id uuid.UUID) (string, bool)
}

// Placeholders expands host-specific placeholders in trusted template text.
type Placeholders interface {
	Apply(p chatdb.Participant, text string) string
}

// Markup is the rich-text collaborator.
type Markup interface {
	Restrict(text string, allowed chatdb.TagSet) chatdb.RichMessage
	Template(tmpl string, placeholders map[string]chatdb.RichMessage) chatdb.RichMessage
	Plain(msg chatdb.RichMessage) string
}

// Selector chooses a channel format for a participant.
type Selector struct {
	perms  chatdb.PermissionOracle
	groups GroupLookup // nil when group lookup is disabled
}

// NewSelector creates a selector. groups may be nil.
func NewSelector(perms chatdb.PermissionOracle, groups GroupLookup) *Selector {
	return &Selector{perms: perms, groups: groups}
}

// Select returns the group-matched format, else the first format in
// declaration order whose format.<id> permission the participant holds,
// else the channel's default format.
func (s *Selector) Select(ch *chatdb.Channel, p chatdb.Participant) (*chatdb.Format, error) {
	if s.groups != nil {
		if group, ok := s.groups.PrimaryGroup(p.ID); ok && group != "" {
			for _, f := range ch.Formats {
				if strings.EqualFold(f.ID, group) {
					return f, nil
				}
			}
		}
	}
	if s.perms != nil {
		for _, f := range ch.Formats {
			if s.perms.Has(p.ID, chatdb.PermFormatPrefix+f.ID) {
				return f, nil
			}
		}
	}
	if f := ch.Format(chatdb.DefaultFormatID); f != nil {
		return f, nil
	}
	return nil, &chatdb.ConfigurationError{
		Source: ch.Name,
		Err:    fmt.Errorf("no %q format", chatdb.DefaultFormatID),
	}
}

// Renderer turns raw text into a channel message.
type Renderer struct {
	Markup       Markup
	Emotes       *emotes.Set
	Perms        chatdb.PermissionOracle
	Placeholders Placeholders // optional
	Server       string
}

// Render walks the format's segments in declaration order. The segment
// holding <message> receives the sender's text restricted to the format's
// tag families; every other segment only sees the built-in and host
// placeholders.
func (r *Renderer) Render(ch *chatdb.Channel, f *chatdb.Format, p chatdb.Participant, raw string) chatdb.RichMessage {
	base := r.builtins(ch, p)
	parts := make([]chatdb.RichMessage, 0, len(f.Segments))
	for _, seg := range f.Segments {
		tmpl := seg.Template
		if r.Placeholders != nil {
			tmpl = r.Placeholders.Apply(p, tmpl)
		}
		if !strings.Contains(seg.Template, chatdb.MessagePlaceholder) {
			msg := r.Markup.Template(markup.ReplaceLegacy(tmpl), base)
			msg.Markup = r.Emotes.Replace(msg.Markup)
			parts = append(parts, msg)
			continue
		}
		vals := make(map[string]chatdb.RichMessage, len(base)+2)
		for k, v := range base {
			vals[k] = v
		}
		vals["message"] = r.Body(p, raw, f.Tags())
		vals["message_raw"] = r.Markup.Restrict(raw, 0)
		parts = append(parts, r.Markup.Template(tmpl, vals))
	}
	return chatdb.Concat(parts...)
}

// Announce renders a trusted announcement template for p, such as a join
// message. External placeholders, emotes and the built-in placeholders other
// than <channel> are applied.
func (r *Renderer) Announce(p chatdb.Participant, tmpl string) chatdb.RichMessage {
	if r.Placeholders != nil {
		tmpl = r.Placeholders.Apply(p, tmpl)
	}
	tmpl = r.Emotes.Replace(markup.ReplaceLegacy(tmpl))
	return r.Markup.Template(tmpl, r.builtins(nil, p))
}

// Body renders the sender's text. Legacy colour codes are translated when
// the format allows colours or decorations, tags outside allowed are
// neutralised, then the emotes the sender may use are substituted.
func (r *Renderer) Body(p chatdb.Participant, raw string, allowed chatdb.TagSet) chatdb.RichMessage {
	if allowed&(chatdb.TagColor|chatdb.TagDecoration) != 0 {
		raw = markup.ReplaceLegacy(raw)
	}
	msg := r.Markup.Restrict(raw, allowed)
	msg.Markup = r.Emotes.ReplaceFor(msg.Markup, p.ID, r.Perms)
	return msg
}

func (r *Renderer) builtins(ch *chatdb.Channel, p chatdb.Participant) map[string]chatdb.RichMessage {
	text := func(s string) chatdb.RichMessage { return r.Markup.Restrict(s, 0) }
	vals := map[string]chatdb.RichMessage{
		"player":      text(p.Name),
		"displayname": text(p.Display()),
		"server":      text(r.Server),
	}
	if ch != nil {
		vals["channel"] = text(ch.DisplayName)
	}
	return vals
}
