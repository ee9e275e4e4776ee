// Package markup is the default rich-text collaborator. It understands just
// enough of the angle-bracket tag grammar to gate tag families, substitute
// placeholders and strip tags; rendering tags into client output is left to
// the host.
package markup

import (
	"regexp"
	"strings"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

// tagPattern matches an optionally escaped tag such as <red>, </bold> or
// <hover:show_text:'hi'>.
var tagPattern = regexp.MustCompile(`(\\?)<(/?)([#a-zA-Z_][^<>]*)>`)

var colorTags = map[string]bool{
	"color": true, "colour": true, "c": true, "rainbow": true, "gradient": true, "transition": true,
	"black": true, "dark_blue": true, "dark_green": true, "dark_aqua": true, "dark_red": true,
	"dark_purple": true, "gold": true, "gray": true, "grey": true, "dark_gray": true, "dark_grey": true,
	"blue": true, "green": true, "aqua": true, "red": true, "light_purple": true, "yellow": true, "white": true,
}

var decorationTags = map[string]bool{
	"bold": true, "b": true, "italic": true, "i": true, "em": true, "underlined": true, "u": true,
	"strikethrough": true, "st": true, "obfuscated": true, "obf": true, "font": true, "reset": true,
}

var eventTags = map[string]bool{
	"click": true, "hover": true, "insert": true, "insertion": true, "selector": true, "sel": true,
	"lang": true, "tr": true, "translate": true, "newline": true, "br": true, "key": true,
}

// Classify returns the tag family a tag name belongs to.
func Classify(name string) chatdb.TagSet {
	name = strings.ToLower(name)
	if i := strings.IndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "!")
	switch {
	case strings.HasPrefix(name, "#"), colorTags[name]:
		return chatdb.TagColor
	case decorationTags[name]:
		return chatdb.TagDecoration
	case eventTags[name]:
		return chatdb.TagEvent
	default:
		return chatdb.TagOther
	}
}

// Formatter implements the rich-text operations the router and the direct
// message router need.
type Formatter struct{}

// New returns the default formatter.
func New() *Formatter { return &Formatter{} }

// Restrict turns untrusted text into a rich message in which only tags from
// the allowed families stay active; the rest are escaped so they render as
// literal text.
func (f *Formatter) Restrict(text string, allowed chatdb.TagSet) chatdb.RichMessage {
	out := tagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		m := tagPattern.FindStringSubmatch(tag)
		if m[1] != "" {
			return tag
		}
		if allowed.Has(Classify(m[3])) {
			return tag
		}
		return `\` + tag
	})
	return chatdb.RichMessage{Markup: out}
}

// Template renders trusted template text, replacing <name> placeholders with
// already-rendered components. Placeholder names match case-insensitively.
func (f *Formatter) Template(tmpl string, placeholders map[string]chatdb.RichMessage) chatdb.RichMessage {
	if len(placeholders) == 0 {
		return chatdb.RichMessage{Markup: tmpl}
	}
	out := tagPattern.ReplaceAllStringFunc(tmpl, func(tag string) string {
		m := tagPattern.FindStringSubmatch(tag)
		if m[1] != "" || m[2] != "" {
			return tag
		}
		if v, ok := placeholders[strings.ToLower(m[3])]; ok {
			return v.Markup
		}
		return tag
	})
	return chatdb.RichMessage{Markup: out}
}

// Plain strips every active tag and unescapes escaped ones.
func (f *Formatter) Plain(msg chatdb.RichMessage) string {
	out := tagPattern.ReplaceAllStringFunc(msg.Markup, func(tag string) string {
		if strings.HasPrefix(tag, `\`) {
			return tag[1:]
		}
		return ""
	})
	return out
}

// Text wraps literal text, escaping anything that looks like a tag.
func (f *Formatter) Text(s string) chatdb.RichMessage {
	return f.Restrict(s, 0)
}
