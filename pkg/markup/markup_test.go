package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tag  string
		want chatdb.TagSet
	}{
		{"red", chatdb.TagColor},
		{"#ff00aa", chatdb.TagColor},
		{"gradient:red:blue", chatdb.TagColor},
		{"BOLD", chatdb.TagDecoration},
		{"!italic", chatdb.TagDecoration},
		{"click:run_command:/help", chatdb.TagEvent},
		{"hover:show_text:'hi'", chatdb.TagEvent},
		{"pride", chatdb.TagOther},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Classify(tc.tag), tc.tag)
	}
}

func TestRestrict(t *testing.T) {
	f := New()
	in := "<red>hi <bold>there</bold> <click:open_url:x>link</click>"

	assert.Equal(t, in, f.Restrict(in, chatdb.TagAll).Markup)
	assert.Equal(t, `<red>hi \<bold>there\</bold> \<click:open_url:x>link\</click>`,
		f.Restrict(in, chatdb.TagColor).Markup)
	assert.Equal(t, `\<red>x`, f.Text("<red>x").Markup)

	// Already escaped tags stay escaped.
	assert.Equal(t, `\<red>x`, f.Restrict(`\<red>x`, chatdb.TagAll).Markup)
}

func TestTemplate(t *testing.T) {
	f := New()
	out := f.Template("<gray>[<Channel>] <player>: </gray><message>", map[string]chatdb.RichMessage{
		"channel": {Markup: "GLOBAL"},
		"player":  {Markup: "<gold>Alice</gold>"},
	})
	assert.Equal(t, "<gray>[GLOBAL] <gold>Alice</gold>: </gray><message>", out.Markup)
	assert.Equal(t, "plain", f.Template("plain", nil).Markup)
}

func TestPlain(t *testing.T) {
	f := New()
	assert.Equal(t, "hi there", f.Plain(chatdb.RichMessage{Markup: "<red>hi <b>there</b>"}))
	assert.Equal(t, "<red>x", f.Plain(f.Text("<red>x")))
}

func TestReplaceLegacy(t *testing.T) {
	assert.Equal(t, "<reset><red>hot <bold>now", ReplaceLegacy("&chot &lnow"))
	assert.Equal(t, "<reset><gold>x", ReplaceLegacy("§6x"))
	assert.Equal(t, "<reset><color:#A1b2C3>hex", ReplaceLegacy("&#A1b2C3hex"))
}
