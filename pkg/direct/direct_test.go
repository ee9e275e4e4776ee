package direct

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystal-mush/chanrelay/pkg/boltstore"
	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/chattest"
	"github.com/crystal-mush/chanrelay/pkg/emotes"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/format"
	"github.com/crystal-mush/chanrelay/pkg/mainloop"
	"github.com/crystal-mush/chanrelay/pkg/markup"
)

type fixture struct {
	alice, bob, carol chatdb.Participant
	roster            *chattest.Roster
	perms             *chattest.Perms
	rec               *events.Recorder
	router            *Router
}

func newFixture(t *testing.T, spies *SpySet) *fixture {
	t.Helper()
	f := &fixture{
		alice: chattest.Player("alice"),
		bob:   chattest.Player("bob"),
		carol: chattest.Player("carol"),
		perms: chattest.NewPerms(),
		rec:   events.NewRecorder(),
	}
	f.roster = chattest.NewRoster(f.alice, f.bob, f.carol)
	bus := events.NewBus()
	bus.SubscribeGlobal(f.rec)

	perms := f.perms
	f.router = New(Config{
		Roster: f.roster,
		Perms:  perms,
		Bus:    bus,
		Renderer: &format.Renderer{
			Markup: markup.New(),
			Emotes: emotes.NewSet(true, []emotes.Emote{{Identifier: ":heart:", Replacement: "<red>❤</red>"}}),
			Perms:  perms,
		},
		Messages:  chatconf.Messages{},
		Templates: TemplatesFrom(chatconf.DefaultSettings()),
		Spies:     spies,
		Log:       zerolog.Nop(),
	})
	return f
}

func (f *fixture) texts(p chatdb.Participant, typ events.EventType) []string {
	var out []string
	for _, ev := range f.rec.For(p.ID) {
		if ev.Type == typ {
			out = append(out, ev.Message.Markup)
		}
	}
	return out
}

func preconditionKey(t *testing.T, err error) chatdb.MessageKey {
	t.Helper()
	var pe *chatdb.PreconditionError
	require.True(t, errors.As(err, &pe), "expected PreconditionError, got %v", err)
	return pe.Key
}

func TestSendRendersBothCopies(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.router.Message(f.alice, "BOB", "hi :heart: <red>there"))

	assert.Equal(t, []string{`<gray>[<green>me</green> » <green>bob</green>]</gray> <white>hi <red>❤</red> \<red>there`},
		f.texts(f.alice, events.EvDirect))
	assert.Equal(t, []string{`<gray>[<green>alice</green> » <green>me</green>]</gray> <white>hi <red>❤</red> \<red>there`},
		f.texts(f.bob, events.EvDirect))
	assert.Empty(t, f.rec.For(f.carol.ID))

	target, ok := f.router.ReplyTarget(f.bob.ID)
	require.True(t, ok)
	assert.Equal(t, f.alice.ID, target)
}

func TestSenderPermissionsUnlockTags(t *testing.T) {
	f := newFixture(t, nil)
	f.perms.Grant(f.alice.ID, chatdb.PermMessageColors)

	require.NoError(t, f.router.Send(f.alice, f.bob, "<red>red</red> <bold>bold"))
	got := f.texts(f.bob, events.EvDirect)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], `<red>red</red> \<bold>bold`)
}

func TestMessagePreconditions(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name     string
		receiver string
		raw      string
		want     chatdb.MessageKey
	}{
		{"offline", "dave", "hi", chatdb.MsgMessageNotOnline},
		{"self", "Alice", "hi", chatdb.MsgMessageSelf},
		{"no text", "bob", "  ", chatdb.MsgMessageUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.rec.Reset()
			err := f.router.Message(f.alice, tt.receiver, tt.raw)
			assert.Equal(t, tt.want, preconditionKey(t, err))
			assert.Equal(t, []string{chatdb.DefaultMessages[tt.want]}, f.texts(f.alice, events.EvText))
			assert.Empty(t, f.rec.For(f.bob.ID))
		})
	}
}

func TestReply(t *testing.T) {
	f := newFixture(t, nil)

	err := f.router.Reply(f.bob, "anyone?")
	assert.Equal(t, chatdb.MsgReplyNotOnline, preconditionKey(t, err))

	require.NoError(t, f.router.Message(f.alice, "bob", "ping"))
	f.rec.Reset()
	require.NoError(t, f.router.Reply(f.bob, "pong"))
	got := f.texts(f.alice, events.EvDirect)
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "pong")

	f.roster.Leave(f.alice.ID)
	err = f.router.Reply(f.bob, "still there?")
	assert.Equal(t, chatdb.MsgReplyNotOnline, preconditionKey(t, err))
}

func TestForgetPrunesBothDirections(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.router.Send(f.alice, f.bob, "hi"))
	require.NoError(t, f.router.Send(f.carol, f.bob, "hi"))

	// bob now points at carol, alice and carol point at bob.
	f.router.Forget(f.bob.ID)
	for _, p := range []chatdb.Participant{f.alice, f.bob, f.carol} {
		_, ok := f.router.ReplyTarget(p.ID)
		assert.False(t, ok, p.Name)
	}
}

func TestSpyCopies(t *testing.T) {
	f := newFixture(t, nil)
	f.perms.Grant(f.carol.ID, chatdb.PermSocialSpy).Grant(f.alice.ID, chatdb.PermSocialSpy)

	require.NoError(t, f.router.SocialSpy(f.carol))
	require.NoError(t, f.router.SocialSpy(f.alice))
	assert.Equal(t, []string{chatdb.DefaultMessages[chatdb.MsgSocialSpyEnabled]}, f.texts(f.carol, events.EvText))

	f.rec.Reset()
	require.NoError(t, f.router.Send(f.alice, f.bob, "secret"))
	assert.Equal(t, []string{"<dark_gray>[Spy] <gray>alice » bob: <gray>secret"}, f.texts(f.carol, events.EvSpy))
	assert.Empty(t, f.texts(f.alice, events.EvSpy), "a party to the conversation gets no spy copy")

	// Preference survives a disconnect.
	f.router.Forget(f.carol.ID)
	assert.True(t, f.router.IsSpying(f.carol.ID))

	f.rec.Reset()
	require.NoError(t, f.router.SocialSpy(f.carol))
	assert.False(t, f.router.IsSpying(f.carol.ID))
	assert.Equal(t, []string{chatdb.DefaultMessages[chatdb.MsgSocialSpyDisabled]}, f.texts(f.carol, events.EvText))
}

func TestSocialSpyNeedsPermission(t *testing.T) {
	f := newFixture(t, nil)
	err := f.router.SocialSpy(f.bob)
	assert.Equal(t, chatdb.MsgSocialSpyNoPermision, preconditionKey(t, err))
	assert.False(t, f.router.IsSpying(f.bob.ID))
}

func TestSounds(t *testing.T) {
	f := newFixture(t, nil)
	tmpl := TemplatesFrom(chatconf.DefaultSettings())
	tmpl.Receiver.Sounds = []string{"ENTITY_EXPERIENCE_ORB_PICKUP"}
	f.router.Configure(tmpl, chatconf.Messages{}, f.router.view.Load().renderer)

	require.NoError(t, f.router.Send(f.alice, f.bob, "ding"))
	var sounds []string
	for _, ev := range f.rec.For(f.bob.ID) {
		if ev.Type == events.EvSound {
			sounds = append(sounds, ev.Sound)
		}
	}
	assert.Equal(t, []string{"ENTITY_EXPERIENCE_ORB_PICKUP"}, sounds)
	for _, ev := range f.rec.For(f.alice.ID) {
		assert.NotEqual(t, events.EvSound, ev.Type)
	}
}

func TestSpiesSurviveRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")

	store, err := boltstore.Open(path)
	require.NoError(t, err)
	spies, err := NewSpySet(store, zerolog.Nop())
	require.NoError(t, err)
	f := newFixture(t, spies)
	assert.True(t, f.router.ToggleSpy(f.carol.ID))
	require.NoError(t, store.Close())

	store, err = boltstore.Open(path)
	require.NoError(t, err)
	defer store.Close()
	spies, err = NewSpySet(store, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, spies.Contains(f.carol.ID))
	assert.Equal(t, 1, spies.Len())

	rec, err := store.Spy(f.carol.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "carol", rec.Name)
}

func TestDeliveryWaitsForMainLoop(t *testing.T) {
	f := newFixture(t, nil)
	f.perms.Grant(f.carol.ID, chatdb.PermSocialSpy)
	loop := mainloop.New(16, zerolog.Nop()) // not running yet
	f.router.sched = loop

	require.NoError(t, f.router.Message(f.alice, "bob", "psst"))
	require.NoError(t, f.router.SocialSpy(f.carol))
	err := f.router.Message(f.alice, "nobody", "hi")
	assert.Equal(t, chatdb.MsgMessageNotOnline, preconditionKey(t, err))

	assert.Empty(t, f.rec.Events(), "nothing is delivered off the main loop")
	assert.Equal(t, 3, loop.Pending())
	_, linked := f.router.ReplyTarget(f.bob.ID)
	assert.False(t, linked)
	assert.False(t, f.router.IsSpying(f.carol.ID))

	loop.Stop()
	loop.Run(context.Background())

	assert.Len(t, f.texts(f.alice, events.EvDirect), 1)
	assert.Len(t, f.texts(f.bob, events.EvDirect), 1)
	assert.Len(t, f.texts(f.alice, events.EvText), 1)
	assert.Len(t, f.texts(f.carol, events.EvText), 1)
	assert.True(t, f.router.IsSpying(f.carol.ID))
	target, ok := f.router.ReplyTarget(f.bob.ID)
	require.True(t, ok)
	assert.Equal(t, f.alice.ID, target)
}
