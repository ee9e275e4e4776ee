// Package session is the websocket host for participants. Each connection
// is one named participant; text lines are chat, slash commands switch
// channels and send private messages, and events from the bus are written
// back as JSON. Manager doubles as the chatdb.Roster and
// chatdb.PermissionOracle for the rest of the process.
package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatconf"
	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/format"
	"github.com/crystal-mush/chanrelay/pkg/mainloop"
)

// Host join and quit messages, used unless an Announcement overrides them.
const (
	HostJoinMessage = "<yellow><player> joined the game"
	HostQuitMessage = "<yellow><player> left the game"
)

// namespace derives stable participant IDs from lowercase names, so spy
// preferences survive reconnects and restarts.
var namespace = uuid.MustParse("8f0d3c1e-6a57-4f1b-9a43-2b6f0b7f5c11")

// IDFor returns the participant ID for name.
func IDFor(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(strings.ToLower(name)))
}

// Chat is the channel side of the command set.
type Chat interface {
	Route(p chatdb.Participant, raw string) error
	Chat(p chatdb.Participant, name, raw string) error
	SwitchChannel(p chatdb.Participant, name string) error
	Disconnect(id uuid.UUID)
}

// Direct is the private-message side of the command set.
type Direct interface {
	Message(sender chatdb.Participant, receiverName, raw string) error
	Reply(sender chatdb.Participant, raw string) error
	SocialSpy(p chatdb.Participant) error
}

// Message is the JSON frame exchanged with clients.
type Message struct {
	Type    string  `json:"type"`
	Text    string  `json:"text,omitempty"`
	Markup  string  `json:"markup,omitempty"`
	Channel string  `json:"channel,omitempty"`
	Sound   string  `json:"sound,omitempty"`
	Command string  `json:"command,omitempty"`
	World   string  `json:"world,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Z       float64 `json:"z,omitempty"`
}

// Greeting renders join and quit announcements. It is swapped on reload.
type Greeting struct {
	Renderer *format.Renderer
	Join     chatconf.Announcement
	Quit     chatconf.Announcement
}

// Config wires a Manager.
type Config struct {
	Bus       *events.Bus
	Plain     func(chatdb.RichMessage) string
	World     string             // initial world for new participants
	Scheduler mainloop.Scheduler // defaults to mainloop.Inline
	Log       zerolog.Logger
}

// Manager tracks connected participants.
type Manager struct {
	bus      *events.Bus
	plain    func(chatdb.RichMessage) string
	world    string
	sched    mainloop.Scheduler
	upgrader websocket.Upgrader
	log      zerolog.Logger

	chat   Chat
	direct Direct
	perms  atomic.Pointer[Permissions]
	greet  atomic.Pointer[Greeting]

	mu    sync.RWMutex
	order []uuid.UUID
	conns map[uuid.UUID]*conn
}

// NewManager creates an empty manager. Bind must be called before serving.
func NewManager(cfg Config) *Manager {
	if cfg.World == "" {
		cfg.World = "world"
	}
	m := &Manager{
		bus:      cfg.Bus,
		plain:    cfg.Plain,
		world:    cfg.World,
		sched:    cfg.Scheduler,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      cfg.Log.With().Str("component", "session").Logger(),
		conns:    make(map[uuid.UUID]*conn),
	}
	if m.sched == nil {
		m.sched = mainloop.Inline{}
	}
	m.perms.Store(&Permissions{})
	return m
}

// Bind attaches the command targets. The routers need the manager as their
// roster, so they are built after it.
func (m *Manager) Bind(chat Chat, direct Direct) {
	m.chat = chat
	m.direct = direct
}

// SetPermissions swaps the permission table.
func (m *Manager) SetPermissions(p *Permissions) {
	if p == nil {
		p = &Permissions{}
	}
	m.perms.Store(p)
}

// SetGreeting swaps the join and quit configuration. Without a greeting
// nothing is announced.
func (m *Manager) SetGreeting(g Greeting) {
	m.greet.Store(&g)
}

// Has implements chatdb.PermissionOracle. The console holds every node.
func (m *Manager) Has(id uuid.UUID, node string) bool {
	if id == events.Console {
		return true
	}
	p, ok := m.Lookup(id)
	if !ok {
		return false
	}
	return m.perms.Load().Allows(p.Name, node)
}

// PrimaryGroup implements format.GroupLookup.
func (m *Manager) PrimaryGroup(id uuid.UUID) (string, bool) {
	p, ok := m.Lookup(id)
	if !ok {
		return "", false
	}
	return m.perms.Load().Group(p.Name)
}

// Online implements chatdb.Roster in join order.
func (m *Manager) Online() []chatdb.Participant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chatdb.Participant, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.conns[id].participant())
	}
	return out
}

func (m *Manager) Lookup(id uuid.UUID) (chatdb.Participant, bool) {
	m.mu.RLock()
	c, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return chatdb.Participant{}, false
	}
	return c.participant(), true
}

func (m *Manager) LookupName(name string) (chatdb.Participant, bool) {
	return m.Lookup(IDFor(name))
}

// Count returns the number of connected participants.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ServeHTTP upgrades GET /chat?name=<name> into a participant session.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" || strings.ContainsAny(name, " \t") {
		http.Error(w, `{"error":"name required"}`, http.StatusBadRequest)
		return
	}
	if _, taken := m.LookupName(name); taken {
		http.Error(w, `{"error":"name in use"}`, http.StatusConflict)
		return
	}
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn().Err(err).Str("name", name).Msg("Websocket upgrade failed")
		return
	}

	world := r.URL.Query().Get("world")
	if world == "" {
		world = m.world
	}
	c := &conn{ws: ws, plain: m.plain, p: chatdb.Participant{ID: IDFor(name), Name: name, World: world}}
	if !m.join(c) {
		c.send(Message{Type: "error", Text: "name in use"})
		ws.Close()
		return
	}
	c.send(Message{Type: "welcome", Text: "Connected as " + name})
	m.readLoop(c)
}

func (m *Manager) join(c *conn) bool {
	id := c.p.ID
	m.mu.Lock()
	if _, ok := m.conns[id]; ok {
		m.mu.Unlock()
		return false
	}
	m.conns[id] = c
	m.order = append(m.order, id)
	m.mu.Unlock()

	m.bus.Subscribe(id, c)
	m.log.Info().Str("name", c.p.Name).Str("addr", c.ws.RemoteAddr().String()).Msg("Participant connected")
	if g := m.greet.Load(); g != nil {
		m.announce(events.EvJoin, c.participant(), g, g.Join, HostJoinMessage)
	}
	return true
}

func (m *Manager) leave(c *conn) {
	id := c.p.ID
	c.closed.Store(true)
	m.bus.Unsubscribe(id, c)
	if m.chat != nil {
		m.chat.Disconnect(id)
	}
	m.mu.Lock()
	delete(m.conns, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	c.ws.Close()
	m.log.Info().Str("name", c.p.Name).Msg("Participant disconnected")
	if g := m.greet.Load(); g != nil {
		m.announce(events.EvQuit, c.participant(), g, g.Quit, HostQuitMessage)
	}
}

// announce renders a join or quit message for p and sends it to everyone
// online and the console from the main loop.
func (m *Manager) announce(typ events.EventType, p chatdb.Participant, g *Greeting, a chatconf.Announcement, host string) {
	tmpl, ok := a.Template(host)
	if !ok || g.Renderer == nil {
		return
	}
	msg := g.Renderer.Announce(p, tmpl)
	m.schedule(func() {
		to := []uuid.UUID{events.Console}
		for _, o := range m.Online() {
			to = append(to, o.ID)
		}
		m.bus.EmitTo(to, events.Event{Type: typ, Source: p.ID, Message: msg})
	})
}

func (m *Manager) schedule(task func()) {
	if err := m.sched.Submit(task); err != nil {
		m.log.Error().Err(err).Msg("Failed to schedule delivery")
	}
}

func (m *Manager) readLoop(c *conn) {
	defer m.leave(c)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.Debug().Err(err).Str("name", c.p.Name).Msg("Session read error")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send(Message{Type: "error", Text: "invalid JSON message"})
			continue
		}
		switch msg.Type {
		case "command":
			m.Dispatch(c.participant(), msg.Command)
		case "move":
			c.move(msg.World, chatdb.Vec3{X: msg.X, Y: msg.Y, Z: msg.Z})
		default:
			c.send(Message{Type: "error", Text: "unknown message type: " + msg.Type})
		}
	}
}

// Dispatch runs one input line for p. Plain text goes to the current
// channel. Refusals were already shown to p and are not logged.
func (m *Manager) Dispatch(p chatdb.Participant, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var err error
	if !strings.HasPrefix(line, "/") {
		err = m.chat.Route(p, line)
	} else {
		cmd, rest, _ := strings.Cut(line[1:], " ")
		rest = strings.TrimSpace(rest)
		switch strings.ToLower(cmd) {
		case "ch", "channel", "chat":
			name, msg, _ := strings.Cut(rest, " ")
			err = m.chat.Chat(p, name, strings.TrimSpace(msg))
		case "msg", "tell", "w", "whisper", "pm":
			name, msg, _ := strings.Cut(rest, " ")
			err = m.direct.Message(p, name, strings.TrimSpace(msg))
		case "r", "reply":
			err = m.direct.Reply(p, rest)
		case "socialspy":
			err = m.direct.SocialSpy(p)
		default:
			ev := events.Event{Type: events.EvText, Player: p.ID, Message: chatdb.RichMessage{Markup: "Unknown command: /" + cmd}}
			m.schedule(func() { m.bus.Emit(ev) })
			return
		}
	}
	var pe *chatdb.PreconditionError
	if err != nil && !errors.As(err, &pe) {
		m.log.Warn().Err(err).Str("name", p.Name).Msg("Command failed")
	}
}

// conn is one participant's websocket. It is the participant's bus
// subscriber.
type conn struct {
	ws     *websocket.Conn
	wmu    sync.Mutex
	closed atomic.Bool
	plain  func(chatdb.RichMessage) string

	pmu sync.RWMutex
	p   chatdb.Participant
}

func (c *conn) participant() chatdb.Participant {
	c.pmu.RLock()
	defer c.pmu.RUnlock()
	return c.p
}

func (c *conn) move(world string, pos chatdb.Vec3) {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if world != "" {
		c.p.World = world
	}
	c.p.Pos = pos
}

func (c *conn) send(msg Message) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.ws.WriteJSON(msg); err != nil {
		c.closed.Store(true)
	}
}

func (c *conn) Receive(ev events.Event) {
	msg := Message{
		Type:    ev.Type.String(),
		Markup:  ev.Message.Markup,
		Channel: ev.Channel,
		Sound:   ev.Sound,
	}
	if c.plain != nil {
		msg.Text = c.plain(ev.Message)
	}
	c.send(msg)
}

func (c *conn) Closed() bool { return c.closed.Load() }
