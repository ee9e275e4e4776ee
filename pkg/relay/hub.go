package relay

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/broadcast"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	peerQueue  = 256
)

// Hub relays envelopes between connected servers.
type Hub struct {
	auth     *Auth
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu    sync.RWMutex
	peers map[string]*peer // lowercase server name
}

type peer struct {
	name string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// NewHub creates a hub that admits servers holding a token from auth.
func NewHub(auth *Auth, log zerolog.Logger) *Hub {
	return &Hub{
		auth: auth,
		// Peers are servers, not browsers.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      log.With().Str("component", "relay-hub").Logger(),
		peers:    make(map[string]*peer),
	}
}

// ServeHTTP authenticates the server and upgrades the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	server, err := h.auth.Validate(authHeader[7:])
	if err != nil {
		h.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("Rejected relay connection")
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("server", server).Msg("Websocket upgrade failed")
		return
	}

	p := &peer{name: server, conn: conn, send: make(chan []byte, peerQueue), done: make(chan struct{})}
	h.register(p)
	go h.writeLoop(p)
	h.readLoop(p)
}

// Peers returns the names of the connected servers, sorted.
func (h *Hub) Peers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p.name)
	}
	sort.Strings(out)
	return out
}

// Close disconnects every server.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[string]*peer)
	h.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

func (h *Hub) register(p *peer) {
	key := strings.ToLower(p.name)
	h.mu.Lock()
	old := h.peers[key]
	h.peers[key] = p
	h.mu.Unlock()
	if old != nil {
		h.log.Warn().Str("server", p.name).Msg("Server reconnected, dropping previous connection")
		old.close()
	}
	h.log.Info().Str("server", p.name).Msg("Server connected")
}

func (h *Hub) unregister(p *peer) {
	key := strings.ToLower(p.name)
	h.mu.Lock()
	if h.peers[key] == p {
		delete(h.peers, key)
	}
	h.mu.Unlock()
	p.close()
	h.log.Info().Str("server", p.name).Msg("Server disconnected")
}

func (h *Hub) readLoop(p *peer) {
	defer h.unregister(p)

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		typ, payload, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("server", p.name).Msg("Relay read error")
			}
			return
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		h.route(p.name, payload)
	}
}

func (h *Hub) writeLoop(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				p.close()
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		}
	}
}

// route unwraps a Forward envelope from origin and queues the inbound form
// for its target: every other server for ALL, else the named server.
func (h *Hub) route(origin string, payload []byte) {
	target, sub, record, err := broadcast.DecodeForward(payload)
	if err != nil {
		h.log.Debug().Err(err).Str("server", origin).Msg("Dropping unreadable envelope")
		return
	}
	in, err := broadcast.EncodeInbound(sub, record)
	if err != nil {
		h.log.Debug().Err(err).Str("server", origin).Msg("Dropping envelope")
		return
	}

	h.mu.RLock()
	var targets []*peer
	for key, p := range h.peers {
		if strings.EqualFold(p.name, origin) {
			continue
		}
		if target == broadcast.TargetAll || key == strings.ToLower(target) {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	for _, p := range targets {
		select {
		case p.send <- in:
		default:
			h.log.Warn().Str("server", p.name).Msg("Relay queue full, dropping envelope")
		}
	}
}
