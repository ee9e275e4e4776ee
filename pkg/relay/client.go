package relay

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Send while the hub is unreachable. The
// payload is dropped.
var ErrNotConnected = errors.New("relay not connected")

// ErrQueueFull is returned by Send when the outbound queue is full.
var ErrQueueFull = errors.New("relay queue full")

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Handler receives each inbound envelope.
type Handler func(payload []byte)

// Client keeps one server connected to the hub and reconnects with capped
// exponential backoff.
type Client struct {
	url     string
	server  string
	auth    *Auth
	handler Handler
	dialer  *websocket.Dialer
	log     zerolog.Logger

	out       chan []byte
	connected atomic.Bool
}

// NewClient creates a client for the hub at url (ws:// or wss://).
func NewClient(url, server string, auth *Auth, handler Handler, log zerolog.Logger) *Client {
	return &Client{
		url:     url,
		server:  server,
		auth:    auth,
		handler: handler,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     log.With().Str("component", "relay").Str("server", server).Logger(),
		out:     make(chan []byte, peerQueue),
	}
}

// Connected reports whether the client currently holds a hub connection.
func (c *Client) Connected() bool { return c.connected.Load() }

// Send queues payload for the hub without blocking.
func (c *Client) Send(payload []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run connects and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) {
	backoff := minBackoff
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			backoff = minBackoff
			c.session(ctx, conn)
		} else {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("Relay connection failed")
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if err != nil {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := c.auth.Issue(c.server)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// session pumps one connection until it fails or ctx ends.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) {
	c.connected.Store(true)
	c.log.Info().Str("url", c.url).Msg("Relay connected")

	defer func() {
		c.connected.Store(false)
		conn.Close()
		// Anything still queued was meant for the lost connection.
		for {
			select {
			case <-c.out:
			default:
				c.log.Info().Msg("Relay disconnected")
				return
			}
		}
	}()

	readErr := make(chan error, 1)
	go func() {
		for {
			typ, payload, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if typ == websocket.BinaryMessage && c.handler != nil {
				c.handler(payload)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("Relay read error")
			}
			return
		case msg := <-c.out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.log.Warn().Err(err).Msg("Relay write failed")
				return
			}
		}
	}
}
