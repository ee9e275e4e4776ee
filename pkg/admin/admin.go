// Package admin is the operator HTTP surface: version and health, the
// loaded channel list, reload-all, a test-message endpoint and the
// Prometheus scrape endpoint.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/crystal-mush/chanrelay/pkg/chatdb"
	"github.com/crystal-mush/chanrelay/pkg/events"
	"github.com/crystal-mush/chanrelay/pkg/router"
)

// ChannelLister lists the loaded channels. channels.Registry implements it.
type ChannelLister interface {
	Channels() []*chatdb.Channel
}

// Tester renders and delivers a diagnostic message. router.Router
// implements it.
type Tester interface {
	RouteWith(p chatdb.Participant, channel, formatID, raw string) (chatdb.RichMessage, error)
}

// Config wires the admin handler. Reload, Metrics, Barrier and Status are
// optional.
type Config struct {
	Channels ChannelLister
	Tester   Tester
	Roster   chatdb.Roster
	Bus      *events.Bus
	Plain    func(chatdb.RichMessage) string

	// Barrier returns once every delivery scheduled before it has run, so
	// /test can count what it produced.
	Barrier func(ctx context.Context) error
	Reload  func() error
	Metrics http.Handler
	Status  func() map[string]any

	Password     string // plain, from the environment
	PasswordHash string // bcrypt, from config.yml
	Log          zerolog.Logger
}

// Admin serves the admin API.
type Admin struct {
	cfg     Config
	auth    *adminAuth
	started time.Time
	log     zerolog.Logger
}

// New creates an admin handler.
func New(cfg Config) *Admin {
	a := &Admin{
		cfg:     cfg,
		auth:    &adminAuth{envPass: cfg.Password, hash: []byte(cfg.PasswordHash)},
		started: time.Now(),
		log:     cfg.Log.With().Str("component", "admin").Logger(),
	}
	if !a.auth.enabled() {
		a.log.Warn().Msg("No admin password configured, admin API is open")
	}
	return a
}

// Handler returns the routes.
func (a *Admin) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLog)

	r.Get("/version", a.handleVersion)
	r.Get("/health", a.handleHealth)
	if a.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(a.auth.middleware)
		r.Get("/channels", a.handleChannels)
		r.Post("/reload", a.handleReload)
		r.Post("/test", a.handleTest)
	})
	return r
}

func (a *Admin) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Admin request")
	})
}

func (a *Admin) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": VersionString()})
}

func (a *Admin) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(a.started).Seconds(),
	}
	if a.cfg.Status != nil {
		for k, v := range a.cfg.Status() {
			status[k] = v
		}
	}
	writeJSON(w, http.StatusOK, status)
}

type channelInfo struct {
	Name         string   `json:"name"`
	DisplayName  string   `json:"display_name"`
	Aliases      []string `json:"aliases"`
	Permission   string   `json:"permission,omitempty"`
	Default      bool     `json:"default"`
	CrossServer  bool     `json:"cross_server"`
	ExternalSink bool     `json:"external_sink"`
	Range        int      `json:"range"`
	Formats      []string `json:"formats"`
}

func (a *Admin) handleChannels(w http.ResponseWriter, r *http.Request) {
	chans := a.cfg.Channels.Channels()
	out := make([]channelInfo, 0, len(chans))
	for _, ch := range chans {
		info := channelInfo{
			Name:         ch.Name,
			DisplayName:  ch.DisplayName,
			Aliases:      append([]string{}, ch.Aliases...),
			Permission:   ch.Permission,
			Default:      ch.Default,
			CrossServer:  ch.CrossServer,
			ExternalSink: ch.ExternalSink,
			Range:        ch.Range,
			Formats:      make([]string, 0, len(ch.Formats)),
		}
		for _, f := range ch.Formats {
			info.Formats = append(info.Formats, f.ID)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": out, "count": len(out)})
}

func (a *Admin) handleReload(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Reload == nil {
		writeError(w, http.StatusServiceUnavailable, "reload not available")
		return
	}
	if err := a.cfg.Reload(); err != nil {
		a.log.Warn().Err(err).Msg("Reload from admin failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.log.Info().Str("addr", r.RemoteAddr).Msg("Configuration reloaded from admin")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "reloaded",
		"channels": len(a.cfg.Channels.Channels()),
	})
}

type testRequest struct {
	Participant string `json:"participant"`
	Channel     string `json:"channel"`
	Format      string `json:"format"`
	Message     string `json:"message"`
}

// handleTest renders a message with an explicit channel and format and
// delivers it locally. An empty participant sends as the console.
func (a *Admin) handleTest(w http.ResponseWriter, r *http.Request) {
	var req testRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Channel == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "channel and message are required")
		return
	}

	sender := chatdb.Participant{ID: events.Console, Name: "CONSOLE"}
	if req.Participant != "" {
		p, ok := a.cfg.Roster.LookupName(req.Participant)
		if !ok {
			writeError(w, http.StatusNotFound, "participant not online")
			return
		}
		sender = p
	}

	var rec *events.Recorder
	if a.cfg.Bus != nil && a.cfg.Barrier != nil {
		rec = events.NewRecorder()
		a.cfg.Bus.SubscribeGlobal(rec)
		defer func() {
			rec.Close()
			a.cfg.Bus.Cleanup()
		}()
	}

	msg, err := a.cfg.Tester.RouteWith(sender, req.Channel, req.Format, req.Message)
	switch {
	case errors.Is(err, router.ErrUnknownChannel), errors.Is(err, router.ErrUnknownFormat):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"markup": msg.Markup}
	if a.cfg.Plain != nil {
		resp["plain"] = a.cfg.Plain(msg)
	}
	if rec != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := a.cfg.Barrier(ctx); err == nil {
			n := 0
			for _, ev := range rec.Events() {
				if ev.Source == sender.ID && ev.Message == msg && ev.Player != events.Console {
					n++
				}
			}
			resp["deliveries"] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// readJSON decodes a JSON request body.
func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
