// Package chatlog writes channel messages to a SQLite chat_logs table. It
// is a fire-and-forget sink: callers never wait on the database.
package chatlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS chat_logs (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	server   VARCHAR(45) DEFAULT 'null',
	channel  VARCHAR(45) DEFAULT 'global',
	uuid     VARCHAR(45),
	username VARCHAR(16),
	message  VARCHAR(256),
	time     TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("chat log closed")

// Entry is one logged message.
type Entry struct {
	Server   string
	Channel  string
	ID       uuid.UUID
	Username string
	Message  string // plain text
	Time     time.Time
}

// Store owns the SQLite connection and the single writer goroutine.
type Store struct {
	db      *sql.DB
	path    string
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	entries chan Entry
	done    chan struct{}
	dropped atomic.Int64
}

// Open opens a SQLite database, sets WAL mode and busy timeout, creates the
// table and starts the writer. buffer bounds the number of pending entries.
func Open(path string, timeoutSec, buffer int, log zerolog.Logger) (*Store, error) {
	if buffer <= 0 {
		buffer = 256
	}
	if timeoutSec <= 0 {
		timeoutSec = 5
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// One writer; the pragmas below are per connection.
	db.SetMaxOpenConns(1)
	// Set WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	// Set busy timeout (milliseconds)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chat_logs: %w", err)
	}
	s := &Store{
		db:      db,
		path:    path,
		timeout: time.Duration(timeoutSec) * time.Second,
		log:     log.With().Str("component", "chatlog").Logger(),
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Path returns the filesystem path of the SQLite database.
func (s *Store) Path() string { return s.path }

// Dropped returns the number of entries lost to a full queue.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Log queues an entry. When the queue is full the entry is dropped with a
// warning.
func (s *Store) Log(e Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case s.entries <- e:
		return nil
	default:
		s.dropped.Add(1)
		s.log.Warn().Str("channel", e.Channel).Msg("Chat log queue full, dropping entry")
		return nil
	}
}

// Close stops accepting entries, flushes the queue and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.entries)
	s.mu.Unlock()

	<-s.done
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}
	return s.db.Close()
}

func (s *Store) run() {
	defer close(s.done)
	for e := range s.entries {
		if err := s.insert(e); err != nil {
			s.log.Error().Err(err).Str("channel", e.Channel).Msg("Chat log insert failed")
		}
	}
}

func (s *Store) insert(e Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (server, channel, uuid, username, message, time) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Server, e.Channel, e.ID.String(), truncate(e.Username, 16), truncate(e.Message, 256), e.Time.UTC())
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
