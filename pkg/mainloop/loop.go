// Package mainloop runs tasks one at a time on a single goroutine, standing
// in for the host's simulation thread.
package mainloop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrStopped is returned for tasks submitted after Stop.
var ErrStopped = errors.New("main loop stopped")

// ErrQueueFull is returned when Submit cannot queue without blocking.
var ErrQueueFull = errors.New("main loop queue full")

// Loop executes submitted tasks sequentially.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
	log   zerolog.Logger
}

// New creates a loop with room for queue pending tasks. Run must be started
// before tasks execute.
func New(queue int, log zerolog.Logger) *Loop {
	if queue <= 0 {
		queue = 1024
	}
	return &Loop{
		tasks: make(chan func(), queue),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
		log:   log.With().Str("component", "mainloop").Logger(),
	}
}

// Run executes tasks until ctx is done or Stop is called. Tasks already
// queued at that point still run.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			l.drain()
			return
		case <-l.quit:
			l.drain()
			return
		case task := <-l.tasks:
			l.exec(task)
		}
	}
}

// Submit queues task without waiting for it.
func (l *Loop) Submit(task func()) error {
	select {
	case <-l.quit:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Call queues task and waits for it to finish or ctx to end.
func (l *Loop) Call(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		task()
	}
	select {
	case <-l.quit:
		return ErrStopped
	default:
	}
	select {
	case l.tasks <- wrapped:
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// Run drains before closing done, so the task either ran or
		// never will.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop makes Run return after the queued tasks.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.quit) })
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int { return len(l.tasks) }

func (l *Loop) drain() {
	for {
		select {
		case task := <-l.tasks:
			l.exec(task)
		default:
			return
		}
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("panic", fmt.Sprint(r)).Msg("Task panicked")
		}
	}()
	task()
}
