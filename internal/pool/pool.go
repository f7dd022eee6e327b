// Package pool maintains a self-healing cache of authenticated rcon
// sessions and retries transient failures with fresh ones.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Lelleck/wise/internal/config"
	"github.com/Lelleck/wise/internal/rcon"
)

// maxAttempts bounds how often one call may be retried with a fresh
// session before the error is surfaced as unrecoverable.
const maxAttempts = 5

// UnrecoverableError tells the caller to stop issuing requests entirely,
// either because retries are exhausted or the cause cannot be retried
// away (a rejected password).
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("pool: unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// recoverable classifies an error from a session. Everything except a
// rejected password can be retried on a new session.
func recoverable(err error) bool {
	return !errors.Is(err, rcon.ErrInvalidPassword)
}

// Pool is a FIFO of idle sessions. Sessions are allocated lazily from the
// current credentials snapshot; the lock is held only to pop and push,
// never while a session is in use.
type Pool struct {
	mu    sync.Mutex
	idle  []*rcon.Session
	store *config.Store
}

// New creates an empty pool reading credentials from store.
func New(store *config.Store) *Pool {
	return &Pool{store: store}
}

// Acquire hands out the oldest idle session or allocates a new one.
func (p *Pool) Acquire(ctx context.Context) (*rcon.Session, error) {
	p.mu.Lock()
	if len(p.idle) > 0 {
		s := p.idle[0]
		p.idle = p.idle[1:]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	cfg := p.store.Get().Rcon
	slog.Debug("allocating new rcon session", "address", cfg.Address)
	return rcon.Connect(ctx, rcon.Credentials{Address: cfg.Address, Password: cfg.Password})
}

// Return puts a healthy session back at the tail of the queue.
func (p *Pool) Return(s *rcon.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, s)
}

// Size returns the number of idle sessions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Run acquires a session, calls fn and returns the session on success.
// Any transport error drops the session: a partial read can leave stale
// bytes in the stream which would corrupt the next response, so a failed
// session is never reused. The call is retried with a fresh session up to
// maxAttempts times; after that an UnrecoverableError is returned.
//
// A FailureError (non-200 status for a semantically expected reason)
// keeps the session, returns it to the pool and is not retried.
func Run[T any](ctx context.Context, p *Pool, fn func(*rcon.Session) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		session, err := p.Acquire(ctx)
		if err != nil {
			if !recoverable(err) {
				return zero, &UnrecoverableError{Err: err}
			}
			slog.Debug("session allocation failed", "attempt", attempt, "err", err)
			lastErr = err
			continue
		}

		value, err := fn(session)
		if err == nil {
			p.Return(session)
			return value, nil
		}

		var failure *rcon.FailureError
		if errors.As(err, &failure) {
			p.Return(session)
			return zero, err
		}

		session.Close()
		if !recoverable(err) {
			return zero, &UnrecoverableError{Err: err}
		}
		slog.Debug("session call failed, dropping session",
			"session", session.ID(), "attempt", attempt, "err", err)
		lastErr = err
	}

	slog.Error("exhausted retries on rcon pool", "attempts", maxAttempts, "err", lastErr)
	return zero, &UnrecoverableError{Err: lastErr}
}

// Execute is Run for calls without a result value.
func (p *Pool) Execute(ctx context.Context, fn func(*rcon.Session) error) error {
	_, err := Run(ctx, p, func(s *rcon.Session) (struct{}, error) {
		return struct{}{}, fn(s)
	})
	return err
}
