package console

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/accounts"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoSession = errors.New("console session not found")

// Registry owns the open admin sessions. Each session holds its own store
// subscription, so two sessions may briefly disagree on order numbers while
// their snapshots differ.
type Registry struct {
	Store     orders.Store
	Batch     Batcher
	Directory accounts.Directory
	Location  *time.Location
	Log       *zap.Logger
	Now       func() time.Time

	// Sessions unused for this long are closed by Reap.
	IdleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	s      *Session
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// Open starts a session for actor. It lives until Close, Reap or Shutdown,
// independent of ctx, which only bounds the initial subscribe.
func (r *Registry) Open(ctx context.Context, actor fulfillment.Actor) (*Session, error) {
	if !actor.IsAdmin() {
		return nil, fulfillment.ErrForbidden
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	s := newSession(uuid.NewString(), actor, r.Batch, r.Directory, loc, r.now, r.log())

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := r.Store.Subscribe(runCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	e := &entry{s: s, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(e.done)
		r.run(runCtx, s, sub)
	}()

	r.mu.Lock()
	if r.sessions == nil {
		r.sessions = map[string]*entry{}
	}
	r.sessions[s.ID] = e
	r.mu.Unlock()

	s.log.Info("console session opened")
	return s, nil
}

// run consumes snapshots and resubscribes when the stream drops.
func (r *Registry) run(ctx context.Context, s *Session, sub orders.Subscription) {
	backoff := 200 * time.Millisecond
	for {
		s.consume(ctx, sub)
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			var err error
			sub, err = r.Store.Subscribe(ctx)
			if err == nil {
				backoff = 200 * time.Millisecond
				break
			}
			s.log.Warn("resubscribe failed", zap.Error(err))
			backoff = min(backoff*2, 5*time.Second)
		}
	}
}

// Get returns the session id if it belongs to actor.
func (r *Registry) Get(id string, actor fulfillment.Actor) (*Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNoSession
	}
	if e.s.Actor.ID != actor.ID {
		return nil, fulfillment.ErrForbidden
	}
	e.s.mu.Lock()
	e.s.lastSeen = r.now()
	e.s.mu.Unlock()
	return e.s, nil
}

func (r *Registry) Close(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		e.cancel()
		<-e.done
		e.s.log.Info("console session closed")
	}
}

// Reap closes sessions idle for longer than IdleTimeout.
func (r *Registry) Reap() int {
	if r.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.IdleTimeout)
	r.mu.Lock()
	var idle []string
	for id, e := range r.sessions {
		e.s.mu.Lock()
		if e.s.lastSeen.Before(cutoff) {
			idle = append(idle, id)
		}
		e.s.mu.Unlock()
	}
	r.mu.Unlock()
	for _, id := range idle {
		r.Close(id)
	}
	return len(idle)
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Reap(); n > 0 {
				r.log().Info("idle console sessions closed", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Shutdown() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Close(id)
	}
}
