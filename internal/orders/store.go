package orders

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("order not found")

// Store is the order document store. Every call may fail with a transport or
// permission error; writes are last-write-wins with no conflict detection.
type Store interface {
	Subscribe(ctx context.Context) (Subscription, error)
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	CreateOrder(ctx context.Context, o Order) (string, error)
	UpdateOrder(ctx context.Context, id string, p Patch) error
}

// Subscription yields full order-list snapshots: one right away, then one
// after every change. Consumers replace their list with each snapshot.
type Subscription interface {
	Snapshots() <-chan []Order
	Close() error
}

// Stream is a coalescing snapshot channel: a slow reader only ever sees the
// newest snapshot. Store implementations embed it in their subscriptions.
type Stream struct {
	ch        chan []Order
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewStream() *Stream {
	return &Stream{ch: make(chan []Order, 1), done: make(chan struct{})}
}

func (s *Stream) Snapshots() <-chan []Order { return s.ch }

// Done is closed once Close has been called.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Offer publishes list, replacing a snapshot the reader has not taken yet.
func (s *Stream) Offer(list []Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- list
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}
