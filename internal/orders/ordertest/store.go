// Package ordertest provides an in-memory orders.Store for tests.
package ordertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
)

var ErrUnavailable = errors.New("store unavailable")

// Store keeps documents in a map and pushes a snapshot to every subscriber
// after each write. Writes to ids listed in FailIDs fail with ErrUnavailable.
type Store struct {
	mu      sync.Mutex
	docs    map[string]orders.Order
	seq     int
	subs    map[*orders.Stream]struct{}
	failIDs map[string]error
	failAll error
	writes  map[string]int
	total   int
	quiet   bool
}

var _ orders.Store = (*Store)(nil)

func New(seed ...orders.Order) *Store {
	s := &Store{
		docs:    map[string]orders.Order{},
		subs:    map[*orders.Stream]struct{}{},
		failIDs: map[string]error{},
		writes:  map[string]int{},
	}
	for _, o := range seed {
		if o.ID == "" {
			s.seq++
			o.ID = fmt.Sprintf("ord-%03d", s.seq)
		}
		o.OrderNo = ""
		s.docs[o.ID] = o
	}
	return s
}

// FailWrites makes every update of id return err (ErrUnavailable if nil).
func (s *Store) FailWrites(id string, err error) {
	if err == nil {
		err = ErrUnavailable
	}
	s.mu.Lock()
	s.failIDs[id] = err
	s.mu.Unlock()
}

// FailAll makes every call fail with err; nil restores normal operation.
func (s *Store) FailAll(err error) {
	s.mu.Lock()
	s.failAll = err
	s.mu.Unlock()
}

// Quiet stops writes from reaching subscribers, like a change feed that
// misses notifications. Writes still land.
func (s *Store) Quiet(on bool) {
	s.mu.Lock()
	s.quiet = on
	s.mu.Unlock()
}

// Disconnect closes every open subscription, like a dropped connection.
func (s *Store) Disconnect() {
	s.mu.Lock()
	subs := make([]*orders.Stream, 0, len(s.subs))
	for st := range s.subs {
		subs = append(subs, st)
	}
	s.mu.Unlock()
	for _, st := range subs {
		_ = st.Close()
	}
}

// Writes reports how many UpdateOrder calls were attempted for id.
func (s *Store) Writes(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[id]
}

// TotalWrites reports every UpdateOrder attempt, failed ones included.
func (s *Store) TotalWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Order returns the stored document.
func (s *Store) Order(id string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.docs[id]
	return o, ok
}

func (s *Store) Subscribe(ctx context.Context) (orders.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	st := orders.NewStream()
	s.subs[st] = struct{}{}
	st.Offer(s.snapshotLocked())
	go func() {
		select {
		case <-ctx.Done():
			_ = st.Close()
		case <-st.Done():
		}
		s.mu.Lock()
		delete(s.subs, st)
		s.mu.Unlock()
	}()
	return st, nil
}

func (s *Store) Get(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return orders.Order{}, s.failAll
	}
	o, ok := s.docs[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []orders.Order
	for _, o := range s.docs {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	orders.SortForDisplay(out)
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, o orders.Order) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return "", s.failAll
	}
	s.seq++
	o.ID = fmt.Sprintf("ord-%03d", s.seq)
	o.OrderNo = ""
	s.docs[o.ID] = o
	s.broadcastLocked()
	return o.ID, nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, p orders.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[id]++
	s.total++
	if s.failAll != nil {
		return s.failAll
	}
	if err, ok := s.failIDs[id]; ok {
		return err
	}
	o, ok := s.docs[id]
	if !ok {
		return orders.ErrNotFound
	}
	s.docs[id] = p.Apply(o)
	s.broadcastLocked()
	return nil
}

func (s *Store) snapshotLocked() []orders.Order {
	out := make([]orders.Order, 0, len(s.docs))
	for _, o := range s.docs {
		out = append(out, o)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *Store) broadcastLocked() {
	if s.quiet {
		return
	}
	snap := s.snapshotLocked()
	for st := range s.subs {
		st.Offer(snap)
	}
}
