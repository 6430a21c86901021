// Package console keeps the per-admin view of the order list: the latest
// store snapshot relabelled with order numbers, the search engine deciding
// what is visible and the selection batch actions run on.
package console

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/accounts"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/search"
	"go.uber.org/zap"
)

// Batcher is the part of fulfillment.Service a session drives.
type Batcher interface {
	Batch(ctx context.Context, actor fulfillment.Actor, ids []string, to orders.Status) (fulfillment.Result, error)
}

type profileIndex map[string]accounts.Account

func (p profileIndex) Names(userID string) (string, string) {
	a := p[userID]
	return a.StoreName, a.RepName
}

type Session struct {
	ID    string
	Actor fulfillment.Actor

	batch  Batcher
	dir    accounts.Directory
	loc    *time.Location
	log    *zap.Logger

	mu       sync.Mutex
	list     []orders.Order // relabelled, display order
	profiles profileIndex
	engine   *search.Engine
	selected map[string]bool
	version  uint64
	lastSeen time.Time
}

func newSession(id string, actor fulfillment.Actor, b Batcher, dir accounts.Directory, loc *time.Location, now func() time.Time, log *zap.Logger) *Session {
	s := &Session{
		ID:       id,
		Actor:    actor,
		batch:    b,
		dir:      dir,
		loc:      loc,
		log:      log.With(zap.String("session", id), zap.String("actor", actor.ID)),
		profiles: profileIndex{},
		engine:   search.NewEngine(loc, now),
		selected: map[string]bool{},
		lastSeen: now(),
	}
	// every commit of the applied criteria drops the selection
	s.engine.OnCommit = func() { clear(s.selected) }
	return s
}

// consume applies snapshots until the subscription ends or ctx is done.
func (s *Session) consume(ctx context.Context, sub orders.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case list, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			s.apply(ctx, list)
		}
	}
}

func (s *Session) apply(ctx context.Context, list []orders.Order) {
	labelled := orders.Relabel(list, s.loc)

	s.mu.Lock()
	var missing []string
	for _, o := range labelled {
		if _, ok := s.profiles[o.UserID]; !ok && o.UserID != "" {
			missing = append(missing, o.UserID)
		}
	}
	s.mu.Unlock()

	found := s.lookup(ctx, unique(missing))

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range found {
		s.profiles[id] = a
	}
	s.list = labelled
	s.version++
}

func (s *Session) lookup(ctx context.Context, userIDs []string) map[string]accounts.Account {
	out := make(map[string]accounts.Account, len(userIDs))
	if s.dir == nil {
		return out
	}
	for _, id := range userIDs {
		lctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a, ok, err := s.dir.Lookup(lctx, id)
		cancel()
		if err != nil {
			// retried on the next snapshot
			s.log.Warn("account lookup failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if !ok {
			a = accounts.Account{ID: id}
		}
		out[id] = a
	}
	return out
}

// Version counts the snapshots applied so far.
func (s *Session) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Orders is the whole relabelled list, newest first.
func (s *Session) Orders() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.Order(nil), s.list...)
}

// Visible is the list narrowed by the applied criteria.
func (s *Session) Visible() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Visible(s.list, s.profiles)
}

// ExportRows is what a spreadsheet export contains: the visible list, or the
// whole list when nothing is visible.
func (s *Session) ExportRows() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.engine.Visible(s.list, s.profiles)
	if len(rows) == 0 {
		rows = append([]orders.Order(nil), s.list...)
	}
	return rows
}

// Account returns the cached profile of userID.
func (s *Session) Account(userID string) (accounts.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.profiles[userID]
	return a, ok
}

func (s *Session) Criteria() (draft, applied search.Criteria) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Draft(), s.engine.Applied()
}

func (s *Session) SetDraft(c search.Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.SetDraft(c)
}

func (s *Session) Preset(p search.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Preset(p)
}

func (s *Session) Search() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Search()
}

func (s *Session) Jump(c search.Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Jump(c)
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Reset()
}

// Select adds ids to the selection. Only visible orders can be selected; the
// rest are returned as rejected.
func (s *Session) Select(ids ...string) (rejected []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := make(map[string]bool)
	for _, o := range s.engine.Visible(s.list, s.profiles) {
		visible[o.ID] = true
	}
	for _, id := range ids {
		if !visible[id] {
			rejected = append(rejected, id)
			continue
		}
		s.selected[id] = true
	}
	return rejected
}

func (s *Session) Deselect(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.selected, id)
	}
}

// SelectAll selects every visible order.
func (s *Session) SelectAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.engine.Visible(s.list, s.profiles)
	for _, o := range visible {
		s.selected[o.ID] = true
	}
	return len(visible)
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.selected)
}

func (s *Session) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedLocked()
}

func (s *Session) selectedLocked() []string {
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// BatchSelected applies to on every selected order. A fully successful batch
// clears the selection; after a partial failure only the failed orders stay
// selected so the admin can retry them.
func (s *Session) BatchSelected(ctx context.Context, to orders.Status) (fulfillment.Result, error) {
	s.mu.Lock()
	ids := s.selectedLocked()
	s.mu.Unlock()
	if len(ids) == 0 {
		return fulfillment.Result{}, fulfillment.ErrEmptySelection
	}

	res, err := s.batch.Batch(ctx, s.Actor, ids, to)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.OK() {
		clear(s.selected)
	} else {
		for _, id := range res.Succeeded {
			delete(s.selected, id)
		}
	}
	return res, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
