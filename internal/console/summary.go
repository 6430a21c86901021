package console

import (
	"fmt"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/search"
)

// Summary counts the whole list per status, ignoring the search criteria.
type Summary struct {
	Total    int                   `json:"total"`
	ByStatus map[orders.Status]int `json:"byStatus"`
}

func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summary{Total: len(s.list), ByStatus: make(map[orders.Status]int, len(orders.Statuses))}
	for _, st := range orders.Statuses {
		sum.ByStatus[st] = 0
	}
	for _, o := range s.list {
		sum.ByStatus[o.Status]++
	}
	return sum
}

// JumpToStatus is a click on a summary tile: the status filter is applied at
// once, every other criterion back to its default.
func (s *Session) JumpToStatus(st orders.Status) error {
	c := search.Default()
	c.Status = st
	return s.Jump(c)
}

type Tab string

const (
	TabAll      Tab = "all"
	TabNew      Tab = "new"
	TabShipping Tab = "shipping"
	TabCancel   Tab = "cancel"
)

var tabStatuses = map[Tab][]orders.Status{
	TabNew:      {orders.StatusPending},
	TabShipping: {orders.StatusShipping, orders.StatusDelivered},
	TabCancel:   {orders.StatusCancelled},
}

// Tab returns the orders of one sub-tab, newest first. Tabs are fixed views
// over the whole list and do not touch the search criteria or the selection.
func (s *Session) Tab(t Tab) ([]orders.Order, error) {
	want, ok := tabStatuses[t]
	if !ok && t != TabAll {
		return nil, fmt.Errorf("unknown tab %q", t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0, len(s.list))
	for _, o := range s.list {
		if t == TabAll || containsStatus(want, o.Status) {
			out = append(out, o)
		}
	}
	return out, nil
}

func containsStatus(list []orders.Status, st orders.Status) bool {
	for _, v := range list {
		if v == st {
			return true
		}
	}
	return false
}
