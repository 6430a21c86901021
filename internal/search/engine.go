package search

import (
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
)

// Engine holds the draft and applied criteria of one admin client. It is not
// safe for concurrent use; the owning session serializes access.
type Engine struct {
	draft   Criteria
	applied Criteria
	loc     *time.Location
	now     func() time.Time

	// OnCommit runs after every change of the applied criteria.
	OnCommit func()
}

func NewEngine(loc *time.Location, now func() time.Time) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{draft: Default(), applied: Default(), loc: loc, now: now}
}

func (e *Engine) Draft() Criteria   { return e.draft }
func (e *Engine) Applied() Criteria { return e.applied }

// SetDraft replaces the draft. The visible list does not change.
func (e *Engine) SetDraft(c Criteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Field == "" {
		c.Field = ByCustomer
	}
	e.draft = c
	return nil
}

// Preset sets the draft's date range, overwriting manually entered dates.
func (e *Engine) Preset(p Preset) error {
	c, err := e.draft.WithPreset(p, e.now(), e.loc)
	if err != nil {
		return err
	}
	e.draft = c
	return nil
}

// Search commits the draft.
func (e *Engine) Search() {
	e.applied = e.draft
	e.committed()
}

// Jump sets draft and applied to c in one step, as a summary tile does.
func (e *Engine) Jump(c Criteria) error {
	if err := e.SetDraft(c); err != nil {
		return err
	}
	e.applied = e.draft
	e.committed()
	return nil
}

// Reset returns both copies to the all-time, all-status default.
func (e *Engine) Reset() {
	e.draft = Default()
	e.applied = Default()
	e.committed()
}

func (e *Engine) committed() {
	if e.OnCommit != nil {
		e.OnCommit()
	}
}

// Visible filters list by the applied criteria only.
func (e *Engine) Visible(list []orders.Order, profiles Profiles) []orders.Order {
	return Filter(list, e.applied, e.loc, profiles)
}
