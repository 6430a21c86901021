// Package search narrows an order list by status, day range and keyword.
//
// Criteria live in two copies: a draft the admin edits freely and the
// applied copy that alone decides what is visible. The draft only reaches
// the applied copy on an explicit commit.
package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"golang.org/x/text/cases"
)

// DayLayout is the format of Criteria.Start and Criteria.End.
const DayLayout = "2006-01-02"

type Field string

const (
	ByCustomer Field = "customer"
	ByOrderNo  Field = "orderNo"
)

type Criteria struct {
	Status  orders.Status `json:"status,omitempty"` // empty = all statuses
	Start   string        `json:"startDate,omitempty"`
	End     string        `json:"endDate,omitempty"`
	Field   Field         `json:"searchType,omitempty"`
	Keyword string        `json:"keyword,omitempty"`
}

// Default is "all time, all statuses, search by customer".
func Default() Criteria {
	return Criteria{Field: ByCustomer}
}

func (c Criteria) Validate() error {
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("%w: %q", orders.ErrUnknownStatus, c.Status)
	}
	switch c.Field {
	case "", ByCustomer, ByOrderNo:
	default:
		return fmt.Errorf("unknown search field %q", c.Field)
	}
	for _, d := range []string{c.Start, c.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DayLayout, d); err != nil {
			return fmt.Errorf("bad date %q: want YYYY-MM-DD", d)
		}
	}
	if c.Start != "" && c.End != "" && c.Start > c.End {
		return fmt.Errorf("start date %s is after end date %s", c.Start, c.End)
	}
	return nil
}

type Preset string

const (
	Today   Preset = "today"
	Last7   Preset = "7d"
	Last30  Preset = "30d"
	AllTime Preset = "all"
)

// WithPreset overwrites the date range of c. Ranges end today and include
// today, so "7d" covers today and the six days before it.
func (c Criteria) WithPreset(p Preset, now time.Time, loc *time.Location) (Criteria, error) {
	today := now.In(loc)
	back := 0
	switch p {
	case Today:
	case Last7:
		back = 6
	case Last30:
		back = 29
	case AllTime:
		c.Start, c.End = "", ""
		return c, nil
	default:
		return c, fmt.Errorf("unknown preset %q", p)
	}
	c.Start = today.AddDate(0, 0, -back).Format(DayLayout)
	c.End = today.Format(DayLayout)
	return c, nil
}

// Profiles resolves the account names searched alongside the order's own
// customer name.
type Profiles interface {
	Names(userID string) (storeName, repName string)
}

type matcher struct {
	c        Criteria
	loc      *time.Location
	profiles Profiles
	fold     cases.Caser
	keyword  string
}

func newMatcher(c Criteria, loc *time.Location, profiles Profiles) *matcher {
	m := &matcher{c: c, loc: loc, profiles: profiles, fold: cases.Fold()}
	m.keyword = m.fold.String(strings.TrimSpace(c.Keyword))
	return m
}

func (m *matcher) match(o orders.Order) bool {
	if m.c.Status != "" && o.Status != m.c.Status {
		return false
	}
	if m.c.Start != "" || m.c.End != "" {
		at, ok := o.CreatedAt()
		if !ok {
			return false
		}
		day := at.In(m.loc).Format(DayLayout)
		if m.c.Start != "" && day < m.c.Start {
			return false
		}
		if m.c.End != "" && day > m.c.End {
			return false
		}
	}
	if m.keyword == "" {
		return true
	}
	var haystack string
	if m.c.Field == ByOrderNo {
		haystack = o.OrderNo
	} else {
		haystack = m.customerText(o)
	}
	return strings.Contains(m.fold.String(haystack), m.keyword)
}

func (m *matcher) customerText(o orders.Order) string {
	parts := []string{o.UserName}
	if m.profiles != nil {
		store, rep := m.profiles.Names(o.UserID)
		parts = append(parts, store, rep)
	}
	return strings.Join(parts, " ")
}

// Filter keeps the orders matching c, preserving their order. Day ranges are
// compared on the day of o.Date in loc; undated orders only pass when no
// range is set.
func Filter(list []orders.Order, c Criteria, loc *time.Location, profiles Profiles) []orders.Order {
	if loc == nil {
		loc = time.UTC
	}
	m := newMatcher(c, loc, profiles)
	out := make([]orders.Order, 0, len(list))
	for _, o := range list {
		if m.match(o) {
			out = append(out, o)
		}
	}
	return out
}
