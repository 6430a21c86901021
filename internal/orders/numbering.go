package orders

import (
	"fmt"
	"sort"
	"time"
)

type dated struct {
	idx int
	at  time.Time
}

// Number derives the per-day order numbers "<yyyymmdd>-<NN>" for the given
// list. Days are cut in loc. Orders without a parseable date get no number.
//
// The labels are only as stable as the list they were computed from: two
// clients holding different snapshots can disagree, so an order number is
// never used to look an order up.
func Number(list []Order, loc *time.Location) map[string]string {
	if loc == nil {
		loc = time.UTC
	}
	groups := map[string][]dated{}
	for i, o := range list {
		at, ok := o.CreatedAt()
		if !ok {
			continue
		}
		key := at.In(loc).Format("20060102")
		groups[key] = append(groups[key], dated{idx: i, at: at})
	}

	out := make(map[string]string, len(list))
	for key, g := range groups {
		sort.SliceStable(g, func(a, b int) bool {
			if g[a].at.Equal(g[b].at) {
				return list[g[a].idx].ID < list[g[b].idx].ID
			}
			return g[a].at.Before(g[b].at)
		})
		for seq, d := range g {
			out[list[d.idx].ID] = fmt.Sprintf("%s-%02d", key, seq+1)
		}
	}
	return out
}

// Relabel returns a copy of list with OrderNo filled in and sorted for display.
func Relabel(list []Order, loc *time.Location) []Order {
	nos := Number(list, loc)
	out := make([]Order, len(list))
	for i, o := range list {
		o.OrderNo = nos[o.ID]
		out[i] = o
	}
	SortForDisplay(out)
	return out
}

// SortForDisplay orders newest first. Undated orders go last.
func SortForDisplay(list []Order) {
	sort.SliceStable(list, func(a, b int) bool {
		ta, oka := list[a].CreatedAt()
		tb, okb := list[b].CreatedAt()
		switch {
		case oka && okb:
			if ta.Equal(tb) {
				return list[a].ID > list[b].ID
			}
			return ta.After(tb)
		case oka:
			return true
		case okb:
			return false
		default:
			return list[a].ID < list[b].ID
		}
	})
}
