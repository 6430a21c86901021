package fulfillment

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one order's write in a fan-out.
type Outcome struct {
	ID  string
	Err error
}

// Result reports a fan-out per order. There is no atomicity: some writes may
// land while others fail.
type Result struct {
	Attempted int
	Succeeded []string
	Failed    []Outcome
}

func (r Result) OK() bool { return len(r.Failed) == 0 }

func (r Result) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.ID
	}
	return ids
}

type command struct {
	id    string
	patch orders.Patch
	// plan, when set, derives the patch from the order's current status
	plan func(from orders.Status) (orders.Patch, error)
}

type outcome struct {
	from  orders.Order
	patch orders.Patch
	err   error
}

// run reads the order when the command needs its status, then writes.
func (s *Service) run(ctx context.Context, kind string, c command) outcome {
	out := outcome{from: orders.Order{ID: c.id}, patch: c.patch}
	if c.plan != nil {
		o, err := s.load(ctx, c.id)
		if err != nil {
			out.err = err
			return out
		}
		out.from = o
		if out.patch, err = c.plan(o.Status); err != nil {
			out.err = fmt.Errorf("order %s is %s: %w", c.id, o.Status, err)
			return out
		}
	}
	out.err = s.update(ctx, kind, c.id, out.patch)
	return out
}

// fanout issues every command as an independent write, concurrently, and
// waits for all of them.
func (s *Service) fanout(ctx context.Context, actor Actor, kind string, cmds []command) Result {
	outcomes := make([]outcome, len(cmds))
	var g errgroup.Group
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for i, c := range cmds {
		g.Go(func() error {
			outcomes[i] = s.run(ctx, kind, c)
			s.Metrics.Item(kind, outcomes[i].err)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Attempted: len(cmds)}
	for i, c := range cmds {
		out := outcomes[i]
		if out.err != nil {
			res.Failed = append(res.Failed, Outcome{ID: c.id, Err: out.err})
			continue
		}
		res.Succeeded = append(res.Succeeded, c.id)
		s.changed(ctx, actor, kind, out.from, out.patch)
	}
	s.log().Info("fan-out finished",
		zap.String("kind", kind),
		zap.String("actor", actor.ID),
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", len(res.Succeeded)),
		zap.Int("failed", len(res.Failed)),
	)
	return res
}

// batchPlan follows the same rules as the single-order actions: CANCELLED
// only from PENDING, PENDING clears courier and tracking, anything else must
// be a legal forward transition.
func batchPlan(to orders.Status) func(orders.Status) (orders.Patch, error) {
	switch to {
	case orders.StatusCancelled:
		return orders.Cancel
	case orders.StatusPending:
		return func(orders.Status) (orders.Patch, error) { return orders.ClearTracking(), nil }
	default:
		return func(from orders.Status) (orders.Patch, error) { return orders.Transition(from, to) }
	}
}

// Batch moves every selected order to one status. Each order is checked
// against its own current status; refused orders show up in Failed without a
// write. Duplicates in ids are collapsed first.
func (s *Service) Batch(ctx context.Context, actor Actor, ids []string, to orders.Status) (Result, error) {
	if !actor.IsAdmin() {
		return Result{}, ErrForbidden
	}
	if !to.Valid() {
		return Result{}, orders.ErrUnknownStatus
	}
	if to == orders.StatusShipping {
		return Result{}, invalid("shipping needs a tracking number")
	}
	ids = unique(ids)
	if len(ids) == 0 {
		return Result{}, ErrEmptySelection
	}

	plan := batchPlan(to)
	cmds := make([]command, len(ids))
	for i, id := range ids {
		cmds[i] = command{id: id, plan: plan}
	}
	return s.fanout(ctx, actor, SourceBatch, cmds), nil
}

// Shipment is one tracking assignment coming from the spreadsheet import.
type Shipment struct {
	OrderID        string
	Courier        string
	TrackingNumber string
}

// Ship writes SHIPPING plus courier and tracking for every shipment,
// independently of each other.
func (s *Service) Ship(ctx context.Context, actor Actor, shipments []Shipment) (Result, error) {
	if !actor.IsAdmin() {
		return Result{}, ErrForbidden
	}
	cmds := make([]command, 0, len(shipments))
	for _, sh := range shipments {
		courier := sh.Courier
		if courier == "" {
			courier = s.DefaultCourier
		}
		cmds = append(cmds, command{id: sh.OrderID, patch: orders.ShipPatch(courier, sh.TrackingNumber)})
	}
	return s.fanout(ctx, actor, SourceImport, cmds), nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
