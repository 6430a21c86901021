package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/metrics"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"go.uber.org/zap"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")

	ErrEmptySelection = fmt.Errorf("%w: no orders selected", ErrValidation)
	ErrEmptyCart      = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrNoDepositor    = fmt.Errorf("%w: depositor name is required", ErrValidation)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Actor is whoever triggered the operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Events receives domain events after successful writes.
type Events interface {
	Emit(ctx context.Context, eventType, orderID string, payload any)
}

// Service runs order operations against the store. It keeps no copy of the
// orders: what clients display only changes when the store says so.
type Service struct {
	Store          orders.Store
	Events         Events
	Log            *zap.Logger
	Metrics        *metrics.Metrics
	DefaultCourier string
	Concurrency    int
	WriteTimeout   time.Duration
	Now            func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) emit(ctx context.Context, eventType, orderID string, payload any) {
	if s.Events != nil {
		s.Events.Emit(ctx, eventType, orderID, payload)
	}
}

// writeCtx detaches a write from the caller: once issued, a write is not
// cancelled by the client going away.
func (s *Service) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.WriteTimeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}

func (s *Service) update(ctx context.Context, op, id string, p orders.Patch) error {
	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	err := s.Store.UpdateOrder(wctx, id, p)
	s.Metrics.Write(op, err)
	if err != nil {
		s.log().Warn("order write failed", zap.String("op", op), zap.String("order_id", id), zap.Error(err))
		if errors.Is(err, orders.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s order %s: %w", op, id, err)
	}
	return nil
}

type CheckoutRequest struct {
	UserName  string
	UserEmail string
	Depositor string
	Items     []orders.Item
}

// Checkout places a new PENDING order for the actor.
func (s *Service) Checkout(ctx context.Context, actor Actor, req CheckoutRequest) (orders.Order, error) {
	if actor.ID == "" {
		return orders.Order{}, ErrForbidden
	}
	if len(req.Items) == 0 {
		return orders.Order{}, ErrEmptyCart
	}
	if req.Depositor == "" {
		return orders.Order{}, ErrNoDepositor
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return orders.Order{}, invalid("invalid quantity for %q", it.Name)
		}
		if it.Price < 0 {
			return orders.Order{}, invalid("invalid price for %q", it.Name)
		}
	}

	o := orders.NewOrder(actor.ID, req.UserName, req.UserEmail, req.Depositor, req.Items, s.now())
	wctx, cancel := s.writeCtx(ctx)
	defer cancel()
	id, err := s.Store.CreateOrder(wctx, o)
	s.Metrics.Write("create", err)
	if err != nil {
		return orders.Order{}, fmt.Errorf("create order: %w", err)
	}
	o.ID = id

	s.log().Info("order placed", zap.String("order_id", id), zap.String("user_id", actor.ID), zap.Int("total", o.TotalAmount))
	s.emit(ctx, orders.EventOrderCreated, id, orders.OrderCreatedPayload{
		OrderID: id, UserID: actor.ID, Items: o.Items, TotalAmount: o.TotalAmount,
	})
	return o, nil
}

// MyOrders lists the actor's own orders, newest first.
func (s *Service) MyOrders(ctx context.Context, actor Actor) ([]orders.Order, error) {
	if actor.ID == "" {
		return nil, ErrForbidden
	}
	return s.Store.ListByUser(ctx, actor.ID)
}

func (s *Service) load(ctx context.Context, id string) (orders.Order, error) {
	o, err := s.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return orders.Order{}, err
		}
		return orders.Order{}, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, nil
}

func (s *Service) changed(ctx context.Context, actor Actor, source string, from orders.Order, p orders.Patch) {
	after := p.Apply(from)
	payload := orders.OrderStatusChangedPayload{
		OrderID:  from.ID,
		From:     from.Status,
		To:       after.Status,
		Actor:    actor.ID,
		Source:   source,
		Override: source == SourceOverride,
	}
	if p.TrackingNumber != nil {
		payload.TrackingSet = true
		payload.Courier = after.Courier
		payload.TrackingNumber = after.TrackingNumber
	}
	s.emit(ctx, orders.EventOrderStatusChanged, from.ID, payload)
}

const (
	SourceSingle   = "single"
	SourceBatch    = "batch"
	SourceImport   = "import"
	SourceOverride = "override"
)

// Cancel is open to the placing customer and to admins, and only while the
// order is PENDING. Anything else is refused with orders.ErrNotCancellable.
func (s *Service) Cancel(ctx context.Context, actor Actor, id string) error {
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && o.UserID != actor.ID {
		return ErrForbidden
	}
	p, err := orders.Cancel(o.Status)
	if err != nil {
		return err
	}
	if err := s.update(ctx, "cancel", id, p); err != nil {
		return err
	}
	s.changed(ctx, actor, SourceSingle, o, p)
	return nil
}

// Advance applies a forward admin action: PREPARING, DISPATCH_INSTRUCTED or
// DELIVERED.
func (s *Service) Advance(ctx context.Context, actor Actor, id string, to orders.Status) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	p, err := orders.Transition(o.Status, to)
	if err != nil {
		return err
	}
	if err := s.update(ctx, "advance", id, p); err != nil {
		return err
	}
	s.changed(ctx, actor, SourceSingle, o, p)
	return nil
}

// SetTracking writes the tracking number. A non-empty number ships the order
// with courier (the default courier when empty); an empty one reverts it to
// PENDING.
func (s *Service) SetTracking(ctx context.Context, actor Actor, id, courier, tracking string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	var p orders.Patch
	if tracking == "" {
		p = orders.ClearTracking()
	} else {
		if courier == "" {
			courier = s.DefaultCourier
		}
		if p, err = orders.AssignTracking(o.Status, courier, tracking); err != nil {
			return err
		}
	}
	if err := s.update(ctx, "tracking", id, p); err != nil {
		return err
	}
	s.changed(ctx, actor, SourceSingle, o, p)
	return nil
}

// Override sets any known status directly, bypassing the transition table.
// It stays available to admins as an operational escape hatch and is always
// logged as such.
func (s *Service) Override(ctx context.Context, actor Actor, id string, to orders.Status) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if !to.Valid() {
		return orders.ErrUnknownStatus
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	p := orders.SetStatus(to)
	s.log().Warn("status override",
		zap.String("order_id", id),
		zap.String("actor", actor.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
		zap.Bool("legal_transition", orders.CanTransition(o.Status, to)),
	)
	if err := s.update(ctx, "override", id, p); err != nil {
		return err
	}
	s.changed(ctx, actor, SourceOverride, o, p)
	return nil
}
