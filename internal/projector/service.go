// Package projector keeps the order status cache in step with the order
// event stream, so status reads do not have to hit the store.
package projector

import (
	"context"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-wholesale-orders/internal/kafka"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Cache is where projections land.
type Cache interface {
	MarkOnce(ctx context.Context, eventID string) (bool, error)
	Unmark(ctx context.Context, eventID string) error
	Get(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	Set(ctx context.Context, orderID string, e redisx.StatusEntry) error
}

type Service struct {
	Cache Cache
	Log   *zap.Logger
}

// Handle is installed as the consumer handler for both order topics.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated && env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	first, err := s.Cache.MarkOnce(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	if err := s.apply(ctx, env); err != nil {
		// let the redelivery through
		_ = s.Cache.Unmark(ctx, env.EventID)
		return err
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	orderID := env.CorrelationID
	cur, ok, err := s.Cache.Get(ctx, orderID)
	if err != nil {
		return err
	}
	// a redelivered older event never rolls the entry back
	if ok && cur.UpdatedAt.After(env.OccurredAt) {
		s.Log.Debug("stale event skipped", zap.String("event_id", env.EventID), zap.String("order_id", orderID))
		return nil
	}

	next := cur
	next.UpdatedAt = env.OccurredAt
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		next.UserID = p.UserID
		next.Status = string(orders.StatusPending)
	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		next.Status = string(p.To)
		if p.TrackingSet {
			next.Courier = p.Courier
			next.TrackingNumber = p.TrackingNumber
		}
		if p.Override {
			s.Log.Info("override projected", zap.String("order_id", orderID), zap.String("actor", p.Actor), zap.String("to", string(p.To)))
		}
	}
	return s.Cache.Set(ctx, orderID, next)
}

// RedisCache stores projections with the redisx helpers.
type RedisCache struct {
	Redis   *redis.Client
	Service string // dedup namespace
}

func (c *RedisCache) MarkOnce(ctx context.Context, eventID string) (bool, error) {
	return redisx.MarkOnce(ctx, c.Redis, c.Service, eventID)
}

func (c *RedisCache) Unmark(ctx context.Context, eventID string) error {
	return c.Redis.Del(ctx, fmt.Sprintf(redisx.KeyDedup, c.Service, eventID)).Err()
}

func (c *RedisCache) Get(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error) {
	return redisx.GetStatus(ctx, c.Redis, orderID)
}

func (c *RedisCache) Set(ctx context.Context, orderID string, e redisx.StatusEntry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	return redisx.SetStatus(ctx, c.Redis, orderID, e)
}
