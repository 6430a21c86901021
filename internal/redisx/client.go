package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Timeout bounds dialing and every command round trip.
const Timeout = 2 * time.Second

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  Timeout,
		ReadTimeout:  Timeout,
		WriteTimeout: Timeout,
	})
}

// StatusEntry is what the status cache holds per order.
type StatusEntry struct {
	UserID         string    `json:"user_id,omitempty"`
	Status         string    `json:"status"`
	Courier        string    `json:"courier,omitempty"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func SetStatus(ctx context.Context, rdb *redis.Client, orderID string, e StatusEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// FillStatus caches e only when nothing is cached for the order yet, so a
// read-through fill never replaces what the projector wrote.
func FillStatus(ctx context.Context, rdb *redis.Client, orderID string, e StatusEntry) (bool, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Result()
}

// GetStatus returns ok=false on a cache miss.
func GetStatus(ctx context.Context, rdb *redis.Client, orderID string) (e StatusEntry, ok bool, err error) {
	b, err := rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if err == redis.Nil {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return StatusEntry{}, false, err
	}
	return e, true, nil
}

// MarkOnce records a dedup key; false means it was already there.
func MarkOnce(ctx context.Context, rdb *redis.Client, service, id string) (bool, error) {
	return rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, service, id), 1, TTLDedup).Result()
}
