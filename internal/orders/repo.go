package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Repo keeps orders as JSON documents in Postgres and announces every write
// on the change feed.
type Repo struct {
	DB   *pgxpool.Pool
	Feed *Feed
	// Resync is how often a subscription reloads without being told to.
	// Notifications sent while the feed was reconnecting are lost, so this
	// bounds how long a subscriber can stay stale. Defaults to 30s.
	Resync time.Duration
}

var _ Store = (*Repo)(nil)

func (r *Repo) CreateOrder(ctx context.Context, o Order) (string, error) {
	doc, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	id := uuid.NewString()
	if _, err := r.DB.Exec(ctx, `INSERT INTO orders(id, doc) VALUES ($1, $2::jsonb)`, id, doc); err != nil {
		return "", err
	}
	r.announce(ctx, id)
	return id, nil
}

// UpdateOrder merges p into the stored document.
func (r *Repo) UpdateOrder(ctx context.Context, id string, p Patch) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	patch, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET doc = doc || $2::jsonb, updated_at = now()
		WHERE id = $1`, id, patch)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	r.announce(ctx, id)
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Order{}, ErrNotFound
	}
	var doc []byte
	err := r.DB.QueryRow(ctx, `SELECT doc FROM orders WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return decode(id, doc)
}

func (r *Repo) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, doc FROM orders WHERE doc->>'userId' = $1`, userID)
	if err != nil {
		return nil, err
	}
	list, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	SortForDisplay(list)
	return list, nil
}

// List loads the whole collection.
func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, doc FROM orders`)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var (
			id  string
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		o, err := decode(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func decode(id string, doc []byte) (Order, error) {
	var o Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	o.ID = id
	return o, nil
}

func (r *Repo) announce(ctx context.Context, id string) {
	if r.Feed == nil {
		return
	}
	// the write already landed; subscribers catch up on the next change
	_ = r.Feed.Publish(ctx, id)
}

// watch reloads the list into s on every notification and every resync tick.
// A failed reload closes s; the subscriber is expected to resubscribe.
func watch(ctx context.Context, s *Stream, changes <-chan *redis.Message, load func(context.Context) ([]Order, error), resync time.Duration) {
	t := time.NewTicker(resync)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.Done():
			return
		case _, ok := <-changes:
			if !ok {
				_ = s.Close()
				return
			}
		case <-t.C:
		}
		list, err := load(ctx)
		if err != nil {
			_ = s.Close()
			return
		}
		s.Offer(list)
	}
}

// Subscribe streams full snapshots: the current list, then a reload after
// every change announced on the feed.
func (r *Repo) Subscribe(ctx context.Context) (Subscription, error) {
	if r.Feed == nil {
		list, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		s := NewStream()
		s.Offer(list)
		return s, nil
	}

	// listen before the first load so no change slips in between
	changes, err := r.Feed.Listen(ctx)
	if err != nil {
		return nil, err
	}
	list, err := r.List(ctx)
	if err != nil {
		_ = changes.Close()
		return nil, err
	}
	s := NewStream()
	s.Offer(list)

	resync := r.Resync
	if resync <= 0 {
		resync = 30 * time.Second
	}
	go func() {
		defer changes.Close()
		watch(ctx, s, changes.Channel(), r.List, resync)
	}()
	return s, nil
}
