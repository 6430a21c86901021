package accounts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// absent marks a cached "no such account" answer.
const absent = "-"

// Cached is a read-through Redis cache in front of another Directory.
type Cached struct {
	Next  Directory
	Redis *redis.Client
}

func (c *Cached) Lookup(ctx context.Context, userID string) (Account, bool, error) {
	key := fmt.Sprintf(redisx.KeyAccount, userID)
	if b, err := c.Redis.Get(ctx, key).Bytes(); err == nil {
		if string(b) == absent {
			return Account{}, false, nil
		}
		var a Account
		if json.Unmarshal(b, &a) == nil {
			return a, true, nil
		}
	}

	a, ok, err := c.Next.Lookup(ctx, userID)
	if err != nil {
		return Account{}, false, err
	}
	val := absent
	if ok {
		b, err := json.Marshal(a)
		if err != nil {
			return a, ok, nil
		}
		val = string(b)
	}
	_ = c.Redis.Set(ctx, key, val, redisx.TTLAccount).Err()
	return a, ok, nil
}
