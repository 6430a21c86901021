package orders

import (
	"context"

	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// Feed fans change notifications out to every connected client over Redis
// pub/sub. A message only says "order <id> changed"; listeners reload.
type Feed struct {
	Redis *redis.Client
}

func (f *Feed) Publish(ctx context.Context, orderID string) error {
	return f.Redis.Publish(ctx, redisx.ChannelOrdersChanged, orderID).Err()
}

// Listen returns once the subscription is confirmed by the server.
func (f *Feed) Listen(ctx context.Context) (*redis.PubSub, error) {
	ps := f.Redis.Subscribe(ctx, redisx.ChannelOrdersChanged)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return ps, nil
}
