package redisx

import "time"

const (
	// Change feed for the order collection; message = order id.
	ChannelOrdersChanged = "orders:changed"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Account profile cache: account:{user_id} -> account JSON
	KeyAccount = "account:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLAccount     = 10 * time.Minute
	TTLDedup       = 48 * time.Hour
)
