package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	Items       []Item `json:"items"`
	TotalAmount int    `json:"total_amount"`
}

type OrderStatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	From           Status `json:"from,omitempty"` // empty when the writer did not read the order first
	To             Status `json:"to"`
	TrackingSet    bool   `json:"tracking_set,omitempty"` // courier and tracking below were written too
	Courier        string `json:"courier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Actor          string `json:"actor"`
	Source         string `json:"source"` // single | batch | import | override
	Override       bool   `json:"override,omitempty"`
}
