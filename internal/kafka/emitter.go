package kafka

import (
	"context"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Emitter wraps payloads in the v1 envelope and routes them to the producer
// of their topic.
type Emitter struct {
	Producers map[string]*Producer // event type -> producer
	Service   string
}

func (e *Emitter) Emit(ctx context.Context, eventType, orderID string, payload any) {
	p, ok := e.Producers[eventType]
	if !ok {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EnvelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       TraceID(ctx),
		CorrelationID: orderID,
		Payload:       MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), MustMarshal(ev),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

type traceKey struct{}

// WithTraceID tags ctx so events emitted under it carry the request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
