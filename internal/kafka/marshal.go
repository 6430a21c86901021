package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
)

// EnvelopeVersion is the only envelope version this service writes and reads.
const EnvelopeVersion = 1

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeEnvelope parses a message value and refuses envelope versions it
// does not know.
func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return orders.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventVersion != EnvelopeVersion {
		return orders.Envelope{}, fmt.Errorf("unsupported envelope version %d for %s", env.EventVersion, env.EventType)
	}
	if env.EventID == "" {
		return orders.Envelope{}, fmt.Errorf("envelope without event id (%s)", env.EventType)
	}
	return env, nil
}

// UnwrapPayload decodes the event-specific payload of an envelope.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
