package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-wholesale-orders/internal/auth"
	"github.com/ariefcatur/go-wholesale-orders/internal/console"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps domain errors to statuses. Whatever is not a rejection of
// the request itself is a store or network failure the client may retry.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, fulfillment.ErrValidation),
		errors.Is(err, orders.ErrUnknownStatus),
		errors.Is(err, orders.ErrEmptyTracking):
		code = http.StatusBadRequest
	case errors.Is(err, fulfillment.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, console.ErrNoSession):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrNotCancellable), errors.Is(err, orders.ErrInvalidTransition):
		code = http.StatusConflict
	}
	if code == http.StatusBadGateway {
		s.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, code, map[string]any{"error": err.Error(), "retryable": true})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

func actor(r *http.Request) fulfillment.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

// orderView is an order as clients see it: the document plus its id and the
// derived fields.
type orderView struct {
	ID          string `json:"id"`
	OrderNo     string `json:"orderNo,omitempty"`
	StatusLabel string `json:"statusLabel"`
	orders.Order
}

func view(o orders.Order) orderView {
	return orderView{ID: o.ID, OrderNo: o.OrderNo, StatusLabel: o.Status.Label(), Order: o}
}

func views(list []orders.Order) []orderView {
	out := make([]orderView, len(list))
	for i, o := range list {
		out[i] = view(o)
	}
	return out
}

type outcomeView struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type resultView struct {
	OK        bool          `json:"ok"`
	Attempted int           `json:"attempted"`
	Succeeded []string      `json:"succeeded"`
	Failed    []outcomeView `json:"failed"`
}

func resultOf(res fulfillment.Result) resultView {
	v := resultView{OK: res.OK(), Attempted: res.Attempted, Succeeded: res.Succeeded, Failed: []outcomeView{}}
	if v.Succeeded == nil {
		v.Succeeded = []string{}
	}
	for _, f := range res.Failed {
		v.Failed = append(v.Failed, outcomeView{ID: f.ID, Error: f.Err.Error()})
	}
	return v
}
