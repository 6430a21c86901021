package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) registerCustomer(r chi.Router) {
	r.Post("/orders", s.checkout)
	r.Get("/orders/mine", s.myOrders)
	r.Get("/orders/{id}/status", s.orderStatus)
	r.Post("/orders/{id}/cancel", s.cancel)
}

type checkoutReq struct {
	UserName  string        `json:"userName"`
	UserEmail string        `json:"userEmail"`
	Depositor string        `json:"depositor"`
	Items     []orders.Item `json:"items"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if !decode(w, r, &req) {
		return
	}
	o, err := s.Service.Checkout(r.Context(), actor(r), fulfillment.CheckoutRequest(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(o))
}

func (s *Server) myOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.Service.MyOrders(r.Context(), actor(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views(orders.Relabel(list, s.Location)))
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Cancel(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// orderStatus serves from the status cache and falls back to the store.
func (s *Server) orderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a := actor(r)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s.Redis != nil {
		e, ok, err := redisx.GetStatus(ctx, s.Redis, id)
		if err != nil {
			s.Log.Warn("status cache read failed", zap.String("order_id", id), zap.Error(err))
		}
		// entries written by the projector alone carry no owner
		if ok && e.UserID != "" {
			if !a.IsAdmin() && e.UserID != a.ID {
				s.writeError(w, r, fulfillment.ErrForbidden)
				return
			}
			writeJSON(w, http.StatusOK, e)
			return
		}
	}

	// stamped before the read: any event after it is newer than this entry
	readAt := s.now().UTC()
	o, err := s.Service.Store.Get(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !a.IsAdmin() && o.UserID != a.ID {
		s.writeError(w, r, fulfillment.ErrForbidden)
		return
	}
	e := redisx.StatusEntry{
		UserID:         o.UserID,
		Status:         string(o.Status),
		Courier:        o.Courier,
		TrackingNumber: o.TrackingNumber,
		UpdatedAt:      readAt,
	}
	if s.Redis != nil {
		if _, err := redisx.FillStatus(ctx, s.Redis, id, e); err != nil {
			s.Log.Warn("status cache fill failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, e)
}
