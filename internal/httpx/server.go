package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/auth"
	"github.com/ariefcatur/go-wholesale-orders/internal/console"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-wholesale-orders/internal/kafka"
	"github.com/ariefcatur/go-wholesale-orders/internal/logger"
	"github.com/ariefcatur/go-wholesale-orders/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	Service  *fulfillment.Service
	Consoles *console.Registry
	Tokens   auth.Tokens
	Redis    *redis.Client // status cache; nil disables it
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Location *time.Location
	Now      func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func NewRouter(s *Server) *chi.Mux {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.Location == nil {
		s.Location = time.UTC
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware(s.Log), middleware.Recoverer)
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware)
	}
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(traceEvents)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.Tokens.Middleware)
		s.registerCustomer(r)
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			s.registerAdmin(r)
		})
	})
	return r
}

// traceEvents tags the request context so emitted events carry the request id.
func traceEvents(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kafkax.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
