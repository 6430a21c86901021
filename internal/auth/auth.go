// Package auth turns bearer tokens into fulfillment actors.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/golang-jwt/jwt/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	Role fulfillment.Role `json:"role"`
}

type Tokens struct {
	Secret []byte
}

func (t Tokens) Issue(actor fulfillment.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: actor.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

func (t Tokens) Parse(token string) (fulfillment.Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return t.Secret, nil
	})
	if err != nil {
		return fulfillment.Actor{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return fulfillment.Actor{}, errors.New("invalid token")
	}
	role := claims.Role
	if role != fulfillment.RoleAdmin {
		role = fulfillment.RoleCustomer
	}
	return fulfillment.Actor{ID: claims.Subject, Role: role}, nil
}

type actorKey struct{}

func WithActor(ctx context.Context, a fulfillment.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated actor; ok is false on anonymous requests.
func ActorFrom(ctx context.Context) (fulfillment.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(fulfillment.Actor)
	return a, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Middleware rejects requests without a valid bearer token.
func (t Tokens) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		actor, err := t.Parse(raw)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		if !ok || !a.IsAdmin() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin only"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
