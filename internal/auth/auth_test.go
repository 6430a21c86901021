package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokens = Tokens{Secret: []byte("test-secret")}

func TestIssueAndParse(t *testing.T) {
	tok, err := tokens.Issue(fulfillment.Actor{ID: "admin-1", Role: fulfillment.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	a, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", a.ID)
	assert.True(t, a.IsAdmin())

	_, err = Tokens{Secret: []byte("other")}.Parse(tok)
	assert.Error(t, err)

	expired, err := tokens.Issue(fulfillment.Actor{ID: "u"}, -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Parse(expired)
	assert.Error(t, err)
}

func TestUnknownRoleIsCustomer(t *testing.T) {
	tok, err := tokens.Issue(fulfillment.Actor{ID: "u1", Role: "superuser"}, time.Minute)
	require.NoError(t, err)
	a, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, fulfillment.RoleCustomer, a.Role)
}

func TestMiddleware(t *testing.T) {
	var seen fulfillment.Actor
	h := tokens.Middleware(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer junk"))

	buyer, _ := tokens.Issue(fulfillment.Actor{ID: "u1", Role: fulfillment.RoleCustomer}, time.Minute)
	assert.Equal(t, http.StatusForbidden, call("Bearer "+buyer))

	admin, _ := tokens.Issue(fulfillment.Actor{ID: "a1", Role: fulfillment.RoleAdmin}, time.Minute)
	assert.Equal(t, http.StatusNoContent, call("Bearer "+admin))
	assert.Equal(t, "a1", seen.ID)
}
