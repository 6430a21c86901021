package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/auth"
	"github.com/ariefcatur/go-wholesale-orders/internal/console"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders/ordertest"
	"github.com/ariefcatur/go-wholesale-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var kst = time.FixedZone("KST", 9*60*60)

type env struct {
	h     http.Handler
	store *ordertest.Store
	reg   *console.Registry
	admin string
	buyer string
	other string
}

func setup(t *testing.T, seed ...orders.Order) env {
	t.Helper()
	return setupWithCache(t, nil, seed...)
}

func setupWithCache(t *testing.T, rdb *redis.Client, seed ...orders.Order) env {
	t.Helper()
	store := ordertest.New(seed...)
	svc := &fulfillment.Service{Store: store, DefaultCourier: "CJ대한통운", Concurrency: 4}
	reg := &console.Registry{Store: store, Batch: svc, Location: kst}
	t.Cleanup(reg.Shutdown)
	tokens := auth.Tokens{Secret: []byte("test")}

	issue := func(id string, role fulfillment.Role) string {
		tok, err := tokens.Issue(fulfillment.Actor{ID: id, Role: role}, time.Hour)
		require.NoError(t, err)
		return tok
	}
	h := NewRouter(&Server{
		Service:  svc,
		Consoles: reg,
		Tokens:   tokens,
		Redis:    rdb,
		Location: kst,
		Now:      func() time.Time { return time.Date(2025, 3, 4, 3, 0, 0, 0, time.UTC) },
	})
	return env{
		h:     h,
		store: store,
		reg:   reg,
		admin: issue("admin-1", fulfillment.RoleAdmin),
		buyer: issue("user-1", fulfillment.RoleCustomer),
		other: issue("user-2", fulfillment.RoleCustomer),
	}
}

func (e env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func pending(user string, minute int) orders.Order {
	return orders.Order{
		UserID:      user,
		UserName:    "행복상회",
		Items:       []orders.Item{{Name: "마스크", Quantity: 2, Price: 1000}},
		TotalAmount: 2000,
		Date:        time.Date(2025, 3, 4, 0, minute, 0, 0, time.UTC).Format(time.RFC3339Nano),
		Status:      orders.StatusPending,
	}
}

func TestHealthAndAuth(t *testing.T) {
	e := setup(t)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/orders/mine", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/admin/sessions", e.buyer, nil).Code)
}

func TestCheckoutAndMyOrders(t *testing.T) {
	e := setup(t)
	rec := e.do(t, http.MethodPost, "/api/orders", e.buyer, map[string]any{
		"userName":  "행복상회",
		"depositor": "김행복",
		"items":     []map[string]any{{"name": "마스크", "quantity": 16, "price": 10900}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[orderView](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 16*10900, created.TotalAmount)
	assert.Equal(t, "접수대기", created.StatusLabel)

	rec = e.do(t, http.MethodPost, "/api/orders", e.buyer, map[string]any{
		"items": []map[string]any{{"name": "마스크", "quantity": 1, "price": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/orders/mine", e.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decodeBody[[]orderView](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)
	assert.Regexp(t, `^\d{8}-01$`, mine[0].OrderNo)

	rec = e.do(t, http.MethodGet, "/api/orders/mine", e.other, nil)
	assert.Empty(t, decodeBody[[]orderView](t, rec))
}

func TestCancelStatuses(t *testing.T) {
	preparing := pending("user-1", 1)
	preparing.Status = orders.StatusPreparing
	e := setup(t, pending("user-1", 0), preparing)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/orders/ord-001/cancel", e.other, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodPost, "/api/orders/ord-001/cancel", e.buyer, nil).Code)
	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodPost, "/api/orders/ord-002/cancel", e.buyer, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/orders/nope/cancel", e.buyer, nil).Code)

	o, _ := e.store.Order("ord-001")
	assert.Equal(t, orders.StatusCancelled, o.Status)
}

func TestStoreFailureIsRetryable(t *testing.T) {
	e := setup(t, pending("user-1", 0))
	e.store.FailAll(ordertest.ErrUnavailable)

	rec := e.do(t, http.MethodPost, "/api/orders/ord-001/cancel", e.buyer, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["retryable"])
}

func TestOrderStatus(t *testing.T) {
	e := setup(t, pending("user-1", 0))

	rec := e.do(t, http.MethodGet, "/api/orders/ord-001/status", e.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", decodeBody[map[string]any](t, rec)["status"])

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/api/orders/ord-001/status", e.other, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/orders/ord-001/status", e.admin, nil).Code)
}

func TestOrderStatusFillKeepsProjectedEntry(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redisx.New(addr)
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer rdb.Close()
	rdb.Del(ctx, "order_status:ord-001", "order_status:ord-002")
	t.Cleanup(func() { rdb.Del(ctx, "order_status:ord-001", "order_status:ord-002") })

	e := setupWithCache(t, rdb, pending("user-1", 0), pending("user-1", 1))

	// the projector got there first and knows no owner
	projected := time.Date(2025, 3, 4, 3, 0, 5, 0, time.UTC)
	require.NoError(t, redisx.SetStatus(ctx, rdb, "ord-001", redisx.StatusEntry{Status: "SHIPPING", UpdatedAt: projected}))

	rec := e.do(t, http.MethodGet, "/api/orders/ord-001/status", e.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cached, ok, err := redisx.GetStatus(ctx, rdb, "ord-001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "SHIPPING", cached.Status)
	assert.True(t, projected.Equal(cached.UpdatedAt))

	// a miss is filled and stamped with the time of the store read
	rec = e.do(t, http.MethodGet, "/api/orders/ord-002/status", e.buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cached, ok, err = redisx.GetStatus(ctx, rdb, "ord-002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "user-1", cached.UserID)
	assert.True(t, time.Date(2025, 3, 4, 3, 0, 0, 0, time.UTC).Equal(cached.UpdatedAt))
}

func openSession(t *testing.T, e env) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/admin/sessions", e.admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]string](t, rec)["id"]
	cs, err := e.reg.Get(id, fulfillment.Actor{ID: "admin-1", Role: fulfillment.RoleAdmin})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return cs.Version() > 0 }, 2*time.Second, 5*time.Millisecond)
	return id
}

func TestAdminBatch(t *testing.T) {
	e := setup(t, pending("user-1", 0), pending("user-2", 1), pending("user-2", 2))
	sid := openSession(t, e)
	base := "/api/admin/sessions/" + sid

	rec := e.do(t, http.MethodPost, base+"/batch", e.admin, statusReq{Status: "PREPARING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "empty selection")
	assert.Equal(t, 0, e.store.TotalWrites())

	rec = e.do(t, http.MethodPost, base+"/selection", e.admin, selectionReq{IDs: []string{"ord-001", "ord-002"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ord-001", "ord-002"}, decodeBody[map[string][]string](t, rec)["selected"])

	// Korean labels are accepted too
	rec = e.do(t, http.MethodPost, base+"/batch", e.admin, statusReq{Status: "상품준비중"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[struct {
		resultView
		Selected []string `json:"selected"`
	}](t, rec)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Attempted)
	assert.Empty(t, res.Selected)

	for _, id := range []string{"ord-001", "ord-002"} {
		o, _ := e.store.Order(id)
		assert.Equal(t, orders.StatusPreparing, o.Status)
	}
	o3, _ := e.store.Order("ord-003")
	assert.Equal(t, orders.StatusPending, o3.Status)
}

func TestAdminSearchFlow(t *testing.T) {
	e := setup(t, pending("user-1", 0), pending("user-2", 1))
	sid := openSession(t, e)
	base := "/api/admin/sessions/" + sid

	rec := e.do(t, http.MethodPut, base+"/draft", e.admin, map[string]string{"searchType": "orderNo", "keyword": "-02"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[sessionView](t, rec).Orders, 2)

	rec = e.do(t, http.MethodPost, base+"/search", e.admin, nil)
	v := decodeBody[sessionView](t, rec)
	require.Len(t, v.Orders, 1)
	assert.Equal(t, "ord-002", v.Orders[0].ID)

	rec = e.do(t, http.MethodPut, base+"/draft", e.admin, map[string]string{"startDate": "2025/03/01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, base+"/jump", e.admin, map[string]string{"status": "주문취소"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[sessionView](t, rec).Orders)

	rec = e.do(t, http.MethodPost, base+"/reset", e.admin, nil)
	assert.Len(t, decodeBody[sessionView](t, rec).Orders, 2)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/admin/sessions/nope/orders", e.admin, nil).Code)
}

func TestExportImport(t *testing.T) {
	e := setup(t, pending("user-1", 0), pending("user-2", 1))
	sid := openSession(t, e)

	rec := e.do(t, http.MethodGet, "/api/admin/sessions/"+sid+"/export.xlsx", e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetList()[0]
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i := 2; i <= 3; i++ {
		require.NoError(t, f.SetCellValue(sheet, "M"+string(rune('0'+i)), "TRK"+string(rune('0'+i))))
	}
	var upload bytes.Buffer
	require.NoError(t, f.Write(&upload))

	rec = e.do(t, http.MethodPost, "/api/admin/import", e.admin, upload.Bytes())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 2, body["updated"])

	for _, id := range []string{"ord-001", "ord-002"} {
		o, _ := e.store.Order(id)
		assert.Equal(t, orders.StatusShipping, o.Status)
		assert.Equal(t, "CJ대한통운", o.Courier)
	}

	rec = e.do(t, http.MethodPost, "/api/admin/import", e.admin, []byte("not a workbook"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 2, e.store.TotalWrites())
}

func TestTrackingAndOverride(t *testing.T) {
	e := setup(t, pending("user-1", 0))

	rec := e.do(t, http.MethodPut, "/api/admin/orders/ord-001/tracking", e.admin, trackingReq{TrackingNumber: "6412345678"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o, _ := e.store.Order("ord-001")
	assert.Equal(t, orders.StatusShipping, o.Status)

	rec = e.do(t, http.MethodPut, "/api/admin/orders/ord-001/tracking", e.admin, trackingReq{})
	require.Equal(t, http.StatusNoContent, rec.Code)
	o, _ = e.store.Order("ord-001")
	assert.Equal(t, orders.StatusPending, o.Status)

	rec = e.do(t, http.MethodPost, "/api/admin/orders/ord-001/advance", e.admin, statusReq{Status: "DELIVERED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/admin/orders/ord-001/override", e.admin, statusReq{Status: "DELIVERED"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodPost, "/api/admin/orders/ord-001/override", e.admin, statusReq{Status: "LOST"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionOwnedByAdmin(t *testing.T) {
	e := setup(t)
	sid := openSession(t, e)
	tok, err := auth.Tokens{Secret: []byte("test")}.Issue(fulfillment.Actor{ID: "admin-2", Role: fulfillment.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/api/admin/sessions/"+sid+"/orders", tok, nil).Code)

	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/admin/sessions/"+sid, e.admin, nil).Code)
	_, err = e.reg.Get(sid, fulfillment.Actor{ID: "admin-1", Role: fulfillment.RoleAdmin})
	assert.ErrorIs(t, err, console.ErrNoSession)
}
