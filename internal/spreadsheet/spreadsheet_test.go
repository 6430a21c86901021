package spreadsheet

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/accounts"
	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders/ordertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var (
	kst   = time.FixedZone("KST", 9*60*60)
	admin = fulfillment.Actor{ID: "admin-1", Role: fulfillment.RoleAdmin}
)

type accountMap map[string]accounts.Account

func (m accountMap) Account(id string) (accounts.Account, bool) {
	a, ok := m[id]
	return a, ok
}

func fixture() []orders.Order {
	list := []orders.Order{
		{UserID: "u1", UserName: "Happy Mart", Depositor: "김행복", Status: orders.StatusPending, Date: "2025-03-04T00:00:00Z",
			Items: []orders.Item{{Name: "마스크", Quantity: 16, Price: 10900}, {Name: "젓가락", Quantity: 20, Price: 13900}}, TotalAmount: 452400},
		{UserID: "u2", UserName: "Toy World", Depositor: "이토이", Status: orders.StatusPending, Date: "2025-03-04T00:10:00Z",
			Items: []orders.Item{{Name: "풍선", Quantity: 3, Price: 500}}, TotalAmount: 1500},
		{UserID: "u2", UserName: "Toy World", Depositor: "이토이", Status: orders.StatusPreparing, Date: "2025-03-03T00:10:00Z",
			Items: []orders.Item{{Name: "풍선", Quantity: 1, Price: 500}}, TotalAmount: 500},
	}
	for i := range list {
		list[i].ID = []string{"ord-001", "ord-002", "ord-003"}[i]
	}
	return orders.Relabel(list, kst)
}

var profiles = accountMap{"u1": {StoreName: "해피마트", RepName: "김민수", Mobile: "010-1111-2222", Address: "서울시 중구"}}

func export(t *testing.T, rows []orders.Order) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Export(&buf, rows, kst, profiles))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestExport(t *testing.T) {
	f := export(t, fixture())
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, headers, rows[0])

	byID := map[string][]string{}
	for _, r := range rows[1:] {
		byID[r[0]] = r
	}
	r := byID["ord-001"]
	assert.Equal(t, "20250304-01", r[1])
	assert.Equal(t, "접수대기", r[2])
	assert.Equal(t, "2025-03-04 09:00", r[3])
	assert.Equal(t, "해피마트", r[4])
	assert.Equal(t, "김민수", r[5])
	assert.Equal(t, "서울시 중구", r[7])
	assert.Equal(t, "김행복", r[8])
	assert.Equal(t, "마스크(16), 젓가락(20)", r[9])
	assert.Equal(t, "452400", r[10])

	// no account profile: the order's own customer name
	assert.Equal(t, "Toy World", byID["ord-002"][4])
}

func TestItemSummaryAndFileName(t *testing.T) {
	assert.Equal(t, "", ItemSummary(nil))
	assert.Equal(t, "a(1)", ItemSummary([]orders.Item{{Name: "a", Quantity: 1}}))
	assert.Equal(t, "신규주문발주서_2025-03-05.xlsx", FileName(time.Date(2025, 3, 4, 16, 0, 0, 0, time.UTC), kst))
}

func fill(t *testing.T, f *excelize.File, id string, courier string, tracking any) {
	t.Helper()
	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	for i, r := range rows {
		if r[0] != id {
			continue
		}
		if courier != "" {
			require.NoError(t, f.SetCellValue(sheetName, cellName(t, 12, i+1), courier))
		}
		require.NoError(t, f.SetCellValue(sheetName, cellName(t, 13, i+1), tracking))
		return
	}
	t.Fatalf("row %s not found", id)
}

func cellName(t *testing.T, col, row int) string {
	c, err := excelize.CoordinatesToCellName(col, row)
	require.NoError(t, err)
	return c
}

func TestRoundTrip(t *testing.T) {
	store := ordertest.New(fixture()...)
	svc := &fulfillment.Service{Store: store, DefaultCourier: "CJ대한통운", Concurrency: 2}

	f := export(t, fixture())
	fill(t, f, "ord-001", "", int64(6412345678))
	fill(t, f, "ord-003", "롯데택배", "2233-4455")
	var upload bytes.Buffer
	require.NoError(t, f.Write(&upload))

	rep, err := Import(context.Background(), svc, admin, &upload)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Rows)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 2, rep.Updated)
	assert.True(t, rep.Result.OK())

	o1, _ := store.Order("ord-001")
	assert.Equal(t, orders.StatusShipping, o1.Status)
	assert.Equal(t, "6412345678", o1.TrackingNumber)
	assert.Equal(t, "CJ대한통운", o1.Courier)
	o3, _ := store.Order("ord-003")
	assert.Equal(t, "2233-4455", o3.TrackingNumber)
	assert.Equal(t, "롯데택배", o3.Courier)
	o2, _ := store.Order("ord-002")
	assert.Equal(t, orders.StatusPending, o2.Status)
	assert.Equal(t, 2, store.TotalWrites())
}

func TestImport_PartialFailure(t *testing.T) {
	store := ordertest.New(fixture()...)
	store.FailWrites("ord-002", nil)
	svc := &fulfillment.Service{Store: store, Concurrency: 2}

	f := export(t, fixture())
	fill(t, f, "ord-001", "", "111")
	fill(t, f, "ord-002", "", "222")
	var upload bytes.Buffer
	require.NoError(t, f.Write(&upload))

	rep, err := Import(context.Background(), svc, admin, &upload)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, []string{"ord-002"}, rep.Result.FailedIDs())
	assert.Equal(t, 2, rep.Result.Attempted)
}

func TestImport_MalformedWritesNothing(t *testing.T) {
	store := ordertest.New(fixture()...)
	svc := &fulfillment.Service{Store: store}

	_, err := Import(context.Background(), svc, admin, strings.NewReader("id,tracking\nord-001,1\n"))
	assert.ErrorIs(t, err, ErrMalformedSheet)
	assert.ErrorIs(t, err, fulfillment.ErrValidation)

	// a real workbook without the tracking column
	nf := excelize.NewFile()
	defer nf.Close()
	require.NoError(t, nf.SetSheetRow("Sheet1", "A1", &[]any{ColID, ColCourier}))
	require.NoError(t, nf.SetSheetRow("Sheet1", "A2", &[]any{"ord-001", "CJ대한통운"}))
	var buf bytes.Buffer
	require.NoError(t, nf.Write(&buf))
	_, err = Import(context.Background(), svc, admin, &buf)
	assert.ErrorIs(t, err, ErrMalformedSheet)

	assert.Equal(t, 0, store.TotalWrites())
}

func TestImport_CustomerForbidden(t *testing.T) {
	_, err := Import(context.Background(), &fulfillment.Service{Store: ordertest.New()}, fulfillment.Actor{ID: "u1"}, strings.NewReader(""))
	assert.ErrorIs(t, err, fulfillment.ErrForbidden)
}

func TestParse_LastRowWins(t *testing.T) {
	nf := excelize.NewFile()
	defer nf.Close()
	require.NoError(t, nf.SetSheetRow("Sheet1", "A1", &[]any{" " + ColTracking + " ", ColID}))
	require.NoError(t, nf.SetSheetRow("Sheet1", "A2", &[]any{"1", "ord-001"}))
	require.NoError(t, nf.SetSheetRow("Sheet1", "A4", &[]any{"2", "ord-001"}))
	require.NoError(t, nf.SetSheetRow("Sheet1", "A5", &[]any{"", "ord-002"}))
	var buf bytes.Buffer
	require.NoError(t, nf.Write(&buf))

	p, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Rows)
	assert.Equal(t, 2, p.Skipped)
	require.Len(t, p.Shipments, 1)
	assert.Equal(t, fulfillment.Shipment{OrderID: "ord-001", TrackingNumber: "2"}, p.Shipments[0])
}

func TestAsText(t *testing.T) {
	assert.Equal(t, "6412345678", asText("6.412345678E9", true))
	assert.Equal(t, "6412345678", asText(" 6412345678 ", true))
	assert.Equal(t, "12", asText("12.0", true))
	assert.Equal(t, "12.5", asText("12.5", true))
	assert.Equal(t, "A-100", asText("A-100", true))
	assert.Equal(t, "12.0", asText("12.0", false))
	assert.Equal(t, "5E3", asText(" 5E3 ", false))
}

func TestParse_TextTrackingKeptAsTyped(t *testing.T) {
	nf := excelize.NewFile()
	defer nf.Close()
	require.NoError(t, nf.SetSheetRow("Sheet1", "A1", &[]any{ColID, ColTracking}))
	require.NoError(t, nf.SetCellStr("Sheet1", "A2", "ord-001"))
	require.NoError(t, nf.SetCellStr("Sheet1", "B2", "5E3"))
	require.NoError(t, nf.SetCellStr("Sheet1", "A3", "ord-002"))
	require.NoError(t, nf.SetCellStr("Sheet1", "B3", "12.0"))
	require.NoError(t, nf.SetCellStr("Sheet1", "A4", "ord-003"))
	require.NoError(t, nf.SetCellFloat("Sheet1", "B4", 6412345678, -1, 64))
	var buf bytes.Buffer
	require.NoError(t, nf.Write(&buf))

	p, err := Parse(&buf)
	require.NoError(t, err)
	require.Len(t, p.Shipments, 3)
	assert.Equal(t, "5E3", p.Shipments[0].TrackingNumber)
	assert.Equal(t, "12.0", p.Shipments[1].TrackingNumber)
	assert.Equal(t, "6412345678", p.Shipments[2].TrackingNumber)
}
