// Package spreadsheet moves orders out to an XLSX dispatch sheet and reads
// tracking numbers back in from it.
package spreadsheet

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ariefcatur/go-wholesale-orders/internal/accounts"
	"github.com/ariefcatur/go-wholesale-orders/internal/orders"
	"github.com/xuri/excelize/v2"
)

const (
	ColID        = "시스템ID"
	ColOrderNo   = "주문번호"
	ColStatus    = "상태"
	ColDate      = "주문일시"
	ColCustomer  = "주문자명"
	ColRep       = "대표자명"
	ColMobile    = "연락처"
	ColAddress   = "주소"
	ColDepositor = "입금자명"
	ColItems     = "상품내역"
	ColTotal     = "총금액"
	ColCourier   = "택배사"
	ColTracking  = "송장번호"
)

var headers = []string{
	ColID, ColOrderNo, ColStatus, ColDate, ColCustomer, ColRep, ColMobile,
	ColAddress, ColDepositor, ColItems, ColTotal, ColCourier, ColTracking,
}

const sheetName = "신규주문"

// Accounts resolves buyer profiles for the customer columns.
type Accounts interface {
	Account(userID string) (accounts.Account, bool)
}

// FileName is the download name of an export made at now.
func FileName(now time.Time, loc *time.Location) string {
	return fmt.Sprintf("신규주문발주서_%s.xlsx", now.In(loc).Format("2006-01-02"))
}

// ItemSummary flattens items to "name(qty), name(qty)".
func ItemSummary(items []orders.Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%s(%d)", it.Name, it.Quantity)
	}
	return strings.Join(parts, ", ")
}

// Export writes one row per order. Text columns are stored as strings so ids
// and tracking numbers survive a round trip through a spreadsheet editor.
func Export(w io.Writer, rows []orders.Order, loc *time.Location, acc Accounts) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", "M", 18); err != nil {
		return err
	}

	for i, o := range rows {
		if err := writeRow(f, i+2, o, loc, acc); err != nil {
			return fmt.Errorf("row %d (%s): %w", i+2, o.ID, err)
		}
	}
	return f.Write(w)
}

func writeRow(f *excelize.File, row int, o orders.Order, loc *time.Location, acc Accounts) error {
	var a accounts.Account
	if acc != nil {
		a, _ = acc.Account(o.UserID)
	}
	customer := a.StoreName
	if customer == "" {
		customer = o.UserName
	}
	date := o.Date
	if at, ok := o.CreatedAt(); ok {
		date = at.In(loc).Format("2006-01-02 15:04")
	}

	text := []string{
		o.ID, o.OrderNo, o.Status.Label(), date, customer, a.RepName, a.Mobile,
		a.Address, o.Depositor, ItemSummary(o.Items),
	}
	for col, v := range text {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		if err := f.SetCellStr(sheetName, cell, v); err != nil {
			return err
		}
	}
	cell, _ := excelize.CoordinatesToCellName(len(text)+1, row)
	if err := f.SetCellValue(sheetName, cell, o.TotalAmount); err != nil {
		return err
	}
	// tracking stays blank until filled in offline
	for col, v := range []string{o.Courier, o.TrackingNumber} {
		cell, _ := excelize.CoordinatesToCellName(len(text)+2+col, row)
		if err := f.SetCellStr(sheetName, cell, v); err != nil {
			return err
		}
	}
	return nil
}
