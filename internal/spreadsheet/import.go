package spreadsheet

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-wholesale-orders/internal/fulfillment"
	"github.com/xuri/excelize/v2"
)

// ErrMalformedSheet fails a whole import before any write is issued.
var ErrMalformedSheet = fmt.Errorf("%w: malformed spreadsheet", fulfillment.ErrValidation)

// Parsed is the content of an uploaded sheet.
type Parsed struct {
	Shipments []fulfillment.Shipment
	Rows      int // data rows read
	Skipped   int // rows without id or tracking number, or superseded by a later row
}

// Parse reads the first sheet. The 시스템ID and 송장번호 headers are required,
// 택배사 is optional. A later row for the same order replaces an earlier one.
func Parse(r io.Reader) (Parsed, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrMalformedSheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Parsed{}, fmt.Errorf("%w: no sheets", ErrMalformedSheet)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return Parsed{}, fmt.Errorf("%w: %v", ErrMalformedSheet, err)
	}
	if len(rows) == 0 {
		return Parsed{}, fmt.Errorf("%w: empty sheet", ErrMalformedSheet)
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.TrimSpace(h)] = i
	}
	idCol, okID := cols[ColID]
	trackCol, okTrack := cols[ColTracking]
	if !okID || !okTrack {
		return Parsed{}, fmt.Errorf("%w: %s and %s columns are required", ErrMalformedSheet, ColID, ColTracking)
	}
	courierCol, hasCourier := cols[ColCourier]

	p := Parsed{}
	index := map[string]int{}
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		p.Rows++
		id := strings.TrimSpace(cell(row, idCol))
		tracking := asText(cell(row, trackCol), numeric(f, sheets[0], trackCol, i+2))
		if id == "" || tracking == "" {
			p.Skipped++
			continue
		}
		sh := fulfillment.Shipment{OrderID: id, TrackingNumber: tracking}
		if hasCourier {
			sh.Courier = strings.TrimSpace(cell(row, courierCol))
		}
		if at, dup := index[id]; dup {
			p.Shipments[at] = sh
			p.Skipped++
			continue
		}
		index[id] = len(p.Shipments)
		p.Shipments = append(p.Shipments, sh)
	}
	return p, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// numeric reports whether the cell holds a number rather than text.
func numeric(f *excelize.File, sheet string, col, row int) bool {
	ref, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return false
	}
	t, err := f.GetCellType(sheet, ref)
	if err != nil {
		return false
	}
	// numbers are usually stored without a type attribute
	return t == excelize.CellTypeNumber || t == excelize.CellTypeUnset
}

// asText turns a tracking number typed into a numeric cell back into its
// digits: 6412345678, not 6.412345678E+09. Text cells are kept as typed.
func asText(v string, numeric bool) string {
	v = strings.TrimSpace(v)
	if !numeric || v == "" || !strings.ContainsAny(v, ".eE") {
		return v
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != float64(int64(f)) {
		return v
	}
	return strconv.FormatInt(int64(f), 10)
}

// Shipper is the write side an import drives.
type Shipper interface {
	Ship(ctx context.Context, actor fulfillment.Actor, shipments []fulfillment.Shipment) (fulfillment.Result, error)
}

// Report sums up one import.
type Report struct {
	Rows    int                `json:"rows"`
	Skipped int                `json:"skipped"`
	Updated int                `json:"updated"`
	Result  fulfillment.Result `json:"-"`
}

// Import parses the upload and ships every complete row as its own write.
func Import(ctx context.Context, s Shipper, actor fulfillment.Actor, r io.Reader) (Report, error) {
	if !actor.IsAdmin() {
		return Report{}, fulfillment.ErrForbidden
	}
	p, err := Parse(r)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Rows: p.Rows, Skipped: p.Skipped}
	if len(p.Shipments) == 0 {
		return rep, nil
	}
	res, err := s.Ship(ctx, actor, p.Shipments)
	if err != nil {
		return rep, err
	}
	rep.Result = res
	rep.Updated = len(res.Succeeded)
	return rep, nil
}
