// Package dataset reads and writes sales history in the tabular layout used
// for training files and the persisted raw_data.csv artifact.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

// Columns is the header written by WriteCSV.
var Columns = []string{
	"date", "store_id", "sku_id", "category", "brand",
	"units_sold", "stock_opening", "stock_out_flag", "list_price", "discount_pct",
	"promo_flag", "temperature", "weekday", "is_weekend", "is_holiday",
	"country", "city", "channel", "latitude", "longitude",
	"sku_name", "subcategory", "supplier_id", "rain_mm", "lead_time_days",
	"adjusted_demand",
}

var dateLayouts = []string{
	domain.DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseDate accepts a plain date, RFC3339 or a space-separated timestamp and
// truncates to the calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable date %q", domain.ErrValidation, s)
}

type row struct {
	fields []string
	cols   map[string]int
}

func (r row) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r row) float(name string) (float64, bool, error) {
	s := r.str(name)
	if s == "" || strings.EqualFold(s, "nan") {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("column %s: %w", name, err)
	}
	return v, true, nil
}

func (r row) num(name string) (float64, error) {
	v, _, err := r.float(name)
	return v, err
}

func (r row) flag(name string) (bool, error) {
	switch strings.ToLower(r.str(name)) {
	case "", "0", "false", "no":
		return false, nil
	case "true", "yes":
		return true, nil
	}
	v, err := r.num(name)
	return v != 0, err
}

func (r row) optional(name string) (*float64, error) {
	v, ok, err := r.float(name)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// ReadCSV parses records by header name. Unknown columns are ignored and
// missing columns default to zero or empty; date, store_id and sku_id are
// required.
func ReadCSV(src io.Reader) ([]domain.SalesRecord, error) {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	return readTable(func() ([]string, error) {
		return reader.Read()
	})
}

// readTable consumes rows from next until io.EOF. The first row is the header.
func readTable(next func() ([]string, error)) ([]domain.SalesRecord, error) {
	header, err := next()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, col := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, required := range []string{"date", "store_id", "sku_id"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", domain.ErrValidation, required)
		}
	}

	var records []domain.SalesRecord
	line := 1
	for {
		fields, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading record %d: %w", line, err)
		}
		if blank(fields) {
			continue
		}
		rec, err := parseRow(row{fields: fields, cols: cols})
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseRow(r row) (domain.SalesRecord, error) {
	date, err := ParseDate(r.str("date"))
	if err != nil {
		return domain.SalesRecord{}, err
	}

	rec := domain.SalesRecord{
		Date:        date,
		StoreID:     r.str("store_id"),
		SKUID:       r.str("sku_id"),
		Category:    r.str("category"),
		Brand:       r.str("brand"),
		Country:     r.str("country"),
		City:        r.str("city"),
		Channel:     r.str("channel"),
		SKUName:     r.str("sku_name"),
		Subcategory: r.str("subcategory"),
		SupplierID:  r.str("supplier_id"),
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"units_sold", &rec.UnitsSold},
		{"stock_opening", &rec.StockOpening},
		{"list_price", &rec.ListPrice},
		{"discount_pct", &rec.DiscountPct},
		{"temperature", &rec.Temperature},
		{"latitude", &rec.Latitude},
		{"longitude", &rec.Longitude},
		{"rain_mm", &rec.RainMM},
	}
	for _, f := range floats {
		if *f.dst, err = r.num(f.name); err != nil {
			return rec, err
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"promo_flag", &rec.PromoFlag},
		{"weekday", &rec.Weekday},
		{"is_weekend", &rec.IsWeekend},
		{"is_holiday", &rec.IsHoliday},
	}
	for _, f := range ints {
		v, err := r.num(f.name)
		if err != nil {
			return rec, err
		}
		*f.dst = int(math.Round(v))
	}
	if _, ok := r.cols["weekday"]; !ok {
		rec.Weekday = domain.WeekdayIndex(date)
	}

	if rec.StockOut, err = r.flag("stock_out_flag"); err != nil {
		return rec, err
	}
	if rec.LeadTimeDays, err = r.optional("lead_time_days"); err != nil {
		return rec, err
	}
	if rec.AdjustedDemand, err = r.optional("adjusted_demand"); err != nil {
		return rec, err
	}
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// WriteCSV writes records with the Columns header. Floats use the shortest
// representation that round-trips exactly.
func WriteCSV(dst io.Writer, records []domain.SalesRecord) error {
	w := csv.NewWriter(dst)
	if err := w.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		stockOut := "0"
		if r.StockOut {
			stockOut = "1"
		}
		fields := []string{
			r.Date.Format(domain.DateLayout), r.StoreID, r.SKUID, r.Category, r.Brand,
			formatFloat(r.UnitsSold), formatFloat(r.StockOpening), stockOut,
			formatFloat(r.ListPrice), formatFloat(r.DiscountPct),
			strconv.Itoa(r.PromoFlag), formatFloat(r.Temperature), strconv.Itoa(r.Weekday),
			strconv.Itoa(r.IsWeekend), strconv.Itoa(r.IsHoliday),
			r.Country, r.City, r.Channel, formatFloat(r.Latitude), formatFloat(r.Longitude),
			r.SKUName, r.Subcategory, r.SupplierID, formatFloat(r.RainMM),
			formatOptional(r.LeadTimeDays), formatOptional(r.AdjustedDemand),
		}
		if err := w.Write(fields); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
