package features

import (
	"math"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/encoder"
)

// Frame is a set of sales records, sorted by (store, sku, date), plus the
// derived feature columns. NaN marks an unavailable value.
type Frame struct {
	records []domain.SalesRecord
	derived []string
	columns map[string][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.records)
}

// Records returns the sorted rows. Callers must not modify them.
func (f *Frame) Records() []domain.SalesRecord {
	return f.records
}

// Derived returns the derived column names in creation order.
func (f *Frame) Derived() []string {
	return append([]string(nil), f.derived...)
}

// Column returns a derived column.
func (f *Frame) Column(name string) ([]float64, bool) {
	col, ok := f.columns[name]
	return col, ok
}

// Value returns a numeric input for a row: a derived column if one exists,
// otherwise the record field, otherwise NaN.
func (f *Frame) Value(row int, name string) float64 {
	if col, ok := f.columns[name]; ok {
		return col[row]
	}
	if v, ok := f.records[row].Feature(name); ok {
		return v
	}
	return math.NaN()
}

func (f *Frame) appendColumn(name string, values []float64) {
	f.derived = append(f.derived, name)
	f.columns[name] = values
}

// Filter keeps the rows accepted by keep, slicing every column the same way.
func (f *Frame) Filter(keep func(domain.SalesRecord) bool) *Frame {
	idx := make([]int, 0, len(f.records))
	for i, r := range f.records {
		if keep(r) {
			idx = append(idx, i)
		}
	}

	out := &Frame{
		records: make([]domain.SalesRecord, len(idx)),
		derived: f.Derived(),
		columns: make(map[string][]float64, len(f.columns)),
	}
	for j, i := range idx {
		out.records[j] = f.records[i]
	}
	for name, col := range f.columns {
		sliced := make([]float64, len(idx))
		for j, i := range idx {
			sliced[j] = col[i]
		}
		out.columns[name] = sliced
	}
	return out
}

// Groups returns [start, end) row ranges of each (store, sku) series.
func (f *Frame) Groups() [][2]int {
	return seriesRanges(f.records)
}

func seriesRanges(records []domain.SalesRecord) [][2]int {
	var ranges [][2]int
	start := 0
	for i := 1; i <= len(records); i++ {
		if i == len(records) || records[i].Key() != records[start].Key() {
			ranges = append(ranges, [2]int{start, i})
			start = i
		}
	}
	return ranges
}

// Matrix assembles the given rows as a column-major design matrix. Columns
// known to enc are label-encoded, the rest come from Value.
func (f *Frame) Matrix(names []string, enc *encoder.Registry, rows []int) [][]float64 {
	cols := make([][]float64, len(names))
	for c, name := range names {
		col := make([]float64, len(rows))
		for j, i := range rows {
			if enc.Has(name) {
				label, _ := f.records[i].Label(name)
				col[j] = enc.Code(name, label)
				continue
			}
			col[j] = f.Value(i, name)
		}
		cols[c] = col
	}
	return cols
}

// RecordMatrix is Matrix for plain records without derived columns.
// Unknown numeric names are NaN.
func RecordMatrix(records []domain.SalesRecord, names []string, enc *encoder.Registry) [][]float64 {
	cols := make([][]float64, len(names))
	for c, name := range names {
		col := make([]float64, len(records))
		for i, r := range records {
			if enc.Has(name) {
				label, _ := r.Label(name)
				col[i] = enc.Code(name, label)
				continue
			}
			if v, ok := r.Feature(name); ok {
				col[i] = v
			} else {
				col[i] = math.NaN()
			}
		}
		cols[c] = col
	}
	return cols
}
