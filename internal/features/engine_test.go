package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/encoder"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(store, sku string, days int, units func(i int) float64) []domain.SalesRecord {
	out := make([]domain.SalesRecord, days)
	for i := range out {
		d := day0.AddDate(0, 0, i)
		out[i] = domain.SalesRecord{
			Date:      d,
			StoreID:   store,
			SKUID:     sku,
			Category:  "snacks",
			Brand:     "acme",
			UnitsSold: units(i),
			ListPrice: 10 + float64(i%3),
			PromoFlag: i % 2,
			Weekday:   domain.WeekdayIndex(d),
		}
		if out[i].Weekday >= 5 {
			out[i].IsWeekend = 1
		}
	}
	return out
}

func rowAt(t *testing.T, f *Frame, store, sku string, date time.Time) int {
	t.Helper()
	for i, r := range f.Records() {
		if r.StoreID == store && r.SKUID == sku && r.Date.Equal(date) {
			return i
		}
	}
	t.Fatalf("row %s/%s %s not found", store, sku, date)
	return -1
}

func TestBuildLagsAndRolling(t *testing.T) {
	recs := series("S1", "A", 40, func(i int) float64 { return float64(i) })
	f := Build(recs)

	lag1, ok := f.Column("lag_1")
	require.True(t, ok)
	lag7, _ := f.Column("lag_7")
	rm7, _ := f.Column("rolling_mean_7")
	rx7, _ := f.Column("rolling_max_7")
	rm30, _ := f.Column("rolling_mean_30")

	assert.True(t, math.IsNaN(lag1[0]))
	assert.Equal(t, 9.0, lag1[10])
	assert.True(t, math.IsNaN(lag7[6]))
	assert.Equal(t, 3.0, lag7[10])

	// window 3..9 excludes the current row
	assert.True(t, math.IsNaN(rm7[6]))
	assert.Equal(t, 6.0, rm7[10])
	assert.Equal(t, 9.0, rx7[10])
	assert.True(t, math.IsNaN(rm30[29]))
	assert.Equal(t, 14.5, rm30[30])

	assert.NotContains(t, f.Derived(), "lag_364")
}

func TestBuildUsesAdjustedDemand(t *testing.T) {
	recs := series("S1", "A", 3, func(int) float64 { return 1 })
	recs[0].StockOut = true
	recs[0].AdjustedDemand = domain.Float(7)

	f := Build(recs)
	lag1, _ := f.Column("lag_1")
	assert.Equal(t, 7.0, lag1[1])
}

func TestBuildSortsAndSeparatesSeries(t *testing.T) {
	a := series("S1", "A", 10, func(i int) float64 { return float64(i) })
	b := series("S1", "B", 10, func(i int) float64 { return 100 + float64(i) })
	mixed := append(append([]domain.SalesRecord{}, b...), a...)
	mixed[0], mixed[5] = mixed[5], mixed[0]

	f := Build(mixed)
	assert.Len(t, f.Groups(), 2)

	first := rowAt(t, f, "S1", "B", day0)
	lag1, _ := f.Column("lag_1")
	assert.True(t, math.IsNaN(lag1[first]), "lag must not cross series")
	assert.Equal(t, 100.0, lag1[first+1])

	// input order untouched
	assert.Equal(t, "B", mixed[1].SKUID)
}

func TestBuildIsLeakageFree(t *testing.T) {
	recs := series("S1", "A", 60, func(i int) float64 { return float64(i % 9) })
	cutoff := day0.AddDate(0, 0, 40)

	base := Build(recs)

	perturbed := make([]domain.SalesRecord, len(recs))
	copy(perturbed, recs)
	for i := range perturbed {
		if !perturbed[i].Date.Before(cutoff) {
			perturbed[i].UnitsSold = 1000 + float64(i)
			perturbed[i].AdjustedDemand = domain.Float(5000)
		}
	}
	changed := Build(perturbed)

	for _, d := range []int{0, 10, 39, 40} {
		date := day0.AddDate(0, 0, d)
		i := rowAt(t, base, "S1", "A", date)
		j := rowAt(t, changed, "S1", "A", date)
		for _, name := range base.Derived() {
			bv, cv := base.Value(i, name), changed.Value(j, name)
			if math.IsNaN(bv) {
				assert.True(t, math.IsNaN(cv), "%s at day %d", name, d)
				continue
			}
			assert.Equal(t, bv, cv, "%s at day %d", name, d)
		}
	}
}

func TestYearLagNeedsLongSeries(t *testing.T) {
	short := series("S1", "A", 370, func(int) float64 { return 1 })
	assert.NotContains(t, Build(short).Derived(), "lag_364")

	long := series("S1", "A", 371, func(i int) float64 { return float64(i) })
	f := Build(long)
	require.Contains(t, f.Derived(), "lag_364")
	lag, _ := f.Column("lag_364")
	assert.True(t, math.IsNaN(lag[363]))
	assert.Equal(t, 0.0, lag[364])
	assert.Equal(t, 6.0, lag[370])
}

func TestInteractions(t *testing.T) {
	recs := series("S1", "A", 20, func(int) float64 { return 4 })
	f := Build(recs)

	pr, _ := f.Column("price_ratio")
	pw, _ := f.Column("promo_weekend")
	mom, _ := f.Column("momentum_7_14")

	mean := 0.0
	for _, r := range f.Records() {
		mean += r.ListPrice
	}
	mean /= float64(f.Len())
	assert.InDelta(t, f.Records()[0].ListPrice/mean, pr[0], 1e-12)

	for i, r := range f.Records() {
		assert.Equal(t, float64(r.PromoFlag*r.IsWeekend), pw[i])
	}
	assert.True(t, math.IsNaN(mom[10]))
	assert.InDelta(t, 4/(4+MomentumEpsilon), mom[15], 1e-12)

	zero := series("S1", "Z", 3, func(int) float64 { return 0 })
	for i := range zero {
		zero[i].ListPrice = 0
	}
	zpr, _ := Build(zero).Column("price_ratio")
	assert.True(t, math.IsNaN(zpr[0]))
}

func TestFilterSlicesConsistently(t *testing.T) {
	recs := series("S1", "A", 30, func(i int) float64 { return float64(i) })
	f := Build(recs)
	cutoff := day0.AddDate(0, 0, 20)

	test := f.Filter(func(r domain.SalesRecord) bool { return !r.Date.Before(cutoff) })
	require.Equal(t, 10, test.Len())
	assert.Equal(t, f.Derived(), test.Derived())

	lag1, _ := test.Column("lag_1")
	assert.Equal(t, 19.0, lag1[0])
	assert.Equal(t, cutoff, test.Records()[0].Date)
}

func TestMatrixEncodesCategoricals(t *testing.T) {
	recs := series("S1", "A", 10, func(i int) float64 { return float64(i) })
	f := Build(recs)
	enc := encoder.FitRegistry([]string{"store_id"}, 1, func(int, string) string { return "S0" })

	cols := f.Matrix([]string{"store_id", "list_price", "lag_1"}, enc, []int{0, 1})
	assert.Equal(t, []float64{-1, -1}, cols[0])
	assert.Equal(t, f.Records()[1].ListPrice, cols[1][1])
	assert.True(t, math.IsNaN(cols[2][0]))

	rc := RecordMatrix(recs[:1], []string{"month", "rain_mm", "nope"}, nil)
	assert.Equal(t, 1.0, rc[0][0])
	assert.Equal(t, 0.0, rc[1][0])
	assert.True(t, math.IsNaN(rc[2][0]))
}

func TestCalendarOf(t *testing.T) {
	sat := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	cal := CalendarOf(sat)

	assert.Equal(t, 5, cal.Weekday)
	assert.True(t, cal.IsWeekend)
	assert.Equal(t, 76, cal.DayOfYear)
	assert.Equal(t, 11, cal.WeekOfYear)
	assert.InDelta(t, 1.0, cal.MonthSin, 1e-12)
	assert.InDelta(t, math.Cos(2*math.Pi*5/7), cal.WeekdayCos, 1e-12)
}
