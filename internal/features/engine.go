// Package features derives the leakage-safe time-series inputs of the demand
// forecaster. Every value derived for a date uses only earlier rows of the
// same series.
package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

// YearLagMinLength is the series length above which lag_364 is derived.
const YearLagMinLength = 370

// MomentumEpsilon keeps the momentum ratio finite on zero demand.
const MomentumEpsilon = 1e-3

// Build sorts the records and derives calendar, lag, rolling and interaction
// columns. The input slice is not modified.
func Build(records []domain.SalesRecord) *Frame {
	sorted := make([]domain.SalesRecord, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	f := &Frame{records: sorted, columns: make(map[string][]float64)}
	n := len(sorted)
	ranges := seriesRanges(sorted)

	demand := make([]float64, n)
	for i, r := range sorted {
		demand[i] = r.DemandValue()
	}

	dayOfYear := make([]float64, n)
	weekOfYear := make([]float64, n)
	monthSin := make([]float64, n)
	weekdayCos := make([]float64, n)
	for i, r := range sorted {
		cal := CalendarOf(r.Date)
		dayOfYear[i] = float64(cal.DayOfYear)
		weekOfYear[i] = float64(cal.WeekOfYear)
		monthSin[i] = cal.MonthSin
		weekdayCos[i] = cal.WeekdayCos
	}
	f.appendColumn(domain.FeatureDayOfYear, dayOfYear)
	f.appendColumn(domain.FeatureWeekOfYear, weekOfYear)
	f.appendColumn(domain.FeatureMonthSin, monthSin)
	f.appendColumn(domain.FeatureWeekdayCos, weekdayCos)

	lags := append([]int(nil), domain.LagWindows...)
	for _, g := range ranges {
		if g[1]-g[0] > YearLagMinLength {
			lags = append(lags, domain.YearLag)
			break
		}
	}
	for _, k := range lags {
		col := nanColumn(n)
		for _, g := range ranges {
			for i := g[0] + k; i < g[1]; i++ {
				col[i] = demand[i-k]
			}
		}
		f.appendColumn(domain.LagFeature(k), col)
	}

	for _, w := range domain.RollingWindows {
		means := nanColumn(n)
		maxes := nanColumn(n)
		for _, g := range ranges {
			for i := g[0] + w; i < g[1]; i++ {
				window := demand[i-w : i]
				means[i] = stat.Mean(window, nil)
				maxes[i] = floats.Max(window)
			}
		}
		f.appendColumn(domain.RollingMeanFeature(w), means)
		f.appendColumn(domain.RollingMaxFeature(w), maxes)
	}

	promoWeekend := make([]float64, n)
	priceRatio := make([]float64, n)
	for _, g := range ranges {
		prices := make([]float64, 0, g[1]-g[0])
		for i := g[0]; i < g[1]; i++ {
			prices = append(prices, sorted[i].ListPrice)
		}
		mean := stat.Mean(prices, nil)
		for i := g[0]; i < g[1]; i++ {
			r := sorted[i]
			promoWeekend[i] = float64(r.PromoFlag * r.IsWeekend)
			priceRatio[i] = PriceRatio(r.ListPrice, mean)
		}
	}
	f.appendColumn(domain.FeaturePromoWeekend, promoWeekend)
	f.appendColumn(domain.FeaturePriceRatio, priceRatio)

	rm7, _ := f.Column(domain.RollingMeanFeature(7))
	rm14, _ := f.Column(domain.RollingMeanFeature(14))
	momentum := make([]float64, n)
	for i := range momentum {
		momentum[i] = Momentum(rm7[i], rm14[i])
	}
	f.appendColumn(domain.FeatureMomentum, momentum)

	return f
}

// SortRecords orders records by store, sku and date in place.
func SortRecords(records []domain.SalesRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if a.SKUID != b.SKUID {
			return a.SKUID < b.SKUID
		}
		return a.Date.Before(b.Date)
	})
}

// PriceRatio is price over the series mean, NaN when the mean is zero.
func PriceRatio(price, meanPrice float64) float64 {
	if meanPrice == 0 {
		return math.NaN()
	}
	return price / meanPrice
}

// Momentum is the short over long rolling mean ratio.
func Momentum(mean7, mean14 float64) float64 {
	return mean7 / (mean14 + MomentumEpsilon)
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}
