// Package accuracy implements the error metrics reported for holdout
// evaluation. All functions panic when the slice lengths differ.
package accuracy

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

// WMAPE is sum|y - p| / sum|y|, or 0 when the actuals sum to zero.
func WMAPE(yTrue, yPred []float64) float64 {
	checkLen(yTrue, yPred)

	var absDiff, absTrue float64
	for i := range yTrue {
		absDiff += math.Abs(yTrue[i] - yPred[i])
		absTrue += math.Abs(yTrue[i])
	}
	if absTrue <= 0 {
		return 0
	}
	return absDiff / absTrue
}

// RMSE is the root of the mean squared error.
func RMSE(yTrue, yPred []float64) float64 {
	checkLen(yTrue, yPred)
	if len(yTrue) == 0 {
		return 0
	}

	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)
	return math.Sqrt(floats.Dot(diff, diff) / float64(len(diff)))
}

// MAE is the mean absolute error.
func MAE(yTrue, yPred []float64) float64 {
	checkLen(yTrue, yPred)
	if len(yTrue) == 0 {
		return 0
	}

	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)
	return floats.Norm(diff, 1) / float64(len(diff))
}

// MAPE averages |y - p| / |y| over rows with a non-zero actual.
// It returns 0 when every actual is zero.
func MAPE(yTrue, yPred []float64) float64 {
	checkLen(yTrue, yPred)

	ratios := make([]float64, 0, len(yTrue))
	for i, y := range yTrue {
		if y == 0 {
			continue
		}
		ratios = append(ratios, math.Abs((y-yPred[i])/y))
	}
	if len(ratios) == 0 {
		return 0
	}
	return stat.Mean(ratios, nil)
}

// Forecast scores a demand holdout. RMSE and MAE are rounded to 2 places,
// the percentage errors to 4 (they are fractions).
func Forecast(yTrue, yPred []float64) domain.ForecastMetrics {
	return domain.ForecastMetrics{
		RMSE:    Round(RMSE(yTrue, yPred), 2),
		MAE:     Round(MAE(yTrue, yPred), 2),
		WMAPE:   Round(WMAPE(yTrue, yPred), 4),
		MAPE:    Round(MAPE(yTrue, yPred), 4),
		Samples: len(yTrue),
	}
}

// LeadTime scores a lead-time holdout.
func LeadTime(yTrue, yPred []float64) domain.LeadTimeMetrics {
	return domain.LeadTimeMetrics{
		RMSE:    Round(RMSE(yTrue, yPred), 2),
		MAE:     Round(MAE(yTrue, yPred), 2),
		Samples: len(yTrue),
	}
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	if !domain.Finite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func checkLen(yTrue, yPred []float64) {
	if len(yTrue) != len(yPred) {
		panic("accuracy: slice length mismatch")
	}
}
