// Package imputer estimates true demand on stocked-out days, where observed
// sales are censored by available stock.
package imputer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/encoder"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/features"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/gbm"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/logger"
)

// Features is the imputer's input vector, in order.
var Features = []string{
	domain.FeatureYear, domain.FeatureMonth, domain.FeatureDay, domain.FeatureWeekday,
	domain.FeatureIsWeekend, domain.FeatureIsHoliday, domain.FeatureTemperature,
	domain.FeatureListPrice, domain.FeatureDiscountPct, domain.FeaturePromoFlag,
	domain.FeatureStoreID, domain.FeatureSKUID, domain.FeatureCategory, domain.FeatureBrand,
	domain.FeatureStockOpening,
}

var categoricalColumns = []string{
	domain.FeatureStoreID, domain.FeatureSKUID, domain.FeatureCategory, domain.FeatureBrand,
}

// DefaultParams is a Poisson booster sized for daily count data.
func DefaultParams() gbm.Params {
	p := gbm.DefaultParams()
	p.Objective = gbm.Poisson
	p.NEstimators = 100
	p.MaxDepth = 6
	p.LearningRate = 0.1
	return p
}

// Imputer is a trained demand model fit on uncensored days.
type Imputer struct {
	Booster  *gbm.Booster      `json:"booster"`
	Encoders *encoder.Registry `json:"encoders"`
}

// Trained reports whether the imputer holds a model.
func (im *Imputer) Trained() bool {
	return im != nil && im.Booster != nil
}

// TrainAndImpute fits the imputer on non-stocked-out rows and returns a copy
// of records with AdjustedDemand set on every row. Censored rows get
// max(predicted, units_sold); the rest keep units_sold.
func TrainAndImpute(ctx context.Context, records []domain.SalesRecord, params gbm.Params) (*Imputer, []domain.SalesRecord, error) {
	log := logger.Stage("imputation")
	start := time.Now()

	train := make([]domain.SalesRecord, 0, len(records))
	censored := 0
	for _, r := range records {
		if r.StockOut {
			censored++
			continue
		}
		train = append(train, r)
	}
	if len(train) == 0 {
		return nil, nil, fmt.Errorf("%w: no uncensored rows to train the imputer", domain.ErrConfiguration)
	}

	enc := encoder.FitRegistry(categoricalColumns, len(train), func(i int, col string) string {
		label, _ := train[i].Label(col)
		return label
	})
	y := make([]float64, len(train))
	for i, r := range train {
		y[i] = r.UnitsSold
	}

	booster, err := gbm.Train(ctx, features.RecordMatrix(train, Features, enc), y, Features, params)
	if err != nil {
		return nil, nil, fmt.Errorf("train imputer: %w", err)
	}
	im := &Imputer{Booster: booster, Encoders: enc}
	log.Info().Str("phase", "model_trained").Int("rows", len(train)).Msg("imputer trained")

	out := make([]domain.SalesRecord, len(records))
	copy(out, records)

	var pending []int
	for i := range out {
		out[i].AdjustedDemand = domain.Float(out[i].UnitsSold)
		if out[i].StockOut {
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 {
		log.Info().Str("phase", "censored_rows_found").Int("rows", censored).Msg("imputing censored demand")
		subset := make([]domain.SalesRecord, len(pending))
		for j, i := range pending {
			subset[j] = out[i]
		}
		preds := im.Predict(subset)
		for j, i := range pending {
			out[i].AdjustedDemand = domain.Float(math.Max(preds[j], out[i].UnitsSold))
		}
	}

	log.Info().
		Str("phase", "complete").
		Int("censored", censored).
		Dur("duration", time.Since(start)).
		Msg("demand imputation complete")
	return im, out, nil
}

// Predict returns expected demand for each record.
func (im *Imputer) Predict(records []domain.SalesRecord) []float64 {
	if !im.Trained() || len(records) == 0 {
		return make([]float64, len(records))
	}
	cols := features.RecordMatrix(records, Features, im.Encoders)
	raw := im.Booster.PredictColumns(cols)
	out := make([]float64, len(raw))
	for i, m := range raw {
		out[i] = im.Booster.Transform(m)
	}
	return out
}
