// Package leadtime predicts supplier lead time in days from store, catalog
// and calendar attributes.
package leadtime

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

// Features is the lead-time model's input vector, in order.
var Features = []string{
	domain.FeatureYear, domain.FeatureMonth, domain.FeatureDay, domain.FeatureWeekOfYear,
	domain.FeatureWeekday, domain.FeatureIsWeekend, domain.FeatureIsHoliday,
	domain.FeatureTemperature, domain.FeatureRainMM, domain.FeatureStoreID,
	domain.FeatureCountry, domain.FeatureCity, domain.FeatureChannel,
	domain.FeatureLatitude, domain.FeatureLongitude, domain.FeatureSKUID,
	domain.FeatureSKUName, domain.FeatureCategory, domain.FeatureSubcategory,
	domain.FeatureBrand, domain.FeatureSupplierID,
}

var categoricalColumns = []string{
	domain.FeatureStoreID, domain.FeatureCountry, domain.FeatureCity, domain.FeatureChannel,
	domain.FeatureSKUID, domain.FeatureSKUName, domain.FeatureCategory,
	domain.FeatureSubcategory, domain.FeatureBrand, domain.FeatureSupplierID,
}

// DefaultParams is a squared-error booster on raw lead-time days.
func DefaultParams() gbm.Params {
	p := gbm.DefaultParams()
	p.Objective = gbm.SquaredError
	p.NEstimators = 100
	p.MaxDepth = 6
	p.LearningRate = 0.1
	return p
}

// Predictor is a trained lead-time model with its own encoders.
type Predictor struct {
	Booster  *gbm.Booster      `json:"booster"`
	Encoders *encoder.Registry `json:"encoders"`
}

// Trained reports whether the predictor holds a model.
func (p *Predictor) Trained() bool {
	return p != nil && p.Booster != nil
}

func labelled(records []domain.SalesRecord) ([]domain.SalesRecord, []float64) {
	rows := make([]domain.SalesRecord, 0, len(records))
	y := make([]float64, 0, len(records))
	for _, r := range records {
		if r.LeadTimeDays == nil || !domain.Finite(*r.LeadTimeDays) {
			continue
		}
		rows = append(rows, r)
		y = append(y, *r.LeadTimeDays)
	}
	return rows, y
}

// Train fits the model on records that carry a lead time.
func Train(ctx context.Context, records []domain.SalesRecord, params gbm.Params) (*Predictor, error) {
	log := logger.Stage("lead_time")
	start := time.Now()

	rows, y := labelled(records)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows with lead_time_days", domain.ErrConfiguration)
	}

	enc := encoder.FitRegistry(categoricalColumns, len(rows), func(i int, col string) string {
		label, _ := rows[i].Label(col)
		return label
	})
	booster, err := gbm.Train(ctx, features.RecordMatrix(rows, Features, enc), y, Features, params)
	if err != nil {
		return nil, fmt.Errorf("train lead time model: %w", err)
	}

	log.Info().
		Str("phase", "model_trained").
		Int("rows", len(rows)).
		Dur("duration", time.Since(start)).
		Msg("lead time model trained")
	return &Predictor{Booster: booster, Encoders: enc}, nil
}

// Predict returns lead time floored at zero, with attribution in days.
func (p *Predictor) Predict(c domain.LeadTimeContext) (domain.Prediction, error) {
	if !p.Trained() {
		return domain.Prediction{}, fmt.Errorf("%w: lead time model not trained", domain.ErrNotReady)
	}

	row := make([]float64, len(Features))
	for i, name := range Features {
		if p.Encoders.Has(name) {
			label, _ := c.Label(name)
			row[i] = p.Encoders.Code(name, label)
			continue
		}
		if v, ok := c.Value(name); ok {
			row[i] = v
		}
	}

	raw := p.Booster.PredictRaw(row)
	phi, base := p.Booster.Explain(row)
	attribution := make(map[string]float64, len(phi))
	for i, name := range Features {
		attribution[name] = phi[i]
	}
	return domain.Prediction{
		Value:       math.Max(0, raw),
		Attribution: attribution,
		BaseValue:   base,
		RawValue:    raw,
	}, nil
}

// Evaluate predicts every labelled record with the frozen encoders.
func (p *Predictor) Evaluate(records []domain.SalesRecord) ([]float64, []float64, error) {
	if !p.Trained() {
		return nil, nil, fmt.Errorf("%w: lead time model not trained", domain.ErrNotReady)
	}
	rows, yTrue := labelled(records)
	if len(rows) == 0 {
		return nil, nil, nil
	}
	raw := p.Booster.PredictColumns(features.RecordMatrix(rows, Features, p.Encoders))
	yPred := make([]float64, len(raw))
	for i, v := range raw {
		yPred[i] = math.Max(0, v)
	}
	return yTrue, yPred, nil
}
