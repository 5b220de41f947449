// Package forecaster trains one direct demand model per horizon on the
// feature frame and composes the one-day model into a 7-day recursive
// forecast.
package forecaster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/encoder"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/features"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/gbm"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/logger"
)

// BaseFeatures precede the derived frame columns in every model's input.
var BaseFeatures = []string{
	domain.FeatureMonth, domain.FeatureWeekday, domain.FeatureDay,
	domain.FeatureIsWeekend, domain.FeatureIsHoliday, domain.FeatureTemperature,
	domain.FeatureListPrice, domain.FeatureDiscountPct, domain.FeaturePromoFlag,
	domain.FeatureStoreID, domain.FeatureSKUID, domain.FeatureCategory, domain.FeatureBrand,
	domain.FeatureStockOpening,
}

var categoricalColumns = []string{
	domain.FeatureStoreID, domain.FeatureSKUID, domain.FeatureCategory, domain.FeatureBrand,
}

// topFeatureCount is how many importances are logged per horizon.
const topFeatureCount = 5

// DefaultParams is the squared-error booster used on log demand.
func DefaultParams() gbm.Params {
	p := gbm.DefaultParams()
	p.Objective = gbm.SquaredError
	p.NEstimators = 500
	p.MaxDepth = 8
	p.LearningRate = 0.05
	return p
}

// HorizonModel is the booster for one horizon and its input order.
type HorizonModel struct {
	Booster  *gbm.Booster `json:"booster"`
	Features []string     `json:"features"`
}

// Forecaster holds one model per trained horizon and the encoders shared by
// all of them. A trained Forecaster is never mutated; retraining builds a new one.
type Forecaster struct {
	Horizons []int                 `json:"horizons"`
	Models   map[int]*HorizonModel `json:"models"`
	Encoders *encoder.Registry     `json:"encoders"`
}

// Trained reports whether at least one horizon has a model.
func (f *Forecaster) Trained() bool {
	return f != nil && len(f.Models) > 0
}

// HasHorizon reports whether horizon h was trained.
func (f *Forecaster) HasHorizon(h int) bool {
	if f == nil {
		return false
	}
	_, ok := f.Models[h]
	return ok
}

// Targets returns log1p of demand h rows ahead within each series, NaN
// where the series ends.
func Targets(frame *features.Frame, h int) []float64 {
	recs := frame.Records()
	out := make([]float64, len(recs))
	for i := range out {
		out[i] = math.NaN()
	}
	for _, g := range frame.Groups() {
		for i := g[0]; i+h < g[1]; i++ {
			out[i] = math.Log1p(recs[i+h].DemandValue())
		}
	}
	return out
}

func labelledRows(targets []float64) []int {
	rows := make([]int, 0, len(targets))
	for i, v := range targets {
		if !math.IsNaN(v) {
			rows = append(rows, i)
		}
	}
	return rows
}

// Train fits one booster per horizon. Encoders are fit once, on the rows
// labelled for the first horizon.
func Train(ctx context.Context, frame *features.Frame, horizons []int, params gbm.Params) (*Forecaster, error) {
	log := logger.Stage("forecasting")
	if len(horizons) == 0 {
		return nil, fmt.Errorf("%w: no horizons requested", domain.ErrConfiguration)
	}

	names := append(append([]string(nil), BaseFeatures...), frame.Derived()...)
	fc := &Forecaster{
		Horizons: append([]int(nil), horizons...),
		Models:   make(map[int]*HorizonModel, len(horizons)),
	}

	for i, h := range horizons {
		if h <= 0 {
			return nil, fmt.Errorf("%w: horizon %d must be positive", domain.ErrConfiguration, h)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()

		targets := Targets(frame, h)
		rows := labelledRows(targets)
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: no rows with a %d-day target", domain.ErrConfiguration, h)
		}

		if i == 0 {
			recs := frame.Records()
			fc.Encoders = encoder.FitRegistry(categoricalColumns, len(rows), func(j int, col string) string {
				label, _ := recs[rows[j]].Label(col)
				return label
			})
		}

		y := make([]float64, len(rows))
		for j, r := range rows {
			y[j] = targets[r]
		}
		booster, err := gbm.Train(ctx, frame.Matrix(names, fc.Encoders, rows), y, names, params)
		if err != nil {
			return nil, fmt.Errorf("train horizon %d: %w", h, err)
		}
		fc.Models[h] = &HorizonModel{Booster: booster, Features: names}

		top := booster.Importance()
		if len(top) > topFeatureCount {
			top = top[:topFeatureCount]
		}
		topNames := make([]string, len(top))
		for j, s := range top {
			topNames[j] = s.Feature
		}
		log.Info().
			Str("phase", "model_trained").
			Int("horizon", h).
			Int("rows", len(rows)).
			Str("top_features", strings.Join(topNames, ",")).
			Dur("duration", time.Since(start)).
			Msg("horizon model trained")
	}
	return fc, nil
}

func (f *Forecaster) model(h int) (*HorizonModel, error) {
	if !f.Trained() {
		return nil, fmt.Errorf("%w: forecaster not trained", domain.ErrNotReady)
	}
	m, ok := f.Models[h]
	if !ok {
		return nil, fmt.Errorf("%w: horizon %d not trained", domain.ErrValidation, h)
	}
	return m, nil
}

// vector builds the model input from a context: encoded labels, set numeric
// fields, and 0 for anything missing.
func (f *Forecaster) vector(c domain.DemandContext, names []string) []float64 {
	row := make([]float64, len(names))
	for i, name := range names {
		if f.Encoders.Has(name) {
			label, _ := c.Label(name)
			if label == "" && !f.Encoders.Encoder(name).Known(label) {
				continue
			}
			row[i] = f.Encoders.Code(name, label)
			continue
		}
		if v, ok := c.Value(name); ok {
			row[i] = v
		}
	}
	return row
}

// Predict returns max(0, expm1(raw)) for horizon h with its attribution in
// log space.
func (f *Forecaster) Predict(c domain.DemandContext, h int) (domain.Prediction, error) {
	m, err := f.model(h)
	if err != nil {
		return domain.Prediction{}, err
	}

	row := f.vector(c, m.Features)
	raw := m.Booster.PredictRaw(row)
	phi, base := m.Booster.Explain(row)

	attribution := make(map[string]float64, len(phi))
	for i, name := range m.Features {
		attribution[name] = phi[i]
	}
	return domain.Prediction{
		Value:       math.Max(0, math.Expm1(raw)),
		Attribution: attribution,
		BaseValue:   base,
		RawValue:    raw,
	}, nil
}

// Evaluate scores horizon h on a frame with the frozen encoders. Both
// slices are on the demand scale.
func (f *Forecaster) Evaluate(frame *features.Frame, h int) ([]float64, []float64, error) {
	m, err := f.model(h)
	if err != nil {
		return nil, nil, err
	}
	targets := Targets(frame, h)
	rows := labelledRows(targets)
	if len(rows) == 0 {
		return nil, nil, nil
	}

	raw := m.Booster.PredictColumns(frame.Matrix(m.Features, f.Encoders, rows))
	yTrue := make([]float64, len(rows))
	yPred := make([]float64, len(rows))
	for j, r := range rows {
		yTrue[j] = math.Expm1(targets[r])
		yPred[j] = math.Max(0, math.Expm1(raw[j]))
	}
	return yTrue, yPred, nil
}

// TrainedHorizons returns the trained horizons in ascending order.
func (f *Forecaster) TrainedHorizons() []int {
	if f == nil {
		return nil
	}
	hs := make([]int, 0, len(f.Models))
	for h := range f.Models {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	return hs
}
