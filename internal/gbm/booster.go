// Package gbm is a histogram gradient-boosted tree learner with TreeSHAP
// attribution. Inputs are column-major float64 matrices where NaN marks a
// missing value.
package gbm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Booster is a trained additive tree ensemble. It is immutable after Train.
type Booster struct {
	Params    Params   `json:"params"`
	Features  []string `json:"features"`
	BaseScore float64  `json:"base_score"`
	Trees     []*Tree  `json:"trees"`
}

// Train fits a booster on columns (one slice per feature, all of len(y)).
func Train(ctx context.Context, columns [][]float64, y []float64, names []string, params Params) (*Booster, error) {
	p := params.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if len(columns) != len(names) {
		return nil, fmt.Errorf("got %d columns for %d feature names", len(columns), len(names))
	}
	for i, col := range columns {
		if len(col) != len(y) {
			return nil, fmt.Errorf("column %q has %d rows, want %d", names[i], len(col), len(y))
		}
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("target row %d is not finite", i)
		}
		if p.Objective == Poisson && v < 0 {
			return nil, fmt.Errorf("poisson target row %d is negative", i)
		}
	}

	features := make([]binnedFeature, len(columns))
	var eg errgroup.Group
	eg.SetLimit(p.Workers)
	for f := range columns {
		eg.Go(func() error {
			features[f] = binFeature(columns[f], p.MaxBins)
			return nil
		})
	}
	_ = eg.Wait()

	b := &Booster{
		Params:    p,
		Features:  append([]string(nil), names...),
		BaseScore: p.Objective.baseMargin(y),
		Trees:     make([]*Tree, 0, p.NEstimators),
	}

	n := len(y)
	margin := make([]float64, n)
	for i := range margin {
		margin[i] = b.BaseScore
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	rows := make([]int32, n)
	for i := range rows {
		rows[i] = int32(i)
	}

	g := &grower{params: p, features: features, grad: grad, hess: hess, margin: margin}
	for round := 0; round < p.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.Objective.gradients(y, margin, grad, hess)
		b.Trees = append(b.Trees, g.build(rows))
	}
	return b, nil
}

// NumFeatures is the length every input row must have.
func (b *Booster) NumFeatures() int {
	return len(b.Features)
}

// PredictRaw returns the margin for one row in feature order.
func (b *Booster) PredictRaw(row []float64) float64 {
	sum := b.BaseScore
	for _, t := range b.Trees {
		sum += t.Predict(row)
	}
	return sum
}

// Predict returns the prediction on the target scale.
func (b *Booster) Predict(row []float64) float64 {
	return b.Transform(b.PredictRaw(row))
}

// Transform maps a margin to the target scale.
func (b *Booster) Transform(margin float64) float64 {
	return b.Params.Objective.transform(margin)
}

// PredictColumns returns margins for a column-major matrix.
func (b *Booster) PredictColumns(columns [][]float64) []float64 {
	if len(columns) == 0 {
		return nil
	}
	n := len(columns[0])
	out := make([]float64, n)
	row := make([]float64, len(columns))
	for i := 0; i < n; i++ {
		for f := range columns {
			row[f] = columns[f][i]
		}
		out[i] = b.PredictRaw(row)
	}
	return out
}

// ExpectedValue is the margin predicted with every feature absent.
func (b *Booster) ExpectedValue() float64 {
	sum := b.BaseScore
	for _, t := range b.Trees {
		sum += t.expectation()
	}
	return sum
}

// Explain returns per-feature SHAP values in margin space and the base
// value; their sum equals PredictRaw(row).
func (b *Booster) Explain(row []float64) ([]float64, float64) {
	phi := make([]float64, len(b.Features))
	for _, t := range b.Trees {
		t.shap(row, phi)
	}
	return phi, b.ExpectedValue()
}

// FeatureScore is a feature's total split gain.
type FeatureScore struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// Importance returns features ordered by total gain, descending.
func (b *Booster) Importance() []FeatureScore {
	gains := make([]float64, len(b.Features))
	for _, t := range b.Trees {
		for n := range t.Left {
			if t.Left[n] >= 0 {
				gains[t.Feature[n]] += t.Gain[n]
			}
		}
	}
	scores := make([]FeatureScore, len(b.Features))
	for i, name := range b.Features {
		scores[i] = FeatureScore{Feature: name, Gain: gains[i]}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Gain > scores[j].Gain })
	return scores
}

type boosterJSON Booster

func (b *Booster) UnmarshalJSON(data []byte) error {
	var raw boosterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := raw.Params.Objective.validate(); err != nil {
		return err
	}
	for i, t := range raw.Trees {
		if t == nil {
			return fmt.Errorf("tree %d is empty", i)
		}
		if err := t.validate(len(raw.Features)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	*b = Booster(raw)
	return nil
}
