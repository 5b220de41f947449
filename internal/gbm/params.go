package gbm

import (
	"fmt"
	"runtime"
)

// Params are the booster hyper-parameters.
type Params struct {
	Objective      Objective `json:"objective"`
	NEstimators    int       `json:"n_estimators"`
	MaxDepth       int       `json:"max_depth"`
	LearningRate   float64   `json:"learning_rate"`
	Lambda         float64   `json:"lambda"`
	Gamma          float64   `json:"gamma"`
	MinChildWeight float64   `json:"min_child_weight"`
	MaxBins        int       `json:"max_bins"`
	// MaxDeltaStep clips leaf weights before shrinkage; 0 disables it.
	// Poisson sets it to 0.7 when left unset.
	MaxDeltaStep float64 `json:"max_delta_step"`

	// Workers bounds histogram parallelism. Not persisted.
	Workers int `json:"-"`
}

// DefaultParams mirrors the usual boosting defaults.
func DefaultParams() Params {
	return Params{
		Objective:      SquaredError,
		NEstimators:    100,
		MaxDepth:       6,
		LearningRate:   0.3,
		Lambda:         1,
		Gamma:          0,
		MinChildWeight: 1,
		MaxBins:        256,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Objective == "" {
		p.Objective = d.Objective
	}
	if p.MaxBins <= 1 || p.MaxBins > 1<<16-2 {
		p.MaxBins = d.MaxBins
	}
	if p.MaxDeltaStep == 0 {
		p.MaxDeltaStep = p.Objective.defaultMaxDeltaStep()
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	return p
}

func (p Params) validate() error {
	if err := p.Objective.validate(); err != nil {
		return err
	}
	switch {
	case p.NEstimators <= 0:
		return fmt.Errorf("n_estimators must be positive, got %d", p.NEstimators)
	case p.MaxDepth <= 0:
		return fmt.Errorf("max_depth must be positive, got %d", p.MaxDepth)
	case p.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive, got %g", p.LearningRate)
	case p.Lambda < 0 || p.Gamma < 0 || p.MinChildWeight < 0:
		return fmt.Errorf("lambda, gamma and min_child_weight must be non-negative")
	}
	return nil
}
