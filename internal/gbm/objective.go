package gbm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Objective names a loss and its link function.
type Objective string

const (
	SquaredError Objective = "reg:squarederror"
	Poisson      Objective = "count:poisson"
)

// poissonMaxDeltaStep stabilises Newton steps on count data.
const poissonMaxDeltaStep = 0.7

// minPoissonMean keeps the log link finite on all-zero targets.
const minPoissonMean = 1e-6

func (o Objective) validate() error {
	switch o {
	case SquaredError, Poisson:
		return nil
	}
	return fmt.Errorf("unsupported objective %q", o)
}

// baseMargin is the constant initial prediction in margin space.
func (o Objective) baseMargin(y []float64) float64 {
	mean := stat.Mean(y, nil)
	if o == Poisson {
		return math.Log(math.Max(mean, minPoissonMean))
	}
	return mean
}

// gradients fills first and second order derivatives of the loss at margin.
func (o Objective) gradients(y, margin, grad, hess []float64) {
	switch o {
	case Poisson:
		for i := range y {
			p := math.Exp(margin[i])
			grad[i] = p - y[i]
			hess[i] = math.Exp(margin[i] + poissonMaxDeltaStep)
		}
	default:
		for i := range y {
			grad[i] = margin[i] - y[i]
			hess[i] = 1
		}
	}
}

// transform maps a margin to the prediction scale.
func (o Objective) transform(margin float64) float64 {
	if o == Poisson {
		return math.Exp(margin)
	}
	return margin
}

func (o Objective) defaultMaxDeltaStep() float64 {
	if o == Poisson {
		return poissonMaxDeltaStep
	}
	return 0
}
