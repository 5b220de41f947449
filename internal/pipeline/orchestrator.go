package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/accuracy"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/features"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/gbm"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/forecaster"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/imputer"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/leadtime"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/metrics"
)

// evalHorizon is the horizon scored on the holdout.
const evalHorizon = 1

// Orchestrator trains, evaluates and serves one generation of models at a
// time. A new generation replaces the old one only after every phase has
// succeeded.
type Orchestrator struct {
	cfg     Config
	state   atomic.Pointer[State]
	metrics *metrics.Recorder
}

// NewOrchestrator creates a new Orchestrator. rec may be nil.
func NewOrchestrator(cfg Config, rec *metrics.Recorder) *Orchestrator {
	if cfg.HoldoutDays <= 0 {
		cfg.HoldoutDays = DefaultConfig().HoldoutDays
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []int{evalHorizon}
	}
	o := &Orchestrator{cfg: cfg, metrics: rec}
	o.state.Store(&State{})
	return o
}

// Config returns the training configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Snapshot returns the current generation. It is never nil.
func (o *Orchestrator) Snapshot() *State {
	return o.state.Load()
}

func (o *Orchestrator) swap(s *State) {
	o.state.Store(s)
	o.metrics.SetModelReady(s.Ready)
}

// Run trains a new generation from records and swaps it in.
//
// The imputed history is split at maxDate - HoldoutDays. Throwaway models
// trained before the cutoff are scored on the rest, then the production
// models are retrained on everything.
func (o *Orchestrator) Run(ctx context.Context, records []domain.SalesRecord) (*State, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no training records", domain.ErrConfiguration)
	}
	w := newWorker(o.metrics)
	runStart := time.Now()

	var (
		im      *imputer.Imputer
		imputed []domain.SalesRecord
	)
	err := w.run(ctx, PhaseImpute, func(ctx context.Context) error {
		var err error
		im, imputed, err = imputer.TrainAndImpute(ctx, records, o.cfg.Imputer)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		frame  *features.Frame
		cutoff time.Time
	)
	err = w.run(ctx, PhaseFeatures, func(ctx context.Context) error {
		frame = features.Build(imputed)
		cutoff = latestDate(imputed).AddDate(0, 0, -o.cfg.HoldoutDays)
		w.log.Info().
			Str("phase", string(PhaseFeatures)).
			Int("rows", frame.Len()).
			Int("features", len(frame.Derived())).
			Str("cutoff", cutoff.Format(domain.DateLayout)).
			Msg("feature frame built")
		return nil
	})
	if err != nil {
		return nil, err
	}

	evaluation, err := o.evaluate(ctx, w, frame, records, cutoff)
	if err != nil {
		return nil, err
	}

	var (
		fc *forecaster.Forecaster
		lt *leadtime.Predictor
	)
	err = w.parallel(ctx,
		task{PhaseTrainForecast, func(ctx context.Context) error {
			var err error
			fc, err = forecaster.Train(ctx, frame, o.cfg.Horizons, o.cfg.Forecaster)
			return err
		}},
		task{PhaseTrainLeadTime, func(ctx context.Context) error {
			var err error
			lt, err = trainLeadTime(ctx, w, records, o.cfg.LeadTime)
			return err
		}},
	)
	if err != nil {
		return nil, err
	}

	next := &State{
		Imputer:    im,
		Forecaster: fc,
		LeadTime:   lt,
		RawData:    imputed,
		Ready:      true,
		Metrics:    evaluation,
		TrainedAt:  time.Now().UTC(),
	}
	next.Recursive = newRecursive(next)
	o.swap(next)

	w.log.Info().
		Int("rows", len(records)).
		Int("series", next.Recursive.SeriesCount()).
		Bool("lead_time", lt.Trained()).
		Dur("duration", time.Since(runStart)).
		Msg("training run completed")
	return next, nil
}

// evaluate scores throwaway models on the holdout. The forecaster trains on
// the imputed frame before the cutoff, the lead-time model on raw records.
func (o *Orchestrator) evaluate(ctx context.Context, w *worker, frame *features.Frame, records []domain.SalesRecord, cutoff time.Time) (domain.EvaluationMetrics, error) {
	var out domain.EvaluationMetrics

	before := func(r domain.SalesRecord) bool { return r.Date.Before(cutoff) }
	train := frame.Filter(before)
	test := frame.Filter(func(r domain.SalesRecord) bool { return !before(r) })
	if test.Len() == 0 || train.Len() == 0 {
		w.log.Warn().Int("train_rows", train.Len()).Int("test_rows", test.Len()).Msg("holdout evaluation skipped")
		return out, nil
	}

	var rawTrain, rawTest []domain.SalesRecord
	for _, r := range records {
		if before(r) {
			rawTrain = append(rawTrain, r)
		} else {
			rawTest = append(rawTest, r)
		}
	}

	err := w.parallel(ctx,
		task{PhaseEvalForecaster, func(ctx context.Context) error {
			fc, err := forecaster.Train(ctx, train, []int{evalHorizon}, o.cfg.Forecaster)
			if errors.Is(err, domain.ErrConfiguration) {
				w.log.Warn().Err(err).Msg("forecaster holdout skipped")
				return nil
			}
			if err != nil {
				return err
			}
			yTrue, yPred, err := fc.Evaluate(test, evalHorizon)
			if err != nil || len(yTrue) == 0 {
				return err
			}
			m := accuracy.Forecast(yTrue, yPred)
			out.Forecast = &m
			w.log.Info().
				Float64("rmse", m.RMSE).Float64("mae", m.MAE).
				Float64("wmape", m.WMAPE).Float64("mape", m.MAPE).
				Int("samples", m.Samples).
				Msg("forecaster holdout scored")
			return nil
		}},
		task{PhaseEvalLeadTime, func(ctx context.Context) error {
			lt, err := trainLeadTime(ctx, w, rawTrain, o.cfg.LeadTime)
			if err != nil || !lt.Trained() {
				return err
			}
			yTrue, yPred, err := lt.Evaluate(rawTest)
			if err != nil || len(yTrue) == 0 {
				return err
			}
			m := accuracy.LeadTime(yTrue, yPred)
			out.LeadTime = &m
			w.log.Info().
				Float64("rmse", m.RMSE).Float64("mae", m.MAE).
				Int("samples", m.Samples).
				Msg("lead time holdout scored")
			return nil
		}},
	)
	return out, err
}

// trainLeadTime returns a nil predictor when no record carries a lead time.
func trainLeadTime(ctx context.Context, w *worker, records []domain.SalesRecord, params gbm.Params) (*leadtime.Predictor, error) {
	lt, err := leadtime.Train(ctx, records, params)
	if errors.Is(err, domain.ErrConfiguration) {
		w.log.Warn().Err(err).Msg("lead time model skipped")
		return nil, nil
	}
	return lt, err
}

// newRecursive wires the recursive forecaster over s. A missing lead-time
// model is passed as a nil interface.
func newRecursive(s *State) *forecaster.Recursive {
	if !s.Forecaster.Trained() || len(s.RawData) == 0 {
		return nil
	}
	var lt forecaster.LeadTimePredictor
	if s.LeadTime.Trained() {
		lt = s.LeadTime
	}
	return forecaster.NewRecursive(s.Forecaster, lt, s.RawData)
}

func latestDate(records []domain.SalesRecord) time.Time {
	var latest time.Time
	for _, r := range records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest
}

func (o *Orchestrator) ready() (*State, error) {
	s := o.Snapshot()
	if !s.Ready || !s.Forecaster.Trained() {
		return nil, fmt.Errorf("%w: no trained models loaded", domain.ErrNotReady)
	}
	return s, nil
}

// Forecast predicts demand for one context and horizon.
func (o *Orchestrator) Forecast(c domain.DemandContext, horizon int) (domain.Prediction, error) {
	s, err := o.ready()
	if err != nil {
		return domain.Prediction{}, err
	}
	return s.Forecaster.Predict(c, horizon)
}

// Forecast7Day runs the recursive forecaster for one series.
func (o *Orchestrator) Forecast7Day(start time.Time, storeID, skuID, category, brand string) ([]domain.DailyForecast, error) {
	s, err := o.ready()
	if err != nil {
		return nil, err
	}
	if s.Recursive == nil {
		return nil, fmt.Errorf("%w: recursive forecaster has no history", domain.ErrNotReady)
	}
	return s.Recursive.PredictNext7Days(start, storeID, skuID, category, brand)
}

// ForecastLeadTime predicts supplier lead time.
func (o *Orchestrator) ForecastLeadTime(c domain.LeadTimeContext) (domain.Prediction, error) {
	s, err := o.ready()
	if err != nil {
		return domain.Prediction{}, err
	}
	return s.LeadTime.Predict(c)
}
