package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/cache"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/dataset"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/forecaster"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/storage"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/metrics"
)

// SupportedHorizons are the horizons accepted by single-horizon requests.
var SupportedHorizons = []int{1, 7, 14}

// Source loads training records for a source reference.
type Source interface {
	Load(ctx context.Context, source string) ([]domain.SalesRecord, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, source string) ([]domain.SalesRecord, error)

// Load calls f.
func (f SourceFunc) Load(ctx context.Context, source string) ([]domain.SalesRecord, error) {
	return f(ctx, source)
}

// Options configures a ForecastService. Zero values disable the optional
// integrations.
type Options struct {
	// ModelDir receives the artifacts of every successful run.
	ModelDir string
	// DataPath is trained on when Train gets an empty source.
	DataPath string
	// Storage mirrors artifacts after training and restores them at
	// startup when ModelDir is empty.
	Storage        storage.ObjectStorage
	ArtifactPrefix string
	Runs           pipeline.RunRepository
	Metrics        *metrics.Recorder
}

// ForecastService is the application boundary over the pipeline.
type ForecastService struct {
	pipeline *pipeline.Orchestrator
	loader   Source
	cache    cache.PredictionCache
	runs     pipeline.RunRepository
	metrics  *metrics.Recorder
	opts     Options
	validate *validator.Validate

	trainMu sync.Mutex
	group   singleflight.Group
}

// NewForecastService creates a new ForecastService. A nil cache disables
// caching.
func NewForecastService(p *pipeline.Orchestrator, loader Source, predictionCache cache.PredictionCache, opts Options) *ForecastService {
	if predictionCache == nil {
		predictionCache = cache.NewNoopCache()
	}
	runs := opts.Runs
	if runs == nil {
		runs = pipeline.NewNoopRepository()
	}
	return &ForecastService{
		pipeline: p,
		loader:   loader,
		cache:    predictionCache,
		runs:     runs,
		metrics:  opts.Metrics,
		opts:     opts,
		validate: validator.New(),
	}
}

// Train loads source, runs the pipeline and persists the new generation.
// Only one run may be active; a concurrent call gets ErrTrainingInProgress.
func (s *ForecastService) Train(ctx context.Context, source string) (*domain.TrainResult, error) {
	if !s.trainMu.TryLock() {
		return nil, domain.ErrTrainingInProgress
	}
	defer s.trainMu.Unlock()

	if strings.TrimSpace(source) == "" {
		source = s.opts.DataPath
	}
	run := &pipeline.TrainingRun{
		ID:        uuid.NewString(),
		Source:    dataset.Redact(source),
		Status:    domain.RunStatusProcessing,
		ModelDir:  s.opts.ModelDir,
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("forecast: failed to record training run")
	}
	logger := log.With().Str("run_id", run.ID).Str("source", run.Source).Logger()
	logger.Info().Msg("training run started")

	records, err := s.loader.Load(ctx, source)
	if err != nil {
		return nil, s.failRun(ctx, run, err)
	}
	run.Rows = len(records)

	state, err := s.pipeline.Run(ctx, records)
	if err != nil {
		return nil, s.failRun(ctx, run, fmt.Errorf("training failed: %w", err))
	}
	s.invalidate(ctx)

	if s.opts.ModelDir != "" {
		if err := s.pipeline.Save(s.opts.ModelDir); err != nil {
			return nil, s.failRun(ctx, run, fmt.Errorf("save models: %w", err))
		}
		s.mirror(ctx, logger)
	}

	completed := time.Now().UTC()
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &completed
	if b, err := json.Marshal(state.Metrics); err == nil {
		run.Metrics = types.JSONText(b)
	}
	if err := s.runs.UpdateRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("forecast: failed to update training run")
	}
	s.metrics.RecordTrainingRun(string(run.Status))

	logger.Info().Int("rows", run.Rows).Dur("duration", completed.Sub(run.StartedAt)).Msg("training run completed")
	return &domain.TrainResult{
		RunID:     run.ID,
		Status:    run.Status,
		Metrics:   state.Metrics,
		ModelDir:  s.opts.ModelDir,
		Rows:      run.Rows,
		TrainedAt: state.TrainedAt,
	}, nil
}

func (s *ForecastService) failRun(ctx context.Context, run *pipeline.TrainingRun, cause error) error {
	completed := time.Now().UTC()
	run.Status = domain.RunStatusFailed
	run.CompletedAt = &completed
	run.ErrorMessage = cause.Error()
	if err := s.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("forecast: failed to update training run")
	}
	s.metrics.RecordTrainingRun(string(run.Status))
	log.Error().Err(cause).Str("run_id", run.ID).Msg("training run failed")
	return cause
}

func (s *ForecastService) mirror(ctx context.Context, logger zerolog.Logger) {
	if s.opts.Storage == nil {
		return
	}
	n, err := storage.MirrorDir(ctx, s.opts.Storage, s.opts.ModelDir, s.opts.ArtifactPrefix, pipeline.ArtifactFiles)
	if err != nil {
		logger.Warn().Err(err).Msg("forecast: artifact mirror failed")
		return
	}
	logger.Info().Int("artifacts", n).Str("prefix", s.opts.ArtifactPrefix).Msg("artifacts mirrored")
}

func (s *ForecastService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("forecast: cache invalidation failed")
	}
}

func (s *ForecastService) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// Predict7Day returns the recursive forecast for one series, served from
// the cache when possible.
func (s *ForecastService) Predict7Day(ctx context.Context, req domain.ForecastRequest) (*domain.Forecast7Day, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	start, err := dataset.ParseDate(req.StartDate)
	if err != nil {
		return nil, err
	}

	if cached, ok, err := s.cache.Get(ctx, req); err == nil && ok {
		s.metrics.RecordCacheLookup(true)
		s.metrics.RecordPrediction("7day", "ok")
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("forecast: cache get failed")
	}
	s.metrics.RecordCacheLookup(false)

	v, err, _ := s.group.Do(cache.Key(req), func() (any, error) {
		generation := s.pipeline.Snapshot()
		days, err := s.pipeline.Forecast7Day(start, req.StoreID, req.SKUID, req.Category, req.Brand)
		if err != nil {
			return nil, err
		}
		result := &domain.Forecast7Day{
			Request: req,
			Period: domain.ForecastPeriod{
				StartDate: start.Format(domain.DateLayout),
				EndDate:   start.AddDate(0, 0, forecaster.ForecastDays-1).Format(domain.DateLayout),
				TotalDays: forecaster.ForecastDays,
			},
			Days: days,
		}
		// a run that swapped mid-flight has already invalidated the cache
		if s.pipeline.Snapshot() == generation {
			if err := s.cache.Set(ctx, req, result); err != nil {
				log.Warn().Err(err).Msg("forecast: cache set failed")
			}
		}
		return result, nil
	})
	if err != nil {
		s.metrics.RecordPrediction("7day", outcome(err))
		return nil, err
	}
	s.metrics.RecordPrediction("7day", "ok")
	return v.(*domain.Forecast7Day), nil
}

// PredictSingleHorizon predicts demand for one context at horizon.
func (s *ForecastService) PredictSingleHorizon(ctx context.Context, c domain.DemandContext, horizon int) (domain.Prediction, error) {
	if err := s.validateStruct(c); err != nil {
		return domain.Prediction{}, err
	}
	if !slices.Contains(SupportedHorizons, horizon) {
		return domain.Prediction{}, fmt.Errorf("%w: horizon must be one of %v", domain.ErrValidation, SupportedHorizons)
	}
	p, err := s.pipeline.Forecast(c, horizon)
	s.metrics.RecordPrediction("demand", outcome(err))
	return p, err
}

// PredictLeadTime predicts supplier lead time in days.
func (s *ForecastService) PredictLeadTime(ctx context.Context, c domain.LeadTimeContext) (domain.Prediction, error) {
	if err := s.validateStruct(c); err != nil {
		return domain.Prediction{}, err
	}
	p, err := s.pipeline.ForecastLeadTime(c)
	s.metrics.RecordPrediction("lead_time", outcome(err))
	return p, err
}

// Status reports readiness, cache counters and the latest metrics.
func (s *ForecastService) Status(ctx context.Context) domain.ServiceStatus {
	state := s.pipeline.Snapshot()
	status := domain.ServiceStatus{
		Ready:   state.Ready,
		Cache:   s.cache.Stats(ctx),
		Models:  state.Models(),
		Metrics: state.Metrics,
	}
	if !state.TrainedAt.IsZero() {
		trainedAt := state.TrainedAt
		status.TrainedAt = &trainedAt
	}
	return status
}

// LatestRun returns the most recent recorded training run, or nil.
func (s *ForecastService) LatestRun(ctx context.Context) (*pipeline.TrainingRun, error) {
	return s.runs.LatestRun(ctx)
}

// Bootstrap brings the service up at startup. It loads artifacts from
// ModelDir, falls back to restoring them from object storage, and finally
// trains on DataPath when that file exists. Having none of them is not an
// error; the service stays not ready.
func (s *ForecastService) Bootstrap(ctx context.Context) error {
	dir := s.opts.ModelDir
	if dir != "" && !pipeline.HasArtifacts(dir) && s.opts.Storage != nil {
		n, err := storage.RestoreDir(ctx, s.opts.Storage, s.opts.ArtifactPrefix, dir, pipeline.ArtifactFiles)
		if err != nil {
			log.Warn().Err(err).Msg("forecast: artifact restore failed")
		} else if n > 0 {
			log.Info().Int("artifacts", n).Msg("artifacts restored from object storage")
		}
	}

	if dir != "" && pipeline.HasArtifacts(dir) {
		if err := s.pipeline.Load(dir); err != nil {
			return fmt.Errorf("load models from %s: %w", dir, err)
		}
		s.invalidate(ctx)
		log.Info().Str("dir", dir).Msg("models loaded")
		return nil
	}

	if s.opts.DataPath == "" {
		log.Warn().Msg("no saved models and no data path; service not ready")
		return nil
	}
	if _, err := os.Stat(s.opts.DataPath); err != nil {
		log.Warn().Str("data_path", s.opts.DataPath).Msg("no saved models and data file missing; service not ready")
		return nil
	}
	_, err := s.Train(ctx, s.opts.DataPath)
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
