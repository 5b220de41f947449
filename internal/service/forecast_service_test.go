package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/cache"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/dataset"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/gbm"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func history(days int) []domain.SalesRecord {
	var out []domain.SalesRecord
	for s, sku := range []string{"A", "B"} {
		for i := 0; i < days; i++ {
			d := day0.AddDate(0, 0, i)
			wd := domain.WeekdayIndex(d)
			rec := domain.SalesRecord{
				Date:         d,
				StoreID:      "S1",
				SKUID:        sku,
				Category:     "snacks",
				Brand:        "acme",
				UnitsSold:    float64(4 + wd + 3*s),
				StockOpening: 25,
				ListPrice:    8,
				Weekday:      wd,
				Country:      "ID",
				City:         "Bandung",
				Channel:      "general_trade",
				SupplierID:   "SUP-" + sku,
				LeadTimeDays: domain.Float(float64(2 + 5*s)),
			}
			if i%9 == 4 {
				rec.StockOut = true
				rec.UnitsSold = 1
			}
			out = append(out, rec)
		}
	}
	return out
}

func quick(p gbm.Params) gbm.Params {
	p.NEstimators = 10
	p.MaxDepth = 3
	p.LearningRate = 0.3
	return p
}

func newOrchestrator() *pipeline.Orchestrator {
	cfg := pipeline.DefaultConfig()
	cfg.Imputer = quick(cfg.Imputer)
	cfg.Forecaster = quick(cfg.Forecaster)
	cfg.LeadTime = quick(cfg.LeadTime)
	return pipeline.NewOrchestrator(cfg, nil)
}

func staticSource(records []domain.SalesRecord) Source {
	return SourceFunc(func(ctx context.Context, source string) ([]domain.SalesRecord, error) {
		return records, nil
	})
}

type recordingRuns struct {
	mu   sync.Mutex
	runs map[string]pipeline.TrainingRun
	last string
}

func newRecordingRuns() *recordingRuns {
	return &recordingRuns{runs: make(map[string]pipeline.TrainingRun)}
}

func (r *recordingRuns) CreateRun(ctx context.Context, run *pipeline.TrainingRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	r.last = run.ID
	return nil
}

func (r *recordingRuns) UpdateRun(ctx context.Context, run *pipeline.TrainingRun) error {
	return r.CreateRun(ctx, run)
}

func (r *recordingRuns) GetRun(ctx context.Context, id string) (*pipeline.TrainingRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (r *recordingRuns) LatestRun(ctx context.Context) (*pipeline.TrainingRun, error) {
	return r.GetRun(ctx, r.last)
}

var request = domain.ForecastRequest{
	StartDate: "2024-03-11", StoreID: "S1", SKUID: "A", Category: "snacks", Brand: "acme",
}

func trainedService(t *testing.T, predictionCache cache.PredictionCache) *ForecastService {
	t.Helper()
	svc := NewForecastService(newOrchestrator(), staticSource(history(70)), predictionCache, Options{ModelDir: t.TempDir()})
	_, err := svc.Train(context.Background(), "memory")
	require.NoError(t, err)
	return svc
}

func TestNotReadyBeforeTraining(t *testing.T) {
	svc := NewForecastService(newOrchestrator(), staticSource(nil), nil, Options{})

	_, err := svc.Predict7Day(context.Background(), request)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = svc.PredictSingleHorizon(context.Background(), domain.DemandContext{StoreID: "S1", SKUID: "A"}, 1)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	status := svc.Status(context.Background())
	assert.False(t, status.Ready)
	assert.Nil(t, status.TrainedAt)
}

func TestTrainRecordsRunAndPersists(t *testing.T) {
	runs := newRecordingRuns()
	dir := t.TempDir()
	svc := NewForecastService(newOrchestrator(), staticSource(history(70)), nil, Options{ModelDir: dir, Runs: runs})

	result, err := svc.Train(context.Background(), "sales.csv")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, result.Status)
	assert.Equal(t, dir, result.ModelDir)
	assert.Equal(t, 140, result.Rows)
	require.NotNil(t, result.Metrics.Forecast)
	assert.False(t, result.TrainedAt.IsZero())

	for _, name := range []string{pipeline.ImputerFile, pipeline.ForecasterFile, pipeline.MetadataFile, pipeline.RawDataFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	run, err := svc.LatestRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, result.RunID, run.ID)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.NotEmpty(t, run.Metrics)
	assert.NotNil(t, run.CompletedAt)

	status := svc.Status(context.Background())
	assert.True(t, status.Ready)
	assert.True(t, status.Models.RecursiveReady)
	assert.NotNil(t, status.TrainedAt)
}

func TestTrainSourceFailure(t *testing.T) {
	runs := newRecordingRuns()
	loader := SourceFunc(func(ctx context.Context, source string) ([]domain.SalesRecord, error) {
		return nil, errors.Join(domain.ErrDataSource, errors.New("no such file"))
	})
	svc := NewForecastService(newOrchestrator(), loader, nil, Options{Runs: runs})

	_, err := svc.Train(context.Background(), "missing.csv")
	assert.ErrorIs(t, err, domain.ErrDataSource)

	run, err := svc.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "no such file")
	assert.False(t, svc.Status(context.Background()).Ready)
}

func TestTrainEmptySourceUsesDataPath(t *testing.T) {
	var got string
	loader := SourceFunc(func(ctx context.Context, source string) ([]domain.SalesRecord, error) {
		got = source
		return history(70), nil
	})
	svc := NewForecastService(newOrchestrator(), loader, nil, Options{DataPath: "/data/sales.csv"})

	_, err := svc.Train(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "/data/sales.csv", got)
}

func TestConcurrentTrainRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	loader := SourceFunc(func(ctx context.Context, source string) ([]domain.SalesRecord, error) {
		close(started)
		<-release
		return history(70), nil
	})
	svc := NewForecastService(newOrchestrator(), loader, nil, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Train(context.Background(), "first")
		done <- err
	}()
	<-started

	_, err := svc.Train(context.Background(), "second")
	assert.ErrorIs(t, err, domain.ErrTrainingInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestPredict7DayCachesAndInvalidates(t *testing.T) {
	mem := cache.NewMemoryCache(8)
	svc := trainedService(t, mem)
	ctx := context.Background()

	first, err := svc.Predict7Day(ctx, request)
	require.NoError(t, err)
	require.Len(t, first.Days, 7)
	assert.Equal(t, domain.ForecastPeriod{StartDate: "2024-03-11", EndDate: "2024-03-17", TotalDays: 7}, first.Period)
	assert.Equal(t, "2024-03-11", first.Days[0].Date)
	assert.Equal(t, request, first.Request)

	second, err := svc.Predict7Day(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	stats := svc.Status(ctx).Cache
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.CurrentSize)

	_, err = svc.Train(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, 0, svc.Status(ctx).Cache.CurrentSize)
}

func TestPredict7DayErrors(t *testing.T) {
	svc := trainedService(t, nil)
	ctx := context.Background()

	bad := request
	bad.StartDate = "11/03/2024"
	_, err := svc.Predict7Day(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	missing := request
	missing.Brand = ""
	_, err = svc.Predict7Day(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrValidation)

	unknown := request
	unknown.SKUID = "Z"
	forecast, err := svc.Predict7Day(ctx, unknown)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, forecast)
}

func TestPredictSingleHorizon(t *testing.T) {
	svc := trainedService(t, nil)
	ctx := context.Background()
	c := domain.DemandContext{StoreID: "S1", SKUID: "B", Category: "snacks", Brand: "acme", Lag1: domain.Float(8)}

	first, err := svc.PredictSingleHorizon(ctx, c, 1)
	require.NoError(t, err)
	again, err := svc.PredictSingleHorizon(ctx, c, 1)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.GreaterOrEqual(t, first.Value, 0.0)

	_, err = svc.PredictSingleHorizon(ctx, c, 3)
	assert.ErrorIs(t, err, domain.ErrValidation)

	// accepted but never trained
	_, err = svc.PredictSingleHorizon(ctx, c, 7)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.PredictSingleHorizon(ctx, domain.DemandContext{SKUID: "B"}, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPredictLeadTime(t *testing.T) {
	svc := trainedService(t, nil)
	ctx := context.Background()

	p, err := svc.PredictLeadTime(ctx, domain.LeadTimeContext{
		Date: "2024-03-12", StoreID: "S1", SKUID: "B", SupplierID: "SUP-B",
		Country: "ID", City: "Bandung", Channel: "general_trade", Category: "snacks", Brand: "acme",
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p.Value, 0.0)
	assert.NotEmpty(t, p.Attribution)

	_, err = svc.PredictLeadTime(ctx, domain.LeadTimeContext{Date: "12-03-2024", StoreID: "S1", SKUID: "B"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()

	t.Run("loads saved models", func(t *testing.T) {
		dir := t.TempDir()
		trainer := NewForecastService(newOrchestrator(), staticSource(history(70)), nil, Options{ModelDir: dir})
		_, err := trainer.Train(ctx, "memory")
		require.NoError(t, err)
		want, err := trainer.Predict7Day(ctx, request)
		require.NoError(t, err)

		loader := SourceFunc(func(ctx context.Context, source string) ([]domain.SalesRecord, error) {
			t.Fatal("bootstrap should not train when models exist")
			return nil, nil
		})
		svc := NewForecastService(newOrchestrator(), loader, nil, Options{ModelDir: dir})
		require.NoError(t, svc.Bootstrap(ctx))
		assert.True(t, svc.Status(ctx).Ready)

		got, err := svc.Predict7Day(ctx, request)
		require.NoError(t, err)
		for i := range want.Days {
			assert.InDelta(t, want.Days[i].UnitsSold, got.Days[i].UnitsSold, 0.011)
		}
	})

	t.Run("trains on data path", func(t *testing.T) {
		dataPath := filepath.Join(t.TempDir(), "sales.csv")
		f, err := os.Create(dataPath)
		require.NoError(t, err)
		require.NoError(t, dataset.WriteCSV(f, history(70)))
		require.NoError(t, f.Close())

		loader := &dataset.Loader{}
		svc := NewForecastService(newOrchestrator(), loader, nil, Options{ModelDir: t.TempDir(), DataPath: dataPath})
		require.NoError(t, svc.Bootstrap(ctx))
		assert.True(t, svc.Status(ctx).Ready)
	})

	t.Run("nothing available", func(t *testing.T) {
		svc := NewForecastService(newOrchestrator(), staticSource(nil), nil, Options{
			ModelDir: t.TempDir(),
			DataPath: filepath.Join(t.TempDir(), "missing.csv"),
		})
		require.NoError(t, svc.Bootstrap(ctx))
		assert.False(t, svc.Status(ctx).Ready)
	})
}
