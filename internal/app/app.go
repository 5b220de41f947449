// Package app wires configuration into a ready-to-serve ForecastService.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/cache"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/config"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/dataset"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/drive"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/repository"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/repository/postgres"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/service"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/storage"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/metrics"
)

// App holds the wired components and the resources to release on exit.
type App struct {
	Service  *service.ForecastService
	Pipeline *pipeline.Orchestrator
	Loader   *dataset.Loader
	Cache    cache.PredictionCache
	// Sales is nil unless the database is enabled.
	Sales repository.SalesRepository

	closers []func() error
}

// New builds the service from cfg. Optional backends (database, object
// storage, Drive) are connected only when configured. rec may be nil.
func New(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) (*App, error) {
	a := &App{}

	predictionCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if c, ok := predictionCache.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.Cache = predictionCache

	a.Loader = &dataset.Loader{Connect: SalesConnector(cfg.Database.SalesTable)}
	opts := service.Options{
		ModelDir:       cfg.Model.Dir,
		DataPath:       cfg.Model.DataPath,
		ArtifactPrefix: cfg.Storage.ArtifactPrefix,
		Metrics:        rec,
	}

	if cfg.Database.Enabled {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		sales, err := postgres.NewSalesRepository(db, cfg.Database.SalesTable)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Sales = sales
		a.Loader.Sales = sales

		if cfg.Database.TrackRuns {
			runs := pipeline.NewRepository(db.DB)
			if err := runs.EnsureSchema(ctx); err != nil {
				a.Close()
				return nil, err
			}
			opts.Runs = runs
		}
		log.Info().Str("host", cfg.Database.Host).Bool("track_runs", cfg.Database.TrackRuns).Msg("database connected")
	}

	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		a.Loader.Storage = store
		opts.Storage = store
		log.Info().Str("endpoint", cfg.Storage.Endpoint).Str("bucket", store.Bucket()).Msg("object storage configured")
	}

	creds, err := cfg.Drive.DriveCredentials()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("read drive credentials: %w", err)
	}
	if creds != "" {
		drv, err := drive.NewService(ctx, creds)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init drive: %w", err)
		}
		a.Loader.Drive = drv
		log.Info().Msg("google drive configured")
	}

	a.Pipeline = pipeline.NewOrchestrator(pipeline.NewConfig(cfg.Model), rec)
	a.Service = service.NewForecastService(a.Pipeline, a.Loader, predictionCache, opts)
	return a, nil
}

// SalesConnector opens a dedicated pgx pool per postgres:// training source.
func SalesConnector(table string) dataset.Connector {
	return func(dsn string) (repository.SalesRepository, func() error, error) {
		db, err := postgres.Connect(dsn)
		if err != nil {
			return nil, nil, err
		}
		repo, err := postgres.NewSalesRepository(db, table)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	}
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
