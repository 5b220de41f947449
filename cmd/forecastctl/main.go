package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/app"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/config"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/logger"
)

type appKey struct{}

func initApp(c *cli.Context) error {
	cfg := config.Load()
	if c.IsSet("model-dir") {
		cfg.Model.Dir = c.String("model-dir")
	}
	logger.Configure(c.String("log-level"), cfg.Log.Format)

	application, err := app.New(c.Context, cfg, nil)
	if err != nil {
		return err
	}

	// Store the application in the context
	c.Context = context.WithValue(c.Context, appKey{}, application)
	return nil
}

func closeApp(c *cli.Context) error {
	if application, ok := c.Context.Value(appKey{}).(*app.App); ok && application != nil {
		return application.Close()
	}
	return nil
}

func appFrom(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

// loadModels loads saved artifacts without falling back to training.
func loadModels(c *cli.Context) error {
	dir := config.Load().Model.Dir
	if c.IsSet("model-dir") {
		dir = c.String("model-dir")
	}
	if !pipeline.HasArtifacts(dir) {
		return fmt.Errorf("%w: no saved models in %s", domain.ErrNotReady, dir)
	}
	return appFrom(c).Pipeline.Load(dir)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	cliApp := &cli.App{
		Name:  "forecastctl",
		Usage: "Train, query and seed the demand forecasting engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "model-dir",
				Usage:   "Directory holding model artifacts",
				EnvVars: []string{"MODEL_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: initApp,
		After:  closeApp,
		Commands: []*cli.Command{
			{
				Name:  "train",
				Usage: "Train on a source and save the models",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Training source: path, s3://, gdrive://, db: or postgres:// (default DATA_PATH)",
					},
				},
				Action: func(c *cli.Context) error {
					result, err := appFrom(c).Service.Train(c.Context, c.String("source"))
					if err != nil {
						return err
					}
					return printJSON(result)
				},
			},
			{
				Name:  "predict",
				Usage: "Print the 7-day forecast for one series",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "start-date", Usage: "First forecast day (YYYY-MM-DD)", Required: true},
					&cli.StringFlag{Name: "store", Usage: "Store ID", Required: true},
					&cli.StringFlag{Name: "sku", Usage: "SKU ID", Required: true},
					&cli.StringFlag{Name: "category", Usage: "Category", Required: true},
					&cli.StringFlag{Name: "brand", Usage: "Brand", Required: true},
				},
				Action: func(c *cli.Context) error {
					if err := loadModels(c); err != nil {
						return err
					}
					forecast, err := appFrom(c).Service.Predict7Day(c.Context, domain.ForecastRequest{
						StartDate: c.String("start-date"),
						StoreID:   c.String("store"),
						SKUID:     c.String("sku"),
						Category:  c.String("category"),
						Brand:     c.String("brand"),
					})
					if err != nil {
						return err
					}
					return printJSON(forecast)
				},
			},
			{
				Name:  "status",
				Usage: "Print readiness and the saved evaluation metrics",
				Action: func(c *cli.Context) error {
					if err := loadModels(c); err != nil && !errors.Is(err, domain.ErrNotReady) {
						return err
					}
					return printJSON(appFrom(c).Service.Status(c.Context))
				},
			},
			{
				Name:  "seed",
				Usage: "Import a sales file into the sales table",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "CSV or XLSX sales file (local path, s3:// or gdrive://)",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					application := appFrom(c)
					if application.Sales == nil {
						return fmt.Errorf("%w: seeding requires DB_ENABLED=true", domain.ErrConfiguration)
					}
					records, err := application.Loader.Load(c.Context, c.String("file"))
					if err != nil {
						return err
					}
					n, err := application.Sales.SaveSales(c.Context, records)
					if err != nil {
						return fmt.Errorf("failed to save sales: %w", err)
					}
					logger.Log.Info().Int("rows", n).Str("file", c.String("file")).Msg("sales seeded")
					return nil
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("forecastctl failed")
	}
}
