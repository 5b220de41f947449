package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-py/forecast-go/pkg/logger"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/metrics"
)

type task struct {
	phase Phase
	fn    func(ctx context.Context) error
}

// worker runs training phases, timing and logging each one.
type worker struct {
	log     zerolog.Logger
	metrics *metrics.Recorder
}

func newWorker(rec *metrics.Recorder) *worker {
	return &worker{log: logger.Stage("pipeline"), metrics: rec}
}

// run executes one phase. Cancellation is checked before it starts.
func (w *worker) run(ctx context.Context, phase Phase, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}

	start := time.Now()
	w.log.Info().Str("phase", string(phase)).Msg("phase started")

	err := fn(ctx)
	elapsed := time.Since(start)
	w.metrics.ObservePhase(string(phase), elapsed)

	if err != nil {
		w.log.Error().Err(err).Str("phase", string(phase)).Dur("duration", elapsed).Msg("phase failed")
		return fmt.Errorf("%s: %w", phase, err)
	}
	w.log.Info().Str("phase", string(phase)).Dur("duration", elapsed).Msg("phase completed")
	return nil
}

// parallel runs independent phases concurrently; the first failure cancels
// the rest.
func (w *worker) parallel(ctx context.Context, tasks ...task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			return w.run(gctx, t.phase, t.fn)
		})
	}
	return g.Wait()
}
