package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/dataset"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/forecaster"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/imputer"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/leadtime"
)

// Artifact file names inside a model directory.
const (
	ImputerFile    = "imputer.json"
	ForecasterFile = "forecaster.json"
	LeadTimeFile   = "lead_time_predictor.json"
	RawDataFile    = "raw_data.csv"
	MetadataFile   = "metadata.json"
)

// ArtifactFiles lists every file Save may write.
var ArtifactFiles = []string{ImputerFile, ForecasterFile, LeadTimeFile, RawDataFile, MetadataFile}

type metadata struct {
	Ready     bool                     `json:"ready"`
	Metrics   domain.EvaluationMetrics `json:"metrics"`
	TrainedAt time.Time                `json:"trained_at"`
	Horizons  []int                    `json:"horizons"`
	Rows      int                      `json:"rows"`
}

// Save writes the current generation to dir. Each file is written under a
// temporary name and renamed into place.
func (o *Orchestrator) Save(dir string) error {
	s, err := o.ready()
	if err != nil {
		return err
	}
	w := newWorker(o.metrics)
	start := time.Now()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed creating model directory %s: %w", dir, err)
	}

	if err := writeJSON(dir, ImputerFile, s.Imputer); err != nil {
		return err
	}
	if err := writeJSON(dir, ForecasterFile, s.Forecaster); err != nil {
		return err
	}
	if s.LeadTime.Trained() {
		if err := writeJSON(dir, LeadTimeFile, s.LeadTime); err != nil {
			return err
		}
	} else if err := removeIfExists(filepath.Join(dir, LeadTimeFile)); err != nil {
		return err
	}
	if err := writeAtomic(dir, RawDataFile, func(f io.Writer) error {
		return dataset.WriteCSV(f, s.RawData)
	}); err != nil {
		return err
	}
	meta := metadata{
		Ready:     s.Ready,
		Metrics:   s.Metrics,
		TrainedAt: s.TrainedAt,
		Horizons:  s.Forecaster.TrainedHorizons(),
		Rows:      len(s.RawData),
	}
	if err := writeJSON(dir, MetadataFile, meta); err != nil {
		return err
	}

	elapsed := time.Since(start)
	o.metrics.ObservePhase(string(PhaseSave), elapsed)
	w.log.Info().Str("phase", string(PhaseSave)).Str("dir", dir).Dur("duration", elapsed).Msg("models saved")
	return nil
}

// Load reads a generation from dir and swaps it in only when every required
// artifact decoded. Without raw_data.csv the state serves single-horizon
// and lead-time predictions but no recursive forecasts.
func (o *Orchestrator) Load(dir string) error {
	w := newWorker(o.metrics)
	start := time.Now()

	next := &State{}
	var meta metadata

	next.Imputer = new(imputer.Imputer)
	if err := readJSON(dir, ImputerFile, next.Imputer); err != nil {
		return err
	}
	next.Forecaster = new(forecaster.Forecaster)
	if err := readJSON(dir, ForecasterFile, next.Forecaster); err != nil {
		return err
	}
	if err := readJSON(dir, MetadataFile, &meta); err != nil {
		return err
	}
	if !next.Forecaster.Trained() {
		return fmt.Errorf("%w: %s holds no trained horizon", domain.ErrConfiguration, ForecasterFile)
	}

	lt := new(leadtime.Predictor)
	switch err := readJSON(dir, LeadTimeFile, lt); {
	case err == nil:
		next.LeadTime = lt
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}

	f, err := os.Open(filepath.Join(dir, RawDataFile))
	switch {
	case err == nil:
		next.RawData, err = dataset.ReadCSV(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("decode %s: %w", RawDataFile, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		w.log.Warn().Str("dir", dir).Msg("raw data missing, recursive forecasts disabled")
	default:
		return fmt.Errorf("open %s: %w", RawDataFile, err)
	}

	next.Ready = meta.Ready
	next.Metrics = meta.Metrics
	next.TrainedAt = meta.TrainedAt
	next.Recursive = newRecursive(next)
	o.swap(next)

	elapsed := time.Since(start)
	o.metrics.ObservePhase(string(PhaseLoad), elapsed)
	w.log.Info().
		Str("phase", string(PhaseLoad)).
		Str("dir", dir).
		Bool("lead_time", next.LeadTime.Trained()).
		Bool("recursive", next.Recursive != nil).
		Dur("duration", elapsed).
		Msg("models loaded")
	return nil
}

// HasArtifacts reports whether dir holds a loadable generation.
func HasArtifacts(dir string) bool {
	for _, name := range []string{ImputerFile, ForecasterFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func writeJSON(dir, name string, v any) error {
	return writeAtomic(dir, name, func(f io.Writer) error {
		return json.NewEncoder(f).Encode(v)
	})
}

func writeAtomic(dir, name string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func readJSON(dir, name string, v any) error {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: artifact %s", domain.ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
