package pipeline

import (
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/config"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/gbm"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/forecaster"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/imputer"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/pipeline/leadtime"
)

// Phase names a step of a training run in logs and metrics.
type Phase string

const (
	PhaseImpute         Phase = "impute"
	PhaseFeatures       Phase = "features"
	PhaseEvalForecaster Phase = "evaluate_forecaster"
	PhaseEvalLeadTime   Phase = "evaluate_lead_time"
	PhaseTrainForecast  Phase = "train_forecaster"
	PhaseTrainLeadTime  Phase = "train_lead_time"
	PhaseSave           Phase = "save"
	PhaseLoad           Phase = "load"
)

// Config holds hyper-parameters for one training run
type Config struct {
	HoldoutDays int // Days at the end of the data scored by the evaluation phase
	Horizons    []int
	Imputer     gbm.Params
	Forecaster  gbm.Params
	LeadTime    gbm.Params
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		HoldoutDays: 28,
		Horizons:    []int{1},
		Imputer:     imputer.DefaultParams(),
		Forecaster:  forecaster.DefaultParams(),
		LeadTime:    leadtime.DefaultParams(),
	}
}

// NewConfig applies model settings over the defaults.
func NewConfig(m config.ModelConfig) Config {
	cfg := DefaultConfig()
	if m.HoldoutDays > 0 {
		cfg.HoldoutDays = m.HoldoutDays
	}
	cfg.Imputer = override(cfg.Imputer, m.Imputer, m.Workers)
	cfg.Forecaster = override(cfg.Forecaster, m.Forecaster, m.Workers)
	cfg.LeadTime = override(cfg.LeadTime, m.LeadTime, m.Workers)
	return cfg
}

func override(p gbm.Params, b config.BoosterConfig, workers int) gbm.Params {
	if b.NEstimators > 0 {
		p.NEstimators = b.NEstimators
	}
	if b.MaxDepth > 0 {
		p.MaxDepth = b.MaxDepth
	}
	if b.LearningRate > 0 {
		p.LearningRate = b.LearningRate
	}
	if workers > 0 {
		p.Workers = workers
	}
	return p
}

// State is one immutable generation of trained models. Readers load it once
// per request and never observe a mix of generations.
type State struct {
	Imputer    *imputer.Imputer
	Forecaster *forecaster.Forecaster
	LeadTime   *leadtime.Predictor
	Recursive  *forecaster.Recursive
	RawData    []domain.SalesRecord
	Ready      bool
	Metrics    domain.EvaluationMetrics
	TrainedAt  time.Time
}

// Models reports which artifacts the state holds.
func (s *State) Models() domain.ModelStatus {
	if s == nil {
		return domain.ModelStatus{}
	}
	return domain.ModelStatus{
		ImputerTrained:    s.Imputer.Trained(),
		ForecasterTrained: s.Forecaster.Trained(),
		LeadTimeTrained:   s.LeadTime.Trained(),
		RecursiveReady:    s.Recursive != nil,
	}
}

// TrainingRun tracks a single training request
type TrainingRun struct {
	ID           string           `db:"id"`
	Source       string           `db:"source"`
	Status       domain.RunStatus `db:"status"`
	Rows         int              `db:"rows"`
	Metrics      types.JSONText   `db:"metrics"`
	ModelDir     string           `db:"model_dir"`
	StartedAt    time.Time        `db:"started_at"`
	CompletedAt  *time.Time       `db:"completed_at"`
	ErrorMessage string           `db:"error_message"`
}
