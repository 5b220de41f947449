package domain

import "time"

// Prediction is a model output with its per-feature attribution.
// Sum(Attribution) + BaseValue equals RawValue up to float tolerance.
type Prediction struct {
	Value       float64            `json:"prediction"`
	Attribution map[string]float64 `json:"shap_explanation"`
	BaseValue   float64            `json:"base_value"`
	RawValue    float64            `json:"raw_prediction"`
}

// DailyForecast is one day of a recursive multi-day forecast.
type DailyForecast struct {
	Date                string             `json:"date"`
	UnitsSold           float64            `json:"units_sold"`
	DemandAttribution   map[string]float64 `json:"demand_explanation"`
	LeadTimeDays        *float64           `json:"lead_time_days,omitempty"`
	LeadTimeAttribution map[string]float64 `json:"lead_time_explanation,omitempty"`
}

// ForecastRequest identifies a 7-day forecast; it is also the cache key.
type ForecastRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	StoreID   string `json:"store_id" validate:"required"`
	SKUID     string `json:"sku_id" validate:"required"`
	Category  string `json:"category" validate:"required"`
	Brand     string `json:"brand" validate:"required"`
}

// ForecastPeriod describes the covered date range.
type ForecastPeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TotalDays int    `json:"total_days"`
}

// Forecast7Day is the service-level result of a 7-day forecast.
type Forecast7Day struct {
	Request ForecastRequest `json:"request"`
	Period  ForecastPeriod  `json:"forecast_period"`
	Days    []DailyForecast `json:"daily_forecasts"`
}

// ForecastMetrics are holdout scores of the demand model.
type ForecastMetrics struct {
	RMSE    float64 `json:"RMSE"`
	MAE     float64 `json:"MAE"`
	WMAPE   float64 `json:"WMAPE"`
	MAPE    float64 `json:"MAPE"`
	Samples int     `json:"samples"`
}

// LeadTimeMetrics are holdout scores of the lead-time model.
type LeadTimeMetrics struct {
	RMSE    float64 `json:"RMSE"`
	MAE     float64 `json:"MAE"`
	Samples int     `json:"samples"`
}

// EvaluationMetrics is the result of one training run's holdout phase.
// A nil section means the holdout had nothing to score.
type EvaluationMetrics struct {
	Forecast *ForecastMetrics `json:"Forecast_H1,omitempty"`
	LeadTime *LeadTimeMetrics `json:"Lead_Time,omitempty"`
}

// TrainResult summarizes a completed training run.
type TrainResult struct {
	RunID     string            `json:"run_id"`
	Status    RunStatus         `json:"status"`
	Metrics   EvaluationMetrics `json:"metrics"`
	ModelDir  string            `json:"model_path"`
	Rows      int               `json:"rows"`
	TrainedAt time.Time         `json:"trained_at"`
}

// CacheStats mirrors an LRU cache's counters.
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	CurrentSize int     `json:"current_size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
}

// ModelStatus reports which artifacts are loaded.
type ModelStatus struct {
	ImputerTrained    bool `json:"imputer_trained"`
	ForecasterTrained bool `json:"forecaster_trained"`
	LeadTimeTrained   bool `json:"lead_time_trained"`
	RecursiveReady    bool `json:"recursive_ready"`
}

// ServiceStatus is the snapshot returned by the status endpoint.
type ServiceStatus struct {
	Ready     bool              `json:"ready"`
	Cache     CacheStats        `json:"cache"`
	Models    ModelStatus       `json:"models"`
	Metrics   EvaluationMetrics `json:"latest_metrics"`
	TrainedAt *time.Time        `json:"trained_at,omitempty"`
}
