package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/service"
)

type ForecastHandler struct {
	service *service.ForecastService
}

func NewForecastHandler(service *service.ForecastService) *ForecastHandler {
	return &ForecastHandler{service: service}
}

type trainRequest struct {
	Path string `json:"path"`
}

type trainData struct {
	RunID     string                   `json:"run_id"`
	Status    domain.RunStatus         `json:"status"`
	Message   string                   `json:"message"`
	ModelPath string                   `json:"model_path"`
	Rows      int                      `json:"rows"`
	Metrics   domain.EvaluationMetrics `json:"metrics"`
	TrainedAt time.Time                `json:"trained_at"`
}

type forecastRequestEcho struct {
	domain.ForecastRequest
	ForecastDays int `json:"forecast_days"`
}

type demandView struct {
	UnitsSold   float64            `json:"units_sold"`
	Explanation map[string]float64 `json:"explanation"`
}

type supplyView struct {
	LeadTimeDays *float64           `json:"lead_time_days"`
	Explanation  map[string]float64 `json:"explanation"`
}

type dailyView struct {
	Day    int        `json:"day"`
	Date   string     `json:"date"`
	Demand demandView `json:"demand"`
	Supply supplyView `json:"supply"`
}

type forecastData struct {
	Period domain.ForecastPeriod `json:"forecast_period"`
	Days   []dailyView           `json:"daily_forecasts"`
}

type predictRequest struct {
	Horizon *int                 `json:"horizon"`
	Context domain.DemandContext `json:"context"`
}

type predictionData struct {
	Horizon int `json:"horizon,omitempty"`
	domain.Prediction
}

type serviceView struct {
	Status      string `json:"status"`
	Description string `json:"description"`
}

type cacheView struct {
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	CurrentSize int    `json:"current_size"`
	MaxSize     int    `json:"max_size"`
	HitRate     string `json:"hit_rate"`
}

type statusData struct {
	Service   serviceView              `json:"service"`
	Cache     cacheView                `json:"cache"`
	Models    domain.ModelStatus       `json:"models"`
	Metrics   domain.EvaluationMetrics `json:"latest_metrics"`
	TrainedAt *time.Time               `json:"trained_at,omitempty"`
}

// bindJSON decodes the body into dst. An empty body leaves dst unchanged.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrValidation, err)
	}
	return nil
}

// Train handles POST /ai/train.
func (h *ForecastHandler) Train(c *gin.Context) {
	var req trainRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, "training", err)
		return
	}

	result, err := h.service.Train(c.Request.Context(), req.Path)
	if err != nil {
		respondError(c, "training", err)
		return
	}

	respond(c, http.StatusOK, "training", trainData{
		RunID:     result.RunID,
		Status:    result.Status,
		Message:   "Training completed and models saved successfully",
		ModelPath: result.ModelDir,
		Rows:      result.Rows,
		Metrics:   result.Metrics,
		TrainedAt: result.TrainedAt,
	}, "Training operation successful")
}

// Predict7Days handles POST /ai/predict_7days.
func (h *ForecastHandler) Predict7Days(c *gin.Context) {
	var req domain.ForecastRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, "forecast", err)
		return
	}

	forecast, err := h.service.Predict7Day(c.Request.Context(), req)
	if err != nil {
		respondError(c, "forecast", err)
		return
	}

	days := make([]dailyView, len(forecast.Days))
	for i, d := range forecast.Days {
		supply := supplyView{LeadTimeDays: d.LeadTimeDays}
		if d.LeadTimeDays != nil {
			supply.Explanation = d.LeadTimeAttribution
		}
		days[i] = dailyView{
			Day:    i + 1,
			Date:   d.Date,
			Demand: demandView{UnitsSold: d.UnitsSold, Explanation: d.DemandAttribution},
			Supply: supply,
		}
	}

	c.JSON(http.StatusOK, Envelope{
		Metadata: metadata("forecast"),
		Request:  forecastRequestEcho{ForecastRequest: forecast.Request, ForecastDays: forecast.Period.TotalDays},
		Data:     forecastData{Period: forecast.Period, Days: days},
		Status:   Status{Code: statusSuccess, Message: "7-day forecast completed successfully"},
	})
}

// Predict handles POST /ai/predict. The horizon defaults to 1.
func (h *ForecastHandler) Predict(c *gin.Context) {
	var req predictRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, "prediction", err)
		return
	}
	horizon := 1
	if req.Horizon != nil {
		horizon = *req.Horizon
	}

	p, err := h.service.PredictSingleHorizon(c.Request.Context(), req.Context, horizon)
	if err != nil {
		respondError(c, "prediction", err)
		return
	}

	respond(c, http.StatusOK, "prediction", predictionData{Horizon: horizon, Prediction: p}, "Prediction completed successfully")
}

// PredictLeadTime handles POST /ai/predict_lead_time.
func (h *ForecastHandler) PredictLeadTime(c *gin.Context) {
	var req domain.LeadTimeContext
	if err := bindJSON(c, &req); err != nil {
		respondError(c, "lead_time", err)
		return
	}

	p, err := h.service.PredictLeadTime(c.Request.Context(), req)
	if err != nil {
		respondError(c, "lead_time", err)
		return
	}

	respond(c, http.StatusOK, "lead_time", predictionData{Prediction: p}, "Lead time prediction completed successfully")
}

// Status handles GET /ai/status.
func (h *ForecastHandler) Status(c *gin.Context) {
	st := h.service.Status(c.Request.Context())

	svc := serviceView{Status: "not_ready", Description: "Demand forecasting service"}
	if st.Ready {
		svc.Status = "ready"
	}

	stats := cacheView{
		Hits:        st.Cache.Hits,
		Misses:      st.Cache.Misses,
		CurrentSize: st.Cache.CurrentSize,
		MaxSize:     st.Cache.MaxSize,
		HitRate:     fmt.Sprintf("%.2f%%", st.Cache.HitRate*100),
	}

	respond(c, http.StatusOK, "status", statusData{
		Service:   svc,
		Cache:     stats,
		Models:    st.Models,
		Metrics:   st.Metrics,
		TrainedAt: st.TrainedAt,
	}, "Status retrieved successfully")
}

// Health handles GET /health. It answers 200 while the process is up, ready
// or not.
func (h *ForecastHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"ready":  h.service.Status(c.Request.Context()).Ready,
	})
}
