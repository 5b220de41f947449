package forecaster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

type recordingPredictor struct {
	contexts []domain.DemandContext
	horizons []int
}

func (r *recordingPredictor) Predict(c domain.DemandContext, h int) (domain.Prediction, error) {
	r.contexts = append(r.contexts, c)
	r.horizons = append(r.horizons, h)
	v := 10.123456 + float64(len(r.contexts))
	return domain.Prediction{Value: v, Attribution: map[string]float64{"lag_1": 0.5}}, nil
}

type stubLeadTime struct {
	err   error
	calls []domain.LeadTimeContext
}

func (s *stubLeadTime) Predict(c domain.LeadTimeContext) (domain.Prediction, error) {
	s.calls = append(s.calls, c)
	if s.err != nil {
		return domain.Prediction{}, s.err
	}
	return domain.Prediction{Value: 4.4449, Attribution: map[string]float64{"supplier_id": 1}}, nil
}

func TestRecursiveFeedsPredictionsBack(t *testing.T) {
	demand := &recordingPredictor{}
	rec := NewRecursive(demand, nil, history(45))
	start := day0.AddDate(0, 0, 45)

	days, err := rec.PredictNext7Days(start, "S1", "A", "snacks", "acme")
	require.NoError(t, err)
	require.Len(t, days, ForecastDays)
	require.Len(t, demand.contexts, ForecastDays)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 1, 1}, demand.horizons)

	for d := 1; d < ForecastDays; d++ {
		prev := 10.123456 + float64(d)
		require.NotNil(t, demand.contexts[d].Lag1)
		assert.Equal(t, prev, *demand.contexts[d].Lag1, "day %d lag_1", d+1)
	}
	assert.Equal(t, 11.12, days[0].UnitsSold)
	assert.Equal(t, "2024-02-15", days[0].Date)
	assert.Equal(t, "2024-02-21", days[6].Date)
	assert.Nil(t, days[0].LeadTimeDays)

	// day 1 lags come from history
	hist := history(45)[:45]
	assert.Equal(t, hist[44].DemandValue(), *demand.contexts[0].Lag1)
	assert.Equal(t, hist[38].DemandValue(), *demand.contexts[0].Lag7)
}

func TestRecursiveCarriesStaticAttributes(t *testing.T) {
	demand := &recordingPredictor{}
	rec := NewRecursive(demand, nil, history(40))

	_, err := rec.PredictNext7Days(day0.AddDate(0, 0, 40), "S1", "B", "snacks", "acme")
	require.NoError(t, err)

	for _, c := range demand.contexts {
		assert.Equal(t, 10.0, *c.ListPrice)
		assert.Equal(t, 40.0, *c.StockOpening)
		assert.Equal(t, 28.0, *c.Temperature)
		assert.Equal(t, 1.0, *c.PriceRatio)
		assert.Equal(t, 0.0, *c.IsHoliday)
	}
	// 2024-02-10 is a Saturday
	assert.Equal(t, 5.0, *demand.contexts[0].Weekday)
	assert.Equal(t, 1.0, *demand.contexts[0].IsWeekend)
}

func TestRecursiveShortHistoryLeavesWindowsUnset(t *testing.T) {
	demand := &recordingPredictor{}
	rec := NewRecursive(demand, nil, history(3))

	_, err := rec.PredictNext7Days(day0.AddDate(0, 0, 3), "S1", "A", "snacks", "acme")
	require.NoError(t, err)

	first := demand.contexts[0]
	assert.NotNil(t, first.Lag1)
	assert.Nil(t, first.Lag7)
	assert.Nil(t, first.RollingMean7)
	assert.Nil(t, first.Momentum714)

	// by day 5 the buffer holds 7 values
	assert.NotNil(t, demand.contexts[4].Lag7)
	assert.NotNil(t, demand.contexts[4].RollingMax7)
	assert.Nil(t, demand.contexts[4].RollingMean14)
}

func TestRecursiveUnknownSeries(t *testing.T) {
	rec := NewRecursive(&recordingPredictor{}, nil, history(10))

	days, err := rec.PredictNext7Days(day0, "S1", "missing", "snacks", "acme")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, days)
	assert.False(t, rec.HasSeries("S1", "missing"))
	assert.Equal(t, 2, rec.SeriesCount())
}

func TestRecursiveLeadTime(t *testing.T) {
	t.Run("attached when available", func(t *testing.T) {
		lt := &stubLeadTime{}
		rec := NewRecursive(&recordingPredictor{}, lt, history(10))

		days, err := rec.PredictNext7Days(day0.AddDate(0, 0, 10), "S1", "A", "snacks", "acme")
		require.NoError(t, err)
		require.NotNil(t, days[0].LeadTimeDays)
		assert.Equal(t, 4.44, *days[0].LeadTimeDays)
		assert.Equal(t, 1.0, days[0].LeadTimeAttribution["supplier_id"])

		c := lt.calls[0]
		assert.Equal(t, "Unknown", c.Country)
		assert.Equal(t, "A", c.SKUName)
		assert.Equal(t, "snacks", c.Subcategory)
		assert.Equal(t, "2024-01-11", c.Date)
	})

	t.Run("failure leaves lead time absent", func(t *testing.T) {
		lt := &stubLeadTime{err: errors.New("model not trained")}
		rec := NewRecursive(&recordingPredictor{}, lt, history(10))

		days, err := rec.PredictNext7Days(day0.AddDate(0, 0, 10), "S1", "A", "snacks", "acme")
		require.NoError(t, err)
		require.Len(t, days, ForecastDays)
		for _, d := range days {
			assert.Nil(t, d.LeadTimeDays)
		}
		assert.Len(t, lt.calls, ForecastDays)
	})
}

type failingPredictor struct{}

func (failingPredictor) Predict(domain.DemandContext, int) (domain.Prediction, error) {
	return domain.Prediction{}, domain.ErrNotReady
}

func TestRecursiveDemandFailureReturnsNothing(t *testing.T) {
	rec := NewRecursive(failingPredictor{}, nil, history(10))

	days, err := rec.PredictNext7Days(day0, "S1", "A", "snacks", "acme")
	assert.ErrorIs(t, err, domain.ErrNotReady)
	assert.Nil(t, days)
}
