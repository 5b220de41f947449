package leadtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

func shipments(n int) []domain.SalesRecord {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.SalesRecord, n)
	for i := range out {
		supplier := "SUP-FAST"
		days := 2.0
		if i%2 == 1 {
			supplier = "SUP-SLOW"
			days = 9.0
		}
		d := start.AddDate(0, 0, i/2)
		out[i] = domain.SalesRecord{
			Date:         d,
			StoreID:      "S1",
			SKUID:        "A",
			Category:     "snacks",
			Brand:        "acme",
			Country:      "ID",
			City:         "Jakarta",
			Channel:      "modern_trade",
			SupplierID:   supplier,
			Weekday:      domain.WeekdayIndex(d),
			LeadTimeDays: domain.Float(days),
		}
	}
	return out
}

func TestTrainAndPredict(t *testing.T) {
	recs := shipments(200)
	recs[0].LeadTimeDays = nil

	params := DefaultParams()
	params.NEstimators = 50
	lt, err := Train(context.Background(), recs, params)
	require.NoError(t, err)
	require.True(t, lt.Trained())

	slow, err := lt.Predict(domain.LeadTimeContext{
		Date: "2024-06-01", StoreID: "S1", SKUID: "A", SupplierID: "SUP-SLOW",
		Country: "ID", City: "Jakarta", Channel: "modern_trade", Category: "snacks", Brand: "acme",
	})
	require.NoError(t, err)
	fast, err := lt.Predict(domain.LeadTimeContext{
		Date: "2024-06-01", StoreID: "S1", SKUID: "A", SupplierID: "SUP-FAST",
		Country: "ID", City: "Jakarta", Channel: "modern_trade", Category: "snacks", Brand: "acme",
	})
	require.NoError(t, err)

	assert.InDelta(t, 9.0, slow.Value, 0.5)
	assert.InDelta(t, 2.0, fast.Value, 0.5)
	assert.Len(t, slow.Attribution, len(Features))

	sum := slow.BaseValue
	for _, v := range slow.Attribution {
		sum += v
	}
	assert.InDelta(t, slow.RawValue, sum, 1e-9)
}

func TestNotTrained(t *testing.T) {
	var lt *Predictor
	_, err := lt.Predict(domain.LeadTimeContext{StoreID: "S1", SKUID: "A"})
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, err = (&Predictor{}).Predict(domain.LeadTimeContext{})
	assert.ErrorIs(t, err, domain.ErrNotReady)

	_, _, err = lt.Evaluate(shipments(4))
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestTrainWithoutLabels(t *testing.T) {
	recs := shipments(6)
	for i := range recs {
		recs[i].LeadTimeDays = nil
	}
	_, err := Train(context.Background(), recs, DefaultParams())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestEvaluateFloorsAtZero(t *testing.T) {
	recs := shipments(60)
	params := DefaultParams()
	params.NEstimators = 20
	lt, err := Train(context.Background(), recs, params)
	require.NoError(t, err)

	holdout := shipments(10)
	holdout[3].LeadTimeDays = nil
	yTrue, yPred, err := lt.Evaluate(holdout)
	require.NoError(t, err)
	assert.Len(t, yTrue, 9)
	assert.Len(t, yPred, 9)
	for _, v := range yPred {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}
