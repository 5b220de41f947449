package forecaster

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/accuracy"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/features"
	"github.com/andresuchdata/autopo-py/forecast-go/pkg/logger"
)

const (
	// ForecastDays is the length of a recursive forecast.
	ForecastDays = 7
	// historyWindow is how many recent demand values seed the lags.
	historyWindow = 30
	// unknownLabel fills missing lead-time metadata.
	unknownLabel = "Unknown"
)

// DemandPredictor predicts demand for one context and horizon.
type DemandPredictor interface {
	Predict(c domain.DemandContext, horizon int) (domain.Prediction, error)
}

// LeadTimePredictor predicts supplier lead time for one context.
type LeadTimePredictor interface {
	Predict(c domain.LeadTimeContext) (domain.Prediction, error)
}

type seriesHistory struct {
	last      domain.SalesRecord
	recent    []float64
	meanPrice float64
}

// Recursive chains the one-day model over seven days, feeding each
// prediction back into the lag buffer of the next day.
type Recursive struct {
	demand   DemandPredictor
	leadTime LeadTimePredictor
	history  map[domain.SeriesKey]*seriesHistory
}

// NewRecursive indexes history by series. leadTime may be nil.
func NewRecursive(demand DemandPredictor, leadTime LeadTimePredictor, records []domain.SalesRecord) *Recursive {
	sorted := make([]domain.SalesRecord, len(records))
	copy(sorted, records)
	features.SortRecords(sorted)

	r := &Recursive{
		demand:   demand,
		leadTime: leadTime,
		history:  make(map[domain.SeriesKey]*seriesHistory),
	}

	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i].Key() == sorted[start].Key() {
			continue
		}
		group := sorted[start:i]
		from := max(0, len(group)-historyWindow)
		recent := make([]float64, 0, historyWindow)
		prices := make([]float64, len(group))
		for j, rec := range group {
			prices[j] = rec.ListPrice
			if j >= from {
				recent = append(recent, rec.DemandValue())
			}
		}
		r.history[group[0].Key()] = &seriesHistory{
			last:      group[len(group)-1],
			recent:    recent,
			meanPrice: stat.Mean(prices, nil),
		}
		start = i
	}
	return r
}

// HasSeries reports whether history exists for the store and SKU.
func (r *Recursive) HasSeries(storeID, skuID string) bool {
	_, ok := r.history[domain.SeriesKey{StoreID: storeID, SKUID: skuID}]
	return ok
}

// SeriesCount is the number of indexed series.
func (r *Recursive) SeriesCount() int {
	return len(r.history)
}

// PredictNext7Days forecasts start and the six following days in order.
// A series without history yields ErrNotFound and no partial result.
func (r *Recursive) PredictNext7Days(start time.Time, storeID, skuID, category, brand string) ([]domain.DailyForecast, error) {
	key := domain.SeriesKey{StoreID: storeID, SKUID: skuID}
	hist, ok := r.history[key]
	if !ok {
		return nil, fmt.Errorf("%w: no history for store=%s sku=%s", domain.ErrNotFound, storeID, skuID)
	}
	log := logger.Stage("recursive").With().Str("series", key.String()).Logger()

	buffer := append(make([]float64, 0, historyWindow+1), hist.recent...)
	out := make([]domain.DailyForecast, 0, ForecastDays)

	for d := 0; d < ForecastDays; d++ {
		date := start.AddDate(0, 0, d)
		c := demandContext(date, hist, buffer, storeID, skuID, category, brand)

		pred, err := r.demand.Predict(c, 1)
		if err != nil {
			return nil, fmt.Errorf("forecast day %d: %w", d+1, err)
		}

		day := domain.DailyForecast{
			Date:              date.Format(domain.DateLayout),
			UnitsSold:         accuracy.Round(pred.Value, 2),
			DemandAttribution: pred.Attribution,
		}
		log.Debug().Int("day", d+1).Str("date", day.Date).Float64("units", day.UnitsSold).Msg("demand forecast")

		buffer = append(buffer, pred.Value)
		if len(buffer) > historyWindow {
			buffer = buffer[1:]
		}

		if r.leadTime != nil {
			lt, err := r.leadTime.Predict(leadTimeContext(date, hist.last, storeID, skuID, category, brand))
			if err != nil {
				log.Warn().Err(err).Int("day", d+1).Msg("lead time prediction failed")
			} else {
				day.LeadTimeDays = domain.Float(accuracy.Round(lt.Value, 2))
				day.LeadTimeAttribution = lt.Attribution
			}
		}

		out = append(out, day)
	}
	return out, nil
}

// demandContext carries static attributes forward from the last observed
// row and derives lags and rolling windows from the buffer. Windows longer
// than the buffer stay unset.
func demandContext(date time.Time, hist *seriesHistory, buffer []float64, storeID, skuID, category, brand string) domain.DemandContext {
	cal := features.CalendarOf(date)
	last := hist.last

	c := domain.DemandContext{
		StoreID:  storeID,
		SKUID:    skuID,
		Category: category,
		Brand:    brand,

		Month:        domain.Float(float64(cal.Month)),
		Weekday:      domain.Float(float64(cal.Weekday)),
		Day:          domain.Float(float64(cal.Day)),
		IsWeekend:    domain.Float(cal.WeekendFlag()),
		IsHoliday:    domain.Float(0),
		Temperature:  domain.Float(last.Temperature),
		ListPrice:    domain.Float(last.ListPrice),
		DiscountPct:  domain.Float(last.DiscountPct),
		PromoFlag:    domain.Float(float64(last.PromoFlag)),
		StockOpening: domain.Float(last.StockOpening),

		DayOfYear:  domain.Float(float64(cal.DayOfYear)),
		WeekOfYear: domain.Float(float64(cal.WeekOfYear)),
		MonthSin:   domain.Float(cal.MonthSin),
		WeekdayCos: domain.Float(cal.WeekdayCos),

		PromoWeekend: domain.Float(float64(last.PromoFlag) * cal.WeekendFlag()),
	}

	n := len(buffer)
	for _, k := range domain.LagWindows {
		if n >= k {
			c.SetLag(k, buffer[n-k])
		}
	}
	for _, w := range domain.RollingWindows {
		if n >= w {
			window := buffer[n-w:]
			c.SetRolling(w, stat.Mean(window, nil), floats.Max(window))
		}
	}
	if c.RollingMean7 != nil && c.RollingMean14 != nil {
		c.Momentum714 = domain.Float(features.Momentum(*c.RollingMean7, *c.RollingMean14))
	}
	if ratio := features.PriceRatio(last.ListPrice, hist.meanPrice); domain.Finite(ratio) {
		c.PriceRatio = domain.Float(ratio)
	}
	return c
}

func leadTimeContext(date time.Time, last domain.SalesRecord, storeID, skuID, category, brand string) domain.LeadTimeContext {
	cal := features.CalendarOf(date)
	orDefault := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}

	return domain.LeadTimeContext{
		Date:        date.Format(domain.DateLayout),
		StoreID:     storeID,
		SKUID:       skuID,
		Country:     orDefault(last.Country, unknownLabel),
		City:        orDefault(last.City, unknownLabel),
		Channel:     orDefault(last.Channel, unknownLabel),
		SKUName:     orDefault(last.SKUName, skuID),
		Category:    category,
		Subcategory: orDefault(last.Subcategory, category),
		Brand:       brand,
		SupplierID:  orDefault(last.SupplierID, unknownLabel),

		Year:        domain.Float(float64(cal.Year)),
		Month:       domain.Float(float64(cal.Month)),
		Day:         domain.Float(float64(cal.Day)),
		WeekOfYear:  domain.Float(float64(cal.WeekOfYear)),
		Weekday:     domain.Float(float64(cal.Weekday)),
		IsWeekend:   domain.Float(cal.WeekendFlag()),
		IsHoliday:   domain.Float(0),
		Temperature: domain.Float(last.Temperature),
		RainMM:      domain.Float(last.RainMM),
		Latitude:    domain.Float(last.Latitude),
		Longitude:   domain.Float(last.Longitude),
	}
}
