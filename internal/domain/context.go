package domain

import (
	"math"
	"time"
)

// DemandContext is the input of a single demand prediction. Numeric fields
// are optional; an unset field is fed to the model as 0.
type DemandContext struct {
	StoreID  string `json:"store_id" validate:"required"`
	SKUID    string `json:"sku_id" validate:"required"`
	Category string `json:"category"`
	Brand    string `json:"brand"`

	Month        *float64 `json:"month,omitempty" validate:"omitempty,min=1,max=12"`
	Weekday      *float64 `json:"weekday,omitempty" validate:"omitempty,min=0,max=6"`
	Day          *float64 `json:"day,omitempty" validate:"omitempty,min=1,max=31"`
	IsWeekend    *float64 `json:"is_weekend,omitempty"`
	IsHoliday    *float64 `json:"is_holiday,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	ListPrice    *float64 `json:"list_price,omitempty" validate:"omitempty,min=0"`
	DiscountPct  *float64 `json:"discount_pct,omitempty"`
	PromoFlag    *float64 `json:"promo_flag,omitempty"`
	StockOpening *float64 `json:"stock_opening,omitempty"`

	DayOfYear  *float64 `json:"dayofyear,omitempty"`
	WeekOfYear *float64 `json:"weekofyear,omitempty"`
	MonthSin   *float64 `json:"month_sin,omitempty"`
	WeekdayCos *float64 `json:"weekday_cos,omitempty"`

	Lag1   *float64 `json:"lag_1,omitempty"`
	Lag7   *float64 `json:"lag_7,omitempty"`
	Lag14  *float64 `json:"lag_14,omitempty"`
	Lag21  *float64 `json:"lag_21,omitempty"`
	Lag28  *float64 `json:"lag_28,omitempty"`
	Lag364 *float64 `json:"lag_364,omitempty"`

	RollingMean7  *float64 `json:"rolling_mean_7,omitempty"`
	RollingMax7   *float64 `json:"rolling_max_7,omitempty"`
	RollingMean14 *float64 `json:"rolling_mean_14,omitempty"`
	RollingMax14  *float64 `json:"rolling_max_14,omitempty"`
	RollingMean30 *float64 `json:"rolling_mean_30,omitempty"`
	RollingMax30  *float64 `json:"rolling_max_30,omitempty"`

	PromoWeekend *float64 `json:"promo_weekend,omitempty"`
	PriceRatio   *float64 `json:"price_ratio,omitempty"`
	Momentum714  *float64 `json:"momentum_7_14,omitempty"`
}

func (c *DemandContext) numeric() map[string]*float64 {
	return map[string]*float64{
		FeatureMonth:        c.Month,
		FeatureWeekday:      c.Weekday,
		FeatureDay:          c.Day,
		FeatureIsWeekend:    c.IsWeekend,
		FeatureIsHoliday:    c.IsHoliday,
		FeatureTemperature:  c.Temperature,
		FeatureListPrice:    c.ListPrice,
		FeatureDiscountPct:  c.DiscountPct,
		FeaturePromoFlag:    c.PromoFlag,
		FeatureStockOpening: c.StockOpening,
		FeatureDayOfYear:    c.DayOfYear,
		FeatureWeekOfYear:   c.WeekOfYear,
		FeatureMonthSin:     c.MonthSin,
		FeatureWeekdayCos:   c.WeekdayCos,
		LagFeature(1):       c.Lag1,
		LagFeature(7):       c.Lag7,
		LagFeature(14):      c.Lag14,
		LagFeature(21):      c.Lag21,
		LagFeature(28):      c.Lag28,
		LagFeature(YearLag): c.Lag364,
		RollingMeanFeature(7):  c.RollingMean7,
		RollingMaxFeature(7):   c.RollingMax7,
		RollingMeanFeature(14): c.RollingMean14,
		RollingMaxFeature(14):  c.RollingMax14,
		RollingMeanFeature(30): c.RollingMean30,
		RollingMaxFeature(30):  c.RollingMax30,
		FeaturePromoWeekend: c.PromoWeekend,
		FeaturePriceRatio:   c.PriceRatio,
		FeatureMomentum:     c.Momentum714,
	}
}

// Value returns the numeric field for a feature name, if set.
func (c DemandContext) Value(name string) (float64, bool) {
	p, ok := c.numeric()[name]
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}

// Label returns the categorical field for a feature name.
func (c DemandContext) Label(name string) (string, bool) {
	switch name {
	case FeatureStoreID:
		return c.StoreID, true
	case FeatureSKUID:
		return c.SKUID, true
	case FeatureCategory:
		return c.Category, true
	case FeatureBrand:
		return c.Brand, true
	}
	return "", false
}

// SetLag stores a lag value by window; unknown windows are ignored.
func (c *DemandContext) SetLag(k int, v float64) {
	switch k {
	case 1:
		c.Lag1 = Float(v)
	case 7:
		c.Lag7 = Float(v)
	case 14:
		c.Lag14 = Float(v)
	case 21:
		c.Lag21 = Float(v)
	case 28:
		c.Lag28 = Float(v)
	case YearLag:
		c.Lag364 = Float(v)
	}
}

// SetRolling stores trailing mean and max by window; unknown windows are ignored.
func (c *DemandContext) SetRolling(w int, mean, max float64) {
	switch w {
	case 7:
		c.RollingMean7, c.RollingMax7 = Float(mean), Float(max)
	case 14:
		c.RollingMean14, c.RollingMax14 = Float(mean), Float(max)
	case 30:
		c.RollingMean30, c.RollingMax30 = Float(mean), Float(max)
	}
}

// LeadTimeContext is the input of a single lead-time prediction. When Date
// is set, unset calendar fields are derived from it.
type LeadTimeContext struct {
	Date string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`

	StoreID     string `json:"store_id" validate:"required"`
	SKUID       string `json:"sku_id" validate:"required"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Channel     string `json:"channel"`
	SKUName     string `json:"sku_name"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Brand       string `json:"brand"`
	SupplierID  string `json:"supplier_id"`

	Year        *float64 `json:"year,omitempty"`
	Month       *float64 `json:"month,omitempty"`
	Day         *float64 `json:"day,omitempty"`
	WeekOfYear  *float64 `json:"weekofyear,omitempty"`
	Weekday     *float64 `json:"weekday,omitempty"`
	IsWeekend   *float64 `json:"is_weekend,omitempty"`
	IsHoliday   *float64 `json:"is_holiday,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	RainMM      *float64 `json:"rain_mm,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

func (c *LeadTimeContext) numeric() map[string]*float64 {
	return map[string]*float64{
		FeatureYear:        c.Year,
		FeatureMonth:       c.Month,
		FeatureDay:         c.Day,
		FeatureWeekOfYear:  c.WeekOfYear,
		FeatureWeekday:     c.Weekday,
		FeatureIsWeekend:   c.IsWeekend,
		FeatureIsHoliday:   c.IsHoliday,
		FeatureTemperature: c.Temperature,
		FeatureRainMM:      c.RainMM,
		FeatureLatitude:    c.Latitude,
		FeatureLongitude:   c.Longitude,
	}
}

// Value returns the numeric field for a feature name, if set.
func (c LeadTimeContext) Value(name string) (float64, bool) {
	if c.Date != "" {
		if t, err := time.Parse(DateLayout, c.Date); err == nil {
			c.fillCalendar(t)
		}
	}
	p, ok := c.numeric()[name]
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}

// Label returns the categorical field for a feature name.
func (c LeadTimeContext) Label(name string) (string, bool) {
	switch name {
	case FeatureStoreID:
		return c.StoreID, true
	case FeatureSKUID:
		return c.SKUID, true
	case FeatureCountry:
		return c.Country, true
	case FeatureCity:
		return c.City, true
	case FeatureChannel:
		return c.Channel, true
	case FeatureSKUName:
		return c.SKUName, true
	case FeatureCategory:
		return c.Category, true
	case FeatureSubcategory:
		return c.Subcategory, true
	case FeatureBrand:
		return c.Brand, true
	case FeatureSupplierID:
		return c.SupplierID, true
	}
	return "", false
}

func (c *LeadTimeContext) fillCalendar(t time.Time) {
	_, week := t.ISOWeek()
	weekday := WeekdayIndex(t)
	weekend := 0.0
	if weekday >= 5 {
		weekend = 1
	}
	fill := func(dst **float64, v float64) {
		if *dst == nil {
			*dst = Float(v)
		}
	}
	fill(&c.Year, float64(t.Year()))
	fill(&c.Month, float64(t.Month()))
	fill(&c.Day, float64(t.Day()))
	fill(&c.WeekOfYear, float64(week))
	fill(&c.Weekday, float64(weekday))
	fill(&c.IsWeekend, weekend)
}

// Finite reports whether v is a usable number.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
