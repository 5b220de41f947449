package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on every external surface.
const DateLayout = "2006-01-02"

// SeriesKey identifies one (store, SKU) demand series.
type SeriesKey struct {
	StoreID string `json:"store_id"`
	SKUID   string `json:"sku_id"`
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%s", k.StoreID, k.SKUID)
}

// SalesRecord represents one store, SKU and day of sales history
type SalesRecord struct {
	Date         time.Time `json:"date" db:"date"`
	StoreID      string    `json:"store_id" db:"store_id"`
	SKUID        string    `json:"sku_id" db:"sku_id"`
	Category     string    `json:"category" db:"category"`
	Brand        string    `json:"brand" db:"brand"`
	UnitsSold    float64   `json:"units_sold" db:"units_sold"`
	StockOpening float64   `json:"stock_opening" db:"stock_opening"`
	StockOut     bool      `json:"stock_out_flag" db:"stock_out_flag"`
	ListPrice    float64   `json:"list_price" db:"list_price"`
	DiscountPct  float64   `json:"discount_pct" db:"discount_pct"`
	PromoFlag    int       `json:"promo_flag" db:"promo_flag"`
	Temperature  float64   `json:"temperature" db:"temperature"`
	Weekday      int       `json:"weekday" db:"weekday"`
	IsWeekend    int       `json:"is_weekend" db:"is_weekend"`
	IsHoliday    int       `json:"is_holiday" db:"is_holiday"`

	Country      string   `json:"country" db:"country"`
	City         string   `json:"city" db:"city"`
	Channel      string   `json:"channel" db:"channel"`
	Latitude     float64  `json:"latitude" db:"latitude"`
	Longitude    float64  `json:"longitude" db:"longitude"`
	SKUName      string   `json:"sku_name" db:"sku_name"`
	Subcategory  string   `json:"subcategory" db:"subcategory"`
	SupplierID   string   `json:"supplier_id" db:"supplier_id"`
	RainMM       float64  `json:"rain_mm" db:"rain_mm"`
	LeadTimeDays *float64 `json:"lead_time_days,omitempty" db:"lead_time_days"`

	AdjustedDemand *float64 `json:"adjusted_demand,omitempty" db:"-"`
}

// Key returns the series the record belongs to.
func (r SalesRecord) Key() SeriesKey {
	return SeriesKey{StoreID: r.StoreID, SKUID: r.SKUID}
}

// DemandValue returns adjusted demand when imputed, otherwise raw sales.
func (r SalesRecord) DemandValue() float64 {
	if r.AdjustedDemand != nil {
		return *r.AdjustedDemand
	}
	return r.UnitsSold
}

// Feature returns a numeric model input by column name.
func (r SalesRecord) Feature(name string) (float64, bool) {
	switch name {
	case FeatureYear:
		return float64(r.Date.Year()), true
	case FeatureMonth:
		return float64(r.Date.Month()), true
	case FeatureDay:
		return float64(r.Date.Day()), true
	case FeatureWeekOfYear:
		_, week := r.Date.ISOWeek()
		return float64(week), true
	case FeatureWeekday:
		return float64(r.Weekday), true
	case FeatureIsWeekend:
		return float64(r.IsWeekend), true
	case FeatureIsHoliday:
		return float64(r.IsHoliday), true
	case FeatureTemperature:
		return r.Temperature, true
	case FeatureListPrice:
		return r.ListPrice, true
	case FeatureDiscountPct:
		return r.DiscountPct, true
	case FeaturePromoFlag:
		return float64(r.PromoFlag), true
	case FeatureStockOpening:
		return r.StockOpening, true
	case FeatureRainMM:
		return r.RainMM, true
	case FeatureLatitude:
		return r.Latitude, true
	case FeatureLongitude:
		return r.Longitude, true
	case "units_sold":
		return r.UnitsSold, true
	case "lead_time_days":
		if r.LeadTimeDays == nil {
			return 0, false
		}
		return *r.LeadTimeDays, true
	}
	return 0, false
}

// Label returns a categorical model input by column name.
func (r SalesRecord) Label(name string) (string, bool) {
	switch name {
	case FeatureStoreID:
		return r.StoreID, true
	case FeatureSKUID:
		return r.SKUID, true
	case FeatureCategory:
		return r.Category, true
	case FeatureBrand:
		return r.Brand, true
	case FeatureCountry:
		return r.Country, true
	case FeatureCity:
		return r.City, true
	case FeatureChannel:
		return r.Channel, true
	case FeatureSKUName:
		return r.SKUName, true
	case FeatureSubcategory:
		return r.Subcategory, true
	case FeatureSupplierID:
		return r.SupplierID, true
	}
	return "", false
}

// WeekdayIndex maps a date to Monday = 0 ... Sunday = 6.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Float returns a pointer to v, for optional context fields.
func Float(v float64) *float64 {
	return &v
}
