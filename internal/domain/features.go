package domain

import "fmt"

// Column names shared by the datasets, the feature engine and the models.
const (
	FeatureYear         = "year"
	FeatureMonth        = "month"
	FeatureDay          = "day"
	FeatureWeekOfYear   = "weekofyear"
	FeatureDayOfYear    = "dayofyear"
	FeatureWeekday      = "weekday"
	FeatureIsWeekend    = "is_weekend"
	FeatureIsHoliday    = "is_holiday"
	FeatureTemperature  = "temperature"
	FeatureListPrice    = "list_price"
	FeatureDiscountPct  = "discount_pct"
	FeaturePromoFlag    = "promo_flag"
	FeatureStockOpening = "stock_opening"
	FeatureRainMM       = "rain_mm"
	FeatureLatitude     = "latitude"
	FeatureLongitude    = "longitude"

	FeatureStoreID     = "store_id"
	FeatureSKUID       = "sku_id"
	FeatureCategory    = "category"
	FeatureBrand       = "brand"
	FeatureCountry     = "country"
	FeatureCity        = "city"
	FeatureChannel     = "channel"
	FeatureSKUName     = "sku_name"
	FeatureSubcategory = "subcategory"
	FeatureSupplierID  = "supplier_id"

	FeatureMonthSin     = "month_sin"
	FeatureWeekdayCos   = "weekday_cos"
	FeaturePromoWeekend = "promo_weekend"
	FeaturePriceRatio   = "price_ratio"
	FeatureMomentum     = "momentum_7_14"
)

// LagWindows are the lags derived for every series. Lag 364 is added only
// when a series is long enough.
var LagWindows = []int{1, 7, 14, 21, 28}

// YearLag is the seasonal lag enabled for long histories.
const YearLag = 364

// RollingWindows are the trailing window sizes for rolling statistics.
var RollingWindows = []int{7, 14, 30}

// LagFeature returns the column name of the k-day lag.
func LagFeature(k int) string {
	return fmt.Sprintf("lag_%d", k)
}

// RollingMeanFeature returns the column name of the w-day trailing mean.
func RollingMeanFeature(w int) string {
	return fmt.Sprintf("rolling_mean_%d", w)
}

// RollingMaxFeature returns the column name of the w-day trailing max.
func RollingMaxFeature(w int) string {
	return fmt.Sprintf("rolling_max_%d", w)
}
