package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/repository"
)

func TestNewSalesRepositoryRejectsBadTable(t *testing.T) {
	_, err := NewSalesRepository(nil, "sales; DROP TABLE x")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	repo, err := NewSalesRepository(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "sales_fact", repo.table)

	_, err = NewSalesRepository(nil, "warehouse.sales_fact")
	assert.NoError(t, err)
}

func TestListQuery(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	query, args := listQuery("sales_fact", repository.SalesFilter{})
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, args)

	query, args = listQuery("sales_fact", repository.SalesFilter{StoreID: "S1", From: &from})
	assert.Contains(t, query, "WHERE store_id = ? AND date >= ?")
	assert.Contains(t, query, "ORDER BY store_id, sku_id, date")
	assert.Equal(t, []any{"S1", from}, args)
}

func TestSalesRowDefaults(t *testing.T) {
	row := salesRow{Date: time.Date(2024, 3, 2, 15, 0, 0, 0, time.UTC), StoreID: "S1", SKUID: "A"}
	rec := row.record()

	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), rec.Date)
	assert.Equal(t, 5, rec.Weekday, "derived from the date when the column is NULL")
	assert.Nil(t, rec.LeadTimeDays)
	assert.Empty(t, rec.Category)
}

func TestSalesRepositoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if os.Getenv("INTEGRATION_TEST") == "" || dsn == "" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=1 and DATABASE_URL to run")
	}

	ctx := context.Background()
	db, err := Connect(dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sales_fact_test (
			date DATE, store_id TEXT, sku_id TEXT, category TEXT, brand TEXT,
			units_sold DOUBLE PRECISION, stock_opening DOUBLE PRECISION, stock_out_flag BOOLEAN,
			list_price DOUBLE PRECISION, discount_pct DOUBLE PRECISION, promo_flag INTEGER,
			temperature DOUBLE PRECISION, weekday INTEGER, is_weekend INTEGER, is_holiday INTEGER,
			country TEXT, city TEXT, channel TEXT, latitude DOUBLE PRECISION, longitude DOUBLE PRECISION,
			sku_name TEXT, subcategory TEXT, supplier_id TEXT, rain_mm DOUBLE PRECISION,
			lead_time_days DOUBLE PRECISION,
			PRIMARY KEY (date, store_id, sku_id)
		)`)
	require.NoError(t, err)
	defer db.ExecContext(ctx, "DROP TABLE sales_fact_test")

	repo, err := NewSalesRepository(db, "sales_fact_test")
	require.NoError(t, err)

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	n, err := repo.SaveSales(ctx, []domain.SalesRecord{
		{Date: day, StoreID: "S1", SKUID: "A", UnitsSold: 4, LeadTimeDays: domain.Float(3)},
		{Date: day, StoreID: "S1", SKUID: "B", UnitsSold: 7, StockOut: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.ListSales(ctx, repository.SalesFilter{SKUID: "A"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4.0, got[0].UnitsSold)
	require.NotNil(t, got[0].LeadTimeDays)
	assert.Equal(t, 3.0, *got[0].LeadTimeDays)
}
