package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/repository"
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

type salesRepository struct {
	db    *DB
	table string
}

// NewSalesRepository reads and writes daily sales in table, sales_fact by
// default.
func NewSalesRepository(db *DB, table string) (*salesRepository, error) {
	if table == "" {
		table = "sales_fact"
	}
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", domain.ErrConfiguration, table)
	}
	return &salesRepository{db: db, table: table}, nil
}

// salesRow tolerates NULLs in optional warehouse columns.
type salesRow struct {
	Date         time.Time       `db:"date"`
	StoreID      string          `db:"store_id"`
	SKUID        string          `db:"sku_id"`
	Category     sql.NullString  `db:"category"`
	Brand        sql.NullString  `db:"brand"`
	UnitsSold    sql.NullFloat64 `db:"units_sold"`
	StockOpening sql.NullFloat64 `db:"stock_opening"`
	StockOut     sql.NullBool    `db:"stock_out_flag"`
	ListPrice    sql.NullFloat64 `db:"list_price"`
	DiscountPct  sql.NullFloat64 `db:"discount_pct"`
	PromoFlag    sql.NullInt64   `db:"promo_flag"`
	Temperature  sql.NullFloat64 `db:"temperature"`
	Weekday      sql.NullInt64   `db:"weekday"`
	IsWeekend    sql.NullInt64   `db:"is_weekend"`
	IsHoliday    sql.NullInt64   `db:"is_holiday"`
	Country      sql.NullString  `db:"country"`
	City         sql.NullString  `db:"city"`
	Channel      sql.NullString  `db:"channel"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
	SKUName      sql.NullString  `db:"sku_name"`
	Subcategory  sql.NullString  `db:"subcategory"`
	SupplierID   sql.NullString  `db:"supplier_id"`
	RainMM       sql.NullFloat64 `db:"rain_mm"`
	LeadTimeDays sql.NullFloat64 `db:"lead_time_days"`
}

func (r salesRow) record() domain.SalesRecord {
	rec := domain.SalesRecord{
		Date:         time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 0, 0, 0, 0, time.UTC),
		StoreID:      r.StoreID,
		SKUID:        r.SKUID,
		Category:     r.Category.String,
		Brand:        r.Brand.String,
		UnitsSold:    r.UnitsSold.Float64,
		StockOpening: r.StockOpening.Float64,
		StockOut:     r.StockOut.Bool,
		ListPrice:    r.ListPrice.Float64,
		DiscountPct:  r.DiscountPct.Float64,
		PromoFlag:    int(r.PromoFlag.Int64),
		Temperature:  r.Temperature.Float64,
		Weekday:      int(r.Weekday.Int64),
		IsWeekend:    int(r.IsWeekend.Int64),
		IsHoliday:    int(r.IsHoliday.Int64),
		Country:      r.Country.String,
		City:         r.City.String,
		Channel:      r.Channel.String,
		Latitude:     r.Latitude.Float64,
		Longitude:    r.Longitude.Float64,
		SKUName:      r.SKUName.String,
		Subcategory:  r.Subcategory.String,
		SupplierID:   r.SupplierID.String,
		RainMM:       r.RainMM.Float64,
	}
	if !r.Weekday.Valid {
		rec.Weekday = domain.WeekdayIndex(rec.Date)
	}
	if r.LeadTimeDays.Valid {
		rec.LeadTimeDays = domain.Float(r.LeadTimeDays.Float64)
	}
	return rec
}

var salesColumns = []string{
	"date", "store_id", "sku_id", "category", "brand",
	"units_sold", "stock_opening", "stock_out_flag", "list_price", "discount_pct",
	"promo_flag", "temperature", "weekday", "is_weekend", "is_holiday",
	"country", "city", "channel", "latitude", "longitude",
	"sku_name", "subcategory", "supplier_id", "rain_mm", "lead_time_days",
}

// listQuery builds the history query for filter. Placeholders use ? and are
// rebound by the caller.
func listQuery(table string, filter repository.SalesFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.StoreID != "" {
		where = append(where, "store_id = ?")
		args = append(args, filter.StoreID)
	}
	if filter.SKUID != "" {
		where = append(where, "sku_id = ?")
		args = append(args, filter.SKUID)
	}
	if filter.From != nil {
		where = append(where, "date >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, "date <= ?")
		args = append(args, *filter.To)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(salesColumns, ", "), table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query + " ORDER BY store_id, sku_id, date", args
}

func (r *salesRepository) ListSales(ctx context.Context, filter repository.SalesFilter) ([]domain.SalesRecord, error) {
	query, args := listQuery(r.table, filter)

	var rows []salesRow
	err := r.db.withSlot(ctx, func() error {
		return r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.table, err)
	}

	records := make([]domain.SalesRecord, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return records, nil
}

// SaveSales upserts records keyed by (date, store_id, sku_id).
func (r *salesRepository) SaveSales(ctx context.Context, records []domain.SalesRecord) (int, error) {
	placeholders := make([]string, len(salesColumns))
	updates := make([]string, 0, len(salesColumns)-3)
	for i, col := range salesColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if i >= 3 {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT (date, store_id, sku_id)
		DO UPDATE SET %s
	`, r.table, strings.Join(salesColumns, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	saved := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			var leadTime sql.NullFloat64
			if rec.LeadTimeDays != nil {
				leadTime = sql.NullFloat64{Float64: *rec.LeadTimeDays, Valid: true}
			}
			_, err := stmt.ExecContext(ctx,
				rec.Date, rec.StoreID, rec.SKUID, rec.Category, rec.Brand,
				rec.UnitsSold, rec.StockOpening, rec.StockOut, rec.ListPrice, rec.DiscountPct,
				rec.PromoFlag, rec.Temperature, rec.Weekday, rec.IsWeekend, rec.IsHoliday,
				rec.Country, rec.City, rec.Channel, rec.Latitude, rec.Longitude,
				rec.SKUName, rec.Subcategory, rec.SupplierID, rec.RainMM, leadTime,
			)
			if err != nil {
				return fmt.Errorf("failed to insert record %s %s: %w", rec.Key(), rec.Date.Format(domain.DateLayout), err)
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return saved, nil
}

var _ repository.SalesRepository = (*salesRepository)(nil)
