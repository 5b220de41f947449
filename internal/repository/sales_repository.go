package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
)

// SalesFilter narrows a history query. Zero values match everything.
type SalesFilter struct {
	StoreID string
	SKUID   string
	From    *time.Time
	To      *time.Time
}

type SalesRepository interface {
	ListSales(ctx context.Context, filter SalesFilter) ([]domain.SalesRecord, error)
	SaveSales(ctx context.Context, records []domain.SalesRecord) (int, error)
}
