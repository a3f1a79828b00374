package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// Catalog is the read-only view of the product catalog. Soft-deleted products
// are reported as missing: Exists returns false and the lookups return
// domain.ErrNotFound.
type Catalog interface {
	Exists(ctx context.Context, productID int64) (bool, error)
	UnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	DisplayInfo(ctx context.Context, productID int64) (domain.DisplayInfo, error)
	ListActive(ctx context.Context) ([]domain.Product, error)
}
