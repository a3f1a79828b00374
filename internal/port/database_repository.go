package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// InventoryRepository owns the inventory table. Every movement method performs
// the quantity change and the matching transaction append as one atomic unit.
type InventoryRepository interface {
	// StockIn increments quantity (creating the record if missing) and appends an IN transaction
	StockIn(ctx context.Context, productID, quantity int64, notes string, at time.Time) (domain.Transaction, error)

	// StockOut decrements quantity only if enough is on hand, and appends an OUT transaction.
	// Returns *domain.InsufficientStockError when the conditional decrement does not apply.
	StockOut(ctx context.Context, productID, quantity int64, notes string, at time.Time) (domain.Transaction, error)

	// SetMinStockLevel updates the low-stock threshold, creating the record if missing
	SetMinStockLevel(ctx context.Context, productID, minLevel int64, at time.Time) error

	// EnsureInventory creates the quantity-0 record if it does not exist yet
	EnsureInventory(ctx context.Context, productID int64, at time.Time) error

	// GetInventory returns nil when the product has no record
	GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error)

	ListInventory(ctx context.Context) ([]domain.Inventory, error)

	// ListLowStock returns records with quantity <= min_stock_level, ascending quantity
	ListLowStock(ctx context.Context) ([]domain.Inventory, error)

	// Snapshot reads every record together with the per-product net of the
	// transaction log, both from the same consistent view.
	Snapshot(ctx context.Context) (domain.LedgerSnapshot, error)
}

// TransactionRepository is the read side of the append-only transaction log.
// All listings are ordered newest first.
type TransactionRepository interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Transaction, error)
	ListByProduct(ctx context.Context, productID int64) ([]domain.Transaction, error)

	// ListByDateRange includes both bounds
	ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
}
