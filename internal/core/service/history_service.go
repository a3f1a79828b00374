package service

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const DefaultRecentLimit = 50

// HistoryService answers read-only queries over the transaction log.
type HistoryService struct {
	transactions port.TransactionRepository
	catalog      port.Catalog
}

func NewHistoryService(transactions port.TransactionRepository, catalog port.Catalog) *HistoryService {
	return &HistoryService{transactions: transactions, catalog: catalog}
}

func (h *HistoryService) Recent(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	list, err := h.transactions.ListRecent(ctx, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "recent transactions", Err: err}
	}
	return h.withNames(ctx, list)
}

// ByProduct also serves products that have since been removed from the catalog.
func (h *HistoryService) ByProduct(ctx context.Context, productID int64) ([]domain.Transaction, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}

	list, err := h.transactions.ListByProduct(ctx, productID)
	if err != nil {
		return nil, &domain.StorageError{Op: "product transactions", Err: err}
	}
	return h.withNames(ctx, list)
}

// ByDateRange includes both bounds. A `to` at exactly midnight names a whole
// day and is widened to the last instant of that day.
func (h *HistoryService) ByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	if from.After(to) {
		return nil, domain.InvalidInputError("start date %s is after end date %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if isMidnight(to) {
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	list, err := h.transactions.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, &domain.StorageError{Op: "transactions by date", Err: err}
	}
	return h.withNames(ctx, list)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// withNames fills ProductName from the catalog. Unknown products keep an empty name.
func (h *HistoryService) withNames(ctx context.Context, list []domain.Transaction) ([]domain.Transaction, error) {
	names := make(map[int64]string)
	for i := range list {
		id := list[i].ProductID
		name, ok := names[id]
		if !ok {
			info, err := h.catalog.DisplayInfo(ctx, id)
			switch {
			case err == nil:
				name = info.Name
			case errors.Is(err, domain.ErrNotFound):
			default:
				return nil, &domain.StorageError{Op: "catalog lookup", Err: err}
			}
			names[id] = name
		}
		list[i].ProductName = name
	}
	return list, nil
}
