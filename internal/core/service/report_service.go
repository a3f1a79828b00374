package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// ReportService builds low-stock and valuation views from the store and
// the catalog. Only active catalog products are reported.
type ReportService struct {
	inventory port.InventoryRepository
	catalog   port.Catalog
}

func NewReportService(inventory port.InventoryRepository, catalog port.Catalog) *ReportService {
	return &ReportService{inventory: inventory, catalog: catalog}
}

// ListLowStock returns records with quantity at or below their threshold,
// lowest quantity first.
func (r *ReportService) ListLowStock(ctx context.Context) ([]domain.Inventory, error) {
	records, err := r.inventory.ListLowStock(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list low stock", Err: err}
	}

	list := make([]domain.Inventory, 0, len(records))
	for _, rec := range records {
		info, err := r.catalog.DisplayInfo(ctx, rec.ProductID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, &domain.StorageError{Op: "catalog lookup", Err: err}
		}
		rec.Name, rec.SKU = info.Name, info.SKU
		list = append(list, rec)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Quantity != list[j].Quantity {
			return list[i].Quantity < list[j].Quantity
		}
		return list[i].ProductID < list[j].ProductID
	})
	return list, nil
}

// ListAll returns a record for every active product, ordered by name.
// Products without a stored record appear with quantity 0.
func (r *ReportService) ListAll(ctx context.Context) ([]domain.Inventory, error) {
	products, err := r.catalog.ListActive(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list catalog", Err: err}
	}
	records, err := r.recordsByProduct(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]domain.Inventory, 0, len(products))
	for _, p := range products {
		rec, ok := records[p.ID]
		if !ok {
			rec = domain.NewInventory(p.ID, time.Time{})
		}
		rec.Name, rec.SKU = p.Name, p.SKU
		list = append(list, rec)
	}
	return list, nil
}

// Summarize totals units and value over active products. A product with no
// inventory record counts as zero units. Prices are read from ListActive.
func (r *ReportService) Summarize(ctx context.Context) (domain.Summary, error) {
	products, err := r.catalog.ListActive(ctx)
	if err != nil {
		return domain.Summary{}, &domain.StorageError{Op: "list catalog", Err: err}
	}
	records, err := r.recordsByProduct(ctx)
	if err != nil {
		return domain.Summary{}, err
	}

	summary := domain.Summary{TotalValue: decimal.Zero}
	for _, p := range products {
		qty := records[p.ID].Quantity
		summary.TotalActiveProducts++
		summary.TotalUnits += qty
		summary.TotalValue = summary.TotalValue.Add(p.UnitPrice.Mul(decimal.NewFromInt(qty)))
	}
	return summary, nil
}

func (r *ReportService) recordsByProduct(ctx context.Context) (map[int64]domain.Inventory, error) {
	records, err := r.inventory.ListInventory(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list inventory", Err: err}
	}
	byID := make(map[int64]domain.Inventory, len(records))
	for _, rec := range records {
		byID[rec.ProductID] = rec
	}
	return byID, nil
}
