package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func TestListLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReportService(f.store, f.catalog)

	_, err := f.ledger.StockIn(ctx, widgetID, 2, "")
	require.NoError(t, err)
	_, err = f.ledger.StockIn(ctx, gadgetID, 10, "")
	require.NoError(t, err)

	low, err := reports.ListLowStock(ctx)
	require.NoError(t, err)

	require.Len(t, low, 1)
	assert.Equal(t, widgetID, low[0].ProductID)
	assert.Equal(t, int64(2), low[0].Quantity)
	assert.Equal(t, "Widget", low[0].Name)
	assert.Equal(t, "WID-1", low[0].SKU)
}

func TestListLowStock_OrderAndInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReportService(f.store, f.catalog)

	f.catalog.Put(domain.Product{ID: 3, Name: "Sprocket", SKU: "SPR-1", UnitPrice: decimal.NewFromInt(1), Active: true})
	require.NoError(t, f.ledger.EnsureRecord(ctx, 3))
	_, err := f.ledger.StockIn(ctx, widgetID, 4, "")
	require.NoError(t, err)
	_, err = f.ledger.StockIn(ctx, gadgetID, 1, "")
	require.NoError(t, err)

	low, err := reports.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 3)
	assert.Equal(t, []int64{3, gadgetID, widgetID}, []int64{low[0].ProductID, low[1].ProductID, low[2].ProductID})
	assert.True(t, low[0].IsOutOfStock())

	f.catalog.SetActive(gadgetID, false)
	low, err = reports.ListLowStock(ctx)
	require.NoError(t, err)
	assert.Len(t, low, 2)
}

func TestSummarize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReportService(f.store, f.catalog)

	// gadget (price 5.00) never gets an inventory record
	_, err := f.ledger.StockIn(ctx, widgetID, 10, "")
	require.NoError(t, err)

	summary, err := reports.Summarize(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalActiveProducts)
	assert.Equal(t, int64(10), summary.TotalUnits)
	assert.True(t, decimal.RequireFromString("20.00").Equal(summary.TotalValue), "got %s", summary.TotalValue)
}

func TestSummarize_ExcludesInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReportService(f.store, f.catalog)

	_, err := f.ledger.StockIn(ctx, widgetID, 10, "")
	require.NoError(t, err)
	_, err = f.ledger.StockIn(ctx, gadgetID, 3, "")
	require.NoError(t, err)
	f.catalog.SetActive(gadgetID, false)

	summary, err := reports.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalActiveProducts)
	assert.Equal(t, int64(10), summary.TotalUnits)
	assert.True(t, decimal.NewFromInt(20).Equal(summary.TotalValue))
}

func TestListAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reports := NewReportService(f.store, f.catalog)

	_, err := f.ledger.StockIn(ctx, widgetID, 7, "")
	require.NoError(t, err)

	all, err := reports.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	// ordered by name
	assert.Equal(t, "Gadget", all[0].Name)
	assert.Equal(t, int64(0), all[0].Quantity)
	assert.Equal(t, domain.DefaultMinStockLevel, all[0].MinStockLevel)
	assert.Equal(t, "Widget", all[1].Name)
	assert.Equal(t, int64(7), all[1].Quantity)
}

type unreachableCatalog struct {
	*storage.MemoryCatalog
}

func (unreachableCatalog) DisplayInfo(context.Context, int64) (domain.DisplayInfo, error) {
	return domain.DisplayInfo{}, errors.New("catalog: connection refused")
}

func TestListLowStock_CatalogFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ledger.EnsureRecord(ctx, widgetID))

	reports := NewReportService(f.store, unreachableCatalog{f.catalog})
	_, err := reports.ListLowStock(ctx)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}
