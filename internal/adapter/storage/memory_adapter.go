package storage

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type memoryRow struct {
	id  int64
	mu  sync.Mutex
	inv domain.Inventory
}

// MemoryAdapter keeps the inventory table and transaction log in process.
// Each product has its own mutex; movements hold it across the check, the
// log append and the quantity change. Lock order is row, then log.
type MemoryAdapter struct {
	rowsMu sync.RWMutex
	rows   map[int64]*memoryRow

	logMu  sync.RWMutex
	log    []domain.Transaction
	nextID int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{rows: make(map[int64]*memoryRow)}
}

func (m *MemoryAdapter) row(productID int64) *memoryRow {
	m.rowsMu.RLock()
	r := m.rows[productID]
	m.rowsMu.RUnlock()
	return r
}

func (m *MemoryAdapter) rowOrCreate(productID int64, at time.Time) *memoryRow {
	if r := m.row(productID); r != nil {
		return r
	}

	m.rowsMu.Lock()
	defer m.rowsMu.Unlock()
	if r, ok := m.rows[productID]; ok {
		return r
	}
	r := &memoryRow{id: productID, inv: domain.NewInventory(productID, at)}
	m.rows[productID] = r
	return r
}

func (m *MemoryAdapter) appendLog(txn domain.Transaction) domain.Transaction {
	m.logMu.Lock()
	defer m.logMu.Unlock()

	m.nextID++
	txn.ID = m.nextID
	m.log = append(m.log, txn)
	return txn
}

func (m *MemoryAdapter) StockIn(ctx context.Context, productID, quantity int64, notes string, at time.Time) (domain.Transaction, error) {
	r := m.rowOrCreate(productID, at)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}
	if quantity > math.MaxInt64-r.inv.Quantity {
		return domain.Transaction{}, quantityOverflow(productID, r.inv.Quantity, quantity)
	}

	txn := m.appendLog(domain.Transaction{
		ProductID: productID,
		Direction: domain.DirectionIn,
		Quantity:  quantity,
		Notes:     notes,
		CreatedAt: at,
	})
	r.inv.Quantity += quantity
	r.inv.LastUpdated = at
	return txn, nil
}

func (m *MemoryAdapter) StockOut(ctx context.Context, productID, quantity int64, notes string, at time.Time) (domain.Transaction, error) {
	r := m.row(productID)
	if r == nil {
		return domain.Transaction{}, &domain.InsufficientStockError{ProductID: productID, Requested: quantity}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, err
	}
	if r.inv.Quantity < quantity {
		return domain.Transaction{}, &domain.InsufficientStockError{
			ProductID: productID,
			Available: r.inv.Quantity,
			Requested: quantity,
		}
	}

	txn := m.appendLog(domain.Transaction{
		ProductID: productID,
		Direction: domain.DirectionOut,
		Quantity:  quantity,
		Notes:     notes,
		CreatedAt: at,
	})
	r.inv.Quantity -= quantity
	r.inv.LastUpdated = at
	return txn, nil
}

func (m *MemoryAdapter) SetMinStockLevel(ctx context.Context, productID, minLevel int64, at time.Time) error {
	r := m.rowOrCreate(productID, at)
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	r.inv.MinStockLevel = minLevel
	return nil
}

func (m *MemoryAdapter) EnsureInventory(_ context.Context, productID int64, at time.Time) error {
	m.rowOrCreate(productID, at)
	return nil
}

func (m *MemoryAdapter) GetInventory(_ context.Context, productID int64) (*domain.Inventory, error) {
	r := m.row(productID)
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	inv := r.inv
	r.mu.Unlock()
	return &inv, nil
}

func (m *MemoryAdapter) sortedRows() []*memoryRow {
	m.rowsMu.RLock()
	rows := make([]*memoryRow, 0, len(m.rows))
	for _, r := range m.rows {
		rows = append(rows, r)
	}
	m.rowsMu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	return rows
}

func (m *MemoryAdapter) ListInventory(_ context.Context) ([]domain.Inventory, error) {
	rows := m.sortedRows()
	list := make([]domain.Inventory, 0, len(rows))
	for _, r := range rows {
		r.mu.Lock()
		list = append(list, r.inv)
		r.mu.Unlock()
	}
	return list, nil
}

func (m *MemoryAdapter) ListLowStock(ctx context.Context) ([]domain.Inventory, error) {
	all, _ := m.ListInventory(ctx)

	var list []domain.Inventory
	for _, inv := range all {
		if inv.IsLowStock() {
			list = append(list, inv)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Quantity < list[j].Quantity })
	return list, nil
}

// Snapshot locks every known row in product order and then the log. Log
// entries of products created after the row set was taken are left out of
// the replay, matching their absence from Records.
func (m *MemoryAdapter) Snapshot(_ context.Context) (domain.LedgerSnapshot, error) {
	rows := m.sortedRows()
	for _, r := range rows {
		r.mu.Lock()
	}
	defer func() {
		for _, r := range rows {
			r.mu.Unlock()
		}
	}()

	snap := domain.LedgerSnapshot{
		Records: make([]domain.Inventory, 0, len(rows)),
		Net:     make(map[int64]int64, len(rows)),
	}
	for _, r := range rows {
		snap.Records = append(snap.Records, r.inv)
	}

	m.logMu.RLock()
	defer m.logMu.RUnlock()
	for _, txn := range m.log {
		if !containsProduct(snap.Records, txn.ProductID) {
			continue
		}
		snap.Net[txn.ProductID] += txn.Delta()
	}
	return snap, nil
}

func containsProduct(records []domain.Inventory, productID int64) bool {
	i := sort.Search(len(records), func(i int) bool { return records[i].ProductID >= productID })
	return i < len(records) && records[i].ProductID == productID
}

func (m *MemoryAdapter) ListRecent(_ context.Context, limit int) ([]domain.Transaction, error) {
	limit = recentLimit(limit)
	return m.filterLog(limit, func(domain.Transaction) bool { return true }), nil
}

func (m *MemoryAdapter) ListByProduct(_ context.Context, productID int64) ([]domain.Transaction, error) {
	return m.filterLog(0, func(txn domain.Transaction) bool { return txn.ProductID == productID }), nil
}

func (m *MemoryAdapter) ListByDateRange(_ context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return m.filterLog(0, func(txn domain.Transaction) bool {
		return !txn.CreatedAt.Before(from) && !txn.CreatedAt.After(to)
	}), nil
}

// filterLog returns matching entries newest first; limit 0 means all.
func (m *MemoryAdapter) filterLog(limit int, match func(domain.Transaction) bool) []domain.Transaction {
	m.logMu.RLock()
	var list []domain.Transaction
	for _, txn := range m.log {
		if match(txn) {
			list = append(list, txn)
		}
	}
	m.logMu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
