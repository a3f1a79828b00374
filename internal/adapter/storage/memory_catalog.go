package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// MemoryCatalog is a read-mostly product table for the memory driver and tests.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
}

func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[int64]domain.Product)}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

func (c *MemoryCatalog) Put(p domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
}

// SetActive flips the soft-delete flag of a known product.
func (c *MemoryCatalog) SetActive(productID int64, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[productID]; ok {
		p.Active = active
		c.products[productID] = p
	}
}

func (c *MemoryCatalog) active(productID int64) (domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[productID]
	return p, ok && p.Active
}

func (c *MemoryCatalog) Exists(_ context.Context, productID int64) (bool, error) {
	_, ok := c.active(productID)
	return ok, nil
}

func (c *MemoryCatalog) UnitPrice(_ context.Context, productID int64) (decimal.Decimal, error) {
	p, ok := c.active(productID)
	if !ok {
		return decimal.Zero, domain.NotFoundError(productID)
	}
	return p.UnitPrice, nil
}

func (c *MemoryCatalog) DisplayInfo(_ context.Context, productID int64) (domain.DisplayInfo, error) {
	p, ok := c.active(productID)
	if !ok {
		return domain.DisplayInfo{}, domain.NotFoundError(productID)
	}
	return domain.DisplayInfo{Name: p.Name, SKU: p.SKU}, nil
}

func (c *MemoryCatalog) ListActive(_ context.Context) ([]domain.Product, error) {
	c.mu.RLock()
	list := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if p.Active {
			list = append(list, p)
		}
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}
