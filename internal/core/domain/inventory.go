package domain

import "time"

// DefaultMinStockLevel is the threshold given to a product's inventory record
// when none has been configured.
const DefaultMinStockLevel int64 = 5

type Inventory struct {
	ProductID     int64
	Quantity      int64
	MinStockLevel int64
	LastUpdated   time.Time

	// Display attributes joined from the catalog; empty when read straight from the store.
	Name string
	SKU  string
}

// NewInventory returns the empty record a product starts with.
func NewInventory(productID int64, now time.Time) Inventory {
	return Inventory{
		ProductID:     productID,
		MinStockLevel: DefaultMinStockLevel,
		LastUpdated:   now,
	}
}

func (i Inventory) IsLowStock() bool {
	return i.Quantity <= i.MinStockLevel
}

func (i Inventory) IsOutOfStock() bool {
	return i.Quantity == 0
}

// Status is the short label used in listings.
func (i Inventory) Status() string {
	switch {
	case i.IsOutOfStock():
		return "out_of_stock"
	case i.IsLowStock():
		return "low_stock"
	default:
		return "ok"
	}
}
