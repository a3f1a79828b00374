package domain

import "github.com/shopspring/decimal"

// Product is the slice of a catalog entry the ledger reads.
type Product struct {
	ID        int64
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	Active    bool
}

type DisplayInfo struct {
	Name string
	SKU  string
}
