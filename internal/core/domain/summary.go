package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

type Summary struct {
	TotalActiveProducts int
	TotalUnits          int64
	TotalValue          decimal.Decimal
}

// Drift describes a product whose stored quantity disagrees with the replay
// of its transaction history.
type Drift struct {
	ProductID      int64
	StoredQuantity int64
	LedgerQuantity int64
}

// LedgerSnapshot pairs the stored records with the replayed transaction log.
type LedgerSnapshot struct {
	Records []Inventory
	// Net maps product id to the sum of IN minus OUT quantities.
	Net map[int64]int64
}

// Drifts lists every product whose stored quantity differs from its replay.
// Products with history but no record count as a stored quantity of 0.
func (s LedgerSnapshot) Drifts() []Drift {
	var drifts []Drift
	seen := make(map[int64]bool, len(s.Records))
	for _, rec := range s.Records {
		seen[rec.ProductID] = true
		if net := s.Net[rec.ProductID]; net != rec.Quantity {
			drifts = append(drifts, Drift{ProductID: rec.ProductID, StoredQuantity: rec.Quantity, LedgerQuantity: net})
		}
	}
	for id, net := range s.Net {
		if !seen[id] && net != 0 {
			drifts = append(drifts, Drift{ProductID: id, LedgerQuantity: net})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].ProductID < drifts[j].ProductID })
	return drifts
}
