package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// EventPublisher receives committed movements. It is never part of the
// atomic unit: a failed publish does not undo a movement.
type EventPublisher interface {
	PublishMovement(ctx context.Context, txn domain.Transaction) error
}
