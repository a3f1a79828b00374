package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

// IdempotentLedger guards movements with a caller-supplied request id so a
// retried request cannot apply the same movement twice. Requests without an
// id, or a guard without a cache, go straight to the ledger.
type IdempotentLedger struct {
	ledger *LedgerService
	cache  port.CacheRepository
	logger logrus.FieldLogger
}

func NewIdempotentLedger(ledger *LedgerService, cache port.CacheRepository, logger logrus.FieldLogger) *IdempotentLedger {
	return &IdempotentLedger{ledger: ledger, cache: cache, logger: logger}
}

func (l *IdempotentLedger) StockIn(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error) {
	return l.guard(ctx, requestID, domain.DirectionIn, func() (domain.Transaction, error) {
		return l.ledger.StockIn(ctx, productID, quantity, notes)
	})
}

func (l *IdempotentLedger) StockOut(ctx context.Context, requestID string, productID, quantity int64, notes string) (domain.Transaction, error) {
	return l.guard(ctx, requestID, domain.DirectionOut, func() (domain.Transaction, error) {
		return l.ledger.StockOut(ctx, productID, quantity, notes)
	})
}

// guard releases the key when the movement fails, so the caller can retry
// after fixing the input or waiting out a storage failure.
func (l *IdempotentLedger) guard(ctx context.Context, requestID string, direction domain.Direction, apply func() (domain.Transaction, error)) (domain.Transaction, error) {
	if requestID == "" || l.cache == nil {
		return apply()
	}

	key := fmt.Sprintf("movement:%s", requestID)
	ok, err := l.cache.SetIdempotency(ctx, key)
	if err != nil {
		return domain.Transaction{}, &domain.StorageError{Op: "idempotency check", Err: err}
	}
	if !ok {
		return domain.Transaction{}, fmt.Errorf("%w: request %s", domain.ErrDuplicateRequest, requestID)
	}

	txn, err := apply()
	if err != nil {
		if releaseErr := l.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
			l.logger.WithFields(logrus.Fields{
				"module":    "ledger",
				"requestId": requestID,
				"direction": direction,
			}).Warn("failed to release idempotency key: " + releaseErr.Error())
		}
		return domain.Transaction{}, err
	}
	return txn, nil
}
