package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	reconcileLockKey = "reconcile"
	reconcileLockTTL = 5 * time.Minute
)

var ErrReconcileRunning = errors.New("reconciliation already running")

// ReconcileService replays the transaction log and compares it with the
// stored quantities. A healthy ledger reports no drift.
type ReconcileService struct {
	inventory port.InventoryRepository
	locker    port.Locker
	logger    logrus.FieldLogger
}

func NewReconcileService(inventory port.InventoryRepository, locker port.Locker, logger logrus.FieldLogger) *ReconcileService {
	return &ReconcileService{inventory: inventory, locker: locker, logger: logger}
}

func (r *ReconcileService) Run(ctx context.Context) ([]domain.Drift, error) {
	if r.locker != nil {
		lock, err := r.locker.Obtain(ctx, reconcileLockKey, reconcileLockTTL)
		if errors.Is(err, port.ErrLockHeld) {
			return nil, ErrReconcileRunning
		}
		if err != nil {
			return nil, fmt.Errorf("obtain reconcile lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				r.logger.WithField("module", "reconcile").Warn("failed to release lock: " + err.Error())
			}
		}()
	}

	snap, err := r.inventory.Snapshot(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "ledger snapshot", Err: err}
	}

	drifts := snap.Drifts()
	for _, d := range drifts {
		r.logger.WithFields(logrus.Fields{
			"module":         "reconcile",
			"productId":      d.ProductID,
			"storedQuantity": d.StoredQuantity,
			"ledgerQuantity": d.LedgerQuantity,
		}).Error("inventory drift detected")
	}
	r.logger.WithFields(logrus.Fields{
		"module":   "reconcile",
		"products": len(snap.Records),
		"drifts":   len(drifts),
	}).Info("reconciliation finished")
	return drifts, nil
}
