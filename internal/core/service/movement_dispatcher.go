package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const publishTimeout = 5 * time.Second

// DispatchMovements forwards committed movements to publisher until queue
// is closed. Run several with distinct ids to publish in parallel.
func DispatchMovements(id int, queue <-chan domain.Transaction, publisher port.EventPublisher, logger logrus.FieldLogger) {
	log := logger.WithFields(logrus.Fields{"module": "dispatcher", "worker": id})

	for txn := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.PublishMovement(ctx, txn); err != nil {
			log.WithField("transactionId", txn.ID).Error("failed to publish movement: " + err.Error())
		} else {
			log.WithField("transactionId", txn.ID).Debug("published movement")
		}

		cancel()
	}
}
