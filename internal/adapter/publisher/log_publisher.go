package publisher

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// LogPublisher writes movements to the log. It is used when no Pub/Sub
// project is configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishMovement(_ context.Context, txn domain.Transaction) error {
	p.logger.WithFields(logrus.Fields{
		"module":        "publisher",
		"transactionId": txn.ID,
		"productId":     txn.ProductID,
		"direction":     txn.Direction,
		"quantity":      txn.Quantity,
		"createdAt":     txn.CreatedAt,
	}).Info("stock movement")
	return nil
}
