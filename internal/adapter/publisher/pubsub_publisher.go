package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// MovementMessage is the JSON body published for every committed movement.
type MovementMessage struct {
	TransactionID int64     `json:"transaction_id"`
	ProductID     int64     `json:"product_id"`
	Direction     string    `json:"direction"`
	Quantity      int64     `json:"quantity"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newMovementMessage(txn domain.Transaction) MovementMessage {
	return MovementMessage{
		TransactionID: txn.ID,
		ProductID:     txn.ProductID,
		Direction:     string(txn.Direction),
		Quantity:      txn.Quantity,
		Notes:         txn.Notes,
		CreatedAt:     txn.CreatedAt,
	}
}

type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic}
}

// EnsureTopic returns the topic, creating it when it does not exist yet.
func EnsureTopic(ctx context.Context, client *pubsub.Client, topicID string) (*pubsub.Topic, error) {
	if client == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topicID == "" {
		return nil, errors.New("topic is required")
	}

	t := client.Topic(topicID)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = client.CreateTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topicID, err)
	}
	return t, nil
}

// PublishMovement blocks until the server acknowledges the message.
func (p *PubSubPublisher) PublishMovement(ctx context.Context, txn domain.Transaction) error {
	data, err := json.Marshal(newMovementMessage(txn))
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"direction":  string(txn.Direction),
			"product_id": strconv.FormatInt(txn.ProductID, 10),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish transaction %d: %w", txn.ID, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}
