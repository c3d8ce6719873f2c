package events

import (
	"context"

	"go.uber.org/zap"

	"comanda/internal/domain"
	"comanda/internal/infrastructure/kafka"
)

type OutboxRepository interface {
	FindPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
}

type Publisher interface {
	Publish(messages []kafka.Message) error
}

// Relay moves committed order events from the outbox to the broker. Rows are
// deleted once the broker has acknowledged them, so a crash between the two
// steps re-sends the batch.
type Relay struct {
	outbox    OutboxRepository
	publisher Publisher
	logger    *zap.Logger
	batchSize int
}

func NewRelay(outbox OutboxRepository, publisher Publisher, logger *zap.Logger, batchSize int) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		batchSize: batchSize,
	}
}

func (r *Relay) Name() string {
	return "outbox-relay"
}

// Run relays one batch.
func (r *Relay) Run(ctx context.Context) error {
	pending, err := r.outbox.FindPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(pending))
	ids := make([]int64, len(pending))
	for i, m := range pending {
		// Keyed by order so one order's events stay on one partition.
		messages[i] = kafka.Message{Key: m.OrderID, Value: m.Content}
		ids[i] = m.ID
	}

	if err := r.publisher.Publish(messages); err != nil {
		return err
	}

	if err := r.outbox.DeleteByIDs(ctx, ids); err != nil {
		return err
	}

	r.logger.Info("order events relayed", zap.Int("count", len(ids)))
	return nil
}
