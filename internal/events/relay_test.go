package events

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comanda/internal/domain"
	"comanda/internal/infrastructure/kafka"
)

type mockOutboxRepository struct {
	FindPendingFunc func(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	deleted         []int64
	deleteErr       error
}

func (m *mockOutboxRepository) FindPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	return m.FindPendingFunc(ctx, limit)
}

func (m *mockOutboxRepository) DeleteByIDs(ctx context.Context, ids []int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, ids...)
	return nil
}

func pending(limit int) ([]domain.OutboxMessage, error) {
	return []domain.OutboxMessage{
		{ID: 1, OrderID: "order-1", Content: []byte(`{"type":"order.placed"}`)},
		{ID: 2, OrderID: "order-1", Content: []byte(`{"type":"order.paid"}`)},
	}, nil
}

func TestRelay_PublishesAndDeletes(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		assert.Equal(t, "order-1", string(key))
		assert.Equal(t, "order-events", msg.Topic)
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	repo := &mockOutboxRepository{FindPendingFunc: func(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
		assert.Equal(t, 50, limit)
		return pending(limit)
	}}

	relay := NewRelay(repo, kafka.NewSaramaProducerFrom(producer, "order-events"), zap.NewNop(), 50)
	require.NoError(t, relay.Run(context.Background()))

	assert.Equal(t, []int64{1, 2}, repo.deleted)
	require.NoError(t, producer.Close())
}

func TestRelay_KeepsRowsWhenBrokerFails(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	repo := &mockOutboxRepository{FindPendingFunc: func(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
		return pending(limit)
	}}

	relay := NewRelay(repo, kafka.NewSaramaProducerFrom(producer, "order-events"), zap.NewNop(), 50)
	err := relay.Run(context.Background())

	assert.Error(t, err)
	assert.Empty(t, repo.deleted)
	require.NoError(t, producer.Close())
}

func TestRelay_NothingPending(t *testing.T) {
	repo := &mockOutboxRepository{FindPendingFunc: func(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
		return nil, nil
	}}
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())

	relay := NewRelay(repo, kafka.NewSaramaProducerFrom(producer, "order-events"), zap.NewNop(), 50)
	require.NoError(t, relay.Run(context.Background()))

	assert.Empty(t, repo.deleted)
	require.NoError(t, producer.Close())
}

func TestRelay_StorageErrors(t *testing.T) {
	repo := &mockOutboxRepository{FindPendingFunc: func(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
		return nil, errors.New("db down")
	}}
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())

	relay := NewRelay(repo, kafka.NewSaramaProducerFrom(producer, "order-events"), zap.NewNop(), 50)
	assert.EqualError(t, relay.Run(context.Background()), "db down")
	assert.Equal(t, "outbox-relay", relay.Name())
	require.NoError(t, producer.Close())
}
