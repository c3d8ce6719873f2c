package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"comanda/internal/domain"
	apperrors "comanda/internal/errors"
	"comanda/internal/order/repository"
	"comanda/internal/testutil"
)

type mockTransactionManager struct {
	BeginTxxFunc func(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

func (m *mockTransactionManager) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.BeginTxxFunc(ctx, opts)
}

func TestOrderStore_BeginFailure(t *testing.T) {
	txMgr := &mockTransactionManager{
		BeginTxxFunc: func(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline, "transactions must run under a timeout")
			assert.Equal(t, sql.LevelRepeatableRead, opts.Isolation)
			return nil, errors.New("connection refused")
		},
	}

	store := NewOrderStore(txMgr, nil, nil, nil, nil, nil, zap.NewNop(), time.Second)

	err := store.Place(context.Background(), domain.Order{ID: "order-1"})
	assert.EqualError(t, err, "connection refused")

	_, err = store.ConfirmPayment(context.Background(), domain.PaymentConfirmation{EventID: "evt_1", OrderID: "order-1"})
	assert.Error(t, err)
}

// Integration Tests

func newIntegrationStore(t *testing.T) (*OrderStore, *sqlx.DB, func()) {
	t.Helper()
	sqlDB := testutil.SetupTestDB(t)
	db := testutil.SetupTestTables(t, sqlDB)

	store := NewOrderStore(
		db,
		repository.NewMySQLOrderRepository(db),
		repository.NewMySQLOrderItemRepository(db),
		repository.NewMySQLWebhookEventRepository(db),
		repository.NewMySQLRetirementTaskRepository(db),
		repository.NewMySQLOutboxRepository(db),
		zap.NewNop(),
		5*time.Second,
	)
	return store, db, func() { testutil.CleanupTestDB(t, sqlDB) }
}

func placedOrder(at time.Time) domain.Order {
	return domain.Order{
		ID:           uuid.NewString(),
		UserID:       "user-1",
		RestaurantID: "rest-1",
		CartItems:    []domain.CartItem{{MenuItemID: "A", Name: "Tacos", Quantity: 2}},
		DeliveryDetails: domain.DeliveryDetails{
			Email: "john@example.com", Name: "John Doe", AddressLine1: "123 Main St", City: "Monterrey",
		},
		Status:           domain.OrderStatusPlaced,
		PaymentSessionID: "cs_test_1",
		CheckoutURL:      "https://checkout.example/cs_test_1",
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func pendingEvents(t *testing.T, db *sqlx.DB) []domain.OrderEvent {
	t.Helper()
	msgs, err := repository.NewMySQLOutboxRepository(db).FindPending(context.Background(), 100)
	require.NoError(t, err)

	events := make([]domain.OrderEvent, len(msgs))
	for i, m := range msgs {
		require.NoError(t, json.Unmarshal(m.Content, &events[i]))
	}
	return events
}

func TestOrderStore_PlaceAndConfirmPayment(t *testing.T) {
	store, db, cleanup := newIntegrationStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := placedOrder(now)
	require.NoError(t, store.Place(ctx, order))

	got, err := store.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.CartItems, got.CartItems)
	assert.Nil(t, got.TotalAmount)

	confirmation := domain.PaymentConfirmation{EventID: "evt_1", OrderID: order.ID, Amount: 12000, At: now.Add(time.Second)}

	result, err := store.ConfirmPayment(ctx, confirmation)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmApplied, result)

	result, err = store.ConfirmPayment(ctx, confirmation)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmDuplicateEvent, result)

	result, err = store.ConfirmPayment(ctx, domain.PaymentConfirmation{EventID: "evt_2", OrderID: order.ID, Amount: 1, At: now})
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmAlreadyPaid, result)

	got, err = store.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, got.Status)
	require.NotNil(t, got.TotalAmount)
	assert.Equal(t, int64(12000), *got.TotalAmount)

	events := pendingEvents(t, db)
	require.Len(t, events, 2)
	assert.Equal(t, domain.OrderEventPlaced, events[0].Type)
	assert.Equal(t, domain.OrderEventPaid, events[1].Type)
}

func TestOrderStore_ConfirmPayment_UnknownOrder(t *testing.T) {
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	_, err := store.ConfirmPayment(context.Background(), domain.PaymentConfirmation{
		EventID: "evt_1", OrderID: "missing", Amount: 100, At: time.Now().UTC(),
	})

	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}

func TestOrderStore_ChangeStatus_SchedulesRetirement(t *testing.T) {
	store, db, cleanup := newIntegrationStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := placedOrder(now)
	require.NoError(t, store.Place(ctx, order))
	_, err := store.ConfirmPayment(ctx, domain.PaymentConfirmation{EventID: "evt_1", OrderID: order.ID, Amount: 12000, At: now})
	require.NoError(t, err)

	err = store.ChangeStatus(ctx, domain.StatusChange{OrderID: order.ID, From: domain.OrderStatusPlaced, To: domain.OrderStatusInProgress, At: now})
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok, "stale status must conflict")

	retireAt := now.Add(time.Hour)
	require.NoError(t, store.ChangeStatus(ctx, domain.StatusChange{
		OrderID:      order.ID,
		UserID:       order.UserID,
		RestaurantID: order.RestaurantID,
		From:         domain.OrderStatusPaid,
		To:           domain.OrderStatusDelivered,
		At:           now,
		RetireAt:     &retireAt,
	}))

	events := pendingEvents(t, db)
	require.Len(t, events, 3)
	changed := events[2]
	assert.Equal(t, domain.OrderEventStatusChanged, changed.Type)
	assert.Equal(t, domain.OrderStatusDelivered, changed.Status)
	assert.Equal(t, "user-1", changed.UserID)
	assert.Equal(t, "rest-1", changed.RestaurantID)

	due, err := store.DueTasks(ctx, retireAt.Add(-time.Millisecond), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = store.DueTasks(ctx, retireAt, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, order.ID, due[0].OrderID)
}

func TestOrderStore_ArchiveRevalidates(t *testing.T) {
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := placedOrder(now)
	require.NoError(t, store.Place(ctx, order))

	isDelivered := func(o domain.Order) bool { return o.Status == domain.OrderStatusDelivered }

	archived, err := store.Archive(ctx, order.ID, now, isDelivered)
	require.NoError(t, err)
	assert.False(t, archived)

	_, err = store.ConfirmPayment(ctx, domain.PaymentConfirmation{EventID: "evt_1", OrderID: order.ID, Amount: 12000, At: now})
	require.NoError(t, err)
	retireAt := now.Add(time.Hour)
	require.NoError(t, store.ChangeStatus(ctx, domain.StatusChange{
		OrderID: order.ID, From: domain.OrderStatusPaid, To: domain.OrderStatusDelivered, At: now, RetireAt: &retireAt,
	}))

	archived, err = store.Archive(ctx, order.ID, now, isDelivered)
	require.NoError(t, err)
	assert.True(t, archived)

	due, err := store.DueTasks(ctx, retireAt, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "archiving cancels the pending task")

	active, err := store.ListByUser(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Empty(t, active)

	history, err := store.ListByUser(ctx, "user-1", true)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.CartItems, history[0].CartItems)
}

func TestOrderStore_ArchivedOrderIsFrozen(t *testing.T) {
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := placedOrder(now)
	require.NoError(t, store.Place(ctx, order))
	_, err := store.ConfirmPayment(ctx, domain.PaymentConfirmation{EventID: "evt_1", OrderID: order.ID, Amount: 12000, At: now})
	require.NoError(t, err)
	require.NoError(t, store.ChangeStatus(ctx, domain.StatusChange{
		OrderID: order.ID, From: domain.OrderStatusPaid, To: domain.OrderStatusDelivered, At: now,
	}))

	archived, err := store.Archive(ctx, order.ID, now, func(o domain.Order) bool { return true })
	require.NoError(t, err)
	require.True(t, archived)

	result, err := store.ConfirmPayment(ctx, domain.PaymentConfirmation{EventID: "evt_2", OrderID: order.ID, Amount: 1, At: now.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmAlreadyPaid, result)

	err = store.ChangeStatus(ctx, domain.StatusChange{
		OrderID: order.ID, From: domain.OrderStatusDelivered, To: domain.OrderStatusOutForDelivery, At: now.Add(time.Minute),
	})
	_, ok := apperrors.IsConflictError(err)
	assert.True(t, ok)

	got, err := store.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
	assert.Equal(t, domain.OrderStatusDelivered, got.Status)
	require.NotNil(t, got.TotalAmount)
	assert.Equal(t, int64(12000), *got.TotalAmount)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestOrderStore_Delete(t *testing.T) {
	store, _, cleanup := newIntegrationStore(t)
	defer cleanup()

	ctx := context.Background()
	order := placedOrder(time.Now().UTC())
	require.NoError(t, store.Place(ctx, order))

	deleted, err := store.Delete(ctx, order.ID, time.Now().UTC(), func(o domain.Order) bool { return false })
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = store.Delete(ctx, order.ID, time.Now().UTC(), func(o domain.Order) bool { return o.Status == domain.OrderStatusPlaced })
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.Get(ctx, order.ID)
	_, ok := apperrors.IsNotFoundError(err)
	assert.True(t, ok)
}
