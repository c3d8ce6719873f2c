package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"comanda/internal/domain"
	apperrors "comanda/internal/errors"
)

type TransactionManager interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*domain.Order, error)
	FindByUser(ctx context.Context, userID string, archived bool) ([]domain.Order, error)
	FindByRestaurants(ctx context.Context, restaurantIDs []string) ([]domain.Order, error)
	FindDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	Insert(ctx context.Context, tx *sqlx.Tx, order domain.Order) error
	UpdateStatus(ctx context.Context, tx *sqlx.Tx, change domain.StatusChange) (bool, error)
	MarkPaid(ctx context.Context, tx *sqlx.Tx, id string, amount int64, at time.Time) (bool, error)
	Archive(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
	Delete(ctx context.Context, tx *sqlx.Tx, id string) error
}

type OrderItemRepository interface {
	InsertBatch(ctx context.Context, tx *sqlx.Tx, orderID string, items []domain.CartItem) error
	FindByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]domain.CartItem, error)
}

type WebhookEventRepository interface {
	Record(ctx context.Context, tx *sqlx.Tx, eventID string, orderID string, at time.Time) (bool, error)
}

type RetirementTaskRepository interface {
	Schedule(ctx context.Context, tx *sqlx.Tx, task domain.RetirementTask) error
	Cancel(ctx context.Context, tx *sqlx.Tx, orderID string) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]domain.RetirementTask, error)
}

type OutboxWriter interface {
	Insert(ctx context.Context, tx *sqlx.Tx, msg domain.OutboxMessage) error
}

// OrderStore groups the order repositories behind transactional operations.
// Every mutation commits the order row, its retirement task and its outbox
// event together or not at all.
type OrderStore struct {
	db          TransactionManager
	orderRepo   OrderRepository
	itemRepo    OrderItemRepository
	webhookRepo WebhookEventRepository
	taskRepo    RetirementTaskRepository
	outbox      OutboxWriter
	logger      *zap.Logger
	txTimeout   time.Duration
}

// NewOrderStore builds the store. A nil outbox disables event publication.
func NewOrderStore(
	db TransactionManager,
	orderRepo OrderRepository,
	itemRepo OrderItemRepository,
	webhookRepo WebhookEventRepository,
	taskRepo RetirementTaskRepository,
	outbox OutboxWriter,
	logger *zap.Logger,
	txTimeout time.Duration,
) *OrderStore {
	return &OrderStore{
		db:          db,
		orderRepo:   orderRepo,
		itemRepo:    itemRepo,
		webhookRepo: webhookRepo,
		taskRepo:    taskRepo,
		outbox:      outbox,
		logger:      logger,
		txTimeout:   txTimeout,
	}
}

func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.itemRepo.FindByOrderIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	order.CartItems = items[id]

	return order, nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string, archived bool) ([]domain.Order, error) {
	orders, err := s.orderRepo.FindByUser(ctx, userID, archived)
	if err != nil {
		return nil, err
	}
	return s.attachItems(ctx, orders)
}

func (s *OrderStore) ListByRestaurants(ctx context.Context, restaurantIDs []string) ([]domain.Order, error) {
	orders, err := s.orderRepo.FindByRestaurants(ctx, restaurantIDs)
	if err != nil {
		return nil, err
	}
	return s.attachItems(ctx, orders)
}

// ListDeliveredBefore returns active delivered orders without their items.
func (s *OrderStore) ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	return s.orderRepo.FindDeliveredBefore(ctx, cutoff, limit)
}

func (s *OrderStore) DueTasks(ctx context.Context, now time.Time, limit int) ([]domain.RetirementTask, error) {
	return s.taskRepo.FindDue(ctx, now, limit)
}

func (s *OrderStore) attachItems(ctx context.Context, orders []domain.Order) ([]domain.Order, error) {
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	items, err := s.itemRepo.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].CartItems = items[orders[i].ID]
	}
	return orders, nil
}

// Place persists a new placed order with its cart snapshot.
func (s *OrderStore) Place(ctx context.Context, order domain.Order) error {
	return s.inTx(ctx, func(txCtx context.Context, tx *sqlx.Tx) error {
		if err := s.orderRepo.Insert(txCtx, tx, order); err != nil {
			return err
		}
		if err := s.itemRepo.InsertBatch(txCtx, tx, order.ID, order.CartItems); err != nil {
			return err
		}
		return s.publish(txCtx, tx, domain.OrderEvent{
			Type:         domain.OrderEventPlaced,
			OrderID:      order.ID,
			UserID:       order.UserID,
			RestaurantID: order.RestaurantID,
			Status:       order.Status,
			OccurredAt:   order.CreatedAt,
		})
	})
}

// ConfirmPayment records the provider event and moves the order from placed
// to paid with the confirmed amount. A replayed event or an order that is
// already past placed leaves the order untouched.
func (s *OrderStore) ConfirmPayment(ctx context.Context, c domain.PaymentConfirmation) (domain.ConfirmResult, error) {
	var result domain.ConfirmResult

	err := s.inTx(ctx, func(txCtx context.Context, tx *sqlx.Tx) error {
		recorded, err := s.webhookRepo.Record(txCtx, tx, c.EventID, c.OrderID, c.At)
		if err != nil {
			return err
		}
		if !recorded {
			result = domain.ConfirmDuplicateEvent
			return nil
		}

		order, err := s.orderRepo.FindByIDForUpdate(txCtx, tx, c.OrderID)
		if err != nil {
			return err
		}

		applied, err := s.orderRepo.MarkPaid(txCtx, tx, order.ID, c.Amount, c.At)
		if err != nil {
			return err
		}
		if !applied {
			result = domain.ConfirmAlreadyPaid
			return nil
		}

		result = domain.ConfirmApplied
		amount := c.Amount
		return s.publish(txCtx, tx, domain.OrderEvent{
			Type:         domain.OrderEventPaid,
			OrderID:      order.ID,
			UserID:       order.UserID,
			RestaurantID: order.RestaurantID,
			Status:       domain.OrderStatusPaid,
			TotalAmount:  &amount,
			OccurredAt:   c.At,
		})
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

// ChangeStatus applies a compare-and-set status write. It fails with a
// ConflictError when the stored status is no longer change.From. Entering
// delivered schedules the order's retirement.
func (s *OrderStore) ChangeStatus(ctx context.Context, change domain.StatusChange) error {
	return s.inTx(ctx, func(txCtx context.Context, tx *sqlx.Tx) error {
		applied, err := s.orderRepo.UpdateStatus(txCtx, tx, change)
		if err != nil {
			return err
		}
		if !applied {
			return apperrors.NewConflictError(fmt.Sprintf("order %s is no longer %s", change.OrderID, change.From))
		}

		if change.RetireAt != nil {
			err = s.taskRepo.Schedule(txCtx, tx, domain.RetirementTask{
				OrderID:   change.OrderID,
				DueAt:     *change.RetireAt,
				CreatedAt: change.At,
			})
		} else {
			err = s.taskRepo.Cancel(txCtx, tx, change.OrderID)
		}
		if err != nil {
			return err
		}

		return s.publish(txCtx, tx, domain.OrderEvent{
			Type:         domain.OrderEventStatusChanged,
			OrderID:      change.OrderID,
			UserID:       change.UserID,
			RestaurantID: change.RestaurantID,
			Status:       change.To,
			OccurredAt:   change.At,
		})
	})
}

// Archive locks the order and archives it when eligible reports true for the
// locked state. A task whose order can no longer be retired is dropped.
func (s *OrderStore) Archive(ctx context.Context, id string, at time.Time, eligible func(domain.Order) bool) (bool, error) {
	archived := false

	err := s.inTx(ctx, func(txCtx context.Context, tx *sqlx.Tx) error {
		order, err := s.orderRepo.FindByIDForUpdate(txCtx, tx, id)
		if err != nil {
			return err
		}

		if !eligible(*order) {
			if order.Archived || order.Status != domain.OrderStatusDelivered {
				return s.taskRepo.Cancel(txCtx, tx, id)
			}
			return nil
		}

		archived, err = s.orderRepo.Archive(txCtx, tx, id)
		if err != nil || !archived {
			return err
		}

		if err := s.taskRepo.Cancel(txCtx, tx, id); err != nil {
			return err
		}

		return s.publish(txCtx, tx, domain.OrderEvent{
			Type:         domain.OrderEventArchived,
			OrderID:      order.ID,
			UserID:       order.UserID,
			RestaurantID: order.RestaurantID,
			Status:       order.Status,
			OccurredAt:   at,
		})
	})
	if err != nil {
		return false, err
	}

	return archived, nil
}

// Delete hard-deletes the order when eligible reports true for the locked
// state.
func (s *OrderStore) Delete(ctx context.Context, id string, at time.Time, eligible func(domain.Order) bool) (bool, error) {
	deleted := false

	err := s.inTx(ctx, func(txCtx context.Context, tx *sqlx.Tx) error {
		order, err := s.orderRepo.FindByIDForUpdate(txCtx, tx, id)
		if err != nil {
			return err
		}
		if !eligible(*order) {
			return nil
		}

		if err := s.orderRepo.Delete(txCtx, tx, id); err != nil {
			return err
		}
		if err := s.taskRepo.Cancel(txCtx, tx, id); err != nil {
			return err
		}
		deleted = true

		return s.publish(txCtx, tx, domain.OrderEvent{
			Type:         domain.OrderEventDeleted,
			OrderID:      order.ID,
			UserID:       order.UserID,
			RestaurantID: order.RestaurantID,
			Status:       order.Status,
			OccurredAt:   at,
		})
	})
	if err != nil {
		return false, err
	}

	return deleted, nil
}

// CancelTask drops the pending retirement of orderID, if any.
func (s *OrderStore) CancelTask(ctx context.Context, orderID string) error {
	return s.inTx(ctx, func(txCtx context.Context, tx *sqlx.Tx) error {
		return s.taskRepo.Cancel(txCtx, tx, orderID)
	})
}

func (s *OrderStore) publish(ctx context.Context, tx *sqlx.Tx, event domain.OrderEvent) error {
	if s.outbox == nil {
		return nil
	}

	content, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding order event: %w", err)
	}

	return s.outbox.Insert(ctx, tx, domain.OutboxMessage{
		OrderID:   event.OrderID,
		Content:   content,
		CreatedAt: event.OccurredAt,
	})
}

func (s *OrderStore) inTx(ctx context.Context, fn func(context.Context, *sqlx.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return err
	}
	// MySQL ignores rollback after commit.
	defer tx.Rollback()

	if err := fn(txCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", zap.Error(err))
		return err
	}

	return nil
}
