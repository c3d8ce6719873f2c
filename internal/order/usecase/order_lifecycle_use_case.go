package usecase

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"comanda/internal/domain"
	apperrors "comanda/internal/errors"
	"comanda/internal/order/service"
)

// checkoutNamespace scopes order ids derived from client idempotency keys.
var checkoutNamespace = uuid.MustParse("5b0c7f2e-3d4a-4e8b-9a51-6f2d8c1e7a93")

type OrderStore interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, archived bool) ([]domain.Order, error)
	ListByRestaurants(ctx context.Context, restaurantIDs []string) ([]domain.Order, error)
	ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
	DueTasks(ctx context.Context, now time.Time, limit int) ([]domain.RetirementTask, error)
	Place(ctx context.Context, order domain.Order) error
	ConfirmPayment(ctx context.Context, c domain.PaymentConfirmation) (domain.ConfirmResult, error)
	ChangeStatus(ctx context.Context, change domain.StatusChange) error
	Archive(ctx context.Context, id string, at time.Time, eligible func(domain.Order) bool) (bool, error)
	Delete(ctx context.Context, id string, at time.Time, eligible func(domain.Order) bool) (bool, error)
	CancelTask(ctx context.Context, orderID string) error
}

type RestaurantRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Restaurant, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Restaurant, error)
	FindByOwner(ctx context.Context, userID string) ([]domain.Restaurant, error)
}

type UserRepository interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error)
	VerifyAndParseWebhook(payload []byte, signatureHeader string) (*domain.PaymentEvent, error)
}

// ReconcileResult reports what a webhook delivery did. Result is empty when
// the event kind is not one the order lifecycle reacts to.
type ReconcileResult struct {
	EventID string
	OrderID string
	Result  domain.ConfirmResult
}

// OrderLifecycleUseCase is the order state machine: checkout, payment
// reconciliation, fulfillment transitions and retirement.
type OrderLifecycleUseCase struct {
	store            OrderStore
	restaurants      RestaurantRepository
	users            UserRepository
	gateway          PaymentGateway
	policy           domain.RetirementPolicy
	logger           *zap.Logger
	maxRetryAttempts int
	now              func() time.Time
}

func NewOrderLifecycleUseCase(
	store OrderStore,
	restaurants RestaurantRepository,
	users UserRepository,
	gateway PaymentGateway,
	policy domain.RetirementPolicy,
	logger *zap.Logger,
	maxRetryAttempts int,
) *OrderLifecycleUseCase {
	return &OrderLifecycleUseCase{
		store:            store,
		restaurants:      restaurants,
		users:            users,
		gateway:          gateway,
		policy:           policy,
		logger:           logger,
		maxRetryAttempts: maxRetryAttempts,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (uc *OrderLifecycleUseCase) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	uc.logger.Info("checkout started", zap.String("userId", req.UserID), zap.String("restaurantId", req.RestaurantID), zap.Int("itemCount", len(req.CartItems)))

	orderID := uuid.NewString()
	if req.IdempotencyKey != "" {
		orderID = uuid.NewSHA1(checkoutNamespace, []byte(req.UserID+":"+req.IdempotencyKey)).String()

		existing, err := uc.store.Get(ctx, orderID)
		if err == nil {
			uc.logger.Info("checkout replayed", zap.String("orderId", orderID))
			return &domain.CheckoutResult{OrderID: existing.ID, URL: existing.CheckoutURL}, nil
		}
		if _, ok := apperrors.IsNotFoundError(err); !ok {
			return nil, err
		}
	}

	restaurant, err := uc.restaurants.FindByID(ctx, req.RestaurantID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewNotFoundError("restaurant not found")
		}
		return nil, err
	}

	quote, err := service.BuildQuote(*restaurant, req.CartItems)
	if err != nil {
		uc.logger.Warn("checkout rejected", zap.String("restaurantId", req.RestaurantID), zap.Error(err))
		return nil, err
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = orderID
	}

	session, err := uc.gateway.CreateSession(ctx, domain.PaymentSessionRequest{
		OrderID:        orderID,
		RestaurantID:   restaurant.ID,
		LineItems:      quote.LineItems,
		DeliveryFee:    quote.DeliveryFee,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		uc.logger.Error("payment session creation failed", zap.String("orderId", orderID), zap.String("restaurantId", restaurant.ID), zap.Error(err))
		return nil, err
	}

	now := uc.now()
	order := domain.Order{
		ID:               orderID,
		UserID:           req.UserID,
		RestaurantID:     restaurant.ID,
		CartItems:        service.CartSnapshot(*quote),
		DeliveryDetails:  req.DeliveryDetails,
		Status:           domain.OrderStatusPlaced,
		PaymentSessionID: session.ID,
		CheckoutURL:      session.URL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = uc.withRetry(ctx, orderID, func() error {
		return uc.store.Place(ctx, order)
	})
	if err != nil && req.IdempotencyKey != "" && isDuplicateKeyError(err) {
		// A concurrent retry with the same key placed the order first.
		existing, getErr := uc.store.Get(ctx, orderID)
		if getErr == nil {
			uc.logger.Info("checkout replayed", zap.String("orderId", orderID))
			return &domain.CheckoutResult{OrderID: existing.ID, URL: existing.CheckoutURL}, nil
		}
	}
	if err != nil {
		// The session exists at the provider but no order backs it; its
		// webhook will miss and must be reconciled by hand.
		uc.logger.Error("orphaned payment session", zap.String("orderId", orderID), zap.String("sessionId", session.ID), zap.Error(err))
		return nil, apperrors.NewInternalError("failed to persist order", err)
	}

	uc.logger.Info("checkout created", zap.String("orderId", orderID), zap.String("sessionId", session.ID), zap.Int64("expectedTotal", quote.Total()))

	return &domain.CheckoutResult{OrderID: orderID, URL: session.URL}, nil
}

func (uc *OrderLifecycleUseCase) ReconcilePayment(ctx context.Context, payload []byte, signatureHeader string) (*ReconcileResult, error) {
	event, err := uc.gateway.VerifyAndParseWebhook(payload, signatureHeader)
	if err != nil {
		uc.logger.Warn("webhook rejected", zap.Error(err))
		return nil, err
	}

	logger := uc.logger.With(zap.String("eventId", event.ID), zap.String("orderId", event.OrderID))

	if event.Kind != domain.PaymentEventCheckoutCompleted {
		logger.Debug("webhook ignored", zap.String("kind", string(event.Kind)))
		return &ReconcileResult{EventID: event.ID}, nil
	}

	if event.OrderID == "" {
		logger.Error("checkout session without order reference")
		return nil, apperrors.NewNotFoundError("order not found")
	}

	confirmation := domain.PaymentConfirmation{
		EventID: event.ID,
		OrderID: event.OrderID,
		Amount:  event.AmountTotal,
		At:      uc.now(),
	}

	var result domain.ConfirmResult
	err = uc.withRetry(ctx, event.OrderID, func() error {
		var err error
		result, err = uc.store.ConfirmPayment(ctx, confirmation)
		return err
	})
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			logger.Error("payment confirmed for unknown order")
			return nil, apperrors.NewNotFoundError("order not found")
		}
		logger.Error("payment reconciliation failed", zap.Error(err))
		return nil, err
	}

	logger.Info("payment reconciled", zap.String("result", string(result)), zap.Int64("amount", event.AmountTotal))

	return &ReconcileResult{EventID: event.ID, OrderID: event.OrderID, Result: result}, nil
}

// SetStatus advances an order's fulfillment status on behalf of the owner of
// the order's restaurant. Requesting the current status is a no-op; moving
// backwards is rejected.
func (uc *OrderLifecycleUseCase) SetStatus(ctx context.Context, orderID string, requesterID string, newStatus string) (*domain.Order, error) {
	status, ok := domain.ParseOrderStatus(newStatus)
	if !ok || !status.ManuallySettable() {
		return nil, apperrors.NewValidationError("invalid status", apperrors.ValidationDetail{
			Field:   "status",
			Message: "status must be one of inProgress, outForDelivery, delivered",
		})
	}

	order, err := uc.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	restaurant, err := uc.restaurants.FindByID(ctx, order.RestaurantID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewNotFoundError("restaurant not found")
		}
		return nil, err
	}

	if restaurant.UserID != requesterID {
		uc.logger.Warn("status change denied", zap.String("orderId", orderID), zap.String("requesterId", requesterID))
		return nil, apperrors.NewUnauthorizedError("only the restaurant owner can change order status")
	}

	if order.Archived {
		return nil, apperrors.NewConflictError("archived orders cannot change status")
	}
	if order.Status == domain.OrderStatusPlaced {
		return nil, apperrors.NewConflictError("order has not been paid")
	}
	if order.Status == status {
		return order, nil
	}
	if status.Before(order.Status) {
		return nil, apperrors.NewValidationError("status cannot move backwards", apperrors.ValidationDetail{
			Field:   "status",
			Message: "order is already " + string(order.Status),
		})
	}

	now := uc.now()
	change := domain.StatusChange{
		OrderID:      order.ID,
		UserID:       order.UserID,
		RestaurantID: order.RestaurantID,
		From:         order.Status,
		To:           status,
		At:           now,
	}
	if status == domain.OrderStatusDelivered {
		retireAt := uc.policy.RetireAt(now)
		change.RetireAt = &retireAt
	}

	err = uc.withRetry(ctx, orderID, func() error {
		return uc.store.ChangeStatus(ctx, change)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("order status changed", zap.String("orderId", orderID), zap.String("from", string(change.From)), zap.String("to", string(change.To)))

	order.Status = status
	order.UpdatedAt = now
	return order, nil
}

// ListMyOrders returns the caller's active orders. Delivered orders drop out
// once the display window has passed.
func (uc *OrderLifecycleUseCase) ListMyOrders(ctx context.Context, userID string) ([]domain.OrderView, error) {
	orders, err := uc.store.ListByUser(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	visible := orders[:0]
	for _, o := range orders {
		if uc.policy.Visible(o, now) {
			visible = append(visible, o)
		}
	}

	return uc.resolveViews(ctx, visible)
}

func (uc *OrderLifecycleUseCase) ListArchivedOrders(ctx context.Context, userID string) ([]domain.OrderView, error) {
	orders, err := uc.store.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return uc.resolveViews(ctx, orders)
}

// ListRestaurantOrders returns active orders of every restaurant userID owns.
func (uc *OrderLifecycleUseCase) ListRestaurantOrders(ctx context.Context, userID string) ([]domain.OrderView, error) {
	restaurants, err := uc.restaurants.FindByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(restaurants) == 0 {
		return []domain.OrderView{}, nil
	}

	ids := make([]string, len(restaurants))
	for i, r := range restaurants {
		ids[i] = r.ID
	}

	orders, err := uc.store.ListByRestaurants(ctx, ids)
	if err != nil {
		return nil, err
	}
	return uc.resolveViews(ctx, orders)
}

func (uc *OrderLifecycleUseCase) resolveViews(ctx context.Context, orders []domain.Order) ([]domain.OrderView, error) {
	views := make([]domain.OrderView, 0, len(orders))
	if len(orders) == 0 {
		return views, nil
	}

	restaurantIDs := make([]string, 0, len(orders))
	userIDs := make([]string, 0, len(orders))
	seen := make(map[string]bool, len(orders)*2)
	for _, o := range orders {
		if !seen["r:"+o.RestaurantID] {
			seen["r:"+o.RestaurantID] = true
			restaurantIDs = append(restaurantIDs, o.RestaurantID)
		}
		if !seen["u:"+o.UserID] {
			seen["u:"+o.UserID] = true
			userIDs = append(userIDs, o.UserID)
		}
	}

	restaurants, err := uc.restaurants.FindByIDs(ctx, restaurantIDs)
	if err != nil {
		return nil, err
	}
	users, err := uc.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		view := domain.OrderView{Order: o}
		if r, ok := restaurants[o.RestaurantID]; ok {
			view.Restaurant = &r
		}
		if u, ok := users[o.UserID]; ok {
			view.User = &u
		}
		views = append(views, view)
	}

	return views, nil
}

// ArchiveOrder retires a delivered order ahead of the retention window. The
// order owner and the restaurant owner may both archive.
func (uc *OrderLifecycleUseCase) ArchiveOrder(ctx context.Context, orderID string, requesterID string) error {
	order, err := uc.store.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if order.UserID != requesterID {
		restaurant, err := uc.restaurants.FindByID(ctx, order.RestaurantID)
		if err != nil {
			if _, ok := apperrors.IsNotFoundError(err); !ok {
				return err
			}
		}
		if restaurant == nil || restaurant.UserID != requesterID {
			uc.logger.Warn("archive denied", zap.String("orderId", orderID), zap.String("requesterId", requesterID))
			return apperrors.NewUnauthorizedError("not allowed to archive this order")
		}
	}

	if order.Archived {
		return nil
	}
	if order.Status != domain.OrderStatusDelivered {
		return apperrors.NewConflictError("only delivered orders can be archived")
	}

	archived, err := uc.archive(ctx, orderID, uc.now(), isActiveDelivered)
	if err != nil {
		return err
	}
	if !archived {
		return apperrors.NewConflictError("order changed while archiving")
	}

	uc.logger.Info("order archived", zap.String("orderId", orderID), zap.String("requesterId", requesterID))
	return nil
}

// ArchiveDeliveredOrders archives every delivered order of userID and
// returns how many were archived.
func (uc *OrderLifecycleUseCase) ArchiveDeliveredOrders(ctx context.Context, userID string) (int, error) {
	orders, err := uc.store.ListByUser(ctx, userID, false)
	if err != nil {
		return 0, err
	}

	now := uc.now()
	count := 0
	var errs error
	for _, o := range orders {
		if o.Status != domain.OrderStatusDelivered {
			continue
		}
		archived, err := uc.archive(ctx, o.ID, now, isActiveDelivered)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if archived {
			count++
		}
	}

	uc.logger.Info("delivered orders archived", zap.String("userId", userID), zap.Int("count", count))
	return count, errs
}

// DeleteOrder hard-deletes one of the caller's orders. Only abandoned
// checkouts and delivered orders may be deleted.
func (uc *OrderLifecycleUseCase) DeleteOrder(ctx context.Context, orderID string, requesterID string) error {
	order, err := uc.store.Get(ctx, orderID)
	if err != nil {
		return err
	}

	if order.UserID != requesterID {
		uc.logger.Warn("delete denied", zap.String("orderId", orderID), zap.String("requesterId", requesterID))
		return apperrors.NewUnauthorizedError("not allowed to delete this order")
	}

	if !deletable(*order) {
		return apperrors.NewConflictError("only unpaid or delivered orders can be deleted")
	}

	var deleted bool
	err = uc.withRetry(ctx, orderID, func() error {
		var err error
		deleted, err = uc.store.Delete(ctx, orderID, uc.now(), deletable)
		return err
	})
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NewConflictError("order changed while deleting")
	}

	uc.logger.Info("order deleted", zap.String("orderId", orderID))
	return nil
}

// RetireDueOrders archives delivered orders whose retention has elapsed. Due
// retirement tasks are processed first, then a query sweep catches orders
// whose task was lost. Each order is re-validated under lock before it is
// archived. Failures are collected and do not stop the sweep.
func (uc *OrderLifecycleUseCase) RetireDueOrders(ctx context.Context, limit int) (int, error) {
	now := uc.now()
	due := func(o domain.Order) bool { return uc.policy.Due(o, now) }

	count := 0
	var errs error
	handled := make(map[string]bool)

	retire := func(orderID string) {
		if handled[orderID] {
			return
		}
		handled[orderID] = true

		archived, err := uc.archive(ctx, orderID, now, due)
		if err != nil {
			if _, ok := apperrors.IsNotFoundError(err); ok {
				errs = multierr.Append(errs, uc.store.CancelTask(ctx, orderID))
				return
			}
			errs = multierr.Append(errs, err)
			return
		}
		if archived {
			count++
		}
	}

	tasks, err := uc.store.DueTasks(ctx, now, limit)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, task := range tasks {
		retire(task.OrderID)
	}

	orders, err := uc.store.ListDeliveredBefore(ctx, now.Add(-uc.policy.Retention), limit)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, o := range orders {
		retire(o.ID)
	}

	return count, errs
}

func (uc *OrderLifecycleUseCase) archive(ctx context.Context, orderID string, at time.Time, eligible func(domain.Order) bool) (bool, error) {
	var archived bool
	err := uc.withRetry(ctx, orderID, func() error {
		var err error
		archived, err = uc.store.Archive(ctx, orderID, at, eligible)
		return err
	})
	return archived, err
}

func isActiveDelivered(o domain.Order) bool {
	return o.Status == domain.OrderStatusDelivered && !o.Archived
}

func deletable(o domain.Order) bool {
	return o.Status == domain.OrderStatusPlaced || o.Status == domain.OrderStatusDelivered
}

func (uc *OrderLifecycleUseCase) withRetry(ctx context.Context, orderID string, fn func() error) error {
	maxAttempts := uc.maxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	// Backoff intervals: attempt 1 (0ms), attempt 2 (100ms), attempt 3 (200ms), etc.
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !isDeadlockError(err) {
			return err
		}

		if attempt == maxAttempts {
			break
		}

		base := backoff * time.Duration(attempt-1)
		// ±20% jitter
		jitter := time.Duration(float64(base) * (rand.Float64()*0.4 - 0.2))
		uc.logger.Warn("deadlock detected, retrying", zap.Int("attempt", attempt), zap.Int("maxAttempts", maxAttempts), zap.String("orderId", orderID))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base + jitter):
		}
	}

	return apperrors.NewDeadlockError("max retries exceeded")
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func isDeadlockError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	return false
}
