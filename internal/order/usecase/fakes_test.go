package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"comanda/internal/domain"
	apperrors "comanda/internal/errors"
)

// memoryStore is an in-memory OrderStore with the same compare-and-set
// semantics as the MySQL-backed store.
type memoryStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	events map[string]bool
	tasks  map[string]domain.RetirementTask

	placeErr        error
	placeRace       *domain.Order
	changeStatusErr []error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders: map[string]domain.Order{},
		events: map[string]bool{},
		tasks:  map[string]domain.RetirementTask{},
	}
}

func (s *memoryStore) put(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *memoryStore) notFound(id string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("order with id %s not found", id))
}

func (s *memoryStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, s.notFound(id)
	}
	return &o, nil
}

func (s *memoryStore) list(match func(domain.Order) bool) []domain.Order {
	var out []domain.Order
	for _, o := range s.orders {
		if match(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *memoryStore) ListByUser(ctx context.Context, userID string, archived bool) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(o domain.Order) bool { return o.UserID == userID && o.Archived == archived }), nil
}

func (s *memoryStore) ListByRestaurants(ctx context.Context, restaurantIDs []string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range restaurantIDs {
		ids[id] = true
	}
	return s.list(func(o domain.Order) bool { return ids[o.RestaurantID] && !o.Archived }), nil
}

func (s *memoryStore) ListDeliveredBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.list(func(o domain.Order) bool { return !o.Archived && o.DeliveredBefore(cutoff) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) DueTasks(ctx context.Context, now time.Time, limit int) ([]domain.RetirementTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RetirementTask
	for _, t := range s.tasks {
		if !t.DueAt.After(now) {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Place(ctx context.Context, order domain.Order) error {
	if s.placeRace != nil {
		s.put(*s.placeRace)
	}
	if s.placeErr != nil {
		return s.placeErr
	}
	s.put(order)
	return nil
}

func (s *memoryStore) ConfirmPayment(ctx context.Context, c domain.PaymentConfirmation) (domain.ConfirmResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events[c.EventID] {
		return domain.ConfirmDuplicateEvent, nil
	}
	o, ok := s.orders[c.OrderID]
	if !ok {
		return "", s.notFound(c.OrderID)
	}
	s.events[c.EventID] = true

	if o.Status != domain.OrderStatusPlaced || o.TotalAmount != nil {
		return domain.ConfirmAlreadyPaid, nil
	}
	amount := c.Amount
	o.TotalAmount = &amount
	o.Status = domain.OrderStatusPaid
	o.UpdatedAt = c.At
	s.orders[o.ID] = o
	return domain.ConfirmApplied, nil
}

func (s *memoryStore) ChangeStatus(ctx context.Context, change domain.StatusChange) error {
	if len(s.changeStatusErr) > 0 {
		err := s.changeStatusErr[0]
		s.changeStatusErr = s.changeStatusErr[1:]
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[change.OrderID]
	if !ok || o.Status != change.From || o.Archived {
		return apperrors.NewConflictError("order status changed")
	}
	o.Status = change.To
	o.UpdatedAt = change.At
	s.orders[o.ID] = o

	if change.RetireAt != nil {
		s.tasks[o.ID] = domain.RetirementTask{OrderID: o.ID, DueAt: *change.RetireAt, CreatedAt: change.At}
	} else {
		delete(s.tasks, o.ID)
	}
	return nil
}

func (s *memoryStore) Archive(ctx context.Context, id string, at time.Time, eligible func(domain.Order) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, s.notFound(id)
	}
	if !eligible(o) {
		if o.Archived || o.Status != domain.OrderStatusDelivered {
			delete(s.tasks, id)
		}
		return false, nil
	}
	o.Archived = true
	s.orders[id] = o
	delete(s.tasks, id)
	return true, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string, at time.Time, eligible func(domain.Order) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, s.notFound(id)
	}
	if !eligible(o) {
		return false, nil
	}
	delete(s.orders, id)
	delete(s.tasks, id)
	return true, nil
}

func (s *memoryStore) CancelTask(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, orderID)
	return nil
}

type mockRestaurantRepository struct {
	restaurants map[string]domain.Restaurant
}

func (m *mockRestaurantRepository) FindByID(ctx context.Context, id string) (*domain.Restaurant, error) {
	r, ok := m.restaurants[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("restaurant not found")
	}
	return &r, nil
}

func (m *mockRestaurantRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Restaurant, error) {
	out := map[string]domain.Restaurant{}
	for _, id := range ids {
		if r, ok := m.restaurants[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (m *mockRestaurantRepository) FindByOwner(ctx context.Context, userID string) ([]domain.Restaurant, error) {
	var out []domain.Restaurant
	for _, r := range m.restaurants {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type mockUserRepository struct {
	users map[string]domain.User
}

func (m *mockUserRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	out := map[string]domain.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type mockPaymentGateway struct {
	CreateSessionFunc         func(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error)
	VerifyAndParseWebhookFunc func(payload []byte, signatureHeader string) (*domain.PaymentEvent, error)

	sessions []domain.PaymentSessionRequest
}

func (m *mockPaymentGateway) CreateSession(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error) {
	m.sessions = append(m.sessions, req)
	return m.CreateSessionFunc(ctx, req)
}

func (m *mockPaymentGateway) VerifyAndParseWebhook(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	return m.VerifyAndParseWebhookFunc(payload, signatureHeader)
}
