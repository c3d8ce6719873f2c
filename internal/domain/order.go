package domain

import "time"

type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "placed"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusInProgress     OrderStatus = "inProgress"
	OrderStatusOutForDelivery OrderStatus = "outForDelivery"
	OrderStatusDelivered      OrderStatus = "delivered"
)

var statusRank = map[OrderStatus]int{
	OrderStatusPlaced:         1,
	OrderStatusPaid:           2,
	OrderStatusInProgress:     3,
	OrderStatusOutForDelivery: 4,
	OrderStatusDelivered:      5,
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	_, ok := statusRank[status]
	return status, ok
}

// Rank orders the fulfillment progression; unknown statuses rank 0.
func (s OrderStatus) Rank() int {
	return statusRank[s]
}

func (s OrderStatus) Before(other OrderStatus) bool {
	return s.Rank() < other.Rank()
}

// ManuallySettable reports whether restaurant staff may request s. placed is
// set at creation and paid only by payment confirmation.
func (s OrderStatus) ManuallySettable() bool {
	switch s {
	case OrderStatusInProgress, OrderStatusOutForDelivery, OrderStatusDelivered:
		return true
	}
	return false
}

type CartItem struct {
	MenuItemID string
	Name       string
	Quantity   int
}

type DeliveryDetails struct {
	Email        string
	Name         string
	AddressLine1 string
	City         string
}

type Order struct {
	ID               string
	UserID           string
	RestaurantID     string
	CartItems        []CartItem
	DeliveryDetails  DeliveryDetails
	TotalAmount      *int64
	Status           OrderStatus
	Archived         bool
	PaymentSessionID string
	CheckoutURL      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DeliveredBefore reports whether the order was delivered and has not
// changed since cutoff.
func (o Order) DeliveredBefore(cutoff time.Time) bool {
	return o.Status == OrderStatusDelivered && !o.UpdatedAt.After(cutoff)
}

// OrderView is an order with its restaurant and user references resolved.
type OrderView struct {
	Order      Order
	Restaurant *Restaurant
	User       *User
}

// StatusChange is a compare-and-set status write: it only applies while the
// stored status still equals From.
type StatusChange struct {
	OrderID      string
	UserID       string
	RestaurantID string
	From         OrderStatus
	To           OrderStatus
	At           time.Time
	RetireAt     *time.Time
}

// CheckoutRequest is a caller's cart as submitted for payment. Cart item
// names are ignored; they are taken from the menu.
type CheckoutRequest struct {
	UserID          string
	RestaurantID    string
	CartItems       []CartItem
	DeliveryDetails DeliveryDetails
	IdempotencyKey  string
}

type CheckoutResult struct {
	OrderID string
	URL     string
}
