package domain

import "time"

type OrderEventType string

const (
	OrderEventPlaced        OrderEventType = "order.placed"
	OrderEventPaid          OrderEventType = "order.paid"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
	OrderEventArchived      OrderEventType = "order.archived"
	OrderEventDeleted       OrderEventType = "order.deleted"
)

type OrderEvent struct {
	Type         OrderEventType `json:"type"`
	OrderID      string         `json:"orderId"`
	UserID       string         `json:"userId,omitempty"`
	RestaurantID string         `json:"restaurantId,omitempty"`
	Status       OrderStatus    `json:"status,omitempty"`
	TotalAmount  *int64         `json:"totalAmount,omitempty"`
	OccurredAt   time.Time      `json:"occurredAt"`
}

// OutboxMessage is a serialized OrderEvent waiting to be relayed.
type OutboxMessage struct {
	ID        int64     `db:"id"`
	OrderID   string    `db:"order_id"`
	Content   []byte    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}
