package dto

import "time"

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CartItemDTO struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

type MenuItemDTO struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type RestaurantDTO struct {
	ID            string        `json:"_id"`
	User          string        `json:"user"`
	Name          string        `json:"restaurantName"`
	DeliveryPrice int64         `json:"deliveryPrice"`
	MenuItems     []MenuItemDTO `json:"menuItems"`
}

type UserDTO struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OrderResponse carries the order with its restaurant and user resolved.
// Restaurant and User are null when the reference no longer resolves.
type OrderResponse struct {
	ID              string             `json:"_id"`
	Restaurant      *RestaurantDTO     `json:"restaurant"`
	User            *UserDTO           `json:"user"`
	DeliveryDetails DeliveryDetailsDTO `json:"deliveryDetails"`
	CartItems       []CartItemDTO      `json:"cartItems"`
	TotalAmount     *int64             `json:"totalAmount,omitempty"`
	Status          string             `json:"status"`
	Archived        bool               `json:"archived"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type ArchiveDeliveredResponse struct {
	Archived int `json:"archived"`
}

type WebhookAckResponse struct {
	Received bool   `json:"received"`
	Result   string `json:"result,omitempty"`
}

type ErrorResponse struct {
	TraceID   string    `json:"traceId"`
	Status    int       `json:"status"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	OrderID   string    `json:"orderId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
