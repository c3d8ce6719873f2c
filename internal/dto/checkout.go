package dto

import (
	"bytes"
	"strconv"
)

type CheckoutRequest struct {
	RestaurantID    string             `json:"restaurantId"`
	CartItems       []CheckoutCartItem `json:"cartItems"`
	DeliveryDetails DeliveryDetailsDTO `json:"deliveryDetails"`
}

type CheckoutCartItem struct {
	MenuItemID string   `json:"menuItemId"`
	Name       string   `json:"name"`
	Quantity   Quantity `json:"quantity"`
}

type DeliveryDetailsDTO struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
}

// Quantity accepts a JSON number or a numeric string ("2"). Anything that
// is not a whole number decodes as 0 and fails validation.
type Quantity int

func (q *Quantity) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(bytes.TrimSpace(data), `"`)

	n, err := strconv.Atoi(string(bytes.TrimSpace(raw)))
	if err != nil {
		*q = 0
		return nil
	}

	*q = Quantity(n)
	return nil
}

type CheckoutResponse struct {
	URL string `json:"url"`
}
