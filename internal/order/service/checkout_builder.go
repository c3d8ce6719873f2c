package service

import (
	"strconv"

	"comanda/internal/domain"
	apperrors "comanda/internal/errors"
)

// BuildQuote prices cart against the restaurant's current menu. Unit prices
// and item names come from the menu, never from the cart. A single unknown
// menu item aborts the whole quote.
func BuildQuote(restaurant domain.Restaurant, cart []domain.CartItem) (*domain.CheckoutQuote, error) {
	if len(cart) == 0 {
		return nil, apperrors.NewValidationError("cart must not be empty", apperrors.ValidationDetail{
			Field:   "cartItems",
			Message: "cartItems must not be empty",
		})
	}

	lineItems := make([]domain.LineItem, 0, len(cart))
	for idx, item := range cart {
		if item.Quantity < 1 {
			return nil, apperrors.NewValidationError("invalid quantity", apperrors.ValidationDetail{
				Field:   "cartItems[" + strconv.Itoa(idx) + "].quantity",
				Message: "quantity must be a positive integer",
			})
		}

		menuItem, ok := restaurant.FindMenuItem(item.MenuItemID)
		if !ok {
			return nil, apperrors.NewItemNotFoundError(item.MenuItemID)
		}

		lineItems = append(lineItems, domain.LineItem{
			MenuItemID: menuItem.ID,
			Name:       menuItem.Name,
			UnitAmount: menuItem.Price,
			Quantity:   int64(item.Quantity),
		})
	}

	return &domain.CheckoutQuote{
		LineItems:   lineItems,
		DeliveryFee: restaurant.DeliveryPrice,
	}, nil
}

// CartSnapshot is the cart as it is stored on the order, with names frozen
// at checkout time.
func CartSnapshot(quote domain.CheckoutQuote) []domain.CartItem {
	items := make([]domain.CartItem, len(quote.LineItems))
	for i, li := range quote.LineItems {
		items[i] = domain.CartItem{
			MenuItemID: li.MenuItemID,
			Name:       li.Name,
			Quantity:   int(li.Quantity),
		}
	}
	return items
}
