package controller

import (
	"comanda/internal/domain"
	"comanda/internal/dto"
)

func toOrderResponse(view domain.OrderView) dto.OrderResponse {
	o := view.Order

	items := make([]dto.CartItemDTO, len(o.CartItems))
	for i, item := range o.CartItems {
		items[i] = dto.CartItemDTO{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
		}
	}

	resp := dto.OrderResponse{
		ID: o.ID,
		DeliveryDetails: dto.DeliveryDetailsDTO{
			Email:        o.DeliveryDetails.Email,
			Name:         o.DeliveryDetails.Name,
			AddressLine1: o.DeliveryDetails.AddressLine1,
			City:         o.DeliveryDetails.City,
		},
		CartItems:   items,
		TotalAmount: o.TotalAmount,
		Status:      string(o.Status),
		Archived:    o.Archived,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}

	if view.Restaurant != nil {
		menu := make([]dto.MenuItemDTO, len(view.Restaurant.MenuItems))
		for i, m := range view.Restaurant.MenuItems {
			menu[i] = dto.MenuItemDTO{ID: m.ID, Name: m.Name, Price: m.Price}
		}
		resp.Restaurant = &dto.RestaurantDTO{
			ID:            view.Restaurant.ID,
			User:          view.Restaurant.UserID,
			Name:          view.Restaurant.Name,
			DeliveryPrice: view.Restaurant.DeliveryPrice,
			MenuItems:     menu,
		}
	}

	if view.User != nil {
		resp.User = &dto.UserDTO{
			ID:    view.User.ID,
			Email: view.User.Email,
			Name:  view.User.Name,
		}
	}

	return resp
}
