package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrder_Creation(t *testing.T) {
	createdAt := time.Now()
	total := int64(12000)

	order := Order{
		ID:           "order-1",
		UserID:       "user-1",
		RestaurantID: "rest-1",
		CartItems: []CartItem{
			{MenuItemID: "A", Name: "Tacos", Quantity: 2},
		},
		DeliveryDetails: DeliveryDetails{
			Email:        "john@example.com",
			Name:         "John Doe",
			AddressLine1: "123 Main St",
			City:         "Monterrey",
		},
		TotalAmount: &total,
		Status:      OrderStatusPaid,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}

	assert.Equal(t, "order-1", order.ID)
	assert.Len(t, order.CartItems, 1)
	assert.Equal(t, int64(12000), *order.TotalAmount)
	assert.False(t, order.Archived)
}

func TestOrderStatus_Progression(t *testing.T) {
	ordered := []OrderStatus{
		OrderStatusPlaced,
		OrderStatusPaid,
		OrderStatusInProgress,
		OrderStatusOutForDelivery,
		OrderStatusDelivered,
	}

	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i-1].Before(ordered[i]), "%s should precede %s", ordered[i-1], ordered[i])
		assert.False(t, ordered[i].Before(ordered[i-1]))
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  OrderStatus
		ok    bool
	}{
		{name: "placed", input: "placed", want: OrderStatusPlaced, ok: true},
		{name: "camel case", input: "outForDelivery", want: OrderStatusOutForDelivery, ok: true},
		{name: "wrong case", input: "DELIVERED", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseOrderStatus(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestOrderStatus_ManuallySettable(t *testing.T) {
	assert.False(t, OrderStatusPlaced.ManuallySettable())
	assert.False(t, OrderStatusPaid.ManuallySettable())
	assert.True(t, OrderStatusInProgress.ManuallySettable())
	assert.True(t, OrderStatusOutForDelivery.ManuallySettable())
	assert.True(t, OrderStatusDelivered.ManuallySettable())
	assert.False(t, OrderStatus("cancelled").ManuallySettable())
}

func TestRetirementPolicy(t *testing.T) {
	policy := RetirementPolicy{Retention: time.Hour, DisplayWindow: 7 * time.Second}
	deliveredAt := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	order := Order{Status: OrderStatusDelivered, UpdatedAt: deliveredAt}

	assert.Equal(t, deliveredAt.Add(time.Hour), policy.RetireAt(deliveredAt))

	assert.False(t, policy.Due(order, deliveredAt.Add(time.Hour-time.Nanosecond)))
	assert.True(t, policy.Due(order, deliveredAt.Add(time.Hour)))

	archived := order
	archived.Archived = true
	assert.False(t, policy.Due(archived, deliveredAt.Add(2*time.Hour)))

	inProgress := Order{Status: OrderStatusInProgress, UpdatedAt: deliveredAt}
	assert.False(t, policy.Due(inProgress, deliveredAt.Add(2*time.Hour)))
}

func TestRetirementPolicy_Visible(t *testing.T) {
	policy := RetirementPolicy{Retention: time.Hour, DisplayWindow: 7 * time.Second}
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, policy.Visible(Order{Status: OrderStatusPaid, UpdatedAt: now.Add(-time.Hour)}, now))
	assert.True(t, policy.Visible(Order{Status: OrderStatusDelivered, UpdatedAt: now.Add(-6 * time.Second)}, now))
	assert.False(t, policy.Visible(Order{Status: OrderStatusDelivered, UpdatedAt: now.Add(-7 * time.Second)}, now))
	assert.False(t, policy.Visible(Order{Status: OrderStatusPaid, Archived: true, UpdatedAt: now}, now))
}

func TestCheckoutQuote_Total(t *testing.T) {
	quote := CheckoutQuote{
		LineItems: []LineItem{
			{MenuItemID: "A", UnitAmount: 5000, Quantity: 2},
			{MenuItemID: "B", UnitAmount: 1500, Quantity: 1},
		},
		DeliveryFee: 2000,
	}

	assert.Equal(t, int64(10000), quote.LineItems[0].Amount())
	assert.Equal(t, int64(13500), quote.Total())
}

func TestRestaurant_FindMenuItem(t *testing.T) {
	r := Restaurant{MenuItems: []MenuItem{{ID: "A", Name: "Tacos", Price: 5000}}}

	item, ok := r.FindMenuItem("A")
	assert.True(t, ok)
	assert.Equal(t, int64(5000), item.Price)

	_, ok = r.FindMenuItem("Z")
	assert.False(t, ok)
}
