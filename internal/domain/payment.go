package domain

import "time"

type LineItem struct {
	MenuItemID string
	Name       string
	UnitAmount int64
	Quantity   int64
}

func (l LineItem) Amount() int64 {
	return l.UnitAmount * l.Quantity
}

// CheckoutQuote is a priced cart, ready to be sent to the payment provider.
type CheckoutQuote struct {
	LineItems   []LineItem
	DeliveryFee int64
}

func (q CheckoutQuote) Total() int64 {
	total := q.DeliveryFee
	for _, item := range q.LineItems {
		total += item.Amount()
	}
	return total
}

type PaymentSessionRequest struct {
	OrderID        string
	RestaurantID   string
	LineItems      []LineItem
	DeliveryFee    int64
	IdempotencyKey string
}

type PaymentSession struct {
	ID  string
	URL string
}

type PaymentEventKind string

const (
	PaymentEventCheckoutCompleted     PaymentEventKind = "checkout.session.completed"
	PaymentEventAsyncPaymentSucceeded PaymentEventKind = "checkout.session.async_payment_succeeded"
	// PaymentEventCheckoutPending is a completed session whose delayed
	// payment method (OXXO, bank transfer) has not settled yet.
	PaymentEventCheckoutPending PaymentEventKind = "checkout.session.payment_pending"
)

type PaymentEvent struct {
	ID           string
	Kind         PaymentEventKind
	OrderID      string
	RestaurantID string
	AmountTotal  int64
}

type PaymentConfirmation struct {
	EventID string
	OrderID string
	Amount  int64
	At      time.Time
}

type ConfirmResult string

const (
	ConfirmApplied        ConfirmResult = "APPLIED"
	ConfirmDuplicateEvent ConfirmResult = "DUPLICATE_EVENT"
	ConfirmAlreadyPaid    ConfirmResult = "ALREADY_PAID"
)
