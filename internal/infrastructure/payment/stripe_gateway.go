package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"comanda/internal/domain"
	apperrors "comanda/internal/errors"
)

const (
	metadataOrderID      = "orderId"
	metadataRestaurantID = "restaurantId"
)

type Config struct {
	APIKey        string
	WebhookSecret string
	Currency      string
	FrontendURL   string
	// Backends overrides the Stripe API endpoint; nil uses the default.
	Backends *stripe.Backends
}

// StripeGateway is the boundary to Stripe Checkout. One instance is built at
// startup and injected into the order module.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
	frontendURL   string
}

func NewStripeGateway(cfg Config) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.APIKey, cfg.Backends)

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		frontendURL:   cfg.FrontendURL,
	}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req domain.PaymentSessionRequest) (*domain.PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  g.lineItemParams(req.LineItems),
		SuccessURL: stripe.String(g.frontendURL + "/order-status?success=true"),
		CancelURL:  stripe.String(fmt.Sprintf("%s/detail/%s?cancelled=true", g.frontendURL, req.RestaurantID)),
		ShippingOptions: []*stripe.CheckoutSessionShippingOptionParams{
			{
				ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
					DisplayName: stripe.String("Delivery"),
					Type:        stripe.String("fixed_amount"),
					FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
						Amount:   stripe.Int64(req.DeliveryFee),
						Currency: stripe.String(g.currency),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataOrderID, req.OrderID)
	params.AddMetadata(metadataRestaurantID, req.RestaurantID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperrors.NewSessionCreationError(err)
	}
	if sess.URL == "" {
		return nil, apperrors.NewSessionCreationError(errors.New("session returned without url"))
	}

	return &domain.PaymentSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) lineItemParams(items []domain.LineItem) []*stripe.CheckoutSessionLineItemParams {
	params := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		params = append(params, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}
	return params
}

// VerifyAndParseWebhook authenticates payload against the Stripe-Signature
// header. payload must be the request body exactly as received.
func (g *StripeGateway) VerifyAndParseWebhook(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return nil, apperrors.NewInvalidSignatureError(err)
	}

	pe := &domain.PaymentEvent{
		ID:   event.ID,
		Kind: domain.PaymentEventKind(event.Type),
	}

	switch pe.Kind {
	case domain.PaymentEventCheckoutCompleted, domain.PaymentEventAsyncPaymentSucceeded:
	default:
		return pe, nil
	}

	if event.Data == nil {
		return nil, apperrors.NewValidationError("webhook event has no data")
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("decoding checkout session: %v", err))
	}

	pe.OrderID = sess.Metadata[metadataOrderID]
	pe.RestaurantID = sess.Metadata[metadataRestaurantID]
	pe.AmountTotal = sess.AmountTotal

	// Delayed methods complete the session before the money arrives; the
	// order is paid by the later async_payment_succeeded event.
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		pe.Kind = domain.PaymentEventCheckoutPending
		return pe, nil
	}
	pe.Kind = domain.PaymentEventCheckoutCompleted

	return pe, nil
}
