package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comanda/internal/domain"
	"comanda/internal/dto"
	apperrors "comanda/internal/errors"
	"comanda/internal/middleware"
	"comanda/internal/order/usecase"
)

const (
	maxCartItems       = 100
	maxWebhookBodySize = 64 << 10
	signatureHeader    = "Stripe-Signature"
	idempotencyHeader  = "Idempotency-Key"
)

type OrderUseCase interface {
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error)
	ReconcilePayment(ctx context.Context, payload []byte, signatureHeader string) (*usecase.ReconcileResult, error)
	SetStatus(ctx context.Context, orderID string, requesterID string, newStatus string) (*domain.Order, error)
	ListMyOrders(ctx context.Context, userID string) ([]domain.OrderView, error)
	ListArchivedOrders(ctx context.Context, userID string) ([]domain.OrderView, error)
	ListRestaurantOrders(ctx context.Context, userID string) ([]domain.OrderView, error)
	ArchiveOrder(ctx context.Context, orderID string, requesterID string) error
	ArchiveDeliveredOrders(ctx context.Context, userID string) (int, error)
	DeleteOrder(ctx context.Context, orderID string, requesterID string) error
}

type OrderController struct {
	useCase OrderUseCase
	logger  *zap.Logger
}

func NewOrderController(useCase OrderUseCase, logger *zap.Logger) *OrderController {
	return &OrderController{
		useCase: useCase,
		logger:  logger,
	}
}

func (c *OrderController) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	c.listOrders(w, r, c.useCase.ListMyOrders)
}

func (c *OrderController) ListArchivedOrders(w http.ResponseWriter, r *http.Request) {
	c.listOrders(w, r, c.useCase.ListArchivedOrders)
}

func (c *OrderController) ListRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	c.listOrders(w, r, c.useCase.ListRestaurantOrders)
}

func (c *OrderController) listOrders(w http.ResponseWriter, r *http.Request, list func(context.Context, string) ([]domain.OrderView, error)) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	userID, ok := c.requireUser(w, r, traceID)
	if !ok {
		return
	}

	views, err := list(r.Context(), userID)
	if err != nil {
		c.handleUseCaseError(w, traceID, "", err, logger)
		return
	}

	response := make([]dto.OrderResponse, len(views))
	for i, view := range views {
		response[i] = toOrderResponse(view)
	}

	c.writeJSON(w, http.StatusOK, response)
}

func (c *OrderController) Checkout(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	userID, ok := c.requireUser(w, r, traceID)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		c.writeValidationError(w, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	if validationErr := c.validateCheckoutRequest(req); validationErr != nil {
		ve, _ := apperrors.IsValidationError(validationErr)
		c.writeValidationError(w, ve.Message, ve.Details...)
		return
	}

	cart := make([]domain.CartItem, len(req.CartItems))
	for i, item := range req.CartItems {
		cart[i] = domain.CartItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   int(item.Quantity),
		}
	}

	result, err := c.useCase.CreateCheckoutSession(r.Context(), domain.CheckoutRequest{
		UserID:       userID,
		RestaurantID: req.RestaurantID,
		CartItems:    cart,
		DeliveryDetails: domain.DeliveryDetails{
			Email:        strings.TrimSpace(req.DeliveryDetails.Email),
			Name:         strings.TrimSpace(req.DeliveryDetails.Name),
			AddressLine1: strings.TrimSpace(req.DeliveryDetails.AddressLine1),
			City:         strings.TrimSpace(req.DeliveryDetails.City),
		},
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		c.handleUseCaseError(w, traceID, "", err, logger)
		return
	}

	c.writeJSON(w, http.StatusCreated, dto.CheckoutResponse{URL: result.URL})
}

func (c *OrderController) validateCheckoutRequest(req dto.CheckoutRequest) error {
	var details []apperrors.ValidationDetail

	if strings.TrimSpace(req.RestaurantID) == "" {
		details = append(details, apperrors.ValidationDetail{
			Field:   "restaurantId",
			Message: "restaurantId is required",
		})
	}

	if len(req.CartItems) == 0 {
		details = append(details, apperrors.ValidationDetail{
			Field:   "cartItems",
			Message: "cartItems must not be empty",
		})
	}

	if len(req.CartItems) > maxCartItems {
		details = append(details, apperrors.ValidationDetail{
			Field:   "cartItems",
			Message: "cartItems exceeds maximum of 100",
		})
	}

	for idx, item := range req.CartItems {
		if strings.TrimSpace(item.MenuItemID) == "" {
			details = append(details, apperrors.ValidationDetail{
				Field:   "cartItems[" + strconv.Itoa(idx) + "].menuItemId",
				Message: "menuItemId is required",
			})
		}

		if item.Quantity < 1 {
			details = append(details, apperrors.ValidationDetail{
				Field:   "cartItems[" + strconv.Itoa(idx) + "].quantity",
				Message: "quantity must be a positive integer",
			})
		}
	}

	required := []struct {
		field string
		value string
	}{
		{"deliveryDetails.email", req.DeliveryDetails.Email},
		{"deliveryDetails.name", req.DeliveryDetails.Name},
		{"deliveryDetails.addressLine1", req.DeliveryDetails.AddressLine1},
		{"deliveryDetails.city", req.DeliveryDetails.City},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			details = append(details, apperrors.ValidationDetail{
				Field:   r.field,
				Message: r.field + " is required",
			})
		}
	}

	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details...)
	}

	return nil
}

// Webhook receives payment provider callbacks. The body is read untouched
// because the signature covers the exact bytes.
func (c *OrderController) Webhook(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		logger.Warn("unreadable webhook body", zap.Error(err))
		c.writeErrorResponse(w, traceID, "", http.StatusBadRequest, "INVALID_PAYLOAD", "webhook body could not be read")
		return
	}

	result, err := c.useCase.ReconcilePayment(r.Context(), payload, r.Header.Get(signatureHeader))
	if err != nil {
		c.handleUseCaseError(w, traceID, "", err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.WebhookAckResponse{Received: true, Result: string(result.Result)})
}

func (c *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	userID, ok := c.requireUser(w, r, traceID)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	var req dto.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		c.writeValidationError(w, "invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
		return
	}

	order, err := c.useCase.SetStatus(r.Context(), orderID, userID, req.Status)
	if err != nil {
		c.handleUseCaseError(w, traceID, orderID, err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, toOrderResponse(domain.OrderView{Order: *order}))
}

func (c *OrderController) Archive(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	userID, ok := c.requireUser(w, r, traceID)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	if err := c.useCase.ArchiveOrder(r.Context(), orderID, userID); err != nil {
		c.handleUseCaseError(w, traceID, orderID, err, logger)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (c *OrderController) ArchiveDelivered(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	userID, ok := c.requireUser(w, r, traceID)
	if !ok {
		return
	}

	count, err := c.useCase.ArchiveDeliveredOrders(r.Context(), userID)
	if err != nil {
		c.handleUseCaseError(w, traceID, "", err, logger)
		return
	}

	c.writeJSON(w, http.StatusOK, dto.ArchiveDeliveredResponse{Archived: count})
}

func (c *OrderController) Delete(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	userID, ok := c.requireUser(w, r, traceID)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	if err := c.useCase.DeleteOrder(r.Context(), orderID, userID); err != nil {
		c.handleUseCaseError(w, traceID, orderID, err, logger)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (c *OrderController) requireUser(w http.ResponseWriter, r *http.Request, traceID string) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		c.writeErrorResponse(w, traceID, "", http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}
	return userID, ok
}

func (c *OrderController) handleUseCaseError(w http.ResponseWriter, traceID string, orderID string, err error, logger *zap.Logger) {
	if ve, ok := apperrors.IsValidationError(err); ok {
		c.writeValidationError(w, ve.Message, ve.Details...)
		return
	}

	if apperrors.IsItemNotFoundError(err) {
		c.writeErrorResponse(w, traceID, orderID, http.StatusNotFound, "ITEM_NOT_FOUND", err.Error())
		return
	}

	if _, ok := apperrors.IsNotFoundError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	if _, ok := apperrors.IsUnauthorizedError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
		return
	}

	if _, ok := apperrors.IsConflictError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusConflict, "CONFLICT", err.Error())
		return
	}

	if _, ok := apperrors.IsDeadlockError(err); ok {
		c.writeErrorResponse(w, traceID, orderID, http.StatusConflict, "DEADLOCK", err.Error())
		return
	}

	if ge, ok := apperrors.IsGatewayError(err); ok {
		if ge.InvalidSignature {
			c.writeErrorResponse(w, traceID, orderID, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed")
			return
		}
		logger.Error("payment gateway error", zap.String("orderId", orderID), zap.Error(err))
		c.writeErrorResponse(w, traceID, orderID, http.StatusInternalServerError, "GATEWAY_ERROR", "payment provider unavailable")
		return
	}

	if errors.Is(err, context.Canceled) {
		logger.Warn("request cancelled", zap.String("orderId", orderID))
	} else {
		logger.Error("unexpected error", zap.String("orderId", orderID), zap.Error(err))
	}
	c.writeErrorResponse(w, traceID, orderID, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred")
}

func (c *OrderController) writeErrorResponse(w http.ResponseWriter, traceID string, orderID string, statusCode int, code string, message string) {
	response := dto.ErrorResponse{
		TraceID:   traceID,
		Status:    statusCode,
		Code:      code,
		Message:   message,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}

	c.writeJSON(w, statusCode, response)
}

type validationErrorResponse struct {
	Error   string                       `json:"error"`
	Message string                       `json:"message"`
	Details []apperrors.ValidationDetail `json:"details"`
}

func (c *OrderController) writeValidationError(w http.ResponseWriter, message string, details ...apperrors.ValidationDetail) {
	response := validationErrorResponse{
		Error:   "VALIDATION_ERROR",
		Message: message,
		Details: details,
	}

	c.writeJSON(w, http.StatusBadRequest, response)
}

func (c *OrderController) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Error("failed to encode response", zap.Error(err))
	}
}
