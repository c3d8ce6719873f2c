package errors

import (
	stderrors "errors"
	"fmt"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// ResourceMenuItem marks a NotFoundError raised while pricing a cart.
const ResourceMenuItem = "menuItem"

type NotFoundError struct {
	Message  string
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func NewItemNotFoundError(menuItemID string) *NotFoundError {
	return &NotFoundError{
		Message:  fmt.Sprintf("menu item not found: %s", menuItemID),
		Resource: ResourceMenuItem,
	}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nfe *NotFoundError
	if stderrors.As(err, &nfe) {
		return nfe, true
	}
	return nil, false
}

func IsItemNotFoundError(err error) bool {
	nfe, ok := IsNotFoundError(err)
	return ok && nfe.Resource == ResourceMenuItem
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

func IsUnauthorizedError(err error) (*UnauthorizedError, bool) {
	var ue *UnauthorizedError
	if stderrors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

type DeadlockError struct {
	Message string
}

func (e *DeadlockError) Error() string {
	return e.Message
}

func NewDeadlockError(message string) *DeadlockError {
	return &DeadlockError{Message: message}
}

func IsDeadlockError(err error) (*DeadlockError, bool) {
	var de *DeadlockError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// GatewayError reports a failed call to the payment provider. InvalidSignature
// is set when an inbound webhook could not be authenticated.
type GatewayError struct {
	Op               string
	InvalidSignature bool
	Cause            error
}

func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("payment gateway %s failed", e.Op)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

func NewSessionCreationError(cause error) *GatewayError {
	return &GatewayError{Op: "create session", Cause: cause}
}

func NewInvalidSignatureError(cause error) *GatewayError {
	return &GatewayError{Op: "verify webhook", InvalidSignature: true, Cause: cause}
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if stderrors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}
