// Package apperr defines the error taxonomy shared by services and handlers.
// Handlers map these onto HTTP statuses; services return them wrapped with
// %w so callers can match with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// AuthorizationError reports a caller with the wrong role or one who is not
// a party to the record they are acting on.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError reports a business-rule conflict, e.g. a duplicate active
// purchase request or a property that is no longer available.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// InvalidStateTransition reports a transition not allowed from the record's
// current status. It always carries both states so callers can see what was
// attempted.
type InvalidStateTransition struct {
	Current   string
	Requested string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.Current, e.Requested)
}

// ConcurrencyConflict reports an optimistic-lock version mismatch on write.
// Callers should re-read current state before retrying.
type ConcurrencyConflict struct {
	Resource string
	ID       string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s", e.Resource, e.ID)
}

// SignatureVerificationFailed reports an invalid gateway signature. It is a
// recorded business outcome (the request moves to PAYMENT_FAILED), not a
// server fault, and must never surface as a 5xx.
type SignatureVerificationFailed struct {
	OrderID   string
	PaymentID string
}

func (e *SignatureVerificationFailed) Error() string {
	return fmt.Sprintf("gateway signature verification failed for order %s payment %s", e.OrderID, e.PaymentID)
}

// GatewayUnavailable reports a transient gateway failure after the adapter's
// retry budget is exhausted.
type GatewayUnavailable struct {
	Err error
}

func (e *GatewayUnavailable) Error() string {
	return fmt.Sprintf("payment gateway unavailable: %v", e.Err)
}

func (e *GatewayUnavailable) Unwrap() error { return e.Err }

// HTTPStatus maps an error from the taxonomy onto an HTTP status code.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation  *ValidationError
		authz       *AuthorizationError
		notFound    *NotFoundError
		conflict    *ConflictError
		transition  *InvalidStateTransition
		concurrency *ConcurrencyConflict
		gateway     *GatewayUnavailable
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &authz):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &concurrency):
		return http.StatusConflict
	case errors.As(err, &gateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
