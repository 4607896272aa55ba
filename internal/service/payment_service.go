package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/gateway"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type ProcessPaymentDTO struct {
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	GatewaySignature string `json:"gateway_signature" binding:"required"`
}

type InitiatePaymentResponse struct {
	RequestID        string `json:"request_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	PurchasePrice    string `json:"purchase_price"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
}

// --- Interface ---

// PaymentService drives the payment leg of the purchase lifecycle:
// gateway order creation and signature-verified confirmation. Both entry
// points are idempotent against duplicate delivery.
type PaymentService interface {
	InitiatePayment(ctx context.Context, p Principal, requestID string) (InitiatePaymentResponse, error)
	ProcessPayment(ctx context.Context, p Principal, requestID string, req ProcessPaymentDTO) (PurchaseRequestResponse, error)
}

type paymentService struct {
	requests   repository.PurchaseRequestRepository
	properties repository.PropertyRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
	adapter    gateway.Adapter
	currency   string
	hub        Broadcaster
}

func NewPaymentService(
	requests repository.PurchaseRequestRepository,
	properties repository.PropertyRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	adapter gateway.Adapter,
	currency string,
	hub Broadcaster,
) PaymentService {
	return &paymentService{
		requests:   requests,
		properties: properties,
		audits:     audits,
		txManager:  txManager,
		adapter:    adapter,
		currency:   currency,
		hub:        hub,
	}
}

// --- Implementation ---

// InitiatePayment creates a gateway order for an approved request and moves
// it to PAYMENT_PENDING. Calling it again while an order is already pending
// returns the existing order unchanged.
func (s *paymentService) InitiatePayment(ctx context.Context, p Principal, requestID string) (InitiatePaymentResponse, error) {
	logger := log.With().Str("component", "payment").Str("request_id", requestID).Logger()

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}
	if authErr := requireTenantOf(p, request); authErr != nil {
		return InitiatePaymentResponse{}, authErr
	}

	// Idempotent no-op: a pending order already exists, return it rather
	// than creating a duplicate at the gateway.
	if request.Status == model.StatusPaymentPending && request.GatewayOrderID != "" {
		return s.toInitiateResponse(request)
	}

	if request.Status != model.StatusApproved && request.Status != model.StatusPaymentFailed {
		return InitiatePaymentResponse{}, &apperr.InvalidStateTransition{Current: request.Status, Requested: model.StatusPaymentPending}
	}

	property, err := s.properties.GetByID(ctx, request.PropertyID.String())
	if err != nil {
		return InitiatePaymentResponse{}, err
	}
	if property.Sold || !property.Available {
		return InitiatePaymentResponse{}, &apperr.ConflictError{Msg: "property is no longer available"}
	}

	amountMinor, err := toMinorUnits(request.PurchasePrice)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}

	orderID, err := s.adapter.CreateOrder(ctx, amountMinor, s.currency, map[string]string{
		"request_id":  request.ID.String(),
		"property_id": request.PropertyID.String(),
	})
	if err != nil {
		return InitiatePaymentResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if updErr := s.requests.UpdateWithVersion(txCtx, request, map[string]interface{}{
			"status":           model.StatusPaymentPending,
			"gateway_order_id": orderID,
			"failure_reason":   "",
		}); updErr != nil {
			return updErr
		}
		request.Status = model.StatusPaymentPending
		request.GatewayOrderID = orderID
		request.FailureReason = ""
		return s.logPayment(txCtx, &p, model.ActionInitiatePayment, request, map[string]interface{}{
			"gateway_order_id": orderID,
			"amount_minor":     amountMinor,
		})
	})
	if err != nil {
		var conflict *apperr.ConcurrencyConflict
		if errors.As(err, &conflict) {
			// A racing initiation won; fall back to the stored order. The
			// extra gateway order is abandoned unpaid.
			current, readErr := s.requests.GetByID(ctx, requestID)
			if readErr == nil && current.Status == model.StatusPaymentPending && current.GatewayOrderID != "" {
				logger.Warn().Str("gateway_order_id", current.GatewayOrderID).Msg("racing payment initiation, returning existing order")
				return s.toInitiateResponse(current)
			}
		}
		return InitiatePaymentResponse{}, err
	}

	logger.Info().Str("gateway_order_id", orderID).Int64("amount_minor", amountMinor).Msg("payment initiated")
	s.notifyPayment("payment_initiated", request)

	return s.toInitiateResponse(request)
}

// ProcessPayment records the outcome of a gateway payment for a pending
// order. A failed signature is a recorded business outcome: the request
// moves to PAYMENT_FAILED and the typed error identifies the attempt, but
// the API layer surfaces it as a failed payment, not a server fault.
func (s *paymentService) ProcessPayment(ctx context.Context, p Principal, requestID string, req ProcessPaymentDTO) (PurchaseRequestResponse, error) {
	logger := log.With().Str("component", "payment").Str("request_id", requestID).Logger()

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return PurchaseRequestResponse{}, err
	}
	if !p.IsGateway() {
		if authErr := requireTenantOf(p, request); authErr != nil {
			return PurchaseRequestResponse{}, authErr
		}
	}

	// Idempotency guard: a payment id completes at most one request.
	// Duplicate webhook delivery and a racing client callback both land here
	// and return the prior result.
	if done, resp, guardErr := s.checkAlreadyProcessed(ctx, request, req.GatewayPaymentID); done || guardErr != nil {
		return resp, guardErr
	}

	if request.Status != model.StatusPaymentPending {
		return PurchaseRequestResponse{}, &apperr.InvalidStateTransition{Current: request.Status, Requested: model.StatusPaymentCompleted}
	}

	if !s.adapter.VerifySignature(request.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature) {
		return s.recordSignatureFailure(ctx, p, request, req)
	}

	// The signature is verified; completing is purely a storage concern from
	// here, so a version race is retried once without re-verifying.
	var completeErr error
	for attempt := 0; attempt < 2; attempt++ {
		completeErr = s.complete(ctx, p, request, req.GatewayPaymentID)
		if completeErr == nil {
			break
		}
		var conflict *apperr.ConcurrencyConflict
		if !errors.As(completeErr, &conflict) {
			return PurchaseRequestResponse{}, completeErr
		}

		current, readErr := s.requests.GetByID(ctx, requestID)
		if readErr != nil {
			return PurchaseRequestResponse{}, readErr
		}
		if done, resp, guardErr := s.checkAlreadyProcessed(ctx, current, req.GatewayPaymentID); done || guardErr != nil {
			return resp, guardErr
		}
		if current.Status != model.StatusPaymentPending {
			return PurchaseRequestResponse{}, &apperr.InvalidStateTransition{Current: current.Status, Requested: model.StatusPaymentCompleted}
		}
		request = current
	}
	if completeErr != nil {
		return PurchaseRequestResponse{}, completeErr
	}

	logger.Info().Str("gateway_payment_id", req.GatewayPaymentID).Msg("payment completed, property marked sold")
	s.notifyPayment("payment_completed", request)

	reloaded, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return PurchaseRequestResponse{}, fmt.Errorf("failed to reload purchase request: %w", err)
	}
	return toPurchaseRequestResponse(reloaded), nil
}

// checkAlreadyProcessed returns the prior result when this gateway payment
// id has already completed a request. A payment id recorded on a different
// request is a conflict, never a second completion.
func (s *paymentService) checkAlreadyProcessed(ctx context.Context, request *model.PurchaseRequest, paymentID string) (bool, PurchaseRequestResponse, error) {
	if request.Status == model.StatusPaymentCompleted &&
		request.GatewayPaymentID != nil && *request.GatewayPaymentID == paymentID {
		return true, toPurchaseRequestResponse(request), nil
	}

	other, err := s.requests.GetByGatewayPaymentID(ctx, paymentID)
	if err != nil {
		return false, PurchaseRequestResponse{}, fmt.Errorf("failed to check payment idempotency: %w", err)
	}
	if other == nil {
		return false, PurchaseRequestResponse{}, nil
	}
	if other.ID == request.ID {
		return true, toPurchaseRequestResponse(other), nil
	}
	return false, PurchaseRequestResponse{}, &apperr.ConflictError{Msg: "gateway payment already applied to another request"}
}

// complete applies the success transition and flips the property's sold flag
// in one transaction. Either both writes land or neither does.
func (s *paymentService) complete(ctx context.Context, p Principal, request *model.PurchaseRequest, paymentID string) error {
	now := time.Now()
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.requests.UpdateWithVersion(txCtx, request, map[string]interface{}{
			"status":             model.StatusPaymentCompleted,
			"gateway_payment_id": paymentID,
			"payment_date":       now,
		}); err != nil {
			return err
		}
		request.Status = model.StatusPaymentCompleted
		request.GatewayPaymentID = &paymentID
		request.PaymentDate = &now

		if err := s.properties.MarkSold(txCtx, request.PropertyID.String()); err != nil {
			return err
		}

		return s.logPayment(txCtx, &p, model.ActionCompletePayment, request, map[string]interface{}{
			"gateway_payment_id": paymentID,
		})
	})
}

// recordSignatureFailure moves the request to PAYMENT_FAILED and stores the
// reason. The state write is best-effort CAS; if a racing call already
// transitioned the request, the recorded outcome stands.
func (s *paymentService) recordSignatureFailure(ctx context.Context, p Principal, request *model.PurchaseRequest, req ProcessPaymentDTO) (PurchaseRequestResponse, error) {
	logger := log.With().Str("component", "payment").Str("request_id", request.ID.String()).Logger()

	verifErr := &apperr.SignatureVerificationFailed{
		OrderID:   request.GatewayOrderID,
		PaymentID: req.GatewayPaymentID,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if updErr := s.requests.UpdateWithVersion(txCtx, request, map[string]interface{}{
			"status":         model.StatusPaymentFailed,
			"failure_reason": verifErr.Error(),
		}); updErr != nil {
			return updErr
		}
		request.Status = model.StatusPaymentFailed
		request.FailureReason = verifErr.Error()
		return s.logPayment(txCtx, &p, model.ActionFailPayment, request, map[string]interface{}{
			"gateway_payment_id": req.GatewayPaymentID,
			"reason":             "signature verification failed",
		})
	})
	if err != nil {
		var conflict *apperr.ConcurrencyConflict
		if !errors.As(err, &conflict) {
			return PurchaseRequestResponse{}, err
		}
	}

	logger.Warn().Str("gateway_payment_id", req.GatewayPaymentID).Msg("payment signature verification failed")
	s.notifyPayment("payment_failed", request)

	reloaded, readErr := s.requests.GetByID(ctx, request.ID.String())
	if readErr != nil {
		return PurchaseRequestResponse{}, readErr
	}
	return toPurchaseRequestResponse(reloaded), verifErr
}

func (s *paymentService) toInitiateResponse(request *model.PurchaseRequest) (InitiatePaymentResponse, error) {
	amountMinor, err := toMinorUnits(request.PurchasePrice)
	if err != nil {
		return InitiatePaymentResponse{}, err
	}
	return InitiatePaymentResponse{
		RequestID:        request.ID.String(),
		GatewayOrderID:   request.GatewayOrderID,
		PurchasePrice:    request.PurchasePrice.StringFixed(2),
		AmountMinorUnits: amountMinor,
		Currency:         s.currency,
	}, nil
}

func (s *paymentService) logPayment(ctx context.Context, p *Principal, action string, request *model.PurchaseRequest, extra map[string]interface{}) error {
	var userID *uuid.UUID
	if !p.IsGateway() {
		id := p.UserID
		userID = &id
	}

	entry := model.AuditLog{
		UserID:   userID,
		Action:   action,
		EntityID: request.ID.String(),
	}
	payload := map[string]interface{}{
		"request_id": request.ID.String(),
		"status":     request.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	details, _ := json.Marshal(payload)
	entry.Details = string(details)

	if err := s.audits.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *paymentService) notifyPayment(event string, request *model.PurchaseRequest) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastJSON(map[string]interface{}{
		"event":      event,
		"request_id": request.ID.String(),
		"status":     request.Status,
	})
}

// toMinorUnits converts a decimal price to gateway minor units with exact
// integer arithmetic. A price carrying sub-minor precision is a data error,
// never silently rounded.
func toMinorUnits(price decimal.Decimal) (int64, error) {
	minor := price.Mul(decimal.NewFromInt(100))
	if !minor.IsInteger() {
		return 0, &apperr.ValidationError{Msg: "purchase price has sub-minor-unit precision"}
	}
	return minor.IntPart(), nil
}
