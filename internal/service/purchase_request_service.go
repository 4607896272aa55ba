package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/google/uuid"
)

// --- DTOs ---

type UpdateStatusDTO struct {
	Status        string `json:"status" binding:"required,oneof=APPROVED REJECTED"`
	ResponseNotes string `json:"response_notes"`
}

type PurchaseRequestResponse struct {
	ID               string  `json:"id"`
	PropertyID       string  `json:"property_id"`
	PropertyTitle    string  `json:"property_title,omitempty"`
	TenantID         string  `json:"tenant_id"`
	TenantName       string  `json:"tenant_name,omitempty"`
	LandlordID       string  `json:"landlord_id"`
	LandlordName     string  `json:"landlord_name,omitempty"`
	Status           string  `json:"status"`
	PurchasePrice    string  `json:"purchase_price"`
	RequestDate      string  `json:"request_date"`
	ResponseNotes    string  `json:"response_notes,omitempty"`
	GatewayOrderID   string  `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty"`
	PaymentDate      *string `json:"payment_date,omitempty"`
	FailureReason    string  `json:"failure_reason,omitempty"`
	Version          int64   `json:"version"`
}

// Broadcaster pushes workflow events to connected clients. The websocket hub
// satisfies it; a nil broadcaster disables notifications.
type Broadcaster interface {
	BroadcastJSON(v interface{})
}

// --- Interface ---

type PurchaseRequestService interface {
	CreateRequest(ctx context.Context, p Principal, propertyID string) (PurchaseRequestResponse, error)
	UpdateStatus(ctx context.Context, p Principal, requestID string, req UpdateStatusDTO) (PurchaseRequestResponse, error)
	CancelRequest(ctx context.Context, p Principal, requestID string) (PurchaseRequestResponse, error)
	GetRequest(ctx context.Context, p Principal, requestID string) (PurchaseRequestResponse, error)
	ListForTenant(ctx context.Context, p Principal, page, limit int) ([]PurchaseRequestResponse, int64, error)
	ListForLandlord(ctx context.Context, p Principal, page, limit int) ([]PurchaseRequestResponse, int64, error)
}

type purchaseRequestService struct {
	requests   repository.PurchaseRequestRepository
	properties repository.PropertyRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
	hub        Broadcaster
}

func NewPurchaseRequestService(
	requests repository.PurchaseRequestRepository,
	properties repository.PropertyRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	hub Broadcaster,
) PurchaseRequestService {
	return &purchaseRequestService{
		requests:   requests,
		properties: properties,
		audits:     audits,
		txManager:  txManager,
		hub:        hub,
	}
}

// --- Implementation ---

func (s *purchaseRequestService) CreateRequest(ctx context.Context, p Principal, propertyID string) (PurchaseRequestResponse, error) {
	if p.Role != model.RoleTenant {
		return PurchaseRequestResponse{}, &apperr.AuthorizationError{Msg: "only tenants can create purchase requests"}
	}
	if _, err := uuid.Parse(propertyID); err != nil {
		return PurchaseRequestResponse{}, &apperr.ValidationError{Msg: "invalid property id"}
	}

	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	if !property.Available || property.Sold {
		return PurchaseRequestResponse{}, &apperr.ConflictError{Msg: "property is not available for sale"}
	}
	if property.LandlordID == p.UserID {
		return PurchaseRequestResponse{}, &apperr.ConflictError{Msg: "cannot purchase your own property"}
	}

	active, err := s.requests.HasActiveRequest(ctx, p.UserID.String(), propertyID)
	if err != nil {
		return PurchaseRequestResponse{}, fmt.Errorf("failed to check existing requests: %w", err)
	}
	if active {
		return PurchaseRequestResponse{}, &apperr.ConflictError{Msg: "an active purchase request already exists for this property"}
	}

	// Snapshot the sale price at creation. Later price changes on the
	// property never affect an in-flight purchase.
	request := model.PurchaseRequest{
		PropertyID:    property.ID,
		TenantID:      p.UserID,
		LandlordID:    property.LandlordID,
		Status:        model.StatusPending,
		PurchasePrice: property.SalePrice,
		RequestDate:   time.Now(),
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.requests.Create(txCtx, &request); createErr != nil {
			return fmt.Errorf("failed to create purchase request: %w", createErr)
		}
		return s.writeAudit(txCtx, &p.UserID, model.ActionCreatePurchaseRequest, &request, map[string]interface{}{
			"property_id": property.ID.String(),
			"price":       property.SalePrice.StringFixed(4),
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	s.notify("purchase_request_created", &request)

	// Reload with relations
	reloaded, err := s.requests.GetByID(ctx, request.ID.String())
	if err != nil {
		return PurchaseRequestResponse{}, fmt.Errorf("failed to reload purchase request: %w", err)
	}

	return toPurchaseRequestResponse(reloaded), nil
}

func (s *purchaseRequestService) UpdateStatus(ctx context.Context, p Principal, requestID string, req UpdateStatusDTO) (PurchaseRequestResponse, error) {
	if req.Status != model.StatusApproved && req.Status != model.StatusRejected {
		return PurchaseRequestResponse{}, &apperr.ValidationError{Msg: "status must be APPROVED or REJECTED"}
	}

	action := model.ActionApprovePurchaseRequest
	if req.Status == model.StatusRejected {
		action = model.ActionRejectPurchaseRequest
	}

	var result *model.PurchaseRequest
	err := s.withConflictRetry(ctx, requestID, func(request *model.PurchaseRequest) error {
		if authErr := requireLandlordOf(p, request); authErr != nil {
			return authErr
		}
		if request.Status != model.StatusPending {
			return &apperr.InvalidStateTransition{Current: request.Status, Requested: req.Status}
		}

		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if updErr := s.requests.UpdateWithVersion(txCtx, request, map[string]interface{}{
				"status":         req.Status,
				"response_notes": req.ResponseNotes,
			}); updErr != nil {
				return updErr
			}
			request.Status = req.Status
			request.ResponseNotes = req.ResponseNotes
			result = request
			return s.writeAudit(txCtx, &p.UserID, action, request, map[string]interface{}{
				"notes": req.ResponseNotes,
			})
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	s.notify("purchase_request_"+req.Status, result)

	reloaded, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return PurchaseRequestResponse{}, fmt.Errorf("failed to reload purchase request: %w", err)
	}
	return toPurchaseRequestResponse(reloaded), nil
}

func (s *purchaseRequestService) CancelRequest(ctx context.Context, p Principal, requestID string) (PurchaseRequestResponse, error) {
	var result *model.PurchaseRequest
	err := s.withConflictRetry(ctx, requestID, func(request *model.PurchaseRequest) error {
		if authErr := requireTenantOf(p, request); authErr != nil {
			return authErr
		}
		// Once a gateway order exists, cancellation must go through the
		// gateway's own flow.
		if request.Status != model.StatusPending && request.Status != model.StatusApproved {
			return &apperr.InvalidStateTransition{Current: request.Status, Requested: model.StatusCancelled}
		}

		return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if updErr := s.requests.UpdateWithVersion(txCtx, request, map[string]interface{}{
				"status": model.StatusCancelled,
			}); updErr != nil {
				return updErr
			}
			request.Status = model.StatusCancelled
			result = request
			return s.writeAudit(txCtx, &p.UserID, model.ActionCancelPurchaseRequest, request, nil)
		})
	})
	if err != nil {
		return PurchaseRequestResponse{}, err
	}

	s.notify("purchase_request_cancelled", result)

	reloaded, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return PurchaseRequestResponse{}, fmt.Errorf("failed to reload purchase request: %w", err)
	}
	return toPurchaseRequestResponse(reloaded), nil
}

func (s *purchaseRequestService) GetRequest(ctx context.Context, p Principal, requestID string) (PurchaseRequestResponse, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return PurchaseRequestResponse{}, err
	}
	if !p.IsPartyTo(request) {
		return PurchaseRequestResponse{}, &apperr.AuthorizationError{Msg: "caller is not a party to this request"}
	}
	return toPurchaseRequestResponse(request), nil
}

func (s *purchaseRequestService) ListForTenant(ctx context.Context, p Principal, page, limit int) ([]PurchaseRequestResponse, int64, error) {
	requests, total, err := s.requests.ListByTenant(ctx, p.UserID.String(), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchase requests: %w", err)
	}
	return toPurchaseRequestResponses(requests), total, nil
}

func (s *purchaseRequestService) ListForLandlord(ctx context.Context, p Principal, page, limit int) ([]PurchaseRequestResponse, int64, error) {
	requests, total, err := s.requests.ListByLandlord(ctx, p.UserID.String(), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch purchase requests: %w", err)
	}
	return toPurchaseRequestResponses(requests), total, nil
}

// withConflictRetry loads the request and runs fn. A ConcurrencyConflict is
// retried once against freshly read state before surfacing.
func (s *purchaseRequestService) withConflictRetry(ctx context.Context, requestID string, fn func(request *model.PurchaseRequest) error) error {
	var conflict *apperr.ConcurrencyConflict
	for attempt := 0; attempt < 2; attempt++ {
		request, err := s.requests.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		err = fn(request)
		if err == nil {
			return nil
		}
		if !errors.As(err, &conflict) {
			return err
		}
	}
	return conflict
}

func (s *purchaseRequestService) writeAudit(ctx context.Context, userID *uuid.UUID, action string, request *model.PurchaseRequest, extra map[string]interface{}) error {
	payload := map[string]interface{}{
		"request_id": request.ID.String(),
		"status":     request.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}
	details, _ := json.Marshal(payload)

	entry := model.AuditLog{
		UserID:   userID,
		Action:   action,
		EntityID: request.ID.String(),
		Details:  string(details),
	}
	if err := s.audits.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func (s *purchaseRequestService) notify(event string, request *model.PurchaseRequest) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastJSON(map[string]interface{}{
		"event":      event,
		"request_id": request.ID.String(),
		"status":     request.Status,
	})
}

// --- Helpers ---

func toPurchaseRequestResponse(r *model.PurchaseRequest) PurchaseRequestResponse {
	resp := PurchaseRequestResponse{
		ID:             r.ID.String(),
		PropertyID:     r.PropertyID.String(),
		TenantID:       r.TenantID.String(),
		LandlordID:     r.LandlordID.String(),
		Status:         r.Status,
		PurchasePrice:  r.PurchasePrice.StringFixed(2),
		RequestDate:    r.RequestDate.Format(time.RFC3339),
		ResponseNotes:  r.ResponseNotes,
		GatewayOrderID: r.GatewayOrderID,
		FailureReason:  r.FailureReason,
		Version:        r.Version,
	}

	if r.Property != nil {
		resp.PropertyTitle = r.Property.Title
	}
	if r.Tenant != nil {
		resp.TenantName = r.Tenant.Username
	}
	if r.Landlord != nil {
		resp.LandlordName = r.Landlord.Username
	}
	if r.GatewayPaymentID != nil {
		id := *r.GatewayPaymentID
		resp.GatewayPaymentID = &id
	}
	if r.PaymentDate != nil {
		d := r.PaymentDate.Format(time.RFC3339)
		resp.PaymentDate = &d
	}

	return resp
}

func toPurchaseRequestResponses(requests []model.PurchaseRequest) []PurchaseRequestResponse {
	result := make([]PurchaseRequestResponse, 0, len(requests))
	for i := range requests {
		result = append(result, toPurchaseRequestResponse(&requests[i]))
	}
	return result
}
