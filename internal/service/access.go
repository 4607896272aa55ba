package service

import (
	"backend/internal/model"
	"backend/pkg/apperr"

	"github.com/google/uuid"
)

// Principal is the explicit caller identity passed into every service call.
// Handlers build it from the verified JWT; no service reads ambient state.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// GatewayPrincipal identifies the payment gateway webhook. It carries no
// user id; webhook calls are authenticated by the payment signature instead.
func GatewayPrincipal() Principal {
	return Principal{Role: "gateway"}
}

// IsGateway reports whether the principal is the webhook pseudo-caller.
func (p Principal) IsGateway() bool {
	return p.Role == "gateway"
}

// IsTenantOf reports whether the principal is the requesting tenant.
func (p Principal) IsTenantOf(request *model.PurchaseRequest) bool {
	return p.Role == model.RoleTenant && p.UserID == request.TenantID
}

// IsLandlordOf reports whether the principal is the landlord owning the
// request's property.
func (p Principal) IsLandlordOf(request *model.PurchaseRequest) bool {
	return p.Role == model.RoleLandlord && p.UserID == request.LandlordID
}

// IsPartyTo reports whether the principal is either party to the request.
func (p Principal) IsPartyTo(request *model.PurchaseRequest) bool {
	return p.UserID == request.TenantID || p.UserID == request.LandlordID
}

func requireTenantOf(p Principal, request *model.PurchaseRequest) error {
	if !p.IsTenantOf(request) {
		return &apperr.AuthorizationError{Msg: "caller is not the requesting tenant"}
	}
	return nil
}

func requireLandlordOf(p Principal, request *model.PurchaseRequest) error {
	if !p.IsLandlordOf(request) {
		return &apperr.AuthorizationError{Msg: "caller is not the landlord of this property"}
	}
	return nil
}
