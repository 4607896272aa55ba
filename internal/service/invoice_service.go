package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"
)

// InvoiceResponse is the immutable receipt view of a completed purchase.
// Every field derives from stored data, so two calls for the same request
// produce identical output.
type InvoiceResponse struct {
	ReceiptID        string `json:"receipt_id"`
	RequestID        string `json:"request_id"`
	TenantName       string `json:"tenant_name"`
	TenantEmail      string `json:"tenant_email"`
	PropertyTitle    string `json:"property_title"`
	PropertyAddress  string `json:"property_address"`
	PurchasePrice    string `json:"purchase_price"`
	Currency         string `json:"currency"`
	PaymentDate      string `json:"payment_date"`
	GatewayPaymentID string `json:"gateway_payment_id"`
}

type InvoiceService interface {
	BuildInvoice(ctx context.Context, p Principal, requestID string) (InvoiceResponse, error)
}

type invoiceService struct {
	requests repository.PurchaseRequestRepository
	currency string
}

func NewInvoiceService(requests repository.PurchaseRequestRepository, currency string) InvoiceService {
	return &invoiceService{requests: requests, currency: currency}
}

// BuildInvoice derives the receipt for a completed purchase. No side
// effects, no external calls.
func (s *invoiceService) BuildInvoice(ctx context.Context, p Principal, requestID string) (InvoiceResponse, error) {
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	if !p.IsPartyTo(request) {
		return InvoiceResponse{}, &apperr.AuthorizationError{Msg: "caller is not a party to this request"}
	}
	if request.Status != model.StatusPaymentCompleted {
		return InvoiceResponse{}, &apperr.InvalidStateTransition{Current: request.Status, Requested: model.StatusPaymentCompleted}
	}

	invoice := InvoiceResponse{
		ReceiptID:     "RCP-" + request.ID.String(),
		RequestID:     request.ID.String(),
		PurchasePrice: request.PurchasePrice.StringFixed(2),
		Currency:      s.currency,
	}
	if request.Tenant != nil {
		invoice.TenantName = request.Tenant.Username
		invoice.TenantEmail = request.Tenant.Email
	}
	if request.Property != nil {
		invoice.PropertyTitle = request.Property.Title
		invoice.PropertyAddress = request.Property.Address
	}
	if request.PaymentDate != nil {
		invoice.PaymentDate = request.PaymentDate.UTC().Format(time.RFC3339)
	}
	if request.GatewayPaymentID != nil {
		invoice.GatewayPaymentID = *request.GatewayPaymentID
	}

	return invoice, nil
}
