package service

import (
	"context"
	"errors"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperr"
)

func TestBuildInvoice(t *testing.T) {
	env := newTestEnv(t)
	payments := env.paymentService(&stubGateway{})
	invoices := env.invoiceService()
	ctx := context.Background()

	landlord := createUser(t, env.db, "landlord1", model.RoleLandlord)
	tenant := createUser(t, env.db, "tenant1", model.RoleTenant)
	property := createProperty(t, env.db, landlord, "750000.00")
	request := approvedRequest(t, env, tenant, landlord, property)

	if _, err := payments.InitiatePayment(ctx, principalFor(tenant), request.ID); err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if _, err := payments.ProcessPayment(ctx, principalFor(tenant), request.ID, ProcessPaymentDTO{
		GatewayPaymentID: "pay_receipt",
		GatewaySignature: "sig_valid",
	}); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	invoice, err := invoices.BuildInvoice(ctx, principalFor(tenant), request.ID)
	if err != nil {
		t.Fatalf("BuildInvoice: %v", err)
	}
	if invoice.ReceiptID != "RCP-"+request.ID {
		t.Errorf("receipt id = %s", invoice.ReceiptID)
	}
	if invoice.PurchasePrice != "750000.00" {
		t.Errorf("purchase price = %s, want 750000.00", invoice.PurchasePrice)
	}
	if invoice.GatewayPaymentID != "pay_receipt" {
		t.Errorf("gateway payment id = %s, want pay_receipt", invoice.GatewayPaymentID)
	}
	if invoice.TenantName != "tenant1" || invoice.PropertyTitle == "" {
		t.Errorf("parties not resolved: %+v", invoice)
	}
	if invoice.PaymentDate == "" {
		t.Error("payment date missing")
	}

	// The receipt is a pure derivation: a second call is identical.
	again, err := invoices.BuildInvoice(ctx, principalFor(landlord), request.ID)
	if err != nil {
		t.Fatalf("second BuildInvoice: %v", err)
	}
	if again != invoice {
		t.Errorf("invoice not deterministic:\nfirst  %+v\nsecond %+v", invoice, again)
	}
}

func TestBuildInvoiceRequiresCompletion(t *testing.T) {
	env := newTestEnv(t)
	invoices := env.invoiceService()
	ctx := context.Background()

	landlord := createUser(t, env.db, "landlord1", model.RoleLandlord)
	tenant := createUser(t, env.db, "tenant1", model.RoleTenant)
	property := createProperty(t, env.db, landlord, "100000.00")
	request := approvedRequest(t, env, tenant, landlord, property)

	_, err := invoices.BuildInvoice(ctx, principalFor(tenant), request.ID)
	var stateErr *apperr.InvalidStateTransition
	if !errors.As(err, &stateErr) {
		t.Fatalf("err = %v, want InvalidStateTransition", err)
	}
}

func TestBuildInvoiceRestrictedToParties(t *testing.T) {
	env := newTestEnv(t)
	payments := env.paymentService(&stubGateway{})
	invoices := env.invoiceService()
	ctx := context.Background()

	landlord := createUser(t, env.db, "landlord1", model.RoleLandlord)
	tenant := createUser(t, env.db, "tenant1", model.RoleTenant)
	outsider := createUser(t, env.db, "tenant2", model.RoleTenant)
	property := createProperty(t, env.db, landlord, "100000.00")
	request := approvedRequest(t, env, tenant, landlord, property)

	if _, err := payments.InitiatePayment(ctx, principalFor(tenant), request.ID); err != nil {
		t.Fatalf("InitiatePayment: %v", err)
	}
	if _, err := payments.ProcessPayment(ctx, principalFor(tenant), request.ID, ProcessPaymentDTO{
		GatewayPaymentID: "pay_1",
		GatewaySignature: "sig_valid",
	}); err != nil {
		t.Fatalf("ProcessPayment: %v", err)
	}

	_, err := invoices.BuildInvoice(ctx, principalFor(outsider), request.ID)
	var authErr *apperr.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthorizationError", err)
	}
}
