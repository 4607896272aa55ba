package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Property{},
		&model.PurchaseRequest{},
		&model.AuditLog{},
	); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

type testEnv struct {
	db         *gorm.DB
	requests   repository.PurchaseRequestRepository
	properties repository.PropertyRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newServiceDBForTest(t)
	return &testEnv{
		db:         db,
		requests:   repository.NewPurchaseRequestRepository(db),
		properties: repository.NewPropertyRepository(db),
		audits:     repository.NewAuditRepository(db),
		txManager:  repository.NewTransactionManager(db),
	}
}

func (e *testEnv) requestService() PurchaseRequestService {
	return NewPurchaseRequestService(e.requests, e.properties, e.audits, e.txManager, nil)
}

func (e *testEnv) paymentService(adapter *stubGateway) PaymentService {
	return NewPaymentService(e.requests, e.properties, e.audits, e.txManager, adapter, "INR", nil)
}

func (e *testEnv) invoiceService() InvoiceService {
	return NewInvoiceService(e.requests, "INR")
}

func createUser(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()
	user := &model.User{
		Username: username,
		Email:    username + "@example.com",
		Phone:    "0000000000",
		Password: "hashed",
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func createProperty(t *testing.T, db *gorm.DB, landlord *model.User, price string) *model.Property {
	t.Helper()
	salePrice, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("parse price %s: %v", price, err)
	}
	property := &model.Property{
		LandlordID: landlord.ID,
		Title:      "Unit 42",
		Address:    "42 High Street",
		SalePrice:  salePrice,
		Available:  true,
	}
	if err := db.Create(property).Error; err != nil {
		t.Fatalf("create property: %v", err)
	}
	return property
}

func principalFor(u *model.User) Principal {
	return Principal{UserID: u.ID, Role: u.Role}
}

func reloadRequest(t *testing.T, db *gorm.DB, id string) *model.PurchaseRequest {
	t.Helper()
	var request model.PurchaseRequest
	if err := db.First(&request, "id = ?", id).Error; err != nil {
		t.Fatalf("reload request %s: %v", id, err)
	}
	return &request
}

func reloadProperty(t *testing.T, db *gorm.DB, id string) *model.Property {
	t.Helper()
	var property model.Property
	if err := db.First(&property, "id = ?", id).Error; err != nil {
		t.Fatalf("reload property %s: %v", id, err)
	}
	return &property
}

// stubGateway is a function-field fake of the gateway adapter.
type stubGateway struct {
	createCalls int
	createFn    func(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (string, error)
	verifyFn    func(orderID, paymentID, signature string) bool
}

func (g *stubGateway) CreateOrder(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (string, error) {
	g.createCalls++
	if g.createFn == nil {
		return fmt.Sprintf("ord_%d", g.createCalls), nil
	}
	return g.createFn(ctx, amountMinorUnits, currency, metadata)
}

func (g *stubGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if g.verifyFn == nil {
		return signature == "sig_valid"
	}
	return g.verifyFn(orderID, paymentID, signature)
}
