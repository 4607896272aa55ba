package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Property{}, &model.PurchaseRequest{}, &model.AuditLog{}); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func seedRequest(t *testing.T, db *gorm.DB, tag, status string) *model.PurchaseRequest {
	t.Helper()
	tenant := model.User{Username: "tenant_" + tag, Email: tag + "_t@example.com", Phone: "0", Password: "x", Role: model.RoleTenant}
	landlord := model.User{Username: "landlord_" + tag, Email: tag + "_l@example.com", Phone: "0", Password: "x", Role: model.RoleLandlord}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if err := db.Create(&landlord).Error; err != nil {
		t.Fatalf("create landlord: %v", err)
	}
	property := model.Property{LandlordID: landlord.ID, Title: "T", Address: "A", SalePrice: decimal.NewFromInt(100000), Available: true}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("create property: %v", err)
	}
	request := model.PurchaseRequest{
		PropertyID:    property.ID,
		TenantID:      tenant.ID,
		LandlordID:    landlord.ID,
		Status:        status,
		PurchasePrice: property.SalePrice,
	}
	if err := db.Create(&request).Error; err != nil {
		t.Fatalf("create request: %v", err)
	}
	return &request
}

func TestUpdateWithVersion(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPurchaseRequestRepository(db)
	ctx := context.Background()

	request := seedRequest(t, db, "a", model.StatusPending)

	if err := repo.UpdateWithVersion(ctx, request, map[string]interface{}{
		"status": model.StatusApproved,
	}); err != nil {
		t.Fatalf("UpdateWithVersion: %v", err)
	}
	if request.Version != 1 {
		t.Errorf("in-memory version = %d, want 1", request.Version)
	}

	stored, err := repo.GetByID(ctx, request.ID.String())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != model.StatusApproved || stored.Version != 1 {
		t.Errorf("stored status=%s version=%d, want APPROVED/1", stored.Status, stored.Version)
	}
}

func TestUpdateWithVersionStaleCopy(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPurchaseRequestRepository(db)
	ctx := context.Background()

	request := seedRequest(t, db, "a", model.StatusPending)

	// Two actors read the same version; the second write must lose.
	stale := *request
	if err := repo.UpdateWithVersion(ctx, request, map[string]interface{}{
		"status": model.StatusApproved,
	}); err != nil {
		t.Fatalf("first update: %v", err)
	}

	err := repo.UpdateWithVersion(ctx, &stale, map[string]interface{}{
		"status": model.StatusRejected,
	})
	var conflict *apperr.ConcurrencyConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConcurrencyConflict", err)
	}

	stored, err := repo.GetByID(ctx, request.ID.String())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != model.StatusApproved {
		t.Errorf("status = %s, the losing write must not apply", stored.Status)
	}
}

func TestGetByGatewayPaymentID(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPurchaseRequestRepository(db)
	ctx := context.Background()

	got, err := repo.GetByGatewayPaymentID(ctx, "pay_none")
	if err != nil {
		t.Fatalf("GetByGatewayPaymentID: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil for unknown payment", got)
	}

	request := seedRequest(t, db, "a", model.StatusPaymentPending)
	if err := repo.UpdateWithVersion(ctx, request, map[string]interface{}{
		"status":             model.StatusPaymentCompleted,
		"gateway_payment_id": "pay_xyz",
	}); err != nil {
		t.Fatalf("record payment: %v", err)
	}

	got, err = repo.GetByGatewayPaymentID(ctx, "pay_xyz")
	if err != nil {
		t.Fatalf("GetByGatewayPaymentID: %v", err)
	}
	if got == nil || got.ID != request.ID {
		t.Errorf("lookup returned %v, want request %s", got, request.ID)
	}
}

func TestHasActiveRequest(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPurchaseRequestRepository(db)
	ctx := context.Background()

	request := seedRequest(t, db, "a", model.StatusPending)

	active, err := repo.HasActiveRequest(ctx, request.TenantID.String(), request.PropertyID.String())
	if err != nil {
		t.Fatalf("HasActiveRequest: %v", err)
	}
	if !active {
		t.Error("pending request not reported active")
	}

	if err := repo.UpdateWithVersion(ctx, request, map[string]interface{}{
		"status": model.StatusCancelled,
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	active, err = repo.HasActiveRequest(ctx, request.TenantID.String(), request.PropertyID.String())
	if err != nil {
		t.Fatalf("HasActiveRequest: %v", err)
	}
	if active {
		t.Error("cancelled request reported active")
	}
}

func TestUpdateWithVersionDuplicatePaymentID(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPurchaseRequestRepository(db)
	ctx := context.Background()

	first := seedRequest(t, db, "a", model.StatusPaymentPending)
	second := seedRequest(t, db, "b", model.StatusPaymentPending)

	if err := repo.UpdateWithVersion(ctx, first, map[string]interface{}{
		"status":             model.StatusPaymentCompleted,
		"gateway_payment_id": "pay_same",
	}); err != nil {
		t.Fatalf("record payment on first: %v", err)
	}

	// Both writers pass their version check; the unique index on
	// gateway_payment_id must stop the second and surface as a conflict.
	err := repo.UpdateWithVersion(ctx, second, map[string]interface{}{
		"status":             model.StatusPaymentCompleted,
		"gateway_payment_id": "pay_same",
	})
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}

	stored, err := repo.GetByID(ctx, second.ID.String())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != model.StatusPaymentPending || stored.GatewayPaymentID != nil {
		t.Errorf("second request status=%s payment_id=%v, must be untouched", stored.Status, stored.GatewayPaymentID)
	}
}

func TestMarkSoldOnlyOnce(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewPropertyRepository(db)
	ctx := context.Background()

	landlord := model.User{Username: "landlord", Email: "l@example.com", Phone: "0", Password: "x", Role: model.RoleLandlord}
	if err := db.Create(&landlord).Error; err != nil {
		t.Fatalf("create landlord: %v", err)
	}
	property := model.Property{LandlordID: landlord.ID, Title: "T", Address: "A", SalePrice: decimal.NewFromInt(100000), Available: true}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("create property: %v", err)
	}

	if err := repo.MarkSold(ctx, property.ID.String()); err != nil {
		t.Fatalf("first MarkSold: %v", err)
	}

	err := repo.MarkSold(ctx, property.ID.String())
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second MarkSold err = %v, want ConflictError", err)
	}

	var stored model.Property
	if err := db.First(&stored, "id = ?", property.ID).Error; err != nil {
		t.Fatalf("reload property: %v", err)
	}
	if !stored.Sold || stored.Available {
		t.Errorf("sold=%v available=%v, want true/false", stored.Sold, stored.Available)
	}
}
