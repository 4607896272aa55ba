package repository

import (
	"backend/internal/model"
	"context"
	"errors"

	"backend/pkg/apperr"

	"gorm.io/gorm"
)

// PurchaseRequestRepository defines the interface for data access of
// PurchaseRequest entities. All writes that change status go through
// UpdateWithVersion so no two transitions can apply concurrently.
type PurchaseRequestRepository interface {
	Create(ctx context.Context, request *model.PurchaseRequest) error
	GetByID(ctx context.Context, id string) (*model.PurchaseRequest, error)
	GetByGatewayPaymentID(ctx context.Context, paymentID string) (*model.PurchaseRequest, error)
	HasActiveRequest(ctx context.Context, tenantID, propertyID string) (bool, error)
	ListByTenant(ctx context.Context, tenantID string, page, limit int) ([]model.PurchaseRequest, int64, error)
	ListByLandlord(ctx context.Context, landlordID string, page, limit int) ([]model.PurchaseRequest, int64, error)
	UpdateWithVersion(ctx context.Context, request *model.PurchaseRequest, updates map[string]interface{}) error
}

type purchaseRequestRepository struct {
	db *gorm.DB
}

// NewPurchaseRequestRepository returns a new instance of PurchaseRequestRepository
func NewPurchaseRequestRepository(db *gorm.DB) PurchaseRequestRepository {
	return &purchaseRequestRepository{db: db}
}

func (r *purchaseRequestRepository) Create(ctx context.Context, request *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Create(request).Error
}

func (r *purchaseRequestRepository) GetByID(ctx context.Context, id string) (*model.PurchaseRequest, error) {
	var request model.PurchaseRequest
	if err := GetDB(ctx, r.db).
		Preload("Tenant").Preload("Landlord").Preload("Property").
		First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFoundError{Resource: "purchase request", ID: id}
		}
		return nil, err
	}
	return &request, nil
}

// GetByGatewayPaymentID looks up the request that recorded a gateway payment.
// Returns (nil, nil) when no request has recorded it; used by the
// idempotency guard in payment processing.
func (r *purchaseRequestRepository) GetByGatewayPaymentID(ctx context.Context, paymentID string) (*model.PurchaseRequest, error) {
	var request model.PurchaseRequest
	err := GetDB(ctx, r.db).
		Preload("Tenant").Preload("Landlord").Preload("Property").
		First(&request, "gateway_payment_id = ?", paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *purchaseRequestRepository) HasActiveRequest(ctx context.Context, tenantID, propertyID string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("tenant_id = ? AND property_id = ? AND status IN ?", tenantID, propertyID, model.ActiveStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *purchaseRequestRepository) ListByTenant(ctx context.Context, tenantID string, page, limit int) ([]model.PurchaseRequest, int64, error) {
	return r.list(ctx, "tenant_id = ?", tenantID, page, limit)
}

func (r *purchaseRequestRepository) ListByLandlord(ctx context.Context, landlordID string, page, limit int) ([]model.PurchaseRequest, int64, error) {
	return r.list(ctx, "landlord_id = ?", landlordID, page, limit)
}

func (r *purchaseRequestRepository) list(ctx context.Context, cond, arg string, page, limit int) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.PurchaseRequest{}).Where(cond, arg).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Preload("Property").Preload("Tenant").Preload("Landlord").
		Where(cond, arg).
		Order("created_at DESC").Offset(offset).Limit(limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// UpdateWithVersion applies updates conditional on the version the caller
// read. A version mismatch means another transition won the race and yields
// ConcurrencyConflict; the caller must re-read and decide. On success the
// in-memory request reflects the new version and updated fields.
func (r *purchaseRequestRepository) UpdateWithVersion(ctx context.Context, request *model.PurchaseRequest, updates map[string]interface{}) error {
	updates["version"] = request.Version + 1

	result := GetDB(ctx, r.db).Model(&model.PurchaseRequest{}).
		Where("id = ? AND version = ?", request.ID, request.Version).
		Updates(updates)
	if result.Error != nil {
		// The unique index on gateway_payment_id is the last line of defence
		// when two requests race to record the same payment.
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return &apperr.ConflictError{Msg: "gateway payment already recorded on another request"}
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &apperr.ConcurrencyConflict{Resource: "purchase request", ID: request.ID.String()}
	}

	request.Version++
	return nil
}
