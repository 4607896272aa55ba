package repository

import (
	"backend/internal/model"
	"context"
	"errors"

	"backend/pkg/apperr"

	"gorm.io/gorm"
)

// PropertyRepository defines the interface for data access of Property entities
type PropertyRepository interface {
	Create(ctx context.Context, property *model.Property) error
	GetByID(ctx context.Context, id string) (*model.Property, error)
	ListAvailable(ctx context.Context, page, limit int) ([]model.Property, int64, error)
	ListByLandlord(ctx context.Context, landlordID string, page, limit int) ([]model.Property, int64, error)
	Update(ctx context.Context, property *model.Property) error
	MarkSold(ctx context.Context, id string) error
}

type propertyRepository struct {
	db *gorm.DB
}

// NewPropertyRepository returns a new instance of PropertyRepository
func NewPropertyRepository(db *gorm.DB) PropertyRepository {
	return &propertyRepository{db: db}
}

func (r *propertyRepository) Create(ctx context.Context, property *model.Property) error {
	return GetDB(ctx, r.db).Create(property).Error
}

func (r *propertyRepository) GetByID(ctx context.Context, id string) (*model.Property, error) {
	var property model.Property
	if err := GetDB(ctx, r.db).First(&property, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFoundError{Resource: "property", ID: id}
		}
		return nil, err
	}
	return &property, nil
}

func (r *propertyRepository) ListAvailable(ctx context.Context, page, limit int) ([]model.Property, int64, error) {
	var properties []model.Property
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Property{}).Where("available = ? AND sold = ?", true, false)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Where("available = ? AND sold = ?", true, false).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&properties).Error; err != nil {
		return nil, 0, err
	}

	return properties, total, nil
}

func (r *propertyRepository) ListByLandlord(ctx context.Context, landlordID string, page, limit int) ([]model.Property, int64, error) {
	var properties []model.Property
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Property{}).Where("landlord_id = ?", landlordID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Where("landlord_id = ?", landlordID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&properties).Error; err != nil {
		return nil, 0, err
	}

	return properties, total, nil
}

func (r *propertyRepository) Update(ctx context.Context, property *model.Property) error {
	return GetDB(ctx, r.db).Save(property).Error
}

// MarkSold flips the availability flags exactly once. A property that is
// already sold yields ConflictError, which rolls back the enclosing
// transaction.
func (r *propertyRepository) MarkSold(ctx context.Context, id string) error {
	result := GetDB(ctx, r.db).Model(&model.Property{}).
		Where("id = ? AND sold = ?", id, false).
		Updates(map[string]interface{}{"sold": true, "available": false})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &apperr.ConflictError{Msg: "property is already sold"}
	}
	return nil
}
