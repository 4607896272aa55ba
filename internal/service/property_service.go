package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperr"

	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreatePropertyDTO struct {
	Title       string `json:"title" binding:"required"`
	Address     string `json:"address" binding:"required"`
	Description string `json:"description"`
	SalePrice   string `json:"sale_price" binding:"required"`
}

type PropertyResponse struct {
	ID          string `json:"id"`
	LandlordID  string `json:"landlord_id"`
	Title       string `json:"title"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
	SalePrice   string `json:"sale_price"`
	Available   bool   `json:"available"`
	Sold        bool   `json:"sold"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type PropertyService interface {
	CreateProperty(ctx context.Context, p Principal, req CreatePropertyDTO) (PropertyResponse, error)
	GetProperty(ctx context.Context, id string) (PropertyResponse, error)
	ListAvailable(ctx context.Context, page, limit int) ([]PropertyResponse, int64, error)
	ListMine(ctx context.Context, p Principal, page, limit int) ([]PropertyResponse, int64, error)
}

type propertyService struct {
	properties repository.PropertyRepository
	audits     repository.AuditRepository
	txManager  repository.TransactionManager
}

func NewPropertyService(properties repository.PropertyRepository, audits repository.AuditRepository, txManager repository.TransactionManager) PropertyService {
	return &propertyService{properties: properties, audits: audits, txManager: txManager}
}

// --- Implementation ---

func (s *propertyService) CreateProperty(ctx context.Context, p Principal, req CreatePropertyDTO) (PropertyResponse, error) {
	if p.Role != model.RoleLandlord {
		return PropertyResponse{}, &apperr.AuthorizationError{Msg: "only landlords can list properties"}
	}

	price, err := decimal.NewFromString(req.SalePrice)
	if err != nil {
		return PropertyResponse{}, &apperr.ValidationError{Msg: "invalid sale price: " + req.SalePrice}
	}
	if price.Sign() <= 0 {
		return PropertyResponse{}, &apperr.ValidationError{Msg: "sale price must be positive"}
	}

	property := model.Property{
		LandlordID:  p.UserID,
		Title:       req.Title,
		Address:     req.Address,
		Description: req.Description,
		SalePrice:   price,
		Available:   true,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.properties.Create(txCtx, &property); createErr != nil {
			return fmt.Errorf("failed to create property: %w", createErr)
		}

		details, _ := json.Marshal(map[string]interface{}{
			"title": req.Title,
			"price": price.StringFixed(4),
		})
		entry := model.AuditLog{
			UserID:     &p.UserID,
			Action:     model.ActionCreateProperty,
			EntityID:   property.ID.String(),
			EntityName: property.Title,
			Details:    string(details),
		}
		if auditErr := s.audits.Log(txCtx, &entry); auditErr != nil {
			return fmt.Errorf("failed to write audit log: %w", auditErr)
		}
		return nil
	})
	if err != nil {
		return PropertyResponse{}, err
	}

	return toPropertyResponse(&property), nil
}

func (s *propertyService) GetProperty(ctx context.Context, id string) (PropertyResponse, error) {
	property, err := s.properties.GetByID(ctx, id)
	if err != nil {
		return PropertyResponse{}, err
	}
	return toPropertyResponse(property), nil
}

func (s *propertyService) ListAvailable(ctx context.Context, page, limit int) ([]PropertyResponse, int64, error) {
	properties, total, err := s.properties.ListAvailable(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch properties: %w", err)
	}
	return toPropertyResponses(properties), total, nil
}

func (s *propertyService) ListMine(ctx context.Context, p Principal, page, limit int) ([]PropertyResponse, int64, error) {
	properties, total, err := s.properties.ListByLandlord(ctx, p.UserID.String(), page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch properties: %w", err)
	}
	return toPropertyResponses(properties), total, nil
}

// --- Helpers ---

func toPropertyResponse(p *model.Property) PropertyResponse {
	return PropertyResponse{
		ID:          p.ID.String(),
		LandlordID:  p.LandlordID.String(),
		Title:       p.Title,
		Address:     p.Address,
		Description: p.Description,
		SalePrice:   p.SalePrice.StringFixed(2),
		Available:   p.Available,
		Sold:        p.Sold,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toPropertyResponses(properties []model.Property) []PropertyResponse {
	result := make([]PropertyResponse, 0, len(properties))
	for i := range properties {
		result = append(result, toPropertyResponse(&properties[i]))
	}
	return result
}
