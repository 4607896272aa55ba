package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateProperty = "CREATE_PROPERTY"
	ActionUpdateProperty = "UPDATE_PROPERTY"

	// Purchase workflow actions
	ActionCreatePurchaseRequest  = "CREATE_PURCHASE_REQUEST"
	ActionApprovePurchaseRequest = "APPROVE_PURCHASE_REQUEST"
	ActionRejectPurchaseRequest  = "REJECT_PURCHASE_REQUEST"
	ActionCancelPurchaseRequest  = "CANCEL_PURCHASE_REQUEST"
	ActionInitiatePayment        = "INITIATE_PAYMENT"
	ActionCompletePayment        = "COMPLETE_PAYMENT"
	ActionFailPayment            = "FAIL_PAYMENT"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for gateway webhook events
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:text" json:"details"`                       // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
