package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseRequest status enum constants
const (
	StatusPending          = "PENDING"
	StatusApproved         = "APPROVED"
	StatusRejected         = "REJECTED"
	StatusCancelled        = "CANCELLED"
	StatusPaymentPending   = "PAYMENT_PENDING"
	StatusPaymentCompleted = "PAYMENT_COMPLETED"
	StatusPaymentFailed    = "PAYMENT_FAILED"
)

// PurchaseRequest tracks one tenant's intent to buy one property, from
// landlord approval through gateway payment. Terminal records are kept as
// an audit trail and never deleted.
type PurchaseRequest struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PropertyID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"property_id"`
	Property         *Property       `gorm:"foreignKey:PropertyID" json:"property,omitempty"`
	TenantID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Tenant           *User           `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	LandlordID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"landlord_id"`
	Landlord         *User           `gorm:"foreignKey:LandlordID" json:"landlord,omitempty"`
	Status           string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	PurchasePrice    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"purchase_price"` // Snapshot of the property's sale price at creation
	RequestDate      time.Time       `gorm:"not null" json:"request_date"`
	ResponseNotes    string          `gorm:"type:text" json:"response_notes"`
	GatewayOrderID   string          `gorm:"type:varchar(64);index" json:"gateway_order_id"`
	GatewayPaymentID *string         `gorm:"type:varchar(64);uniqueIndex" json:"gateway_payment_id"` // Unique across completed requests
	PaymentDate      *time.Time      `json:"payment_date"`
	FailureReason    string          `gorm:"type:text" json:"failure_reason"`
	Version          int64           `gorm:"not null;default:0" json:"version"` // Optimistic concurrency counter
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.RequestDate.IsZero() {
		r.RequestDate = time.Now()
	}
	return nil
}

// ActiveStatuses are the non-terminal statuses. A tenant may hold at most one
// request in these statuses per property.
var ActiveStatuses = []string{StatusPending, StatusApproved, StatusPaymentPending}

// IsTerminal reports whether no further transition is defined from the status,
// save for the PAYMENT_FAILED retry edge handled by payment initiation.
func IsTerminal(status string) bool {
	switch status {
	case StatusRejected, StatusCancelled, StatusPaymentCompleted, StatusPaymentFailed:
		return true
	}
	return false
}
