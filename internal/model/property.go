package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Property represents a unit listed for sale by a landlord.
// Availability flags are flipped by the payment flow, never by handlers directly.
type Property struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	LandlordID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"landlord_id"`
	Landlord    *User           `gorm:"foreignKey:LandlordID" json:"landlord,omitempty"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Address     string          `gorm:"type:varchar(500);not null" json:"address"`
	Description string          `gorm:"type:text" json:"description"`
	SalePrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"sale_price"`
	Available   bool            `gorm:"not null;default:true;index" json:"available"`
	Sold        bool            `gorm:"not null;default:false" json:"sold"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *Property) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
