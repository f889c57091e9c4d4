package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is consumed, not owned, by the transaction core: the sale engine
// reads Price (internal sales only) and applies signed deltas to Stock.
// Catalog management lives elsewhere.
type Product struct {
	ID      uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Barcode string          `gorm:"uniqueIndex;not null"`
	Name    string          `gorm:"index;not null"`
	Price   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Stock   int             `gorm:"not null;default:0"`
	Active  bool            `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
