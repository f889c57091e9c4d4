package model

import (
	"time"

	"github.com/google/uuid"
)

// Stock movement types written by the sale engine.
const (
	MovementSale          = "sale"           // complete: -quantity
	MovementCancelRestore = "cancel_restore" // cancel of a completed sale: +quantity
	MovementRefundRestore = "refund_restore" // full/partial refund: +quantity
	MovementInternalSale  = "internal_sale"  // internal consumption: -quantity
)

// StockMovement records every stock change applied to a product.
// Written inside the same transaction as the sale status change it belongs
// to, so the trail can never show a delta without its transition.
type StockMovement struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Type        string    `gorm:"not null"`
	Quantity    int       `gorm:"not null"` // positive = restock, negative = out
	StockBefore int       `gorm:"not null"`
	StockAfter  int       `gorm:"not null"`
	Reason      string
	// ReferenceID links to the originating sale
	ReferenceID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// TableName overrides GORM's default pluralization.
func (StockMovement) TableName() string { return "stock_movements" }
