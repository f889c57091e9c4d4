package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale status values. Transitions:
//
//	in_progress → completed → {cancelled, refunded}
//	in_progress → cancelled (abandoned before payment)
const (
	SaleInProgress = "in_progress"
	SaleCompleted  = "completed"
	SaleCancelled  = "cancelled"
	SaleRefunded   = "refunded"
)

// Payment methods accepted at the register. Internal consumption sales carry
// PaymentInternal and never contribute to cash totals.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentMixed    = "mixed"
	PaymentInternal = "internal"
)

// Sale is the audit-trail aggregate for a checkout. Never physically deleted;
// cancellations and refunds are recorded as status transitions.
type Sale struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	// SaleNumber is assigned exactly once at first persistence from an atomic
	// counter: "SALE-" + 8 hex digits, seeded at 0xA0000000.
	SaleNumber string    `gorm:"uniqueIndex;not null"`
	CashierID  uuid.UUID `gorm:"type:uuid;not null;index"`

	Subtotal      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TaxTotal      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// Invariant at every observed state: Total = Subtotal - DiscountTotal + TaxTotal
	Total decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	PaymentMethod  string         `gorm:"type:varchar(20);not null;index"`
	PaymentDetails PaymentDetails `gorm:"embedded;embeddedPrefix:pay_"`

	Status string `gorm:"type:varchar(20);not null;default:'in_progress';index"`

	CancellationReason *string
	CancelledBy        *uuid.UUID `gorm:"type:uuid"`
	CancelledAt        *time.Time

	RefundReason *string
	RefundedBy   *uuid.UUID `gorm:"type:uuid"`
	RefundedAt   *time.Time

	IsInternal bool       `gorm:"not null;default:false"`
	ApprovedBy *uuid.UUID `gorm:"type:uuid"`
	Notes      *string

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Items   []SaleItem `gorm:"foreignKey:SaleID"`
	Cashier *User      `gorm:"foreignKey:CashierID"`
}

// PaymentDetails records the amount tendered per method plus change given.
// For single-tender sales only the matching amount is set; "mixed" sales may
// split across all three.
type PaymentDetails struct {
	CashAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CardAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TransferAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	ChangeGiven    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
}

// Tendered is the total amount handed over across all methods.
func (p PaymentDetails) Tendered() decimal.Decimal {
	return p.CashAmount.Add(p.CardAmount).Add(p.TransferAmount)
}

// SaleItem line kinds. Catalog items reference a product and move stock;
// manual items are free-form entries that never touch inventory.
const (
	ItemCatalog = "catalog"
	ItemManual  = "manual"
)

// SaleItem is one line of a sale. Subtotal is the pre-discount base,
// Total = Subtotal - DiscountAmount + TaxAmount.
type SaleItem struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SaleID uuid.UUID `gorm:"type:uuid;not null;index"`

	ItemType    string     `gorm:"type:varchar(10);not null;default:'catalog'"`
	ProductID   *uuid.UUID `gorm:"type:uuid;index"` // set iff ItemType == catalog
	Description string     `gorm:"not null"`

	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountPct decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"` // [0,100]
	// Bulk goods sold by weight: price derives from PricePerKg * WeightKg.
	WeightKg   *decimal.Decimal `gorm:"type:decimal(10,3)"`
	PricePerKg *decimal.Decimal `gorm:"type:decimal(12,2)"`

	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxRate        decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	TaxAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

// IsCatalog reports whether this line references a catalog product.
func (i SaleItem) IsCatalog() bool {
	return i.ItemType == ItemCatalog && i.ProductID != nil
}

// CatalogItems returns the lines that move stock. Manual lines are excluded
// by construction, so inventory code never needs a nil check.
func (s *Sale) CatalogItems() []SaleItem {
	out := make([]SaleItem, 0, len(s.Items))
	for _, it := range s.Items {
		if it.IsCatalog() {
			out = append(out, it)
		}
	}
	return out
}
