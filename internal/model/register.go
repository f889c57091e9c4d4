package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Register status values. One-way machine: open → closed.
const (
	RegisterOpen   = "open"
	RegisterClosed = "closed"
)

// Register represents one cash-drawer session. RegisterNumber is a human
// label reusable across sessions; uniqueness while open is enforced by
// partial unique indexes on (opened_by) and (device_id) WHERE status='open'.
//
// While open, expected cash is a derived query over the sale ledger; it is
// never stored. The snapshot columns (ExpectedCash, CashDifference,
// TotalSales, TotalTransactions) are written exactly once, at close, after
// which the record is immutable history.
type Register struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RegisterNumber int       `gorm:"not null;index"`
	DeviceID       *string   `gorm:"index"`
	DeviceName     *string

	OpenedBy    uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpenedAt    time.Time       `gorm:"not null"`
	OpeningCash decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	Status string `gorm:"type:varchar(10);not null;default:'open';index"`

	ClosedBy    *uuid.UUID `gorm:"type:uuid"`
	ClosedAt    *time.Time
	ClosingCash *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// ExpectedCash = OpeningCash + cash sales since OpenedAt (non-cancelled) - withdrawals
	ExpectedCash   *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CashDifference *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// TotalSales sums completed sales across ALL payment methods; the cash-only
	// subset lives in ExpectedCash.
	TotalSales        *decimal.Decimal `gorm:"type:decimal(12,2)"`
	TotalTransactions *int

	Notes        *string
	IsAutoClose  bool `gorm:"not null;default:false"`
	AutoClosedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Withdrawals []Withdrawal `gorm:"foreignKey:RegisterID"`
	Opener      *User        `gorm:"foreignKey:OpenedBy"`
}

// Withdrawal is an append-only cash removal from an open register.
// Entries are never edited or deleted after creation.
type Withdrawal struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RegisterID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Reason     string          `gorm:"not null"`
	CreatedBy  uuid.UUID       `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
}

// WithdrawalTotal sums the register's own withdrawal ledger.
func (r *Register) WithdrawalTotal() decimal.Decimal {
	total := decimal.Zero
	for _, w := range r.Withdrawals {
		total = total.Add(w.Amount)
	}
	return total
}
