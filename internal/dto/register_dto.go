package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenRegisterRequest struct {
	RegisterNumber int             `json:"register_number" validate:"required,min=1"`
	OpeningCash    decimal.Decimal `json:"opening_cash"    validate:"min=0"`
	DeviceID       *string         `json:"device_id"`
	DeviceName     *string         `json:"device_name"`
}

type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Reason string          `json:"reason" validate:"required,min=3"`
}

type CloseRegisterRequest struct {
	ClosingCash decimal.Decimal `json:"closing_cash" validate:"min=0"`
	Notes       *string         `json:"notes"`
}

type BindDeviceRequest struct {
	DeviceID       string `json:"device_id"       validate:"required"`
	DeviceName     string `json:"device_name"     validate:"required"`
	RegisterNumber int    `json:"register_number" validate:"required,min=1"`
}

type RegisterHistoryFilter struct {
	DateFrom string `form:"date_from"` // YYYY-MM-DD
	DateTo   string `form:"date_to"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type WithdrawalResponse struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	CreatedBy string          `json:"created_by"`
	CreatedAt string          `json:"created_at"`
}

type RegisterResponse struct {
	ID                string               `json:"id"`
	RegisterNumber    int                  `json:"register_number"`
	DeviceID          *string              `json:"device_id,omitempty"`
	DeviceName        *string              `json:"device_name,omitempty"`
	OpenedBy          string               `json:"opened_by"`
	OpenedAt          string               `json:"opened_at"`
	OpeningCash       decimal.Decimal      `json:"opening_cash"`
	Status            string               `json:"status"`
	ClosedBy          *string              `json:"closed_by,omitempty"`
	ClosedAt          *string              `json:"closed_at,omitempty"`
	ClosingCash       *decimal.Decimal     `json:"closing_cash,omitempty"`
	ExpectedCash      *decimal.Decimal     `json:"expected_cash,omitempty"`
	CashDifference    *decimal.Decimal     `json:"cash_difference,omitempty"`
	TotalSales        *decimal.Decimal     `json:"total_sales,omitempty"`
	TotalTransactions *int                 `json:"total_transactions,omitempty"`
	Notes             *string              `json:"notes,omitempty"`
	IsAutoClose       bool                 `json:"is_auto_close"`
	AutoClosedAt      *string              `json:"auto_closed_at,omitempty"`
	Withdrawals       []WithdrawalResponse `json:"withdrawals"`
}

// ExpectedCashResponse is the live, derived view of an open register.
// Nothing here is persisted until close.
type ExpectedCashResponse struct {
	RegisterID        string          `json:"register_id"`
	OpeningCash       decimal.Decimal `json:"opening_cash"`
	TotalCashSales    decimal.Decimal `json:"total_cash_sales"`
	TotalWithdrawals  decimal.Decimal `json:"total_withdrawals"`
	ExpectedCash      decimal.Decimal `json:"expected_cash"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalTransactions int             `json:"total_transactions"`
}

type RegisterListResponse struct {
	Data  []RegisterResponse `json:"data"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}
