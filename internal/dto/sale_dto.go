package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleItemRequest struct {
	// ProductID empty = manual line (never touches stock)
	ProductID   string          `json:"product_id"  validate:"omitempty,uuid"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"     validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"   validate:"min=0"`
	DiscountPct decimal.Decimal `json:"discount_pct" validate:"min=0,max=100"`
	TaxRate     decimal.Decimal `json:"tax_rate"     validate:"min=0"`
	// Bulk goods: when both are set the line price is price_per_kg * weight_kg
	WeightKg   *decimal.Decimal `json:"weight_kg"`
	PricePerKg *decimal.Decimal `json:"price_per_kg"`
}

type PaymentDetailsRequest struct {
	CashAmount     decimal.Decimal `json:"cash_amount"     validate:"min=0"`
	CardAmount     decimal.Decimal `json:"card_amount"     validate:"min=0"`
	TransferAmount decimal.Decimal `json:"transfer_amount" validate:"min=0"`
}

type CreateSaleRequest struct {
	Items         []SaleItemRequest     `json:"items"          validate:"required,min=1,dive"`
	PaymentMethod string                `json:"payment_method" validate:"required,oneof=cash card transfer mixed"`
	Payment       PaymentDetailsRequest `json:"payment"`
	// CompleteImmediately is the point-of-sale "pay now" flow: the sale is
	// persisted as completed and stock is deducted in the same transaction.
	CompleteImmediately bool    `json:"complete_immediately"`
	Notes               *string `json:"notes"`
}

type CancelSaleRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}

type RefundItemRequest struct {
	ItemID   string `json:"item_id"  validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type RefundSaleRequest struct {
	Type   string              `json:"type"   validate:"required,oneof=full partial"`
	Reason string              `json:"reason" validate:"required,min=3"`
	Items  []RefundItemRequest `json:"items"  validate:"omitempty,dive"`
}

type InternalSaleItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"   validate:"required,gt=0"`
}

type InternalSaleRequest struct {
	Items []InternalSaleItemRequest `json:"items" validate:"required,min=1,dive"`
	Notes *string                   `json:"notes"`
}

type SaleFilter struct {
	Status    string `form:"status"`
	DateFrom  string `form:"date_from"` // YYYY-MM-DD
	DateTo    string `form:"date_to"`
	CashierID string `form:"cashier_id"`
	Page      int    `form:"page"`
	Limit     int    `form:"limit"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SaleItemResponse struct {
	ID             string          `json:"id"`
	ItemType       string          `json:"item_type"`
	ProductID      *string         `json:"product_id,omitempty"`
	Description    string          `json:"description"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountPct    decimal.Decimal `json:"discount_pct"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Total          decimal.Decimal `json:"total"`
}

type PaymentDetailsResponse struct {
	CashAmount     decimal.Decimal `json:"cash_amount"`
	CardAmount     decimal.Decimal `json:"card_amount"`
	TransferAmount decimal.Decimal `json:"transfer_amount"`
	ChangeGiven    decimal.Decimal `json:"change_given"`
}

type SaleResponse struct {
	ID                 string                 `json:"id"`
	SaleNumber         string                 `json:"sale_number"`
	CashierID          string                 `json:"cashier_id"`
	Items              []SaleItemResponse     `json:"items"`
	Subtotal           decimal.Decimal        `json:"subtotal"`
	DiscountTotal      decimal.Decimal        `json:"discount_total"`
	TaxTotal           decimal.Decimal        `json:"tax_total"`
	Total              decimal.Decimal        `json:"total"`
	PaymentMethod      string                 `json:"payment_method"`
	Payment            PaymentDetailsResponse `json:"payment"`
	Status             string                 `json:"status"`
	CancellationReason *string                `json:"cancellation_reason,omitempty"`
	RefundReason       *string                `json:"refund_reason,omitempty"`
	IsInternal         bool                   `json:"is_internal"`
	Notes              *string                `json:"notes,omitempty"`
	CreatedAt          string                 `json:"created_at"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
