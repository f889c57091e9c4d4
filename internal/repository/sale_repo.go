package repository

import (
	"context"
	"time"

	"tillpoint/internal/dto"
	"tillpoint/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaleTotals is the aggregate view the register session manager derives its
// expected-cash figures from.
type SaleTotals struct {
	Total decimal.Decimal
	Count int64
}

type SaleRepository interface {
	Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	// FindForUpdateTx loads the sale and its items under a row lock so a
	// concurrent transition on the same sale blocks until this tx finishes.
	FindForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Sale, error)
	// UpdateStatusTx transitions status only when the current status is in
	// `from`, returning the number of rows changed. Zero rows means a
	// concurrent transition won, or the sale does not exist.
	UpdateStatusTx(tx *gorm.DB, id uuid.UUID, from []string, to string, updates map[string]interface{}) (int64, error)
	UpdateItemTx(tx *gorm.DB, item *model.SaleItem) error
	DeleteItemTx(tx *gorm.DB, itemID uuid.UUID) error
	UpdateFieldsTx(tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error)

	// CashSales sums completed/in-progress cash-tendered sales for one
	// cashier in [from, to); nil `to` means "now". Cancelled sales are
	// always excluded.
	CashSales(ctx context.Context, cashierID uuid.UUID, from time.Time, to *time.Time) (decimal.Decimal, error)
	// AllSales is the same window across every payment method.
	AllSales(ctx context.Context, cashierID uuid.UUID, from time.Time, to *time.Time) (SaleTotals, error)

	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

func (r *saleRepo) Create(ctx context.Context, tx *gorm.DB, s *model.Sale) error {
	return tx.WithContext(ctx).Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).Preload("Items").First(&s, id).Error
	return &s, err
}

func (r *saleRepo) FindForUpdateTx(tx *gorm.DB, id uuid.UUID) (*model.Sale, error) {
	var s model.Sale
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	if err != nil {
		return nil, err
	}
	err = tx.Where("sale_id = ?", id).Find(&s.Items).Error
	return &s, err
}

func (r *saleRepo) UpdateStatusTx(tx *gorm.DB, id uuid.UUID, from []string, to string, updates map[string]interface{}) (int64, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	res := tx.Model(&model.Sale{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *saleRepo) UpdateItemTx(tx *gorm.DB, item *model.SaleItem) error {
	return tx.Save(item).Error
}

func (r *saleRepo) DeleteItemTx(tx *gorm.DB, itemID uuid.UUID) error {
	return tx.Delete(&model.SaleItem{}, itemID).Error
}

func (r *saleRepo) UpdateFieldsTx(tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return tx.Model(&model.Sale{}).Where("id = ?", id).Updates(updates).Error
}

func (r *saleRepo) List(ctx context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64
	offset := (filter.Page - 1) * filter.Limit

	q := r.db.WithContext(ctx).Model(&model.Sale{})

	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CashierID != "" {
		q = q.Where("cashier_id = ?", filter.CashierID)
	}
	if filter.DateFrom != "" {
		q = q.Where("DATE(created_at) >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("DATE(created_at) <= ?", filter.DateTo)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Items").
		Order("created_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&sales).Error

	return sales, total, err
}

func (r *saleRepo) CashSales(ctx context.Context, cashierID uuid.UUID, from time.Time, to *time.Time) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	q := r.db.WithContext(ctx).Model(&model.Sale{}).
		Select("COALESCE(SUM(total), 0) AS total").
		Where("cashier_id = ? AND created_at >= ? AND status <> ? AND payment_method = ?",
			cashierID, from, model.SaleCancelled, model.PaymentCash)
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}
	err := q.Scan(&row).Error
	return row.Total, err
}

func (r *saleRepo) AllSales(ctx context.Context, cashierID uuid.UUID, from time.Time, to *time.Time) (SaleTotals, error) {
	var row struct {
		Total decimal.Decimal
		Count int64
	}
	q := r.db.WithContext(ctx).Model(&model.Sale{}).
		Select("COALESCE(SUM(total), 0) AS total, COUNT(*) AS count").
		Where("cashier_id = ? AND created_at >= ? AND status <> ?",
			cashierID, from, model.SaleCancelled)
	if to != nil {
		q = q.Where("created_at <= ?", *to)
	}
	err := q.Scan(&row).Error
	return SaleTotals{Total: row.Total, Count: row.Count}, err
}
