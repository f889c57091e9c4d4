package repository

import (
	"context"
	"time"

	"tillpoint/internal/dto"
	"tillpoint/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RegisterRepository interface {
	// Create relies on the partial unique indexes on (opened_by) and
	// (device_id) WHERE status='open'; a duplicate open surfaces as
	// gorm.ErrDuplicatedKey, which the service maps to a conflict.
	Create(ctx context.Context, reg *model.Register) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Register, error)
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (*model.Register, error)
	FindOpenByDevice(ctx context.Context, deviceID string) (*model.Register, error)
	// CloseIfOpen applies the closing snapshot only when the register is
	// still open, returning rows affected. Zero rows = lost the race.
	CloseIfOpen(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (int64, error)
	CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error
	ListStaleOpen(ctx context.Context, cutoff time.Time) ([]model.Register, error)
	History(ctx context.Context, filter dto.RegisterHistoryFilter) ([]model.Register, int64, error)
	// UpdateDeviceBinding retargets the device association on every
	// historical session of a register number (denormalized convenience
	// index; open-register uniqueness stays authoritative).
	UpdateDeviceBinding(ctx context.Context, registerNumber int, deviceID, deviceName string) error
	LastByDevice(ctx context.Context, deviceID string) (*model.Register, error)
}

type registerRepo struct{ db *gorm.DB }

func NewRegisterRepository(db *gorm.DB) RegisterRepository { return &registerRepo{db: db} }

func (r *registerRepo) Create(ctx context.Context, reg *model.Register) error {
	return r.db.WithContext(ctx).Create(reg).Error
}

func (r *registerRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Register, error) {
	var reg model.Register
	err := r.db.WithContext(ctx).Preload("Withdrawals", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).First(&reg, id).Error
	return &reg, err
}

func (r *registerRepo) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*model.Register, error) {
	var reg model.Register
	err := r.db.WithContext(ctx).Preload("Withdrawals").
		Where("opened_by = ? AND status = ?", userID, model.RegisterOpen).
		First(&reg).Error
	return &reg, err
}

func (r *registerRepo) FindOpenByDevice(ctx context.Context, deviceID string) (*model.Register, error) {
	var reg model.Register
	err := r.db.WithContext(ctx).Preload("Withdrawals").
		Where("device_id = ? AND status = ?", deviceID, model.RegisterOpen).
		First(&reg).Error
	return &reg, err
}

func (r *registerRepo) CloseIfOpen(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Register{}).
		Where("id = ? AND status = ?", id, model.RegisterOpen).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *registerRepo) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *registerRepo) ListStaleOpen(ctx context.Context, cutoff time.Time) ([]model.Register, error) {
	var regs []model.Register
	err := r.db.WithContext(ctx).Preload("Withdrawals").
		Where("status = ? AND opened_at < ?", model.RegisterOpen, cutoff).
		Order("opened_at ASC").
		Find(&regs).Error
	return regs, err
}

func (r *registerRepo) History(ctx context.Context, filter dto.RegisterHistoryFilter) ([]model.Register, int64, error) {
	var regs []model.Register
	var total int64
	offset := (filter.Page - 1) * filter.Limit

	q := r.db.WithContext(ctx).Model(&model.Register{})
	if filter.DateFrom != "" {
		q = q.Where("DATE(opened_at) >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("DATE(opened_at) <= ?", filter.DateTo)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := q.Preload("Withdrawals").
		Order("opened_at DESC").
		Offset(offset).Limit(filter.Limit).
		Find(&regs).Error
	return regs, total, err
}

func (r *registerRepo) UpdateDeviceBinding(ctx context.Context, registerNumber int, deviceID, deviceName string) error {
	return r.db.WithContext(ctx).Model(&model.Register{}).
		Where("register_number = ?", registerNumber).
		Updates(map[string]interface{}{
			"device_id":   deviceID,
			"device_name": deviceName,
		}).Error
}

func (r *registerRepo) LastByDevice(ctx context.Context, deviceID string) (*model.Register, error) {
	var reg model.Register
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("opened_at DESC").
		First(&reg).Error
	return &reg, err
}
