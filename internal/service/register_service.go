package service

import (
	"context"
	"errors"
	"time"

	"tillpoint/internal/apierror"
	"tillpoint/internal/dto"
	"tillpoint/internal/model"
	"tillpoint/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RegisterService interface {
	Open(ctx context.Context, actorID uuid.UUID, req dto.OpenRegisterRequest) (*dto.RegisterResponse, error)
	// ExpectedCash is a pure query while the register is open: it re-derives
	// the figures from the sale ledger on every call. For closed registers it
	// returns the frozen snapshot.
	ExpectedCash(ctx context.Context, registerID uuid.UUID) (*dto.ExpectedCashResponse, error)
	Withdraw(ctx context.Context, registerID, actorID uuid.UUID, req dto.WithdrawalRequest) (*dto.WithdrawalResponse, error)
	Close(ctx context.Context, registerID, actorID uuid.UUID, req dto.CloseRegisterRequest) (*dto.RegisterResponse, error)
	// AutoClose closes a stale register at exactly its expected cash, so the
	// recorded difference is zero. Called by the scheduler only.
	AutoClose(ctx context.Context, registerID uuid.UUID) (*dto.RegisterResponse, error)
	BindDevice(ctx context.Context, req dto.BindDeviceRequest) error
	ActiveForUser(ctx context.Context, userID uuid.UUID) (*dto.RegisterResponse, error)
	History(ctx context.Context, filter dto.RegisterHistoryFilter) (*dto.RegisterListResponse, error)
}

type registerService struct {
	repo     repository.RegisterRepository
	saleRepo repository.SaleRepository
	// cache is best-effort invalidation for the device-binding lookups;
	// nil in unit tests.
	cache *redis.Client
}

func NewRegisterService(repo repository.RegisterRepository, saleRepo repository.SaleRepository, cache *redis.Client) RegisterService {
	return &registerService{repo: repo, saleRepo: saleRepo, cache: cache}
}

// ── Open ──────────────────────────────────────────────────────────────────────
// The application-level checks give a friendly message; the partial unique
// indexes on (opened_by) and (device_id) WHERE status='open' are what make
// two near-simultaneous opens impossible.

func (s *registerService) Open(ctx context.Context, actorID uuid.UUID, req dto.OpenRegisterRequest) (*dto.RegisterResponse, error) {
	if req.OpeningCash.IsNegative() {
		return nil, apierror.Validationf("opening_cash must not be negative")
	}
	if req.RegisterNumber < 1 {
		return nil, apierror.Validationf("register_number must be positive")
	}

	if existing, err := s.repo.FindOpenByUser(ctx, actorID); err == nil && existing != nil {
		return nil, apierror.Conflictf("you already have register %d open", existing.RegisterNumber)
	}
	if req.DeviceID != nil {
		if existing, err := s.repo.FindOpenByDevice(ctx, *req.DeviceID); err == nil && existing != nil {
			return nil, apierror.Conflictf("device is already bound to open register %d", existing.RegisterNumber)
		}
	}

	reg := &model.Register{
		RegisterNumber: req.RegisterNumber,
		DeviceID:       req.DeviceID,
		DeviceName:     req.DeviceName,
		OpenedBy:       actorID,
		OpenedAt:       time.Now(),
		OpeningCash:    req.OpeningCash,
		Status:         model.RegisterOpen,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apierror.Conflictf("an open register already exists for this user or device")
		}
		return nil, err
	}

	s.invalidateDevice(ctx, req.DeviceID)
	return registerToResponse(reg), nil
}

// ── ExpectedCash ──────────────────────────────────────────────────────────────

func (s *registerService) ExpectedCash(ctx context.Context, registerID uuid.UUID) (*dto.ExpectedCashResponse, error) {
	reg, err := s.repo.FindByID(ctx, registerID)
	if err != nil {
		return nil, apierror.NotFoundf("register %s not found", registerID)
	}

	if reg.Status == model.RegisterClosed {
		return snapshotExpectedCash(reg), nil
	}

	figures, err := s.derive(ctx, reg, nil)
	if err != nil {
		return nil, err
	}
	return figures, nil
}

// derive recomputes the live figures from the sale ledger: sales by the
// opener since opening, cancelled excluded, cash-tendered subset for the
// expected-cash formula.
func (s *registerService) derive(ctx context.Context, reg *model.Register, until *time.Time) (*dto.ExpectedCashResponse, error) {
	cashSales, err := s.saleRepo.CashSales(ctx, reg.OpenedBy, reg.OpenedAt, until)
	if err != nil {
		return nil, err
	}
	all, err := s.saleRepo.AllSales(ctx, reg.OpenedBy, reg.OpenedAt, until)
	if err != nil {
		return nil, err
	}
	withdrawals := reg.WithdrawalTotal()

	return &dto.ExpectedCashResponse{
		RegisterID:        reg.ID.String(),
		OpeningCash:       reg.OpeningCash,
		TotalCashSales:    cashSales,
		TotalWithdrawals:  withdrawals,
		ExpectedCash:      reg.OpeningCash.Add(cashSales).Sub(withdrawals),
		TotalSales:        all.Total,
		TotalTransactions: int(all.Count),
	}, nil
}

func snapshotExpectedCash(reg *model.Register) *dto.ExpectedCashResponse {
	out := &dto.ExpectedCashResponse{
		RegisterID:       reg.ID.String(),
		OpeningCash:      reg.OpeningCash,
		TotalWithdrawals: reg.WithdrawalTotal(),
	}
	if reg.ExpectedCash != nil {
		out.ExpectedCash = *reg.ExpectedCash
		out.TotalCashSales = reg.ExpectedCash.Sub(reg.OpeningCash).Add(out.TotalWithdrawals)
	}
	if reg.TotalSales != nil {
		out.TotalSales = *reg.TotalSales
	}
	if reg.TotalTransactions != nil {
		out.TotalTransactions = *reg.TotalTransactions
	}
	return out
}

// ── Withdraw ──────────────────────────────────────────────────────────────────

func (s *registerService) Withdraw(ctx context.Context, registerID, actorID uuid.UUID, req dto.WithdrawalRequest) (*dto.WithdrawalResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apierror.Validationf("withdrawal amount must be positive")
	}
	if req.Reason == "" {
		return nil, apierror.Validationf("withdrawal reason is required")
	}

	reg, err := s.repo.FindByID(ctx, registerID)
	if err != nil {
		return nil, apierror.NotFoundf("register %s not found", registerID)
	}
	if reg.Status != model.RegisterOpen {
		return nil, apierror.InvalidStatef("register %d is not open", reg.RegisterNumber)
	}

	w := &model.Withdrawal{
		RegisterID: registerID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		CreatedBy:  actorID,
	}
	if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	return &dto.WithdrawalResponse{
		ID:        w.ID.String(),
		Amount:    w.Amount,
		Reason:    w.Reason,
		CreatedBy: w.CreatedBy.String(),
		CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// ── Close ─────────────────────────────────────────────────────────────────────

func (s *registerService) Close(ctx context.Context, registerID, actorID uuid.UUID, req dto.CloseRegisterRequest) (*dto.RegisterResponse, error) {
	if req.ClosingCash.IsNegative() {
		return nil, apierror.Validationf("closing_cash must not be negative")
	}
	return s.close(ctx, registerID, actorID, &req.ClosingCash, req.Notes, false)
}

func (s *registerService) AutoClose(ctx context.Context, registerID uuid.UUID) (*dto.RegisterResponse, error) {
	return s.close(ctx, registerID, uuid.Nil, nil, nil, true)
}

// close snapshots the derived figures onto the register. closingCash == nil
// means auto-close: the drawer is assumed to hold exactly the expected cash,
// so the recorded difference is zero by construction. The status write is
// conditioned on the register still being open, which is what makes a manual
// close racing the scheduler resolve to exactly one winner.
func (s *registerService) close(ctx context.Context, registerID, actorID uuid.UUID, closingCash *decimal.Decimal, notes *string, auto bool) (*dto.RegisterResponse, error) {
	reg, err := s.repo.FindByID(ctx, registerID)
	if err != nil {
		return nil, apierror.NotFoundf("register %s not found", registerID)
	}
	if reg.Status == model.RegisterClosed {
		return nil, apierror.InvalidStatef("register %d is already closed", reg.RegisterNumber)
	}

	now := time.Now()
	figures, err := s.derive(ctx, reg, &now)
	if err != nil {
		return nil, err
	}

	declared := figures.ExpectedCash
	closedBy := actorID
	if auto {
		closedBy = reg.OpenedBy
	} else if closingCash != nil {
		declared = *closingCash
	}
	difference := declared.Sub(figures.ExpectedCash)

	updates := map[string]interface{}{
		"status":             model.RegisterClosed,
		"closed_by":          closedBy,
		"closed_at":          now,
		"closing_cash":       declared,
		"expected_cash":      figures.ExpectedCash,
		"cash_difference":    difference,
		"total_sales":        figures.TotalSales,
		"total_transactions": figures.TotalTransactions,
	}
	if auto {
		note := "Closed automatically after exceeding the staleness threshold"
		if reg.Notes != nil && *reg.Notes != "" {
			note = *reg.Notes + "\n" + note
		}
		updates["is_auto_close"] = true
		updates["auto_closed_at"] = now
		updates["notes"] = note
	} else if notes != nil {
		updates["notes"] = *notes
	}

	rows, err := s.repo.CloseIfOpen(ctx, registerID, updates)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Lost the race against a concurrent close; the first close's figures stand.
		return nil, apierror.InvalidStatef("register %d is already closed", reg.RegisterNumber)
	}

	s.invalidateDevice(ctx, reg.DeviceID)

	closed, err := s.repo.FindByID(ctx, registerID)
	if err != nil {
		return nil, err
	}
	return registerToResponse(closed), nil
}

// ── BindDevice ────────────────────────────────────────────────────────────────
// Administrative convenience: retargets the device association on every
// historical session of the register number so the next open on that device
// defaults to it. Not a concurrency-control mechanism.

func (s *registerService) BindDevice(ctx context.Context, req dto.BindDeviceRequest) error {
	if err := s.repo.UpdateDeviceBinding(ctx, req.RegisterNumber, req.DeviceID, req.DeviceName); err != nil {
		return err
	}
	s.invalidateDevice(ctx, &req.DeviceID)
	return nil
}

func (s *registerService) ActiveForUser(ctx context.Context, userID uuid.UUID) (*dto.RegisterResponse, error) {
	reg, err := s.repo.FindOpenByUser(ctx, userID)
	if err != nil {
		return nil, apierror.NotFoundf("no open register for this user")
	}
	return registerToResponse(reg), nil
}

func (s *registerService) History(ctx context.Context, filter dto.RegisterHistoryFilter) (*dto.RegisterListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	regs, total, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.RegisterResponse, 0, len(regs))
	for i := range regs {
		data = append(data, *registerToResponse(&regs[i]))
	}
	return &dto.RegisterListResponse{
		Data:  data,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

func (s *registerService) invalidateDevice(ctx context.Context, deviceID *string) {
	if s.cache == nil || deviceID == nil || *deviceID == "" {
		return
	}
	_ = s.cache.Del(ctx, deviceCacheKey(*deviceID)).Err()
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func registerToResponse(r *model.Register) *dto.RegisterResponse {
	withdrawals := make([]dto.WithdrawalResponse, 0, len(r.Withdrawals))
	for _, w := range r.Withdrawals {
		withdrawals = append(withdrawals, dto.WithdrawalResponse{
			ID:        w.ID.String(),
			Amount:    w.Amount,
			Reason:    w.Reason,
			CreatedBy: w.CreatedBy.String(),
			CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	resp := &dto.RegisterResponse{
		ID:                r.ID.String(),
		RegisterNumber:    r.RegisterNumber,
		DeviceID:          r.DeviceID,
		DeviceName:        r.DeviceName,
		OpenedBy:          r.OpenedBy.String(),
		OpenedAt:          r.OpenedAt.UTC().Format(time.RFC3339),
		OpeningCash:       r.OpeningCash,
		Status:            r.Status,
		ClosingCash:       r.ClosingCash,
		ExpectedCash:      r.ExpectedCash,
		CashDifference:    r.CashDifference,
		TotalSales:        r.TotalSales,
		TotalTransactions: r.TotalTransactions,
		Notes:             r.Notes,
		IsAutoClose:       r.IsAutoClose,
		Withdrawals:       withdrawals,
	}
	if r.ClosedBy != nil {
		v := r.ClosedBy.String()
		resp.ClosedBy = &v
	}
	if r.ClosedAt != nil {
		v := r.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &v
	}
	if r.AutoClosedAt != nil {
		v := r.AutoClosedAt.UTC().Format(time.RFC3339)
		resp.AutoClosedAt = &v
	}
	return resp
}
