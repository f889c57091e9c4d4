package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"tillpoint/internal/dto"
	"tillpoint/internal/model"
	"tillpoint/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

// stubSaleRepo is an in-memory SaleRepository for testing. Create is
// mutex-guarded so concurrency tests can hammer it from goroutines.
type stubSaleRepo struct {
	mu    sync.Mutex
	sales map[uuid.UUID]*model.Sale
	// dupFailures makes the next N Create calls fail with a duplicate-key
	// error, to exercise the sale-number retry loop.
	dupFailures int
}

func newStubSaleRepo() *stubSaleRepo {
	return &stubSaleRepo{sales: make(map[uuid.UUID]*model.Sale)}
}

func (r *stubSaleRepo) Create(_ context.Context, _ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dupFailures > 0 {
		r.dupFailures--
		return gorm.ErrDuplicatedKey
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	for i := range s.Items {
		if s.Items[i].ID == uuid.Nil {
			s.Items[i].ID = uuid.New()
		}
		s.Items[i].SaleID = s.ID
	}
	r.sales[s.ID] = s
	return nil
}

func (r *stubSaleRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *stubSaleRepo) FindForUpdateTx(_ *gorm.DB, id uuid.UUID) (*model.Sale, error) {
	s, ok := r.sales[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func (r *stubSaleRepo) UpdateStatusTx(_ *gorm.DB, id uuid.UUID, from []string, to string, _ map[string]interface{}) (int64, error) {
	s, ok := r.sales[id]
	if !ok {
		return 0, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			return 1, nil
		}
	}
	return 0, nil
}

func (r *stubSaleRepo) UpdateItemTx(_ *gorm.DB, _ *model.SaleItem) error { return nil }
func (r *stubSaleRepo) DeleteItemTx(_ *gorm.DB, _ uuid.UUID) error       { return nil }
func (r *stubSaleRepo) UpdateFieldsTx(_ *gorm.DB, _ uuid.UUID, _ map[string]interface{}) error {
	return nil
}

func (r *stubSaleRepo) List(_ context.Context, filter dto.SaleFilter) ([]model.Sale, int64, error) {
	var out []model.Sale
	for _, s := range r.sales {
		if filter.Status != "" && filter.Status != "all" && s.Status != filter.Status {
			continue
		}
		out = append(out, *s)
	}
	return out, int64(len(out)), nil
}

func (r *stubSaleRepo) CashSales(_ context.Context, cashierID uuid.UUID, from time.Time, to *time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, s := range r.sales {
		if s.CashierID != cashierID || s.Status == model.SaleCancelled ||
			s.PaymentMethod != model.PaymentCash || s.CreatedAt.Before(from) {
			continue
		}
		if to != nil && s.CreatedAt.After(*to) {
			continue
		}
		total = total.Add(s.Total)
	}
	return total, nil
}

func (r *stubSaleRepo) AllSales(_ context.Context, cashierID uuid.UUID, from time.Time, to *time.Time) (repository.SaleTotals, error) {
	t := repository.SaleTotals{Total: decimal.Zero}
	for _, s := range r.sales {
		if s.CashierID != cashierID || s.Status == model.SaleCancelled || s.CreatedAt.Before(from) {
			continue
		}
		if to != nil && s.CreatedAt.After(*to) {
			continue
		}
		t.Total = t.Total.Add(s.Total)
		t.Count++
	}
	return t, nil
}

func (r *stubSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

// stubProductRepo keeps products in a map; AdjustStockTx mutates in place.
type stubProductRepo struct {
	products map[uuid.UUID]*model.Product
}

func newStubProductRepo() *stubProductRepo {
	return &stubProductRepo{products: make(map[uuid.UUID]*model.Product)}
}

func seedProduct(r *stubProductRepo, name string, price float64, stock int) *model.Product {
	p := &model.Product{
		ID:      uuid.New(),
		Barcode: uuid.NewString(),
		Name:    name,
		Price:   decimal.NewFromFloat(price),
		Stock:   stock,
		Active:  true,
	}
	r.products[p.ID] = p
	return p
}

func (r *stubProductRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func (r *stubProductRepo) FindByIDTx(_ *gorm.DB, id uuid.UUID) (*model.Product, error) {
	return r.FindByID(context.Background(), id)
}

func (r *stubProductRepo) Create(_ context.Context, p *model.Product) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.products[p.ID] = p
	return nil
}

func (r *stubProductRepo) AdjustStockTx(_ *gorm.DB, id uuid.UUID, delta int) error {
	p, ok := r.products[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.Stock += delta
	return nil
}

func (r *stubProductRepo) DB() *gorm.DB { return nil }

var _ repository.ProductRepository = (*stubProductRepo)(nil)

// stubMovementRepo captures written audit rows for assertion.
type stubMovementRepo struct {
	movements []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubMovementRepo) ListByProduct(_ context.Context, productID uuid.UUID) ([]model.StockMovement, error) {
	var out []model.StockMovement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubMovementRepo) ListByReference(_ context.Context, referenceID uuid.UUID) ([]model.StockMovement, error) {
	var out []model.StockMovement
	for _, m := range r.movements {
		if m.ReferenceID != nil && *m.ReferenceID == referenceID {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

// stubUserRepo holds users by ID and username.
type stubUserRepo struct {
	users map[uuid.UUID]*model.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[uuid.UUID]*model.User)}
}

func seedUser(r *stubUserRepo, role string, limit float64) *model.User {
	u := &model.User{
		ID:                 uuid.New(),
		Username:           uuid.NewString(),
		Name:               "Test " + role,
		Role:               role,
		InternalSalesLimit: decimal.NewFromFloat(limit),
		Active:             true,
	}
	r.users[u.ID] = u
	return u
}

func (r *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range r.users {
		if u.Username == username && u.Active {
			return u, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *stubUserRepo) Create(_ context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return nil
}

var _ repository.UserRepository = (*stubUserRepo)(nil)

// stubSequenceRepo mimics the seeded atomic counter; the mutex stands in for
// the row-level serialization Postgres provides.
type stubSequenceRepo struct {
	mu    sync.Mutex
	value int64
}

func (r *stubSequenceRepo) Next(_ context.Context, _ *gorm.DB, _ string, seed int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.value == 0 {
		r.value = seed
	} else {
		r.value++
	}
	return r.value, nil
}

var _ repository.SequenceRepository = (*stubSequenceRepo)(nil)

// stubRegisterRepo enforces the open-register uniqueness the partial indexes
// provide in production.
type stubRegisterRepo struct {
	registers map[uuid.UUID]*model.Register
}

func newStubRegisterRepo() *stubRegisterRepo {
	return &stubRegisterRepo{registers: make(map[uuid.UUID]*model.Register)}
}

func (r *stubRegisterRepo) Create(_ context.Context, reg *model.Register) error {
	for _, existing := range r.registers {
		if existing.Status != model.RegisterOpen {
			continue
		}
		if existing.OpenedBy == reg.OpenedBy {
			return gorm.ErrDuplicatedKey
		}
		if reg.DeviceID != nil && existing.DeviceID != nil && *existing.DeviceID == *reg.DeviceID {
			return gorm.ErrDuplicatedKey
		}
	}
	if reg.ID == uuid.Nil {
		reg.ID = uuid.New()
	}
	reg.CreatedAt = time.Now()
	r.registers[reg.ID] = reg
	return nil
}

func (r *stubRegisterRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Register, error) {
	reg, ok := r.registers[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return reg, nil
}

func (r *stubRegisterRepo) FindOpenByUser(_ context.Context, userID uuid.UUID) (*model.Register, error) {
	for _, reg := range r.registers {
		if reg.OpenedBy == userID && reg.Status == model.RegisterOpen {
			return reg, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *stubRegisterRepo) FindOpenByDevice(_ context.Context, deviceID string) (*model.Register, error) {
	for _, reg := range r.registers {
		if reg.DeviceID != nil && *reg.DeviceID == deviceID && reg.Status == model.RegisterOpen {
			return reg, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *stubRegisterRepo) CloseIfOpen(_ context.Context, id uuid.UUID, updates map[string]interface{}) (int64, error) {
	reg, ok := r.registers[id]
	if !ok || reg.Status != model.RegisterOpen {
		return 0, nil
	}
	reg.Status = model.RegisterClosed
	if v, ok := updates["closed_by"].(uuid.UUID); ok {
		reg.ClosedBy = &v
	}
	if v, ok := updates["closed_at"].(time.Time); ok {
		reg.ClosedAt = &v
	}
	if v, ok := updates["closing_cash"].(decimal.Decimal); ok {
		reg.ClosingCash = &v
	}
	if v, ok := updates["expected_cash"].(decimal.Decimal); ok {
		reg.ExpectedCash = &v
	}
	if v, ok := updates["cash_difference"].(decimal.Decimal); ok {
		reg.CashDifference = &v
	}
	if v, ok := updates["total_sales"].(decimal.Decimal); ok {
		reg.TotalSales = &v
	}
	if v, ok := updates["total_transactions"].(int); ok {
		reg.TotalTransactions = &v
	}
	if v, ok := updates["notes"].(string); ok {
		reg.Notes = &v
	}
	if v, ok := updates["is_auto_close"].(bool); ok {
		reg.IsAutoClose = v
	}
	if v, ok := updates["auto_closed_at"].(time.Time); ok {
		reg.AutoClosedAt = &v
	}
	return 1, nil
}

func (r *stubRegisterRepo) CreateWithdrawal(_ context.Context, w *model.Withdrawal) error {
	reg, ok := r.registers[w.RegisterID]
	if !ok {
		return errors.New("not found")
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = time.Now()
	reg.Withdrawals = append(reg.Withdrawals, *w)
	return nil
}

func (r *stubRegisterRepo) ListStaleOpen(_ context.Context, cutoff time.Time) ([]model.Register, error) {
	var out []model.Register
	for _, reg := range r.registers {
		if reg.Status == model.RegisterOpen && reg.OpenedAt.Before(cutoff) {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *stubRegisterRepo) History(_ context.Context, _ dto.RegisterHistoryFilter) ([]model.Register, int64, error) {
	var out []model.Register
	for _, reg := range r.registers {
		out = append(out, *reg)
	}
	return out, int64(len(out)), nil
}

func (r *stubRegisterRepo) UpdateDeviceBinding(_ context.Context, registerNumber int, deviceID, deviceName string) error {
	for _, reg := range r.registers {
		if reg.RegisterNumber == registerNumber {
			d, n := deviceID, deviceName
			reg.DeviceID = &d
			reg.DeviceName = &n
		}
	}
	return nil
}

func (r *stubRegisterRepo) LastByDevice(_ context.Context, deviceID string) (*model.Register, error) {
	var last *model.Register
	for _, reg := range r.registers {
		if reg.DeviceID == nil || *reg.DeviceID != deviceID {
			continue
		}
		if last == nil || reg.OpenedAt.After(last.OpenedAt) {
			last = reg
		}
	}
	if last == nil {
		return nil, errors.New("not found")
	}
	return last, nil
}

var _ repository.RegisterRepository = (*stubRegisterRepo)(nil)

// ── Service factories for tests ───────────────────────────────────────────────

func buildSaleSvc() (SaleService, *stubSaleRepo, *stubProductRepo, *stubMovementRepo, *stubUserRepo) {
	saleRepo := newStubSaleRepo()
	productRepo := newStubProductRepo()
	movementRepo := &stubMovementRepo{}
	userRepo := newStubUserRepo()
	svc := NewSaleService(saleRepo, productRepo, movementRepo, userRepo, &stubSequenceRepo{})
	return svc, saleRepo, productRepo, movementRepo, userRepo
}

func buildRegisterSvc() (RegisterService, *stubRegisterRepo, *stubSaleRepo) {
	registerRepo := newStubRegisterRepo()
	saleRepo := newStubSaleRepo()
	svc := NewRegisterService(registerRepo, saleRepo, nil)
	return svc, registerRepo, saleRepo
}
