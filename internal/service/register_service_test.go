package service

import (
	"context"
	"testing"
	"time"

	"tillpoint/internal/apierror"
	"tillpoint/internal/dto"
	"tillpoint/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addSale(r *stubSaleRepo, cashierID uuid.UUID, total float64, method, status string) {
	s := &model.Sale{
		ID:            uuid.New(),
		SaleNumber:    "SALE-" + uuid.NewString()[:8],
		CashierID:     cashierID,
		Total:         decimal.NewFromFloat(total),
		PaymentMethod: method,
		Status:        status,
		CreatedAt:     time.Now(),
	}
	r.sales[s.ID] = s
}

// ── Open ──────────────────────────────────────────────────────────────────────

func TestOpenRegister(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	userID := uuid.New()

	resp, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1,
		OpeningCash:    dec(100),
	})
	require.NoError(t, err)
	assert.Equal(t, model.RegisterOpen, resp.Status)
	assert.Equal(t, 1, resp.RegisterNumber)
	assert.Equal(t, "100", resp.OpeningCash.String())
	assert.Equal(t, userID.String(), resp.OpenedBy)
}

func TestOpenRegister_UserAlreadyHasOne(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	userID := uuid.New()

	_, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{RegisterNumber: 1, OpeningCash: dec(100)})
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), userID, dto.OpenRegisterRequest{RegisterNumber: 2, OpeningCash: dec(50)})
	assert.True(t, apierror.IsKind(err, apierror.KindConflict))
}

func TestOpenRegister_DeviceAlreadyBound(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	device := "KIOSK-01"

	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100), DeviceID: &device,
	})
	require.NoError(t, err)

	_, err = svc.Open(context.Background(), uuid.New(), dto.OpenRegisterRequest{
		RegisterNumber: 2, OpeningCash: dec(50), DeviceID: &device,
	})
	assert.True(t, apierror.IsKind(err, apierror.KindConflict))
}

func TestOpenRegister_NegativeOpeningCash(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(-5),
	})
	assert.True(t, apierror.IsKind(err, apierror.KindValidation))
}

// ── Drawer lifecycle ──────────────────────────────────────────────────────────

// Open with 100, sell 25 cash, withdraw 20, count 105 at close: difference 0.
func TestRegisterDrawerLifecycle(t *testing.T) {
	svc, _, saleRepo := buildRegisterSvc()
	userID := uuid.New()

	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	regID := uuid.MustParse(opened.ID)

	addSale(saleRepo, userID, 25, model.PaymentCash, model.SaleCompleted)

	figures, err := svc.ExpectedCash(context.Background(), regID)
	require.NoError(t, err)
	assert.Equal(t, "125", figures.ExpectedCash.String())
	assert.Equal(t, "25", figures.TotalCashSales.String())

	_, err = svc.Withdraw(context.Background(), regID, userID, dto.WithdrawalRequest{
		Amount: dec(20), Reason: "safe drop",
	})
	require.NoError(t, err)

	figures, err = svc.ExpectedCash(context.Background(), regID)
	require.NoError(t, err)
	assert.Equal(t, "105", figures.ExpectedCash.String())
	assert.Equal(t, "20", figures.TotalWithdrawals.String())

	closed, err := svc.Close(context.Background(), regID, userID, dto.CloseRegisterRequest{
		ClosingCash: dec(105),
	})
	require.NoError(t, err)
	assert.Equal(t, model.RegisterClosed, closed.Status)
	require.NotNil(t, closed.CashDifference)
	assert.True(t, closed.CashDifference.IsZero())
	require.NotNil(t, closed.ExpectedCash)
	assert.Equal(t, "105", closed.ExpectedCash.String())
	require.NotNil(t, closed.TotalTransactions)
	assert.Equal(t, 1, *closed.TotalTransactions)
	assert.False(t, closed.IsAutoClose)
}

func TestExpectedCash_ExcludesCancelledAndNonCash(t *testing.T) {
	svc, _, saleRepo := buildRegisterSvc()
	userID := uuid.New()

	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)

	addSale(saleRepo, userID, 25, model.PaymentCash, model.SaleCompleted)
	addSale(saleRepo, userID, 40, model.PaymentCash, model.SaleCancelled)   // cancelled: never counted
	addSale(saleRepo, userID, 70, model.PaymentCard, model.SaleCompleted)   // card: not cash
	addSale(saleRepo, userID, 15, model.PaymentInternal, model.SaleCompleted)
	addSale(saleRepo, uuid.New(), 99, model.PaymentCash, model.SaleCompleted) // someone else

	figures, err := svc.ExpectedCash(context.Background(), uuid.MustParse(opened.ID))
	require.NoError(t, err)
	assert.Equal(t, "125", figures.ExpectedCash.String())
	// all-methods totals still see the card and internal sales
	assert.Equal(t, "110", figures.TotalSales.String())
	assert.Equal(t, 3, figures.TotalTransactions)
}

func TestExpectedCash_ClosedRegisterReturnsSnapshot(t *testing.T) {
	svc, _, saleRepo := buildRegisterSvc()
	userID := uuid.New()

	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	regID := uuid.MustParse(opened.ID)
	addSale(saleRepo, userID, 25, model.PaymentCash, model.SaleCompleted)

	_, err = svc.Close(context.Background(), regID, userID, dto.CloseRegisterRequest{ClosingCash: dec(125)})
	require.NoError(t, err)

	// Sales after close must not shift the frozen figures.
	addSale(saleRepo, userID, 500, model.PaymentCash, model.SaleCompleted)

	figures, err := svc.ExpectedCash(context.Background(), regID)
	require.NoError(t, err)
	assert.Equal(t, "125", figures.ExpectedCash.String())
}

// ── Withdraw ──────────────────────────────────────────────────────────────────

func TestWithdraw_Validation(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	userID := uuid.New()
	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	regID := uuid.MustParse(opened.ID)

	_, err = svc.Withdraw(context.Background(), regID, userID, dto.WithdrawalRequest{Amount: dec(0), Reason: "x"})
	assert.True(t, apierror.IsKind(err, apierror.KindValidation))

	_, err = svc.Withdraw(context.Background(), regID, userID, dto.WithdrawalRequest{Amount: dec(10)})
	assert.True(t, apierror.IsKind(err, apierror.KindValidation))
}

func TestWithdraw_ClosedRegister(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	userID := uuid.New()
	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	regID := uuid.MustParse(opened.ID)
	_, err = svc.Close(context.Background(), regID, userID, dto.CloseRegisterRequest{ClosingCash: dec(100)})
	require.NoError(t, err)

	_, err = svc.Withdraw(context.Background(), regID, userID, dto.WithdrawalRequest{Amount: dec(10), Reason: "late"})
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidState))
}

// ── Close ─────────────────────────────────────────────────────────────────────

func TestClose_ShortDrawerRecordsNegativeDifference(t *testing.T) {
	svc, _, saleRepo := buildRegisterSvc()
	userID := uuid.New()
	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	addSale(saleRepo, userID, 50, model.PaymentCash, model.SaleCompleted)

	closed, err := svc.Close(context.Background(), uuid.MustParse(opened.ID), userID, dto.CloseRegisterRequest{
		ClosingCash: dec(140), // expected 150
	})
	require.NoError(t, err)
	require.NotNil(t, closed.CashDifference)
	assert.Equal(t, "-10", closed.CashDifference.String())
}

func TestClose_AlreadyClosed(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	userID := uuid.New()
	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	regID := uuid.MustParse(opened.ID)

	_, err = svc.Close(context.Background(), regID, userID, dto.CloseRegisterRequest{ClosingCash: dec(100)})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), regID, userID, dto.CloseRegisterRequest{ClosingCash: dec(100)})
	assert.True(t, apierror.IsKind(err, apierror.KindInvalidState))
}

// ── AutoClose ─────────────────────────────────────────────────────────────────

func TestAutoClose_ZeroDifferenceByConstruction(t *testing.T) {
	svc, registerRepo, saleRepo := buildRegisterSvc()
	userID := uuid.New()
	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 1, OpeningCash: dec(100),
	})
	require.NoError(t, err)
	regID := uuid.MustParse(opened.ID)
	addSale(saleRepo, userID, 30, model.PaymentCash, model.SaleCompleted)

	closed, err := svc.AutoClose(context.Background(), regID)
	require.NoError(t, err)

	assert.Equal(t, model.RegisterClosed, closed.Status)
	assert.True(t, closed.IsAutoClose)
	require.NotNil(t, closed.CashDifference)
	assert.True(t, closed.CashDifference.IsZero())
	require.NotNil(t, closed.ClosingCash)
	assert.Equal(t, "130", closed.ClosingCash.String())
	assert.Equal(t, userID.String(), *closed.ClosedBy)
	assert.NotNil(t, closed.AutoClosedAt)

	stored, err := registerRepo.FindByID(context.Background(), regID)
	require.NoError(t, err)
	require.NotNil(t, stored.Notes)
	assert.Contains(t, *stored.Notes, "automatically")
}

// ── ActiveForUser / BindDevice ────────────────────────────────────────────────

func TestActiveForUser(t *testing.T) {
	svc, _, _ := buildRegisterSvc()
	userID := uuid.New()

	_, err := svc.ActiveForUser(context.Background(), userID)
	assert.True(t, apierror.IsKind(err, apierror.KindNotFound))

	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 3, OpeningCash: dec(10),
	})
	require.NoError(t, err)

	active, err := svc.ActiveForUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, active.ID)
}

func TestBindDevice_RetargetsRegisterNumber(t *testing.T) {
	svc, registerRepo, _ := buildRegisterSvc()
	userID := uuid.New()
	opened, err := svc.Open(context.Background(), userID, dto.OpenRegisterRequest{
		RegisterNumber: 7, OpeningCash: dec(10),
	})
	require.NoError(t, err)

	err = svc.BindDevice(context.Background(), dto.BindDeviceRequest{
		DeviceID: "KIOSK-02", DeviceName: "Front kiosk", RegisterNumber: 7,
	})
	require.NoError(t, err)

	stored, err := registerRepo.FindByID(context.Background(), uuid.MustParse(opened.ID))
	require.NoError(t, err)
	require.NotNil(t, stored.DeviceID)
	assert.Equal(t, "KIOSK-02", *stored.DeviceID)
}
