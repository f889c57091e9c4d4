package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tillpoint/internal/apierror"
	"tillpoint/internal/dto"
	"tillpoint/internal/model"
	"tillpoint/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// saleNumberRetries bounds how often Create re-runs its transaction when the
// generated sale number collides with an existing row (seeded data, restores).
const saleNumberRetries = 3

type SaleService interface {
	Create(ctx context.Context, cashierID uuid.UUID, req dto.CreateSaleRequest) (*dto.SaleResponse, error)
	Complete(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*dto.SaleResponse, error)
	Refund(ctx context.Context, id uuid.UUID, actorID uuid.UUID, req dto.RefundSaleRequest) (*dto.SaleResponse, error)
	CreateInternal(ctx context.Context, actorID uuid.UUID, req dto.InternalSaleRequest) (*dto.SaleResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error)
	List(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
}

type saleService struct {
	repo         repository.SaleRepository
	productRepo  repository.ProductRepository
	movementRepo repository.StockMovementRepository
	userRepo     repository.UserRepository
	sequences    repository.SequenceRepository
}

func NewSaleService(
	repo repository.SaleRepository,
	productRepo repository.ProductRepository,
	movementRepo repository.StockMovementRepository,
	userRepo repository.UserRepository,
	sequences repository.SequenceRepository,
) SaleService {
	return &saleService{
		repo:         repo,
		productRepo:  productRepo,
		movementRepo: movementRepo,
		userRepo:     userRepo,
		sequences:    sequences,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Create ────────────────────────────────────────────────────────────────────
// Totals are computed deterministically from the request fields; the catalog
// is NOT consulted for prices (that is the internal-sale flow). The sale
// number comes from the atomic sequence inside the same transaction, and the
// whole transaction is retried a bounded number of times if the unique index
// on sale_number still reports a collision.

func (s *saleService) Create(ctx context.Context, cashierID uuid.UUID, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	items, totals, err := buildItems(req.Items)
	if err != nil {
		return nil, err
	}

	status := model.SaleInProgress
	details := model.PaymentDetails{
		CashAmount:     req.Payment.CashAmount,
		CardAmount:     req.Payment.CardAmount,
		TransferAmount: req.Payment.TransferAmount,
	}
	if req.CompleteImmediately {
		tendered := details.Tendered()
		if tendered.LessThan(totals.total) {
			return nil, apierror.Validationf("payment tendered %s is less than sale total %s", tendered, totals.total)
		}
		details.ChangeGiven = tendered.Sub(totals.total)
		status = model.SaleCompleted
	}

	var sale model.Sale
	var txErr error
	for attempt := 0; attempt < saleNumberRetries; attempt++ {
		sale = model.Sale{
			CashierID:      cashierID,
			Subtotal:       totals.subtotal,
			DiscountTotal:  totals.discount,
			TaxTotal:       totals.tax,
			Total:          totals.total,
			PaymentMethod:  req.PaymentMethod,
			PaymentDetails: details,
			Status:         status,
			Notes:          req.Notes,
			Items:          cloneItems(items),
		}
		txErr = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
			seq, err := s.sequences.Next(ctx, tx, repository.SeqSaleNumber, repository.SaleNumberSeed)
			if err != nil {
				return err
			}
			sale.SaleNumber = repository.FormatSaleNumber(seq)

			if err := s.repo.Create(ctx, tx, &sale); err != nil {
				return err
			}
			if status == model.SaleCompleted {
				return s.deductStockTx(tx, &sale, model.MovementSale,
					fmt.Sprintf("Sale %s", sale.SaleNumber))
			}
			return nil
		})
		if txErr == nil || !errors.Is(txErr, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			return nil, apierror.Conflictf("could not assign a unique sale number after %d attempts", saleNumberRetries)
		}
		return nil, txErr
	}

	return saleToResponse(&sale), nil
}

// ── Complete ──────────────────────────────────────────────────────────────────
// Valid only from in_progress. The conditional status update and the stock
// deltas share one transaction: either both land or neither does, and a
// concurrent transition on the same sale sees zero affected rows.

func (s *saleService) Complete(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	var sale *model.Sale
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		sale, err = s.repo.FindForUpdateTx(tx, id)
		if err != nil {
			return apierror.NotFoundf("sale %s not found", id)
		}
		rows, err := s.repo.UpdateStatusTx(tx, id,
			[]string{model.SaleInProgress}, model.SaleCompleted, nil)
		if err != nil {
			return err
		}
		if rows == 0 {
			return apierror.InvalidStatef("sale %s cannot be completed from status %q", sale.SaleNumber, sale.Status)
		}
		sale.Status = model.SaleCompleted
		return s.deductStockTx(tx, sale, model.MovementSale,
			fmt.Sprintf("Sale %s", sale.SaleNumber))
	})
	if txErr != nil {
		return nil, txErr
	}
	return saleToResponse(sale), nil
}

// ── Cancel ────────────────────────────────────────────────────────────────────
// Valid from in_progress (nothing was ever deducted) or completed (inventory
// is restored before the status flips).

func (s *saleService) Cancel(ctx context.Context, id uuid.UUID, reason string, actorID uuid.UUID) (*dto.SaleResponse, error) {
	if reason == "" {
		return nil, apierror.Validationf("cancellation reason is required")
	}

	var sale *model.Sale
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		sale, err = s.repo.FindForUpdateTx(tx, id)
		if err != nil {
			return apierror.NotFoundf("sale %s not found", id)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"cancellation_reason": reason,
			"cancelled_by":        actorID,
			"cancelled_at":        now,
		}

		switch sale.Status {
		case model.SaleInProgress, model.SaleCompleted:
			wasCompleted := sale.Status == model.SaleCompleted
			rows, err := s.repo.UpdateStatusTx(tx, id,
				[]string{sale.Status}, model.SaleCancelled, updates)
			if err != nil {
				return err
			}
			if rows == 0 {
				return apierror.InvalidStatef("sale %s was modified concurrently", sale.SaleNumber)
			}
			if wasCompleted {
				if err := s.restoreStockTx(tx, sale, model.MovementCancelRestore,
					fmt.Sprintf("Cancellation of sale %s: %s", sale.SaleNumber, reason)); err != nil {
					return err
				}
			}
			sale.Status = model.SaleCancelled
			sale.CancellationReason = &reason
			sale.CancelledBy = &actorID
			sale.CancelledAt = &now
			return nil
		default:
			return apierror.InvalidStatef("sale %s cannot be cancelled from status %q", sale.SaleNumber, sale.Status)
		}
	})
	if txErr != nil {
		return nil, txErr
	}
	return saleToResponse(sale), nil
}

// ── Refund ────────────────────────────────────────────────────────────────────
// Full refunds restore every catalog quantity and flip the status; line items
// stay as historical record. Partial refunds are destructive and
// one-directional: refunded quantities are restored to stock, items shrink or
// disappear, and the aggregates are recomputed from whatever remains.

func (s *saleService) Refund(ctx context.Context, id uuid.UUID, actorID uuid.UUID, req dto.RefundSaleRequest) (*dto.SaleResponse, error) {
	var sale *model.Sale
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		var err error
		sale, err = s.repo.FindForUpdateTx(tx, id)
		if err != nil {
			return apierror.NotFoundf("sale %s not found", id)
		}
		if sale.Status != model.SaleCompleted {
			return apierror.InvalidStatef("sale %s cannot be refunded from status %q", sale.SaleNumber, sale.Status)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"refund_reason": req.Reason,
			"refunded_by":   actorID,
			"refunded_at":   now,
		}
		sale.RefundReason = &req.Reason
		sale.RefundedBy = &actorID
		sale.RefundedAt = &now

		if req.Type == "full" {
			if err := s.restoreStockTx(tx, sale, model.MovementRefundRestore,
				fmt.Sprintf("Full refund of sale %s: %s", sale.SaleNumber, req.Reason)); err != nil {
				return err
			}
			rows, err := s.repo.UpdateStatusTx(tx, id,
				[]string{model.SaleCompleted}, model.SaleRefunded, updates)
			if err != nil {
				return err
			}
			if rows == 0 {
				return apierror.InvalidStatef("sale %s was modified concurrently", sale.SaleNumber)
			}
			sale.Status = model.SaleRefunded
			return nil
		}

		return s.partialRefundTx(tx, sale, req, updates)
	})
	if txErr != nil {
		return nil, txErr
	}
	return saleToResponse(sale), nil
}

func (s *saleService) partialRefundTx(tx *gorm.DB, sale *model.Sale, req dto.RefundSaleRequest, updates map[string]interface{}) error {
	if len(req.Items) == 0 {
		return apierror.Validationf("partial refund requires at least one item")
	}

	byID := make(map[uuid.UUID]int, len(sale.Items))
	for i, it := range sale.Items {
		byID[it.ID] = i
	}

	remaining := make([]model.SaleItem, len(sale.Items))
	copy(remaining, sale.Items)
	removed := make(map[uuid.UUID]bool)

	for _, ri := range req.Items {
		itemID, err := uuid.Parse(ri.ItemID)
		if err != nil {
			return apierror.Validationf("invalid item_id %q", ri.ItemID)
		}
		idx, ok := byID[itemID]
		if !ok || removed[itemID] {
			return apierror.NotFoundf("sale item %s not found on sale %s", ri.ItemID, sale.SaleNumber)
		}
		item := &remaining[idx]

		// A request for >= the remaining quantity drops the whole line;
		// stock is restored for what was actually on the sale.
		restoreQty := ri.Quantity
		if restoreQty >= item.Quantity {
			restoreQty = item.Quantity
		}

		if item.IsCatalog() {
			if err := s.adjustOneTx(tx, *item.ProductID, restoreQty, model.MovementRefundRestore,
				fmt.Sprintf("Partial refund of sale %s: %s", sale.SaleNumber, req.Reason), sale.ID); err != nil {
				return err
			}
		}

		if ri.Quantity >= item.Quantity {
			if err := s.repo.DeleteItemTx(tx, item.ID); err != nil {
				return err
			}
			removed[itemID] = true
			continue
		}

		item.Quantity -= ri.Quantity
		recomputeItem(item)
		if err := s.repo.UpdateItemTx(tx, item); err != nil {
			return err
		}
	}

	kept := remaining[:0:0]
	for _, it := range remaining {
		if !removed[it.ID] {
			kept = append(kept, it)
		}
	}
	sale.Items = kept

	totals := sumItems(kept)
	sale.Subtotal = totals.subtotal
	sale.DiscountTotal = totals.discount
	sale.TaxTotal = totals.tax
	sale.Total = totals.total
	updates["subtotal"] = totals.subtotal
	updates["discount_total"] = totals.discount
	updates["tax_total"] = totals.tax
	updates["total"] = totals.total

	if len(kept) == 0 {
		rows, err := s.repo.UpdateStatusTx(tx, sale.ID,
			[]string{model.SaleCompleted}, model.SaleRefunded, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return apierror.InvalidStatef("sale %s was modified concurrently", sale.SaleNumber)
		}
		sale.Status = model.SaleRefunded
		return nil
	}
	return s.repo.UpdateFieldsTx(tx, sale.ID, updates)
}

// ── CreateInternal ────────────────────────────────────────────────────────────
// Internal consumption: prices are resolved from the catalog (client-supplied
// prices are ignored), no discount and no tax, completed and stock-deducted
// immediately. Managers with a configured limit are capped; admins are exempt.

func (s *saleService) CreateInternal(ctx context.Context, actorID uuid.UUID, req dto.InternalSaleRequest) (*dto.SaleResponse, error) {
	actor, err := s.userRepo.FindByID(ctx, actorID)
	if err != nil {
		return nil, apierror.NotFoundf("user %s not found", actorID)
	}
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleManager {
		return nil, apierror.Permissionf("role %q may not register internal sales", actor.Role)
	}

	type resolved struct {
		product *model.Product
		qty     int
	}
	var lines []resolved
	subtotal := decimal.Zero
	for _, it := range req.Items {
		pid, err := uuid.Parse(it.ProductID)
		if err != nil {
			return nil, apierror.Validationf("invalid product_id %q", it.ProductID)
		}
		p, err := s.productRepo.FindByID(ctx, pid)
		if err != nil {
			return nil, apierror.NotFoundf("product %s not found", it.ProductID)
		}
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		lines = append(lines, resolved{product: p, qty: it.Quantity})
	}

	if actor.Role == model.RoleManager && actor.InternalSalesLimit.IsPositive() &&
		subtotal.GreaterThan(actor.InternalSalesLimit) {
		return nil, apierror.LimitExceededf("internal sale of %s exceeds your limit of %s",
			subtotal, actor.InternalSalesLimit)
	}

	var sale model.Sale
	var txErr error
	for attempt := 0; attempt < saleNumberRetries; attempt++ {
		items := make([]model.SaleItem, 0, len(lines))
		for _, l := range lines {
			pid := l.product.ID
			base := l.product.Price.Mul(decimal.NewFromInt(int64(l.qty)))
			items = append(items, model.SaleItem{
				ItemType:    model.ItemCatalog,
				ProductID:   &pid,
				Description: l.product.Name,
				Quantity:    l.qty,
				UnitPrice:   l.product.Price,
				Subtotal:    base,
				Total:       base,
			})
		}
		sale = model.Sale{
			CashierID:     actorID,
			Subtotal:      subtotal,
			DiscountTotal: decimal.Zero,
			TaxTotal:      decimal.Zero,
			Total:         subtotal,
			PaymentMethod: model.PaymentInternal,
			Status:        model.SaleCompleted,
			IsInternal:    true,
			ApprovedBy:    &actorID,
			Notes:         req.Notes,
			Items:         items,
		}
		txErr = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
			seq, err := s.sequences.Next(ctx, tx, repository.SeqSaleNumber, repository.SaleNumberSeed)
			if err != nil {
				return err
			}
			sale.SaleNumber = repository.FormatSaleNumber(seq)
			if err := s.repo.Create(ctx, tx, &sale); err != nil {
				return err
			}
			return s.deductStockTx(tx, &sale, model.MovementInternalSale,
				fmt.Sprintf("Internal sale %s", sale.SaleNumber))
		})
		if txErr == nil || !errors.Is(txErr, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			return nil, apierror.Conflictf("could not assign a unique sale number after %d attempts", saleNumberRetries)
		}
		return nil, txErr
	}
	return saleToResponse(&sale), nil
}

func (s *saleService) GetByID(ctx context.Context, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFoundf("sale %s not found", id)
	}
	return saleToResponse(sale), nil
}

// List returns a paginated list of sales filtered by status, date range and
// cashier. Default: first page of 50.
func (s *saleService) List(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	sales, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	data := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		data = append(data, *saleToResponse(&sales[i]))
	}
	return &dto.SaleListResponse{
		Data:  data,
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}, nil
}

// ── Stock helpers ─────────────────────────────────────────────────────────────

func (s *saleService) deductStockTx(tx *gorm.DB, sale *model.Sale, movType, reason string) error {
	for _, it := range sale.CatalogItems() {
		if err := s.adjustOneTx(tx, *it.ProductID, -it.Quantity, movType, reason, sale.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *saleService) restoreStockTx(tx *gorm.DB, sale *model.Sale, movType, reason string) error {
	for _, it := range sale.CatalogItems() {
		if err := s.adjustOneTx(tx, *it.ProductID, it.Quantity, movType, reason, sale.ID); err != nil {
			return err
		}
	}
	return nil
}

// adjustOneTx applies one signed delta and writes its audit row. A missing
// product aborts the enclosing transaction, so the status transition rolls
// back with it.
func (s *saleService) adjustOneTx(tx *gorm.DB, productID uuid.UUID, delta int, movType, reason string, saleID uuid.UUID) error {
	before, err := s.productRepo.FindByIDTx(tx, productID)
	if err != nil {
		return apierror.NotFoundf("product %s no longer exists", productID)
	}
	// Snapshot the level before the adjustment; the repository may hand back
	// a live row that AdjustStockTx mutates underneath us.
	stockBefore := before.Stock
	if err := s.productRepo.AdjustStockTx(tx, productID, delta); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierror.NotFoundf("product %s no longer exists", productID)
		}
		return err
	}
	ref := saleID
	return s.movementRepo.CreateTx(tx, &model.StockMovement{
		ProductID:   productID,
		Type:        movType,
		Quantity:    delta,
		StockBefore: stockBefore,
		StockAfter:  stockBefore + delta,
		Reason:      reason,
		ReferenceID: &ref,
	})
}

// ── Item math ─────────────────────────────────────────────────────────────────

type saleTotals struct {
	subtotal decimal.Decimal
	discount decimal.Decimal
	tax      decimal.Decimal
	total    decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// buildItems validates and prices the request lines. Line math:
//
//	base     = unit_price * qty   (or price_per_kg * weight_kg for bulk)
//	discount = base * discount_pct / 100
//	tax      = (base - discount) * tax_rate / 100
//	total    = base - discount + tax
func buildItems(reqs []dto.SaleItemRequest) ([]model.SaleItem, saleTotals, error) {
	if len(reqs) == 0 {
		return nil, saleTotals{}, apierror.Validationf("a sale requires at least one item")
	}

	items := make([]model.SaleItem, 0, len(reqs))
	for i, r := range reqs {
		if r.Quantity <= 0 {
			return nil, saleTotals{}, apierror.Validationf("item %d: quantity must be positive", i)
		}
		if r.DiscountPct.IsNegative() || r.DiscountPct.GreaterThan(oneHundred) {
			return nil, saleTotals{}, apierror.Validationf("item %d: discount_pct must be within [0,100]", i)
		}
		if r.UnitPrice.IsNegative() {
			return nil, saleTotals{}, apierror.Validationf("item %d: unit_price must not be negative", i)
		}

		item := model.SaleItem{
			ItemType:    model.ItemManual,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			DiscountPct: r.DiscountPct,
			TaxRate:     r.TaxRate,
			WeightKg:    r.WeightKg,
			PricePerKg:  r.PricePerKg,
		}
		if r.ProductID != "" {
			pid, err := uuid.Parse(r.ProductID)
			if err != nil {
				return nil, saleTotals{}, apierror.Validationf("item %d: invalid product_id", i)
			}
			item.ItemType = model.ItemCatalog
			item.ProductID = &pid
		}
		recomputeItem(&item)
		items = append(items, item)
	}
	return items, sumItems(items), nil
}

// recomputeItem derives the money fields from quantity, unit price, discount
// and tax rate. Used at creation and again when a partial refund shrinks a
// line.
func recomputeItem(item *model.SaleItem) {
	base := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
	if item.WeightKg != nil && item.PricePerKg != nil {
		base = item.PricePerKg.Mul(*item.WeightKg)
	}
	item.Subtotal = base
	item.DiscountAmount = base.Mul(item.DiscountPct).Div(oneHundred).Round(2)
	item.TaxAmount = base.Sub(item.DiscountAmount).Mul(item.TaxRate).Div(oneHundred).Round(2)
	item.Total = base.Sub(item.DiscountAmount).Add(item.TaxAmount)
}

func sumItems(items []model.SaleItem) saleTotals {
	t := saleTotals{
		subtotal: decimal.Zero,
		discount: decimal.Zero,
		tax:      decimal.Zero,
		total:    decimal.Zero,
	}
	for _, it := range items {
		t.subtotal = t.subtotal.Add(it.Subtotal)
		t.discount = t.discount.Add(it.DiscountAmount)
		t.tax = t.tax.Add(it.TaxAmount)
	}
	t.total = t.subtotal.Sub(t.discount).Add(t.tax)
	return t
}

func cloneItems(items []model.SaleItem) []model.SaleItem {
	out := make([]model.SaleItem, len(items))
	copy(out, items)
	return out
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	items := make([]dto.SaleItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		var pid *string
		if it.ProductID != nil {
			v := it.ProductID.String()
			pid = &v
		}
		items = append(items, dto.SaleItemResponse{
			ID:             it.ID.String(),
			ItemType:       it.ItemType,
			ProductID:      pid,
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice,
			DiscountPct:    it.DiscountPct,
			DiscountAmount: it.DiscountAmount,
			TaxRate:        it.TaxRate,
			TaxAmount:      it.TaxAmount,
			Subtotal:       it.Subtotal,
			Total:          it.Total,
		})
	}
	return &dto.SaleResponse{
		ID:                 s.ID.String(),
		SaleNumber:         s.SaleNumber,
		CashierID:          s.CashierID.String(),
		Items:              items,
		Subtotal:           s.Subtotal,
		DiscountTotal:      s.DiscountTotal,
		TaxTotal:           s.TaxTotal,
		Total:              s.Total,
		PaymentMethod:      s.PaymentMethod,
		Payment: dto.PaymentDetailsResponse{
			CashAmount:     s.PaymentDetails.CashAmount,
			CardAmount:     s.PaymentDetails.CardAmount,
			TransferAmount: s.PaymentDetails.TransferAmount,
			ChangeGiven:    s.PaymentDetails.ChangeGiven,
		},
		Status:             s.Status,
		CancellationReason: s.CancellationReason,
		RefundReason:       s.RefundReason,
		IsInternal:         s.IsInternal,
		Notes:              s.Notes,
		CreatedAt:          s.CreatedAt.UTC().Format(time.RFC3339),
	}
}
