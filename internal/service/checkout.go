package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/obs"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

// Checkout prices the submitted lines against the catalog, applies the
// member tier and voucher, and commits the sale on the terminal's active shift.
// A key that already committed returns that sale flagged as a duplicate; a key
// still being processed by another request fails with ErrDuplicateRequest.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (resp domain.CheckoutResponse, err error) {
	defer func() {
		switch {
		case err == nil && resp.Duplicate:
			s.metrics.Checkout(string(req.Tender), obs.ResultDuplicate, 0)
		case err == nil:
			s.metrics.Checkout(string(req.Tender), obs.ResultOK, resp.Total)
		case errors.Is(err, ErrDuplicateRequest):
			s.metrics.Checkout(string(req.Tender), obs.ResultDuplicate, 0)
		case isRejection(err):
			s.metrics.Checkout(string(req.Tender), obs.ResultRejected, 0)
		default:
			s.metrics.Checkout(string(req.Tender), obs.ResultError, 0)
		}
	}()

	storeID := s.storeOrDefault(req.StoreID)
	terminalID := strings.TrimSpace(req.TerminalID)
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" || terminalID == "" || !req.Tender.Valid() || req.CashReceived < 0 {
		return domain.CheckoutResponse{}, store.ErrInvalidTransaction
	}
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	if existing, err := s.repo.FindTransactionByIdempotency(ctx, key); err == nil {
		return toCheckoutResponse(existing, true), nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CheckoutResponse{}, err
	}

	acquired, err := s.guard.Acquire(ctx, key, s.idemTTL)
	switch {
	case err != nil:
		// The unique idempotency key in the store still rejects a second commit.
		s.log.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency guard unavailable")
	case !acquired:
		return domain.CheckoutResponse{}, ErrDuplicateRequest
	default:
		defer func() {
			if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
				s.log.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency guard release failed")
			}
		}()
	}

	active, err := s.repo.GetActiveShift(ctx, storeID, terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutResponse{}, ErrActiveShiftRequired
		}
		return domain.CheckoutResponse{}, err
	}

	priced, items, err := s.priceLines(ctx, storeID, lines)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if memberID := strings.TrimSpace(req.MemberID); memberID != "" {
		tier, err := s.memberTier(ctx, memberID)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		priced = priced.WithMember(tier)
	}
	if code := strings.TrimSpace(req.VoucherCode); code != "" {
		voucher, err := s.usableVoucher(ctx, code)
		if err != nil {
			return domain.CheckoutResponse{}, err
		}
		priced = priced.WithVoucher(voucher)
	}
	totals := priced.Totals()

	cashReceived := req.CashReceived
	var change int64
	if req.Tender == shift.TenderCash {
		if cashReceived < totals.Total {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: received %d, total %d", ErrInsufficientCash, cashReceived, totals.Total)
		}
		change = cashReceived - totals.Total
	} else {
		cashReceived = totals.Total
	}

	tx := domain.Transaction{
		ID:               xid.New("tx"),
		StoreID:          storeID,
		TerminalID:       terminalID,
		ShiftID:          active.ID,
		IdempotencyKey:   key,
		Cashier:          actorName(ctx),
		Tender:           req.Tender,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		MemberID:         strings.TrimSpace(req.MemberID),
		Subtotal:         totals.Subtotal,
		MemberDiscount:   totals.MemberDiscount,
		VoucherDiscount:  totals.VoucherDiscount,
		VoucherApplied:   totals.VoucherApplied,
		Discount:         totals.Discount,
		Total:            totals.Total,
		CashReceived:     cashReceived,
		Change:           change,
		Status:           domain.TxStatusPaid,
		CreatedAt:        s.now().UTC(),
		Items:            items,
	}
	if priced.Voucher != nil {
		tx.VoucherCode = priced.Voucher.Code
	}

	created, err := s.repo.CreateCheckout(ctx, tx)
	if err != nil {
		if errors.Is(err, shift.ErrNotActive) {
			return domain.CheckoutResponse{}, ErrActiveShiftRequired
		}
		return domain.CheckoutResponse{}, err
	}
	if created.ID != tx.ID {
		return toCheckoutResponse(created, true), nil
	}

	s.logAudit(ctx, storeID, "checkout", "transaction", created.ID,
		fmt.Sprintf("total=%d,tender=%s,discount=%d,member=%s,voucher=%s",
			created.Total, created.Tender, created.Discount, created.MemberID, created.VoucherCode))
	return toCheckoutResponse(created, false), nil
}

// priceLines builds a cart from catalog prices and stock. Service products are
// capped rather than stock-checked.
func (s *Service) priceLines(ctx context.Context, storeID string, lines []domain.CheckoutLine) (cart.Cart, []domain.TransactionLine, error) {
	skus := make([]string, 0, len(lines))
	for _, line := range lines {
		skus = append(skus, line.SKU)
	}
	products, err := s.repo.GetProductsBySKUs(ctx, skus)
	if err != nil {
		return cart.Cart{}, nil, err
	}
	stock, err := s.repo.GetStockMap(ctx, storeID, skus)
	if err != nil {
		return cart.Cart{}, nil, err
	}

	c := cart.Cart{Lines: make([]cart.Line, 0, len(lines))}
	items := make([]domain.TransactionLine, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.SKU]
		if !ok {
			return cart.Cart{}, nil, fmt.Errorf("%w: sku %s", store.ErrNotFound, line.SKU)
		}
		ref := product.CartRef(stock[line.SKU])
		if line.Qty > ref.StockAvailable {
			return cart.Cart{}, nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, line.SKU, ref.StockAvailable)
		}
		c.Lines = append(c.Lines, cart.Line{
			ID:             ref.ID,
			SKU:            ref.SKU,
			Name:           ref.Name,
			UnitPrice:      ref.UnitPrice,
			Quantity:       line.Qty,
			StockAvailable: ref.StockAvailable,
		})
		items = append(items, domain.TransactionLine{
			ProductID:   product.ID,
			SKU:         product.SKU,
			Name:        product.Name,
			Qty:         line.Qty,
			UnitPrice:   product.SellingPrice,
			UnitCost:    product.CostPrice,
			TracksStock: product.ProductType.TracksStock(),
		})
	}
	if err := c.Validate(); err != nil {
		return cart.Cart{}, nil, err
	}
	return c, items, nil
}

func (s *Service) LookupCheckout(ctx context.Context, idempotencyKey string) (domain.CheckoutLookupResponse, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return domain.CheckoutLookupResponse{}, store.ErrInvalidTransaction
	}

	tx, err := s.repo.FindTransactionByIdempotency(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CheckoutLookupResponse{Found: false}, nil
		}
		return domain.CheckoutLookupResponse{}, err
	}
	checkout := toCheckoutResponse(tx, false)
	return domain.CheckoutLookupResponse{Found: true, Checkout: &checkout}, nil
}

func toCheckoutResponse(tx *domain.Transaction, duplicate bool) domain.CheckoutResponse {
	return domain.CheckoutResponse{
		TransactionID:   tx.ID,
		Status:          tx.Status,
		Tender:          tx.Tender,
		Subtotal:        tx.Subtotal,
		MemberDiscount:  tx.MemberDiscount,
		VoucherDiscount: tx.VoucherDiscount,
		VoucherCode:     tx.VoucherCode,
		VoucherApplied:  tx.VoucherApplied,
		Discount:        tx.Discount,
		Total:           tx.Total,
		CashReceived:    tx.CashReceived,
		Change:          tx.Change,
		ItemCount:       tx.ItemCount(),
		ShiftID:         tx.ShiftID,
		Duplicate:       duplicate,
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
}

// normalizeLines merges repeated SKUs in SKU order. A blank SKU or a quantity
// below one rejects the whole request.
func normalizeLines(lines []domain.CheckoutLine) ([]domain.CheckoutLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: checkout needs at least one line", store.ErrInvalidTransaction)
	}
	agg := make(map[string]int, len(lines))
	for _, line := range lines {
		sku := strings.ToUpper(strings.TrimSpace(line.SKU))
		if sku == "" {
			return nil, fmt.Errorf("%w: line sku required", store.ErrInvalidTransaction)
		}
		if line.Qty < 1 {
			return nil, fmt.Errorf("%w: %s quantity %d", store.ErrInvalidTransaction, sku, line.Qty)
		}
		agg[sku] += line.Qty
	}

	normalized := make([]domain.CheckoutLine, 0, len(agg))
	for sku, qty := range agg {
		normalized = append(normalized, domain.CheckoutLine{SKU: sku, Qty: qty})
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].SKU < normalized[j].SKU })
	return normalized, nil
}

func isRejection(err error) bool {
	for _, target := range []error{
		store.ErrInvalidTransaction, store.ErrInsufficientStock, store.ErrNotFound,
		ErrInsufficientCash, ErrActiveShiftRequired, ErrVoucherUnavailable,
		cart.ErrInvalidCart, cart.ErrQuantityOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
