package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

func (s *Store) CreateHeldCart(ctx context.Context, held domain.HeldCart) (*domain.HeldCart, error) {
	if held.StoreID == "" || held.TerminalID == "" || held.Cart.IsEmpty() {
		return nil, store.ErrInvalidTransaction
	}
	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}

	cartJSON, err := json.Marshal(held.Cart)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO held_carts (id, store_id, terminal_id, cashier_username, note, cart, held_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, held.ID, held.StoreID, held.TerminalID, held.CashierUsername, held.Note, cartJSON, held.HeldAt)
	if err != nil {
		return nil, err
	}
	saved := held
	return &saved, nil
}

func scanHeldCart(row rowScanner) (domain.HeldCart, error) {
	var held domain.HeldCart
	var cartRaw []byte
	if err := row.Scan(&held.ID, &held.StoreID, &held.TerminalID, &held.CashierUsername, &held.Note, &cartRaw, &held.HeldAt); err != nil {
		return domain.HeldCart{}, err
	}
	if err := json.Unmarshal(cartRaw, &held.Cart); err != nil {
		return domain.HeldCart{}, fmt.Errorf("decode held cart %s: %w", held.ID, err)
	}
	held.HeldAt = held.HeldAt.UTC()
	return held, nil
}

func (s *Store) ListHeldCarts(ctx context.Context, storeID string, terminalID string, limit int) ([]domain.HeldCart, error) {
	limit = limitOr(limit, 200)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, terminal_id, cashier_username, note, cart, held_at
		FROM held_carts
		WHERE ($1 = '' OR store_id = $1) AND ($2 = '' OR terminal_id = $2)
		ORDER BY held_at DESC, id DESC
		LIMIT $3
	`, storeID, terminalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	helds := make([]domain.HeldCart, 0, 16)
	for rows.Next() {
		held, err := scanHeldCart(rows)
		if err != nil {
			return nil, err
		}
		helds = append(helds, held)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return helds, nil
}

func (s *Store) PopHeldCart(ctx context.Context, holdID string) (*domain.HeldCart, error) {
	held, err := scanHeldCart(s.db.QueryRowContext(ctx, `
		DELETE FROM held_carts
		WHERE id = $1
		RETURNING id, store_id, terminal_id, cashier_username, note, cart, held_at
	`, holdID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &held, nil
}

func (s *Store) DeleteHeldCart(ctx context.Context, holdID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM held_carts WHERE id = $1`, holdID)
	if err != nil {
		return err
	}
	if err := affectedOne(res); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) FindTransactionByIdempotency(ctx context.Context, key string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, s.db, "idempotency_key", key)
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, s.db, "id", id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) findTransaction(ctx context.Context, q queryer, column string, value string) (*domain.Transaction, error) {
	var tx domain.Transaction
	var paymentReference, memberID, voucherCode sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT id, store_id, terminal_id, shift_id, idempotency_key, cashier, tender, payment_reference,
			member_id, voucher_code, subtotal, member_discount, voucher_discount, voucher_applied,
			discount, total, cash_received, change_amount, status, created_at
		FROM transactions
		WHERE `+column+` = $1
	`, value).Scan(
		&tx.ID, &tx.StoreID, &tx.TerminalID, &tx.ShiftID, &tx.IdempotencyKey, &tx.Cashier, &tx.Tender, &paymentReference,
		&memberID, &voucherCode, &tx.Subtotal, &tx.MemberDiscount, &tx.VoucherDiscount, &tx.VoucherApplied,
		&tx.Discount, &tx.Total, &tx.CashReceived, &tx.Change, &tx.Status, &tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.PaymentReference = paymentReference.String
	tx.MemberID = memberID.String
	tx.VoucherCode = voucherCode.String
	tx.CreatedAt = tx.CreatedAt.UTC()

	rows, err := q.QueryContext(ctx, `
		SELECT product_id, sku, name, qty, unit_price, unit_cost, tracks_stock
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY sku
	`, tx.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.TransactionLine
		if err := rows.Scan(&item.ProductID, &item.SKU, &item.Name, &item.Qty, &item.UnitPrice, &item.UnitCost, &item.TracksStock); err != nil {
			return nil, err
		}
		tx.Items = append(tx.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) CreateCheckout(ctx context.Context, txData domain.Transaction) (*domain.Transaction, error) {
	if txData.IdempotencyKey == "" || len(txData.Items) == 0 || txData.ShiftID == "" {
		return nil, store.ErrInvalidTransaction
	}
	for _, item := range txData.Items {
		if item.Qty < 1 || item.SKU == "" {
			return nil, store.ErrInvalidTransaction
		}
	}

	if existing, err := s.FindTransactionByIdempotency(ctx, txData.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if txData.ID == "" {
		txData.ID = xid.New("tx")
	}
	if txData.CreatedAt.IsZero() {
		txData.CreatedAt = time.Now().UTC()
	}
	if txData.Status == "" {
		txData.Status = domain.TxStatusPaid
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Lock order: shift row, then stock rows sorted by sku.
	current, err := scanShift(tx.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1 AND store_id = $2 AND terminal_id = $3
		FOR UPDATE
	`, txData.ShiftID, txData.StoreID, txData.TerminalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: shift %s", store.ErrNotFound, txData.ShiftID)
		}
		return nil, err
	}
	updatedShift, err := current.RecordSale(txData.Tender, txData.Total)
	if err != nil {
		return nil, err
	}

	need := make(map[string]int, len(txData.Items))
	for _, item := range txData.Items {
		if item.TracksStock {
			need[item.SKU] += item.Qty
		}
	}
	for _, sku := range uniqueSKUs(txData.Items) {
		qty, tracked := need[sku]
		if !tracked {
			continue
		}
		var available int
		err := tx.QueryRowContext(ctx, `
			SELECT qty FROM inventory_stocks
			WHERE store_id = $1 AND sku = $2
			FOR UPDATE
		`, txData.StoreID, sku).Scan(&available)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if available < qty {
			return nil, fmt.Errorf("%w: %s has %d", store.ErrInsufficientStock, sku, available)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_stocks SET qty = qty - $3, updated_at = now()
			WHERE store_id = $1 AND sku = $2
		`, txData.StoreID, sku, qty); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE shifts
		SET total_transactions = $2, total_sales = $3, cash_sales = $4, card_sales = $5, ewallet_sales = $6
		WHERE id = $1
	`, updatedShift.ID, updatedShift.TotalTransactions, updatedShift.TotalSales,
		updatedShift.CashSales, updatedShift.CardSales, updatedShift.EWalletSales); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, store_id, terminal_id, shift_id, idempotency_key, cashier, tender, payment_reference,
			member_id, voucher_code, subtotal, member_discount, voucher_discount, voucher_applied,
			discount, total, cash_received, change_amount, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, txData.ID, txData.StoreID, txData.TerminalID, txData.ShiftID, txData.IdempotencyKey, txData.Cashier,
		txData.Tender, nullIfEmpty(txData.PaymentReference), nullIfEmpty(txData.MemberID), nullIfEmpty(txData.VoucherCode),
		txData.Subtotal, txData.MemberDiscount, txData.VoucherDiscount, txData.VoucherApplied,
		txData.Discount, txData.Total, txData.CashReceived, txData.Change, txData.Status, txData.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			_ = tx.Rollback()
			return s.FindTransactionByIdempotency(ctx, txData.IdempotencyKey)
		}
		return nil, err
	}

	for _, item := range txData.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, sku, name, qty, unit_price, unit_cost, tracks_stock)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, txData.ID, item.ProductID, item.SKU, item.Name, item.Qty, item.UnitPrice, item.UnitCost, item.TracksStock); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := txData
	return &saved, nil
}
