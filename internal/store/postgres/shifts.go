package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
)

const activeShiftIndex = "shifts_one_active_per_terminal"

const shiftColumns = `
	id, shift_number, store_id, terminal_id, operator, status, opening_float, start_time,
	total_transactions, total_sales, cash_sales, card_sales, ewallet_sales, end_time,
	closing_balance, expected_balance, difference, classification, notes, handover_to, handover_amount`

func scanShift(row rowScanner) (shift.Shift, error) {
	var sh shift.Shift
	var endTime sql.NullTime
	var closing, expected, difference, handoverAmount sql.NullInt64
	var classification, handoverTo sql.NullString
	if err := row.Scan(
		&sh.ID, &sh.Number, &sh.StoreID, &sh.TerminalID, &sh.Operator, &sh.Status, &sh.OpeningFloat, &sh.StartTime,
		&sh.TotalTransactions, &sh.TotalSales, &sh.CashSales, &sh.CardSales, &sh.EWalletSales, &endTime,
		&closing, &expected, &difference, &classification, &sh.Notes, &handoverTo, &handoverAmount,
	); err != nil {
		return shift.Shift{}, err
	}
	sh.StartTime = sh.StartTime.UTC()
	sh.EndTime = timePtr(endTime)
	sh.ClosingBalance = int64Ptr(closing)
	sh.ExpectedBalance = int64Ptr(expected)
	sh.Difference = int64Ptr(difference)
	if classification.Valid {
		c := cashdrawer.Classification(classification.String)
		sh.Classification = &c
	}
	sh.HandoverTo = handoverTo.String
	sh.HandoverAmount = int64Ptr(handoverAmount)
	return sh, nil
}

func (s *Store) NextShiftNumber(ctx context.Context, storeID string, terminalID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(shift_number), 0) + 1
		FROM shifts
		WHERE store_id = $1 AND terminal_id = $2
	`, storeID, terminalID).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) CreateShift(ctx context.Context, sh shift.Shift) (*shift.Shift, error) {
	if strings.TrimSpace(sh.ID) == "" || !sh.IsActive() {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shifts (
			id, shift_number, store_id, terminal_id, operator, status, opening_float, start_time,
			total_transactions, total_sales, cash_sales, card_sales, ewallet_sales, notes
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sh.ID, sh.Number, sh.StoreID, sh.TerminalID, sh.Operator, sh.Status, sh.OpeningFloat, sh.StartTime.UTC(),
		sh.TotalTransactions, sh.TotalSales, sh.CashSales, sh.CardSales, sh.EWalletSales, sh.Notes)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == activeShiftIndex {
				return nil, store.ErrShiftAlreadyOpen
			}
			return nil, fmt.Errorf("%w: shift %s", store.ErrAlreadyExists, sh.ID)
		}
		return nil, err
	}
	created := sh
	return &created, nil
}

func (s *Store) GetActiveShift(ctx context.Context, storeID string, terminalID string) (*shift.Shift, error) {
	sh, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE store_id = $1 AND terminal_id = $2 AND status = 'active'
	`, storeID, terminalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sh, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*shift.Shift, error) {
	sh, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sh, nil
}

func (s *Store) ListShifts(ctx context.Context, storeID string, terminalID string, limit int) ([]shift.Shift, error) {
	limit = limitOr(limit, 100)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shiftColumns+`
		FROM shifts
		WHERE ($1 = '' OR store_id = $1) AND ($2 = '' OR terminal_id = $2)
		ORDER BY start_time DESC, id DESC
		LIMIT $3
	`, storeID, terminalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shifts := make([]shift.Shift, 0, 32)
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shifts, nil
}

func (s *Store) SaveShiftTransition(ctx context.Context, sh shift.Shift) (*shift.Shift, error) {
	if sh.IsActive() {
		return nil, store.ErrInvalidTransaction
	}

	var classification any
	if sh.Classification != nil {
		classification = string(*sh.Classification)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts
		SET status = $3, end_time = $4, closing_balance = $5, expected_balance = $6, difference = $7,
			classification = $8, notes = $9, handover_to = $10, handover_amount = $11
		WHERE id = $1 AND status = 'active' AND total_transactions = $2
	`, sh.ID, sh.TotalTransactions, sh.Status, nullTime(sh.EndTime), nullInt64(sh.ClosingBalance),
		nullInt64(sh.ExpectedBalance), nullInt64(sh.Difference), classification, sh.Notes,
		nullIfEmpty(sh.HandoverTo), nullInt64(sh.HandoverAmount))
	if err != nil {
		return nil, err
	}
	if err := affectedOne(res); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if _, err := s.GetShift(ctx, sh.ID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: shift %s", store.ErrConflict, sh.ID)
	}
	saved := sh
	return &saved, nil
}
