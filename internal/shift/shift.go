// Package shift models a cashier shift: opened with a float, accumulating sales
// while active, and ending either closed after a cash count or handed over to
// another operator. Every transition returns a new Shift.
package shift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bedagang/backend/internal/cashdrawer"
)

var (
	ErrNotActive          = errors.New("shift is not active")
	ErrVerificationFailed = errors.New("handover verification failed")
	ErrInvalidShift       = errors.New("invalid shift input")
)

type Status string

const (
	StatusActive     Status = "active"
	StatusClosed     Status = "closed"
	StatusHandedOver Status = "handed_over"
)

type Tender string

const (
	TenderCash    Tender = "cash"
	TenderCard    Tender = "card"
	TenderEWallet Tender = "ewallet"
)

func (t Tender) Valid() bool {
	switch t {
	case TenderCash, TenderCard, TenderEWallet:
		return true
	}
	return false
}

type Shift struct {
	ID                string     `json:"id"`
	Number            int        `json:"shift_number"`
	StoreID           string     `json:"store_id"`
	TerminalID        string     `json:"terminal_id"`
	Operator          string     `json:"operator"`
	Status            Status     `json:"status"`
	OpeningFloat      int64      `json:"opening_float"`
	StartTime         time.Time  `json:"start_time"`
	TotalTransactions int        `json:"total_transactions"`
	TotalSales        int64      `json:"total_sales"`
	CashSales         int64      `json:"cash_sales"`
	CardSales         int64      `json:"card_sales"`
	EWalletSales      int64      `json:"ewallet_sales"`
	EndTime           *time.Time `json:"end_time,omitempty"`

	ClosingBalance  *int64                     `json:"closing_balance,omitempty"`
	ExpectedBalance *int64                     `json:"expected_balance,omitempty"`
	Difference      *int64                     `json:"difference,omitempty"`
	Classification  *cashdrawer.Classification `json:"classification,omitempty"`
	Notes           string                     `json:"notes,omitempty"`

	HandoverTo     string `json:"handover_to,omitempty"`
	HandoverAmount *int64 `json:"handover_amount,omitempty"`
}

type OpenParams struct {
	ID           string
	StoreID      string
	TerminalID   string
	Operator     string
	OpeningFloat int64
	Number       int
}

type HandoverParams struct {
	To     string
	Amount int64
	PIN    string
}

// PINVerifier checks the PIN held by the operator receiving a handover.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, operator, pin string) error
}

// Open starts a new active shift with zeroed accumulators. Keeping a single
// active shift per terminal is the caller's job.
func Open(p OpenParams, now time.Time) (Shift, error) {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return Shift{}, fmt.Errorf("%w: id required", ErrInvalidShift)
	case strings.TrimSpace(p.StoreID) == "", strings.TrimSpace(p.TerminalID) == "":
		return Shift{}, fmt.Errorf("%w: store and terminal required", ErrInvalidShift)
	case strings.TrimSpace(p.Operator) == "":
		return Shift{}, fmt.Errorf("%w: operator required", ErrInvalidShift)
	case p.OpeningFloat < 0:
		return Shift{}, fmt.Errorf("%w: opening float %d", ErrInvalidShift, p.OpeningFloat)
	case p.Number < 1:
		return Shift{}, fmt.Errorf("%w: shift number %d", ErrInvalidShift, p.Number)
	}
	return Shift{
		ID:           p.ID,
		Number:       p.Number,
		StoreID:      strings.TrimSpace(p.StoreID),
		TerminalID:   strings.TrimSpace(p.TerminalID),
		Operator:     strings.TrimSpace(p.Operator),
		Status:       StatusActive,
		OpeningFloat: p.OpeningFloat,
		StartTime:    now.UTC(),
	}, nil
}

func (s Shift) IsActive() bool {
	return s.Status == StatusActive
}

// RecordSale adds one completed sale to the accumulators.
func (s Shift) RecordSale(tender Tender, amount int64) (Shift, error) {
	if !s.IsActive() {
		return s, ErrNotActive
	}
	if amount < 0 {
		return s, fmt.Errorf("%w: sale amount %d", ErrInvalidShift, amount)
	}
	switch tender {
	case TenderCash:
		s.CashSales += amount
	case TenderCard:
		s.CardSales += amount
	case TenderEWallet:
		s.EWalletSales += amount
	default:
		return s, fmt.Errorf("%w: tender %q", ErrInvalidShift, tender)
	}
	s.TotalTransactions++
	s.TotalSales += amount
	return s, nil
}

// Reconcile previews the cash count against the shift without changing it.
func (s Shift) Reconcile(count cashdrawer.Count) (cashdrawer.Result, error) {
	return cashdrawer.Reconcile(s.OpeningFloat, s.CashSales, count)
}

// ExpectedCash is the cash the drawer should hold right now.
func (s Shift) ExpectedCash() int64 {
	return s.OpeningFloat + s.CashSales
}

// Close ends the shift and records the reconciliation on it.
func (s Shift) Close(count cashdrawer.Count, notes string, now time.Time) (Shift, cashdrawer.Result, error) {
	if !s.IsActive() {
		return s, cashdrawer.Result{}, ErrNotActive
	}
	res, err := s.Reconcile(count)
	if err != nil {
		return s, cashdrawer.Result{}, err
	}

	end := now.UTC()
	class := res.Classification
	s.Status = StatusClosed
	s.EndTime = &end
	s.ClosingBalance = &res.Actual
	s.ExpectedBalance = &res.Expected
	s.Difference = &res.Variance
	s.Classification = &class
	s.Notes = strings.TrimSpace(notes)
	return s, res, nil
}

// Handover ends the shift by passing custody to p.To once the recipient's PIN
// checks out. It does not open the recipient's shift.
func (s Shift) Handover(ctx context.Context, p HandoverParams, verifier PINVerifier, now time.Time) (Shift, error) {
	if !s.IsActive() {
		return s, ErrNotActive
	}
	to := strings.TrimSpace(p.To)
	if to == "" {
		return s, fmt.Errorf("%w: handover recipient required", ErrInvalidShift)
	}
	if strings.EqualFold(to, s.Operator) {
		return s, fmt.Errorf("%w: cannot hand over to the same operator", ErrInvalidShift)
	}
	if p.Amount < 0 {
		return s, fmt.Errorf("%w: handover amount %d", ErrInvalidShift, p.Amount)
	}
	if verifier == nil || strings.TrimSpace(p.PIN) == "" {
		return s, ErrVerificationFailed
	}
	// The verifier's reason is not propagated.
	if err := verifier.VerifyPIN(ctx, to, p.PIN); err != nil {
		return s, ErrVerificationFailed
	}

	end := now.UTC()
	amount := p.Amount
	s.Status = StatusHandedOver
	s.EndTime = &end
	s.HandoverTo = to
	s.HandoverAmount = &amount
	return s, nil
}
