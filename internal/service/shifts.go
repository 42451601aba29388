package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/obs"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
	"bedagang/backend/internal/xid"
)

// transitionAttempts bounds how often a close or handover is recomputed after
// a concurrent sale moved the shift on.
const transitionAttempts = 3

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.ShiftResponse, error) {
	storeID := s.storeOrDefault(req.StoreID)
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		return domain.ShiftResponse{}, store.ErrInvalidTransaction
	}

	number, err := s.repo.NextShiftNumber(ctx, storeID, terminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	opened, err := shift.Open(shift.OpenParams{
		ID:           xid.New("shift"),
		StoreID:      storeID,
		TerminalID:   terminalID,
		Operator:     actorName(ctx),
		OpeningFloat: req.OpeningFloat,
		Number:       number,
	}, s.now())
	if err != nil {
		return domain.ShiftResponse{}, err
	}

	saved, err := s.repo.CreateShift(ctx, opened)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	s.logAudit(ctx, storeID, "shift_open", "shift", saved.ID,
		fmt.Sprintf("number=%d,operator=%s,float=%d", saved.Number, saved.Operator, saved.OpeningFloat))
	return domain.ShiftResponse{Shift: *saved}, nil
}

func (s *Service) GetActiveShift(ctx context.Context, storeID string, terminalID string) (domain.ShiftResponse, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return domain.ShiftResponse{}, store.ErrInvalidTransaction
	}

	active, err := s.repo.GetActiveShift(ctx, s.storeOrDefault(storeID), terminalID)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *active}, nil
}

func (s *Service) GetShift(ctx context.Context, id string) (domain.ShiftResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ShiftResponse{}, store.ErrInvalidTransaction
	}
	sh, err := s.repo.GetShift(ctx, id)
	if err != nil {
		return domain.ShiftResponse{}, err
	}
	return domain.ShiftResponse{Shift: *sh}, nil
}

func (s *Service) ListShifts(ctx context.Context, storeID string, terminalID string, limit int) (domain.ShiftListResponse, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	shifts, err := s.repo.ListShifts(ctx, s.storeOrDefault(storeID), strings.TrimSpace(terminalID), limit)
	if err != nil {
		return domain.ShiftListResponse{}, err
	}
	return domain.ShiftListResponse{Shifts: shifts}, nil
}

// ReconcileShift previews the cash count against the active shift without
// changing it.
func (s *Service) ReconcileShift(ctx context.Context, req domain.ShiftCountRequest) (domain.ShiftReconcileResponse, error) {
	active, err := s.activeShiftFor(ctx, req.StoreID, req.TerminalID)
	if err != nil {
		return domain.ShiftReconcileResponse{}, err
	}
	result, err := active.Reconcile(req.Count)
	if err != nil {
		return domain.ShiftReconcileResponse{}, err
	}
	return domain.ShiftReconcileResponse{ShiftID: active.ID, Reconciliation: result}, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCountRequest) (domain.ShiftCloseResponse, error) {
	if err := req.Count.Validate(); err != nil {
		return domain.ShiftCloseResponse{}, err
	}

	var result cashdrawer.Result
	saved, err := s.transition(ctx, req.StoreID, req.TerminalID, func(active shift.Shift) (shift.Shift, error) {
		closed, res, err := active.Close(req.Count, strings.TrimSpace(req.Notes), s.now())
		result = res
		return closed, err
	})
	if err != nil {
		return domain.ShiftCloseResponse{}, err
	}

	s.metrics.ShiftClosed(string(result.Classification), result.Variance)
	s.logAudit(ctx, saved.StoreID, "shift_close", "shift", saved.ID,
		fmt.Sprintf("expected=%d,actual=%d,variance=%d,classification=%s",
			result.Expected, result.Actual, result.Variance, result.Classification))
	if result.Classification != cashdrawer.Balanced {
		s.log.Info().
			Str("shift_id", saved.ID).
			Str("terminal_id", saved.TerminalID).
			Int64("variance", result.Variance).
			Str("classification", string(result.Classification)).
			Msg("shift closed with cash variance")
	}
	return domain.ShiftCloseResponse{Shift: *saved, Reconciliation: result}, nil
}

// HandoverShift ends the active shift in favour of another operator, who
// proves presence with their own PIN. The recipient opens their shift
// separately.
func (s *Service) HandoverShift(ctx context.Context, req domain.ShiftHandoverRequest) (domain.ShiftResponse, error) {
	verifier := pinVerifier{repo: s.repo, log: s.log}
	saved, err := s.transition(ctx, req.StoreID, req.TerminalID, func(active shift.Shift) (shift.Shift, error) {
		return active.Handover(ctx, shift.HandoverParams{
			To:     strings.ToLower(strings.TrimSpace(req.To)),
			Amount: req.Amount,
			PIN:    req.PIN,
		}, verifier, s.now())
	})
	if err != nil {
		if errors.Is(err, shift.ErrVerificationFailed) {
			s.metrics.Handover(obs.ResultRejected)
			s.logAudit(ctx, req.StoreID, "shift_handover_rejected", "shift", strings.TrimSpace(req.TerminalID), "to="+req.To)
		} else {
			s.metrics.Handover(obs.ResultError)
		}
		return domain.ShiftResponse{}, err
	}

	s.metrics.Handover(obs.ResultOK)
	s.logAudit(ctx, saved.StoreID, "shift_handover", "shift", saved.ID,
		fmt.Sprintf("from=%s,to=%s,amount=%d", saved.Operator, saved.HandoverTo, *saved.HandoverAmount))
	return domain.ShiftResponse{Shift: *saved}, nil
}

// transition applies end to the terminal's active shift and stores the result.
// When a sale lands between the read and the write, the shift is read again
// and end recomputed.
func (s *Service) transition(ctx context.Context, storeID string, terminalID string, end func(shift.Shift) (shift.Shift, error)) (*shift.Shift, error) {
	var lastErr error
	for range transitionAttempts {
		active, err := s.activeShiftFor(ctx, storeID, terminalID)
		if err != nil {
			return nil, err
		}
		if err := authorizeShiftOwner(ctx, active); err != nil {
			return nil, err
		}
		next, err := end(active)
		if err != nil {
			return nil, err
		}
		saved, err := s.repo.SaveShiftTransition(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) activeShiftFor(ctx context.Context, storeID string, terminalID string) (shift.Shift, error) {
	resp, err := s.GetActiveShift(ctx, storeID, terminalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return shift.Shift{}, ErrActiveShiftRequired
		}
		return shift.Shift{}, err
	}
	return resp.Shift, nil
}

// authorizeShiftOwner lets the shift's own operator or an admin end it.
func authorizeShiftOwner(ctx context.Context, sh shift.Shift) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: login required", ErrForbidden)
	}
	if actor.Role == domain.RoleAdmin || strings.EqualFold(actor.Username, sh.Operator) {
		return nil
	}
	return fmt.Errorf("%w: shift belongs to %s", ErrForbidden, sh.Operator)
}

// SetOperatorPIN stores the handover PIN of the calling operator.
func (s *Service) SetOperatorPIN(ctx context.Context, req domain.PINSetRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return fmt.Errorf("%w: login required", ErrForbidden)
	}
	pin := strings.TrimSpace(req.PIN)
	if len(pin) < 6 || len(pin) > 8 || strings.Trim(pin, "0123456789") != "" {
		return fmt.Errorf("%w: pin must be 6-8 digits", store.ErrInvalidTransaction)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.repo.UpdateUserPIN(ctx, actor.Username, string(hash)); err != nil {
		return err
	}
	s.logAudit(ctx, "", "user_pin_set", "user", actor.Username, "")
	return nil
}

type pinVerifier struct {
	repo store.Repository
	log  zerolog.Logger
}

// VerifyPIN logs why a PIN was refused and returns an error without that
// detail, so callers cannot tell unknown operators from wrong PINs.
func (v pinVerifier) VerifyPIN(ctx context.Context, operator, pin string) error {
	if err := v.check(ctx, operator, pin); err != nil {
		v.log.Warn().Err(err).Str("operator", operator).Msg("handover pin rejected")
		return errors.New("pin rejected")
	}
	return nil
}

func (v pinVerifier) check(ctx context.Context, operator, pin string) error {
	user, err := v.repo.GetUser(ctx, operator)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("unknown operator %s", operator)
		}
		return err
	}
	if !user.Active {
		return fmt.Errorf("operator %s is inactive", operator)
	}
	if user.PINHash == "" {
		return fmt.Errorf("operator %s has no pin", operator)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PINHash), []byte(pin)); err != nil {
		return errors.New("pin mismatch")
	}
	return nil
}
