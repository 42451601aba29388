package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/markup"
	"bedagang/backend/internal/service"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var statusByError = []struct {
	target error
	status int
}{
	{service.ErrForbidden, http.StatusForbidden},
	{shift.ErrVerificationFailed, http.StatusForbidden},
	{store.ErrNotFound, http.StatusNotFound},
	{service.ErrDuplicateRequest, http.StatusConflict},
	{store.ErrAlreadyExists, http.StatusConflict},
	{store.ErrShiftAlreadyOpen, http.StatusConflict},
	{store.ErrConflict, http.StatusConflict},
	{store.ErrInsufficientStock, http.StatusConflict},
	{cart.ErrInsufficientStock, http.StatusConflict},
	{store.ErrInvalidTransaction, http.StatusBadRequest},
	{cart.ErrInvalidCart, http.StatusBadRequest},
	{cashdrawer.ErrInvalidCount, http.StatusBadRequest},
	{markup.ErrInvalidInput, http.StatusBadRequest},
	{markup.ErrInvalidProductType, http.StatusBadRequest},
	{markup.ErrUnknownTier, http.StatusBadRequest},
	{shift.ErrInvalidShift, http.StatusBadRequest},
	{service.ErrActiveShiftRequired, http.StatusUnprocessableEntity},
	{service.ErrInsufficientCash, http.StatusUnprocessableEntity},
	{service.ErrVoucherUnavailable, http.StatusUnprocessableEntity},
	{shift.ErrNotActive, http.StatusUnprocessableEntity},
	{cart.ErrQuantityOutOfRange, http.StatusUnprocessableEntity},
	{cart.ErrLineNotFound, http.StatusUnprocessableEntity},
}

// statusFor maps domain errors to HTTP statuses. Anything unknown is a 500.
func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status, logging server-side failures.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, err)
}

// decodeJSON decodes a single JSON object into dest and runs its validate tags.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return fmt.Errorf("request body exceeds %d bytes", maxBytes.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msg := fmt.Sprintf("%s failed %s", f.Namespace(), f.Tag())
		if f.Param() != "" {
			msg += "=" + f.Param()
		}
		msgs = append(msgs, msg)
	}
	return errors.New("validation: " + strings.Join(msgs, "; "))
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 5xx responses.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
