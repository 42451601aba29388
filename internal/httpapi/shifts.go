package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bedagang/backend/internal/domain"
)

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.GetActiveShift(r.Context(), query.Get("store_id"), query.Get("terminal_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListShifts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	resp, err := a.service.ListShifts(r.Context(), query.Get("store_id"), query.Get("terminal_id"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetShift(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetShift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftReconcile(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ReconcileShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftHandover(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftHandoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many pin attempts"))
		return
	}

	resp, err := a.service.HandoverShift(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	var req domain.PINSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many pin attempts"))
		return
	}

	if err := a.service.SetOperatorPIN(r.Context(), req); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
