package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bedagang/backend/internal/domain"
)

// cartHandler decodes a cart reducer request, applies it and writes the
// resulting cart with its totals.
func cartHandler[Req any](a *API, apply func(context.Context, Req) (domain.CartResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := apply(r.Context(), req)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (a *API) handleCartQuote(w http.ResponseWriter, r *http.Request) {
	cartHandler(a, a.service.QuoteCart)(w, r)
}

func (a *API) handleCartAddLine(w http.ResponseWriter, r *http.Request) {
	cartHandler(a, a.service.AddCartLine)(w, r)
}

func (a *API) handleCartQuantity(w http.ResponseWriter, r *http.Request) {
	cartHandler(a, a.service.ChangeCartQuantity)(w, r)
}

func (a *API) handleCartRemoveLine(w http.ResponseWriter, r *http.Request) {
	cartHandler(a, a.service.RemoveCartLine)(w, r)
}

func (a *API) handleCartMember(w http.ResponseWriter, r *http.Request) {
	cartHandler(a, a.service.SetCartMember)(w, r)
}

func (a *API) handleCartVoucher(w http.ResponseWriter, r *http.Request) {
	cartHandler(a, a.service.SetCartVoucher)(w, r)
}

func (a *API) handleListHeldCarts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	resp, err := a.service.ListHeldCarts(r.Context(), query.Get("store_id"), query.Get("terminal_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleHoldCart(w http.ResponseWriter, r *http.Request) {
	var req domain.HoldCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.HoldCart(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleResumeHeldCart(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ResumeHeldCart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDiscardHeldCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardHeldCart(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleCheckoutLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LookupCheckout(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
