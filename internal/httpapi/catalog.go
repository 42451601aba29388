package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"bedagang/backend/internal/domain"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCalculatePricing(w http.ResponseWriter, r *http.Request) {
	var req domain.PricingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	form, err := a.service.CalculatePricing(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pricing": form})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductPricingUpdate
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := a.service.UpdateProductPricing(r.Context(), chi.URLParam(r, "sku"), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	history, err := a.service.ListProductPriceHistory(r.Context(), chi.URLParam(r, "sku"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// handleAdjustStock needs the manager PIN on top of the admin role.
func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.pinLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many pin attempts"))
		return
	}
	if !a.auth.ValidateManagerPIN(req.ManagerPIN) {
		writeError(w, http.StatusForbidden, errors.New("manager pin rejected"))
		return
	}

	adj, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"adjustment": adj})
}

func (a *API) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := a.service.ListTiers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": tiers})
}

func (a *API) handleCreateTier(w http.ResponseWriter, r *http.Request) {
	var req domain.TierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tier, err := a.service.CreateTier(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tier": tier})
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	members, err := a.service.ListMembers(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (a *API) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req domain.MemberCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	member, err := a.service.CreateMember(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"member": member})
}

func (a *API) handleListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := a.service.ListVouchers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vouchers": vouchers})
}

func (a *API) handleGetVoucher(w http.ResponseWriter, r *http.Request) {
	voucher, err := a.service.GetVoucher(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voucher": voucher})
}

func (a *API) handleCreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req domain.VoucherCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	voucher, err := a.service.CreateVoucher(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"voucher": voucher})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parsePositiveLimit(query.Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), query.Get("store_id"), strings.TrimSpace(query.Get("date")), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	cashiers, err := a.auth.ListCashiers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cashier, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
}
