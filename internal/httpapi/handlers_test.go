package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/obs"
	"bedagang/backend/internal/service"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store/memory"
)

const (
	testManagerPIN = "482913"
	testTerminal   = "terminal-a1"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	api     *API
	csrf    string
}

// newTestServer wires the real service, auth manager and router over a seeded
// in-memory store.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry := prometheus.NewRegistry()
	repo := memory.NewSeeded(memory.Seed{AdminPassword: "admin-pass", CashierPassword: "cashier-pass"})
	svc := service.New(repo, service.Options{
		Metrics:        obs.NewDomainMetrics("bedagang", registry),
		DefaultStoreID: memory.DefaultStoreID,
	})
	auth, err := NewAuthManager("test-secret-key-with-32-characters!", time.Hour, testManagerPIN, repo, zerolog.Nop())
	require.NoError(t, err)
	api, err := New(svc, auth, Config{
		AllowedOrigins: []string{"http://127.0.0.1:3000"},
		Logger:         zerolog.Nop(),
		Metrics:        obs.NewHTTPMetrics("bedagang", registry),
		Gatherer:       registry,
	})
	require.NoError(t, err)

	return &testServer{t: t, handler: api.Handler(), api: api, csrf: api.generateCSRFToken()}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if isMutating(method) {
		req.Header.Set("X-CSRF-Token", s.csrf)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())

	var payload domain.LoginResponse
	require.NoError(s.t, json.NewDecoder(rec.Body).Decode(&payload))
	require.NotEmpty(s.t, payload.AccessToken)
	return payload.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestHandleLogin(t *testing.T) {
	srv := newTestServer(t)
	assert.NotEmpty(t, srv.login("admin", "admin-pass"))

	rec := srv.do(http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "password is required")
}

func TestProductRoutesEnforceRoles(t *testing.T) {
	srv := newTestServer(t)
	cashier := srv.login("cashier", "cashier-pass")
	admin := srv.login("admin", "admin-pass")

	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/v1/products", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(http.MethodGet, "/api/v1/products", "not-a-token", nil).Code)

	rec := srv.do(http.MethodGet, "/api/v1/products", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decodeBody[map[string][]domain.Product](t, rec)["products"]
	assert.Len(t, products, 10)

	create := domain.ProductCreateRequest{
		SKU: "SKU-BARU-01", Name: "Minyak Goreng 1L", Category: "grocery", InitialStock: 24,
		PricingRequest: domain.PricingRequest{CostPrice: 16000, MarkupPercentage: 12.5},
	}
	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodPost, "/api/v1/products", cashier, create).Code)

	rec = srv.do(http.MethodPost, "/api/v1/products", admin, create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[map[string]domain.Product](t, rec)["product"]
	assert.Equal(t, int64(18000), created.SellingPrice)
	assert.Equal(t, 24, created.Stock)

	assert.Equal(t, http.StatusConflict, srv.do(http.MethodPost, "/api/v1/products", admin, create).Code)
}

func TestPricingRoutes(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login("admin", "admin-pass")

	rec := srv.do(http.MethodPost, "/api/v1/pricing/calculate", admin, domain.PricingRequest{CostPrice: 10000, MarkupPercentage: 25})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]map[string]any](t, rec)
	assert.EqualValues(t, 12500, body["pricing"]["selling_price"])

	rec = srv.do(http.MethodPost, "/api/v1/pricing/calculate", admin, domain.PricingRequest{
		CostPrice: 10000, TierDiscounts: []domain.TierDiscount{{TierID: "diamond", DiscountPercentage: 5}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	price := int64(3000)
	rec = srv.do(http.MethodPatch, "/api/v1/products/sku-kopi-01/pricing", admin, domain.ProductPricingUpdate{SellingPrice: &price})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodGet, "/api/v1/products/SKU-KOPI-01/price-history?limit=5", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[map[string][]domain.ProductPriceHistory](t, rec)["history"]
	require.Len(t, history, 1)
	assert.Equal(t, int64(2600), history[0].OldPrice)

	rec = srv.do(http.MethodPatch, "/api/v1/products/SKU-NOPE/pricing", admin, domain.ProductPricingUpdate{SellingPrice: &price})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutAndShiftFlow(t *testing.T) {
	srv := newTestServer(t)
	cashier := srv.login("cashier", "cashier-pass")

	checkout := domain.CheckoutRequest{
		TerminalID:     testTerminal,
		IdempotencyKey: "idem-http-1",
		Tender:         shift.TenderCash,
		CashReceived:   50000,
		Lines:          []domain.CheckoutLine{{SKU: "SKU-SUSU-01", Qty: 3}},
		MemberID:       "mbr-0001",
		VoucherCode:    "DISKON10",
	}
	rec := srv.do(http.MethodPost, "/api/v1/checkout", cashier, checkout)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "no active shift yet")

	rec = srv.do(http.MethodPost, "/api/v1/shifts/open", cashier, domain.ShiftOpenRequest{TerminalID: testTerminal, OpeningFloat: 100000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decodeBody[domain.ShiftResponse](t, rec).Shift
	assert.Equal(t, "cashier", opened.Operator)

	rec = srv.do(http.MethodPost, "/api/v1/shifts/open", cashier, domain.ShiftOpenRequest{TerminalID: testTerminal, OpeningFloat: 100000})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/checkout", cashier, checkout)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[domain.CheckoutResponse](t, rec)
	assert.Equal(t, int64(45240), first.Total)
	assert.Equal(t, int64(4760), first.Change)

	rec = srv.do(http.MethodPost, "/api/v1/checkout", cashier, checkout)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[domain.CheckoutResponse](t, rec)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	rec = srv.do(http.MethodGet, "/api/v1/checkout/idempotency/idem-http-1", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lookup := decodeBody[domain.CheckoutLookupResponse](t, rec)
	require.True(t, lookup.Found)
	assert.Equal(t, first.TransactionID, lookup.Checkout.TransactionID)

	short := checkout
	short.IdempotencyKey = "idem-http-2"
	short.CashReceived = 1000
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(http.MethodPost, "/api/v1/checkout", cashier, short).Code)

	count := domain.ShiftCountRequest{TerminalID: testTerminal, Count: cashdrawer.CountFor(145240)}
	rec = srv.do(http.MethodPost, "/api/v1/shifts/reconcile", cashier, count)
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeBody[domain.ShiftReconcileResponse](t, rec)
	assert.Equal(t, int64(145240), preview.Reconciliation.Expected)
	assert.Equal(t, cashdrawer.Balanced, preview.Reconciliation.Classification)

	rec = srv.do(http.MethodPost, "/api/v1/shifts/close", cashier, count)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	closed := decodeBody[domain.ShiftCloseResponse](t, rec)
	assert.Equal(t, shift.StatusClosed, closed.Shift.Status)

	rec = srv.do(http.MethodGet, "/api/v1/shifts/"+opened.ID, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, shift.StatusClosed, decodeBody[domain.ShiftResponse](t, rec).Shift.Status)

	rec = srv.do(http.MethodGet, "/api/v1/shifts/active?terminal_id="+testTerminal, cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(http.MethodGet, "/api/v1/shifts?terminal_id="+testTerminal, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[domain.ShiftListResponse](t, rec).Shifts, 1)
}

func TestCheckoutValidation(t *testing.T) {
	srv := newTestServer(t)
	cashier := srv.login("cashier", "cashier-pass")

	rec := srv.do(http.MethodPost, "/api/v1/checkout", cashier, domain.CheckoutRequest{
		TerminalID: testTerminal, Tender: shift.TenderCash,
		Lines: []domain.CheckoutLine{{SKU: "SKU-MIE-01", Qty: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "IdempotencyKey")

	rec = srv.do(http.MethodPost, "/api/v1/checkout", cashier, map[string]any{
		"terminal_id": testTerminal, "idempotency_key": "k", "tender": "cash",
		"lines": []map[string]any{{"sku": "SKU-MIE-01", "qty": 1}}, "tax": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	rec = srv.do(http.MethodPost, "/api/v1/checkout", cashier, map[string]any{
		"terminal_id": testTerminal, "idempotency_key": "k", "tender": "bitcoin",
		"lines": []map[string]any{{"sku": "SKU-MIE-01", "qty": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartRoutes(t *testing.T) {
	srv := newTestServer(t)
	cashier := srv.login("cashier", "cashier-pass")

	rec := srv.do(http.MethodPost, "/api/v1/cart/lines", cashier, domain.CartAddLineRequest{SKU: "SKU-TEH-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[domain.CartResponse](t, rec)
	require.Len(t, resp.Cart.Lines, 1)

	rec = srv.do(http.MethodPost, "/api/v1/cart/lines/quantity", cashier, domain.CartQuantityRequest{
		Cart: resp.Cart, LineID: resp.Cart.Lines[0].ID, Delta: 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[domain.CartResponse](t, rec)
	assert.Equal(t, int64(58500), resp.Totals.Subtotal)

	code := "HEMAT5K"
	rec = srv.do(http.MethodPost, "/api/v1/cart/voucher", cashier, domain.CartVoucherRequest{Cart: resp.Cart, Code: &code})
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[domain.CartResponse](t, rec)
	assert.Equal(t, int64(53500), resp.Totals.Total)

	rec = srv.do(http.MethodPost, "/api/v1/cart/lines/quantity", cashier, domain.CartQuantityRequest{
		Cart: resp.Cart, LineID: resp.Cart.Lines[0].ID, Delta: 500,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(http.MethodPost, "/api/v1/carts/hold", cashier, domain.HoldCartRequest{TerminalID: testTerminal, Cart: resp.Cart})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	held := decodeBody[domain.HoldCartResponse](t, rec).HeldCart

	rec = srv.do(http.MethodGet, "/api/v1/carts/hold?terminal_id="+testTerminal, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[domain.HeldCartListResponse](t, rec).Items, 1)

	rec = srv.do(http.MethodPost, "/api/v1/carts/hold/"+held.ID+"/resume", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(53500), decodeBody[domain.HoldCartResponse](t, rec).Totals.Total)

	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodDelete, "/api/v1/carts/hold/"+held.ID, cashier, nil).Code)
}

func TestStockAdjustmentNeedsManagerPIN(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login("admin", "admin-pass")
	req := domain.StockAdjustmentRequest{SKU: "SKU-AIR-01", Delta: -4, Reason: "kemasan rusak", ManagerPIN: "000000"}

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodPost, "/api/v1/inventory/adjustments", admin, req).Code)

	req.ManagerPIN = testManagerPIN
	rec := srv.do(http.MethodPost, "/api/v1/inventory/adjustments", admin, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	adj := decodeBody[map[string]domain.StockAdjustment](t, rec)["adjustment"]
	assert.Equal(t, 116, adj.ResultingQty)

	req.Delta = -1000
	assert.Equal(t, http.StatusConflict, srv.do(http.MethodPost, "/api/v1/inventory/adjustments", admin, req).Code)
}

func TestHandoverRoute(t *testing.T) {
	srv := newTestServer(t)
	cashier := srv.login("cashier", "cashier-pass")
	admin := srv.login("admin", "admin-pass")

	require.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/v1/users/pin", admin, domain.PINSetRequest{PIN: "246810"}).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodPost, "/api/v1/users/pin", admin, domain.PINSetRequest{PIN: "12ab"}).Code)

	rec := srv.do(http.MethodPost, "/api/v1/shifts/open", cashier, domain.ShiftOpenRequest{TerminalID: testTerminal, OpeningFloat: 50000})
	require.Equal(t, http.StatusCreated, rec.Code)

	handover := domain.ShiftHandoverRequest{TerminalID: testTerminal, To: "admin", Amount: 50000, PIN: "111111"}
	wrongPIN := srv.do(http.MethodPost, "/api/v1/shifts/handover", cashier, handover)
	assert.Equal(t, http.StatusForbidden, wrongPIN.Code)

	ghost := handover
	ghost.To = "ghost"
	unknown := srv.do(http.MethodPost, "/api/v1/shifts/handover", cashier, ghost)
	assert.Equal(t, http.StatusForbidden, unknown.Code)
	assert.Equal(t, wrongPIN.Body.String(), unknown.Body.String(), "unknown operators look like wrong pins")
	assert.NotContains(t, unknown.Body.String(), "ghost")

	handover.PIN = "246810"
	rec = srv.do(http.MethodPost, "/api/v1/shifts/handover", cashier, handover)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, shift.StatusHandedOver, decodeBody[domain.ShiftResponse](t, rec).Shift.Status)
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t)
	cashier := srv.login("cashier", "cashier-pass")
	admin := srv.login("admin", "admin-pass")

	rec := srv.do(http.MethodPost, "/api/v1/users/cashiers", admin, domain.CashierCreateRequest{Username: "sari", Password: "rahasia123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, srv.login("sari", "rahasia123"))

	rec = srv.do(http.MethodGet, "/api/v1/users/cashiers", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[map[string][]domain.CashierUser](t, rec)["cashiers"], 2)

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodGet, "/api/v1/audit-logs", cashier, nil).Code)

	rec = srv.do(http.MethodPost, "/api/v1/tiers", admin, domain.TierCreateRequest{ID: "diamond", Name: "Diamond", DiscountPercentage: 20})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = srv.do(http.MethodGet, "/api/v1/tiers", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"diamond"`)

	rec = srv.do(http.MethodGet, "/api/v1/audit-logs", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tier_create")

	rec = srv.do(http.MethodGet, "/api/v1/vouchers/diskon10", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"DISKON10"`)
	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/api/v1/vouchers/NOPE", cashier, nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.do(http.MethodGet, "/healthz", "", nil)
	srv.do(http.MethodGet, "/api/v1/shifts/abc", srv.login("cashier", "cashier-pass"), nil)

	ok := testutil.ToFloat64(srv.api.cfg.Metrics.ReqTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))
	assert.Equal(t, 1.0, ok)
	missing := testutil.ToFloat64(srv.api.cfg.Metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/shifts/{id}", "404"))
	assert.Equal(t, 1.0, missing)

	rec := srv.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "bedagang_http_requests_total")
	assert.Contains(t, body, "bedagang_http_in_flight_requests")
}
