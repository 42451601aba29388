package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bedagang/backend/internal/cart"
	"bedagang/backend/internal/cashdrawer"
	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/markup"
	"bedagang/backend/internal/service"
	"bedagang/backend/internal/shift"
	"bedagang/backend/internal/store"
)

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Opener-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t)
	bad := domain.LoginRequest{Username: "admin", Password: "wrongpassword"}

	for i := range 5 {
		rec := srv.do(http.MethodPost, "/api/v1/auth/login", "", bad)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}
	rec := srv.do(http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "admin-pass"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAttemptLimitsIgnoreForwardingHeaders(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login("admin", "admin-pass")

	send := func(path, token string, body any, attempt int) int {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", srv.csrf)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", attempt))
		req.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", attempt))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// One login already spent on the admin token.
	bad := domain.LoginRequest{Username: "admin", Password: "wrongpassword"}
	for i := range 4 {
		require.Equal(t, http.StatusUnauthorized, send("/api/v1/auth/login", "", bad, i), "login %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("/api/v1/auth/login", "", bad, 99))

	adjust := domain.StockAdjustmentRequest{SKU: "SKU-GULA-01", Delta: 1, Reason: "stock opname", ManagerPIN: "000000"}
	for i := range 8 {
		require.Equal(t, http.StatusForbidden, send("/api/v1/inventory/adjustments", admin, adjust, i), "pin %d", i+1)
	}
	adjust.ManagerPIN = testManagerPIN
	assert.Equal(t, http.StatusTooManyRequests, send("/api/v1/inventory/adjustments", admin, adjust, 99))
}

func TestRequestBodyLimit(t *testing.T) {
	srv := newTestServer(t)
	body := fmt.Sprintf(`{"username":"admin","password":"%s"}`, strings.Repeat("a", 1<<20))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "exceeds")
}

func TestCSRFRequiredOnMutations(t *testing.T) {
	srv := newTestServer(t)
	token := srv.login("cashier", "cashier-pass")

	send := func(csrf string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/open",
			strings.NewReader(`{"terminal_id":"terminal-a1","opening_float":10000}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		if csrf != "" {
			req.Header.Set("X-CSRF-Token", csrf)
		}
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, send(""))
	assert.Equal(t, http.StatusForbidden, send("deadbeef"))

	rec := srv.do(http.MethodGet, "/api/v1/auth/csrf-token", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.Equal(t, http.StatusCreated, send(payload["csrf_token"]))
}

func TestCSRFTokenWindow(t *testing.T) {
	srv := newTestServer(t)
	current := time.Now().UTC().Truncate(time.Hour).Unix()

	assert.True(t, srv.api.validateCSRFToken(srv.api.csrfTokenForHour(current)))
	assert.True(t, srv.api.validateCSRFToken(srv.api.csrfTokenForHour(current-3600)))
	assert.False(t, srv.api.validateCSRFToken(srv.api.csrfTokenForHour(current-7200)))
	assert.False(t, srv.api.validateCSRFToken(""))

	other := newTestServer(t)
	assert.False(t, srv.api.validateCSRFToken(other.api.generateCSRFToken()), "tokens are bound to the server secret")
}

func TestManagerPINAttemptsAreLimited(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.login("admin", "admin-pass")
	req := domain.StockAdjustmentRequest{SKU: "SKU-GULA-01", Delta: 5, Reason: "stock opname", ManagerPIN: "000000"}

	for i := range 8 {
		rec := srv.do(http.MethodPost, "/api/v1/inventory/adjustments", admin, req)
		require.Equal(t, http.StatusForbidden, rec.Code, "attempt %d", i+1)
	}

	req.ManagerPIN = testManagerPIN
	rec := srv.do(http.MethodPost, "/api/v1/inventory/adjustments", admin, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-CSRF-Token")
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec
	}

	allowed := preflight("http://127.0.0.1:3000")
	assert.Equal(t, "http://127.0.0.1:3000", allowed.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, allowed.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	denied := preflight("http://evil.example")
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}

func TestAttemptLimiter(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "keys are limited independently")

	var disabled *attemptLimiter
	assert.True(t, disabled.Allow("anyone"))

	short := newAttemptLimiter(1, 10*time.Millisecond)
	assert.True(t, short.Allow("k"))
	assert.False(t, short.Allow("k"))
	assert.Eventually(t, func() bool { return short.Allow("k") }, time.Second, 5*time.Millisecond)
}

func TestClientKey(t *testing.T) {
	for _, tc := range []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"10.1.1.1", "10.1.1.1"},
		{"", "unknown"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		assert.Equal(t, tc.want, clientKey(req), tc.remote)
	}
}

func TestParsePositiveLimit(t *testing.T) {
	assert.Equal(t, 100, parsePositiveLimit("", 100, 500))
	assert.Equal(t, 25, parsePositiveLimit(" 25 ", 100, 500))
	assert.Equal(t, 100, parsePositiveLimit("-3", 100, 500))
	assert.Equal(t, 100, parsePositiveLimit("abc", 100, 500))
	assert.Equal(t, 500, parsePositiveLimit("9000", 100, 500))
	assert.Equal(t, 9000, parsePositiveLimit("9000", 100, 0))
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: admin role required", service.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: pin mismatch", shift.ErrVerificationFailed), http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{service.ErrDuplicateRequest, http.StatusConflict},
		{store.ErrShiftAlreadyOpen, http.StatusConflict},
		{cart.ErrInsufficientStock, http.StatusConflict},
		{markup.ErrUnknownTier, http.StatusBadRequest},
		{cashdrawer.ErrInvalidCount, http.StatusBadRequest},
		{service.ErrActiveShiftRequired, http.StatusUnprocessableEntity},
		{service.ErrInsufficientCash, http.StatusUnprocessableEntity},
		{cart.ErrQuantityOutOfRange, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "route not found")
}
