package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"bedagang/backend/internal/domain"
	"bedagang/backend/internal/obs"
	"bedagang/backend/internal/service"
)

type Config struct {
	AllowedOrigins []string
	Logger         zerolog.Logger
	Metrics        *obs.HTTPMetrics
	// Gatherer backs GET /metrics; nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
}

type API struct {
	service      *service.Service
	auth         *AuthManager
	cfg          Config
	log          zerolog.Logger
	loginLimiter *attemptLimiter
	pinLimiter   *attemptLimiter
	csrfSecret   []byte
}

func New(svc *service.Service, auth *AuthManager, cfg Config) (*API, error) {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		return nil, fmt.Errorf("csrf secret: %w", err)
	}
	return &API{
		service:      svc,
		auth:         auth,
		cfg:          cfg,
		log:          cfg.Logger,
		loginLimiter: newAttemptLimiter(5, time.Minute),
		pinLimiter:   newAttemptLimiter(8, time.Minute),
		csrfSecret:   csrfSecret,
	}, nil
}

// csrfTokenForHour is the hex HMAC of an hour bucket (unix seconds).
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts tokens of the current and the previous hour.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := slices.DeleteFunc(l.entries[key], func(ts time.Time) bool { return !ts.After(cutoff) })
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// clientKey identifies the peer for the attempt limiters. It reads only the
// connection address; forwarding headers are client-controlled.
func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.cfg.Metrics.Middleware)
	r.Use(obs.RequestLogger{Logger: a.log}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)
	r.Use(a.checkCSRF)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	if a.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/auth/login", a.handleLogin)
		v.Get("/auth/csrf-token", a.handleCSRFToken)

		v.Group(func(pos chi.Router) {
			pos.Use(a.requireAuth(domain.RoleCashier, domain.RoleAdmin))

			pos.Get("/products", a.handleListProducts)
			pos.Post("/pricing/calculate", a.handleCalculatePricing)
			pos.Get("/tiers", a.handleListTiers)
			pos.Get("/members", a.handleListMembers)
			pos.Post("/members", a.handleCreateMember)
			pos.Get("/vouchers", a.handleListVouchers)
			pos.Get("/vouchers/{code}", a.handleGetVoucher)

			pos.Route("/cart", func(c chi.Router) {
				c.Post("/quote", a.handleCartQuote)
				c.Post("/lines", a.handleCartAddLine)
				c.Post("/lines/quantity", a.handleCartQuantity)
				c.Post("/lines/remove", a.handleCartRemoveLine)
				c.Post("/member", a.handleCartMember)
				c.Post("/voucher", a.handleCartVoucher)
			})
			pos.Route("/carts/hold", func(h chi.Router) {
				h.Get("/", a.handleListHeldCarts)
				h.Post("/", a.handleHoldCart)
				h.Post("/{id}/resume", a.handleResumeHeldCart)
				h.Delete("/{id}", a.handleDiscardHeldCart)
			})

			pos.Post("/checkout", a.handleCheckout)
			pos.Get("/checkout/idempotency/{key}", a.handleCheckoutLookup)

			pos.Route("/shifts", func(s chi.Router) {
				s.Get("/", a.handleListShifts)
				s.Post("/open", a.handleShiftOpen)
				s.Get("/active", a.handleShiftActive)
				s.Post("/reconcile", a.handleShiftReconcile)
				s.Post("/close", a.handleShiftClose)
				s.Post("/handover", a.handleShiftHandover)
				s.Get("/{id}", a.handleGetShift)
			})
			pos.Post("/users/pin", a.handleSetPIN)
		})

		v.Group(func(admin chi.Router) {
			admin.Use(a.requireAuth(domain.RoleAdmin))

			admin.Post("/products", a.handleCreateProduct)
			admin.Patch("/products/{sku}/pricing", a.handleUpdatePricing)
			admin.Get("/products/{sku}/price-history", a.handlePriceHistory)
			admin.Post("/inventory/adjustments", a.handleAdjustStock)
			admin.Post("/tiers", a.handleCreateTier)
			admin.Post("/vouchers", a.handleCreateVoucher)
			admin.Get("/audit-logs", a.handleAuditLogs)
			admin.Get("/users/cashiers", a.handleListCashiers)
			admin.Post("/users/cashiers", a.handleCreateCashier)
		})
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")

		if r.Body != nil && isMutating(r.Method) {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// csrfExemptPaths are called before a client can hold a token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

// checkCSRF requires X-CSRF-Token on every state-changing request.
func (a *API) checkCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) || slices.Contains(csrfExemptPaths, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
			writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a token valid for the current hour bucket. Clients
// send it as X-CSRF-Token on every mutating request.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}
