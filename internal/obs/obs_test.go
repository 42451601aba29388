package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("bedagang", registry)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/shifts/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/shifts/abc", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/shifts/{id}", "204"))
	assert.Equal(t, 1.0, total)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
	assert.Positive(t, testutil.CollectAndCount(metrics.ReqDur))
}

func TestMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewDomainMetrics("bedagang", registry)
	second := NewDomainMetrics("bedagang", registry)

	first.ShiftClosed("SHORT", -50000)
	second.ShiftClosed("SHORT", -1000)
	assert.Equal(t, 2.0, testutil.ToFloat64(second.ShiftCloses.WithLabelValues("SHORT")))
}

func TestDomainMetricsCheckout(t *testing.T) {
	m := NewDomainMetrics("bedagang", prometheus.NewRegistry())
	m.Checkout("cash", ResultOK, 48000)
	m.Checkout("cash", ResultRejected, 10000)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Checkouts.WithLabelValues("cash", ResultOK)))
	assert.Equal(t, 48000.0, testutil.ToFloat64(m.CheckoutSum.WithLabelValues("cash")))

	var nilMetrics *DomainMetrics
	assert.NotPanics(t, func() {
		nilMetrics.Checkout("cash", ResultOK, 1)
		nilMetrics.Handover(ResultOK)
	})
}

func TestRequestLoggerWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "debug")

	r := chi.NewRouter()
	r.Use(RequestLogger{Logger: logger}.Middleware)
	r.Post("/checkout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/checkout", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http_request", line["message"])
	assert.Equal(t, "/checkout", line["route"])
	assert.EqualValues(t, 201, line["status"])
	assert.EqualValues(t, 2, line["bytes"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "loud")
	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
