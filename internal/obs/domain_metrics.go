package obs

import "github.com/prometheus/client_golang/prometheus"

// DomainMetrics counts business outcomes. A nil *DomainMetrics records nothing.
type DomainMetrics struct {
	Checkouts     *prometheus.CounterVec
	CheckoutSum   *prometheus.CounterVec
	ShiftCloses   *prometheus.CounterVec
	ShiftVariance *prometheus.HistogramVec
	Handovers     *prometheus.CounterVec
}

func NewDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkout attempts by tender and result.",
		}, []string{"tender", "result"}),
		CheckoutSum: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_amount_total",
			Help:      "Committed sale totals in minor units by tender.",
		}, []string{"tender"}),
		ShiftCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_close_total",
			Help:      "Closed shifts by cash-count classification.",
		}, []string{"classification"}),
		ShiftVariance: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shift_close_variance_abs",
			Help:      "Absolute cash variance at shift close in minor units.",
			Buckets:   []float64{0, 1000, 5000, 10000, 50000, 100000, 500000},
		}, []string{"classification"}),
		Handovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shift_handover_total",
			Help:      "Shift handover attempts by result.",
		}, []string{"result"}),
	}
	m.Checkouts = register(reg, m.Checkouts)
	m.CheckoutSum = register(reg, m.CheckoutSum)
	m.ShiftCloses = register(reg, m.ShiftCloses)
	m.ShiftVariance = register(reg, m.ShiftVariance)
	m.Handovers = register(reg, m.Handovers)
	return m
}

func (m *DomainMetrics) Checkout(tender, result string, amount int64) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(tender, result).Inc()
	if result == ResultOK {
		m.CheckoutSum.WithLabelValues(tender).Add(float64(amount))
	}
}

func (m *DomainMetrics) ShiftClosed(classification string, variance int64) {
	if m == nil {
		return
	}
	if variance < 0 {
		variance = -variance
	}
	m.ShiftCloses.WithLabelValues(classification).Inc()
	m.ShiftVariance.WithLabelValues(classification).Observe(float64(variance))
}

func (m *DomainMetrics) Handover(result string) {
	if m == nil {
		return
	}
	m.Handovers.WithLabelValues(result).Inc()
}

const (
	ResultOK        = "ok"
	ResultRejected  = "rejected"
	ResultDuplicate = "duplicate"
	ResultError     = "error"
)
