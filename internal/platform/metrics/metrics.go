package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the verification engine.
type Metrics struct {
	VerificationOutcomes *prometheus.CounterVec
	FactorFailures       *prometheus.CounterVec
	VerificationLatency  prometheus.Histogram
	Lockouts             *prometheus.CounterVec
	AnomaliesLogged      *prometheus.CounterVec
	OTPIssued            prometheus.Counter
	OTPResendRejected    prometheus.Counter
	EnrollmentsTotal     *prometheus.CounterVec
	IndexSize            prometheus.Gauge
	NotifyDelivered      prometheus.Counter
	NotifyDropped        *prometheus.CounterVec
	NotifyCircuitOpen    prometheus.Gauge
	HTTPDuration         *prometheus.HistogramVec
	RateLimited          prometheus.Counter
}

// New registers all collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VerificationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_verification_outcomes_total",
			Help: "Verification attempts by outcome",
		}, []string{"outcome"}),
		FactorFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_verification_factor_failures_total",
			Help: "Failed factor checks by factor name",
		}, []string{"factor"}),
		VerificationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollcall_verification_duration_seconds",
			Help:    "End-to-end verification latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Lockouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_lockouts_total",
			Help: "Identities locked out of a session by reason",
		}, []string{"reason"}),
		AnomaliesLogged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_anomalies_logged_total",
			Help: "Anomaly records appended by type",
		}, []string{"type"}),
		OTPIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_otp_issued_total",
			Help: "One-time codes stored, including resends",
		}),
		OTPResendRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_otp_resend_rejected_total",
			Help: "Resend requests rejected because the budget was exhausted",
		}),
		EnrollmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_enrollments_total",
			Help: "Enrollment attempts by result",
		}, []string{"result"}),
		IndexSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollcall_vector_index_entries",
			Help: "Entries in the embedding index",
		}),
		NotifyDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_notify_delivered_total",
			Help: "Notification events handed to the sink",
		}),
		NotifyDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rollcall_notify_dropped_total",
			Help: "Notification events dropped by reason",
		}, []string{"reason"}),
		NotifyCircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "rollcall_notify_circuit_open",
			Help: "Notification sink circuit state (0=closed, 1=open)",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rollcall_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "rollcall_rate_limited_total",
			Help: "Requests rejected by the per-client rate limit",
		}),
	}
}

// The helpers below are nil-safe so services can run without metrics.

func (m *Metrics) ObserveVerification(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.VerificationOutcomes.WithLabelValues(outcome).Inc()
	m.VerificationLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementFactorFailure(factor string) {
	if m == nil {
		return
	}
	m.FactorFailures.WithLabelValues(factor).Inc()
}

func (m *Metrics) IncrementLockout(reason string) {
	if m == nil {
		return
	}
	m.Lockouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementAnomaly(anomalyType string) {
	if m == nil {
		return
	}
	m.AnomaliesLogged.WithLabelValues(anomalyType).Inc()
}

func (m *Metrics) IncrementOTPIssued(n int) {
	if m == nil {
		return
	}
	m.OTPIssued.Add(float64(n))
}

func (m *Metrics) IncrementResendRejected() {
	if m == nil {
		return
	}
	m.OTPResendRejected.Inc()
}

func (m *Metrics) IncrementEnrollment(result string) {
	if m == nil {
		return
	}
	m.EnrollmentsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetIndexSize(n int) {
	if m == nil {
		return
	}
	m.IndexSize.Set(float64(n))
}

func (m *Metrics) IncrementNotifyDelivered(n int) {
	if m == nil {
		return
	}
	m.NotifyDelivered.Add(float64(n))
}

func (m *Metrics) IncrementNotifyDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NotifyDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) SetNotifyCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.NotifyCircuitOpen.Set(1)
	} else {
		m.NotifyCircuitOpen.Set(0)
	}
}

func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
