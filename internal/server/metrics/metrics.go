// Package metrics exposes coordinator counters to Prometheus. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/ballotkeeper/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ballotkeeper"

type Metrics struct {
	ledgerCalls   *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
	tokensIssued  prometheus.Counter
	tokensWasted  prometheus.Counter
	tickets       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	drift         *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers the coordinator metrics with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		ledgerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_calls_total",
			Help:      "Ledger calls by method and result code",
		}, []string{"method", "code"}),
		ledgerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_call_duration_seconds",
			Help:      "Ledger call latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"method"}),
		tokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Voter tokens acknowledged by the ledger",
		}),
		tokensWasted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_wasted_total",
			Help:      "Issued tokens that were never bound to a ticket",
		}),
		tickets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_outcomes_total",
			Help:      "Per-voter registration outcomes",
		}, []string{"outcome"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Token notifications by result",
		}, []string{"result"}),
		drift: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_drift_total",
			Help:      "Drift detected between the metadata store and the ledger",
		}, []string{"kind"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) LedgerCall(method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ledgerCalls.WithLabelValues(method, codeOf(err)).Inc()
	m.ledgerLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) TokensIssued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensIssued.Add(float64(n))
}

func (m *Metrics) TokensWasted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensWasted.Add(float64(n))
}

func (m *Metrics) RegistrationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.tickets.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Drift(kind string) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(kind).Inc()
}

func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
}

func codeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var le *ledger.Error
	if errors.As(err, &le) {
		return string(le.Code)
	}
	return "error"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
