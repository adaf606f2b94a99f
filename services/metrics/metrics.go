// Package metrics exposes the prometheus collectors of the engine.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/services/notifier"
)

const namespace = "peereval"

// Allocation outcomes
const (
	AllocationDone       = "allocated"
	AllocationInfeasible = "infeasible"
	AllocationFailed     = "failed"
)

type Metrics struct {
	allocations        *prometheus.CounterVec
	allocationDuration prometheus.Histogram
	verdicts           *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	sweptEvaluations   *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Exam allocations by outcome",
		}, []string{"outcome"}),
		allocationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_duration_seconds",
			Help:      "Time to allocate the peers of an exam",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		}),
		verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screening_verdicts_total",
			Help:      "Screening verdicts by policy and outcome",
		}, []string{"policy", "flagged"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispute_transitions_total",
			Help:      "Flag and ticket transitions by target status",
		}, []string{"entity", "status"}),
		sweptEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_evaluations_total",
			Help:      "Pending evaluations handled by non-responder sweeps",
		}, []string{"outcome"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_deliveries_total",
			Help:      "Notification deliveries by channel, kind and outcome",
		}, []string{"channel", "kind", "outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ObserveAllocation(outcome string, took time.Duration) {
	m.allocations.WithLabelValues(outcome).Inc()
	if outcome == AllocationDone {
		m.allocationDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) ObserveVerdicts(policy string, verdicts, flagged int) {
	m.verdicts.WithLabelValues(policy, "true").Add(float64(flagged))
	m.verdicts.WithLabelValues(policy, "false").Add(float64(verdicts - flagged))
}

// ObserveTransition counts a flag or ticket reaching status.
func (m *Metrics) ObserveTransition(entity, status string) {
	m.transitions.WithLabelValues(entity, status).Inc()
}

func (m *Metrics) ObserveSweep(created, skipped, unrouted int) {
	m.sweptEvaluations.WithLabelValues("ticketed").Add(float64(created))
	m.sweptEvaluations.WithLabelValues("skipped").Add(float64(skipped))
	m.sweptEvaluations.WithLabelValues("unrouted").Add(float64(unrouted))
}

func (m *Metrics) ObserveRequest(method, route string, code int, took time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// Instrument counts the deliveries of d.
func (m *Metrics) Instrument(d notifier.Deliverer) notifier.Deliverer {
	return instrumented{Deliverer: d, deliveries: m.deliveries}
}

type instrumented struct {
	notifier.Deliverer
	deliveries *prometheus.CounterVec
}

func (d instrumented) Deliver(ctx context.Context, n core.Notification) error {
	err := d.Deliverer.Deliver(ctx, n)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.deliveries.WithLabelValues(d.Name(), n.Kind, outcome).Inc()
	return err
}
