package metrics_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/services/metrics"
)

type stubDeliverer struct {
	err error
}

func (stubDeliverer) Name() string { return "stub" }

func (d stubDeliverer) Deliver(context.Context, core.Notification) error { return d.err }

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveAllocation(metrics.AllocationDone, 20*time.Millisecond)
	m.ObserveAllocation(metrics.AllocationInfeasible, time.Millisecond)
	m.ObserveVerdicts("class_relative", 5, 1)
	m.ObserveTransition("flag", "resolved")
	m.ObserveSweep(3, 1, 0)

	ok := m.Instrument(stubDeliverer{})
	failing := m.Instrument(stubDeliverer{err: errors.New("smtp down")})
	assert.Equal(t, "stub", ok.Name())
	assert.NoError(t, ok.Deliver(context.Background(), core.Notification{Kind: core.NotifyFlagResolved}))
	assert.Error(t, failing.Deliver(context.Background(), core.Notification{Kind: core.NotifyFlagResolved}))

	expected := `
# HELP peereval_allocations_total Exam allocations by outcome
# TYPE peereval_allocations_total counter
peereval_allocations_total{outcome="allocated"} 1
peereval_allocations_total{outcome="infeasible"} 1
# HELP peereval_screening_verdicts_total Screening verdicts by policy and outcome
# TYPE peereval_screening_verdicts_total counter
peereval_screening_verdicts_total{flagged="false",policy="class_relative"} 4
peereval_screening_verdicts_total{flagged="true",policy="class_relative"} 1
# HELP peereval_dispute_transitions_total Flag and ticket transitions by target status
# TYPE peereval_dispute_transitions_total counter
peereval_dispute_transitions_total{entity="flag",status="resolved"} 1
# HELP peereval_swept_evaluations_total Pending evaluations handled by non-responder sweeps
# TYPE peereval_swept_evaluations_total counter
peereval_swept_evaluations_total{outcome="skipped"} 1
peereval_swept_evaluations_total{outcome="ticketed"} 3
peereval_swept_evaluations_total{outcome="unrouted"} 0
# HELP peereval_notification_deliveries_total Notification deliveries by channel, kind and outcome
# TYPE peereval_notification_deliveries_total counter
peereval_notification_deliveries_total{channel="stub",kind="flag_resolved",outcome="error"} 1
peereval_notification_deliveries_total{channel="stub",kind="flag_resolved",outcome="ok"} 1
`
	err := promtestutil.GatherAndCompare(reg, strings.NewReader(expected),
		"peereval_allocations_total", "peereval_screening_verdicts_total",
		"peereval_dispute_transitions_total", "peereval_swept_evaluations_total",
		"peereval_notification_deliveries_total")
	require.NoError(t, err)

	count, err := promtestutil.GatherAndCount(reg, "peereval_allocation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
