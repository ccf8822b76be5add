package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oliwiapietka/LASensorNetwork/core"
)

func TestObserveRoundUpdatesGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.ObserveRound(core.RoundStats{
		Round:          3,
		ActiveSensors:  5,
		SleepSensors:   2,
		DeadSensors:    1,
		AvgEnergyAlive: 42.5,
		CoverageQ:      0.75,
		PDR:            0.9,
		AvgLatency:     1.5,
	}, 10, 9)

	if got := testutil.ToFloat64(collector.Round); got != 3 {
		t.Fatalf("wsn_round = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.ActiveSensors); got != 5 {
		t.Fatalf("wsn_active_sensors = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.CoverageQ); got != 0.75 {
		t.Fatalf("wsn_coverage_q = %v, want 0.75", got)
	}
	if got := testutil.ToFloat64(collector.PacketsGenerated); got != 10 {
		t.Fatalf("wsn_packets_generated_total = %v, want 10", got)
	}
	if got := testutil.ToFloat64(collector.PacketsDelivered); got != 9 {
		t.Fatalf("wsn_packets_delivered_total = %v, want 9", got)
	}

	// Counters advance by deltas, not by absolute totals.
	collector.ObserveRound(core.RoundStats{Round: 4}, 12, 10)
	if got := testutil.ToFloat64(collector.PacketsGenerated); got != 12 {
		t.Fatalf("wsn_packets_generated_total after second round = %v, want 12", got)
	}
	if got := testutil.ToFloat64(collector.PacketsDelivered); got != 10 {
		t.Fatalf("wsn_packets_delivered_total after second round = %v, want 10", got)
	}
}

func TestNewSimCollectorReregisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	first.Round.Set(7)

	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector re-register: %v", err)
	}
	if got := testutil.ToFloat64(second.Round); got != 7 {
		t.Fatalf("re-registered wsn_round = %v, want 7 (existing collector reused)", got)
	}
}

func TestMetricsHandlerExposesSimulationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.ObserveRound(core.RoundStats{Round: 1, ActiveSensors: 2, CoverageQ: 1}, 2, 1)
	collector.RoundDuration.Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"wsn_round",
		"wsn_active_sensors",
		"wsn_coverage_q",
		"wsn_packets_generated_total",
		"wsn_packets_delivered_total",
		"wsn_round_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}

	if count := histogramSampleCount(t, reg, "wsn_round_duration_seconds"); count != 1 {
		t.Fatalf("wsn_round_duration_seconds sample_count = %d, want 1", count)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				return h.GetSampleCount()
			}
		}
	}
	return 0
}
