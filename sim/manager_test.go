package sim

import (
	"context"
	"testing"

	"github.com/oliwiapietka/LASensorNetwork/core"
	"github.com/oliwiapietka/LASensorNetwork/internal/config"
)

func fptr(v float64) *float64 { return &v }

// lineConfig is a miniature deterministic scenario: the sink at the
// center, one coverer next to it, one POI in sensing range, no channel
// loss and no fault injection.
func lineConfig() config.Config {
	cfg := config.Default()
	cfg.Simulation.MaxRounds = 5
	cfg.Simulation.Seed = 11
	cfg.Sensors = []config.SensorSpec{
		{ID: 0, X: fptr(50), Y: fptr(50), SensingRange: fptr(0)},
		{ID: 1, X: fptr(40), Y: fptr(50)},
	}
	cfg.POIs = []config.POISpec{
		{ID: 0, X: fptr(38), Y: fptr(50), CriticalLevel: 1},
	}
	cfg.Communication.PacketLossProbability = 0
	cfg.Faults.SensorFailureRatePerRound = 0
	return cfg
}

func TestRunToMaxRounds(t *testing.T) {
	m := NewManager(lineConfig(), nil, nil)

	var observed []int
	m.OnRound = func(stats core.RoundStats) {
		observed = append(observed, stats.Round)
	}

	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndReason != EndMaxRounds {
		t.Fatalf("EndReason = %q, want %q", result.EndReason, EndMaxRounds)
	}
	if len(result.Rounds) != 5 {
		t.Fatalf("got %d rounds, want 5", len(result.Rounds))
	}
	if result.LifetimeRound != 0 {
		t.Fatalf("LifetimeRound = %d, want 0 for a network that outlived the run", result.LifetimeRound)
	}
	for i, round := range observed {
		if round != i+1 {
			t.Fatalf("OnRound sequence = %v, want 1..5", observed)
		}
	}
	if len(observed) != 5 {
		t.Fatalf("OnRound invoked %d times, want 5", len(observed))
	}

	for _, stats := range result.Rounds {
		if stats.CoverageQ != 1.0 {
			t.Fatalf("round %d CoverageQ = %g, want 1.0", stats.Round, stats.CoverageQ)
		}
	}
}

func TestRunStopsOnCoverageLost(t *testing.T) {
	cfg := lineConfig()
	// Nothing can sense a POI in the far corner.
	cfg.POIs = []config.POISpec{{ID: 0, X: fptr(5), Y: fptr(5), CriticalLevel: 1}}

	m := NewManager(cfg, nil, nil)
	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndReason != EndCoverageLost {
		t.Fatalf("EndReason = %q, want %q", result.EndReason, EndCoverageLost)
	}
	if len(result.Rounds) != 1 || result.LifetimeRound != 1 {
		t.Fatalf("rounds = %d, lifetime = %d, want 1 and 1", len(result.Rounds), result.LifetimeRound)
	}
}

func TestRunStopsBelowQThreshold(t *testing.T) {
	cfg := lineConfig()
	cfg.Simulation.LifetimeMetric = config.LifetimeQThreshold
	cfg.Simulation.MinQCoverage = 0.8
	// One coverable POI and one out of everyone's reach: a cover set still
	// forms, but Q stays at one half.
	cfg.POIs = []config.POISpec{
		{ID: 0, X: fptr(38), Y: fptr(50), CriticalLevel: 1},
		{ID: 1, X: fptr(5), Y: fptr(5), CriticalLevel: 1},
	}

	m := NewManager(cfg, nil, nil)
	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndReason != EndQBelowThreshold {
		t.Fatalf("EndReason = %q, want %q", result.EndReason, EndQBelowThreshold)
	}
	if len(result.Rounds) != 1 {
		t.Fatalf("got %d rounds, want termination after round 1", len(result.Rounds))
	}
	if q := result.Rounds[0].CoverageQ; q != 0.5 {
		t.Fatalf("CoverageQ = %g, want 0.5", q)
	}
}

func TestRunStopsWithoutActiveSensors(t *testing.T) {
	cfg := lineConfig()
	cfg.Simulation.LifetimeMetric = config.LifetimeNoActiveSensors
	// No POIs means no cover set, so every ordinary sensor sleeps.
	cfg.POIs = nil

	m := NewManager(cfg, nil, nil)
	result, err := m.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndReason != EndNoActiveSensors {
		t.Fatalf("EndReason = %q, want %q", result.EndReason, EndNoActiveSensors)
	}
	if len(result.Rounds) != 1 {
		t.Fatalf("got %d rounds, want 1", len(result.Rounds))
	}
}

func TestRunCanceledBeforeFirstRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(lineConfig(), nil, nil)
	result, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.EndReason != EndCanceled {
		t.Fatalf("EndReason = %q, want %q", result.EndReason, EndCanceled)
	}
	if len(result.Rounds) != 0 {
		t.Fatalf("got %d rounds on a canceled context, want 0", len(result.Rounds))
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	run := func() *Result {
		m := NewManager(lineConfig(), nil, nil)
		result, err := m.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	a, b := run(), run()
	if len(a.Rounds) != len(b.Rounds) || a.EndReason != b.EndReason {
		t.Fatalf("runs diverged: %d/%s vs %d/%s",
			len(a.Rounds), a.EndReason, len(b.Rounds), b.EndReason)
	}
	for i := range a.Rounds {
		ra, rb := a.Rounds[i], b.Rounds[i]
		if ra.CoverageQ != rb.CoverageQ || ra.ActiveSensors != rb.ActiveSensors || ra.PDR != rb.PDR {
			t.Fatalf("round %d diverged between identical seeds", i+1)
		}
		for id, e := range ra.SensorEnergies {
			if rb.SensorEnergies[id] != e {
				t.Fatalf("round %d sensor %d energy diverged", i+1, id)
			}
		}
	}
}

func TestSetupWithOptimizerKeepsSensorIdentities(t *testing.T) {
	cfg := lineConfig()
	cfg.Optimizer.Enabled = true
	cfg.Optimizer.PopulationSize = 6
	cfg.Optimizer.Generations = 3

	m := NewManager(cfg, nil, nil)
	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	n := m.Network()
	if n == nil {
		t.Fatalf("network nil after Setup")
	}
	if len(n.Sensors()) != len(cfg.Sensors) {
		t.Fatalf("deployed %d sensors, want %d", len(n.Sensors()), len(cfg.Sensors))
	}
	sink := n.Sensor(cfg.Simulation.SinkID)
	if sink == nil || !sink.IsSink {
		t.Fatalf("sink sensor missing or not flagged after optimized deployment")
	}
	for _, spec := range cfg.Sensors {
		s := n.Sensor(spec.ID)
		if s == nil {
			t.Fatalf("sensor %d missing after optimized deployment", spec.ID)
		}
		if s.Pos.X < 0 || s.Pos.X > cfg.Area.Width || s.Pos.Y < 0 || s.Pos.Y > cfg.Area.Height {
			t.Fatalf("sensor %d at (%g, %g) outside the area", spec.ID, s.Pos.X, s.Pos.Y)
		}
	}
}
