// Package sim drives whole simulation runs: setup (optionally with
// placement optimization), the round loop, termination, and observability.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oliwiapietka/LASensorNetwork/core"
	"github.com/oliwiapietka/LASensorNetwork/deploy"
	"github.com/oliwiapietka/LASensorNetwork/internal/config"
	"github.com/oliwiapietka/LASensorNetwork/internal/logging"
	"github.com/oliwiapietka/LASensorNetwork/internal/observability"
	"github.com/oliwiapietka/LASensorNetwork/model"
)

// EndReason explains why a run stopped.
type EndReason string

const (
	EndMaxRounds       EndReason = "max_rounds_reached"
	EndCoverageLost    EndReason = "coverage_lost"
	EndAllUncovered    EndReason = "all_pois_uncovered"
	EndQBelowThreshold EndReason = "q_coverage_below_threshold"
	EndNoActiveSensors EndReason = "no_active_sensors"
	EndCanceled        EndReason = "canceled"
)

// Result summarizes a completed run.
type Result struct {
	Rounds    []core.RoundStats
	EndReason EndReason

	// LifetimeRound is the round at which the network stopped being
	// functional, or 0 when it survived to the end of the run.
	LifetimeRound int

	Duration time.Duration
}

// Manager owns one simulation run end to end. It is not safe for
// concurrent use; run separate Managers for parallel experiments.
type Manager struct {
	cfg       config.Config
	log       logging.Logger
	collector *observability.SimCollector
	rng       *rand.Rand
	network   *core.Network

	// OnRound, when set, is invoked with each round's statistics after
	// the round completes. Useful for live UIs and streaming output.
	OnRound func(core.RoundStats)
}

// NewManager creates a manager for the given validated configuration.
// collector may be nil to disable metrics.
func NewManager(cfg config.Config, log logging.Logger, collector *observability.SimCollector) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		collector: collector,
		rng:       rand.New(rand.NewSource(cfg.Simulation.Seed)),
	}
}

// Network returns the deployed network, or nil before Setup.
func (m *Manager) Network() *core.Network { return m.network }

// sinkSlot returns the index within cfg.Sensors of the sink sensor. The
// config validator guarantees it exists.
func (m *Manager) sinkSlot() int {
	for i, s := range m.cfg.Sensors {
		if s.ID == m.cfg.Simulation.SinkID {
			return i
		}
	}
	return 0
}

// OptimizePlacement runs the GA placement search with the manager's seed
// and configuration, regardless of whether the optimizer is enabled for
// simulation runs.
func (m *Manager) OptimizePlacement(ctx context.Context) ([]model.Placement, error) {
	opt := deploy.NewOptimizer(
		deploy.Config{
			PopulationSize: m.cfg.Optimizer.PopulationSize,
			Generations:    m.cfg.Optimizer.Generations,
			MutationRate:   m.cfg.Optimizer.MutationRate,
			CrossoverRate:  m.cfg.Optimizer.CrossoverRate,
			TournamentSize: m.cfg.Optimizer.TournamentSize,
			ElitismCount:   m.cfg.Optimizer.ElitismCount,
		},
		deploy.Layout{
			Width:        m.cfg.Area.Width,
			Height:       m.cfg.Area.Height,
			CommRange:    m.cfg.SensorDefault.CommRange,
			SensingRange: m.cfg.SensorDefault.SensingRange,
			KCoverage:    m.cfg.Network.KCoverage,
			NumSensors:   len(m.cfg.Sensors),
			SinkIndex:    m.sinkSlot(),
		},
		m.cfg.POIRecords(m.rng),
		m.rng,
		m.log,
	)
	return opt.Run(ctx)
}

// Setup builds and deploys the network. When the optimizer is enabled the
// GA result overrides sensor coordinates slot by slot; sensors keep their
// configured IDs and parameter overrides either way.
func (m *Manager) Setup(ctx context.Context) error {
	m.log.Info(ctx, "starting simulation setup",
		logging.Int("sensors", len(m.cfg.Sensors)),
		logging.Int("pois", len(m.cfg.POIs)),
		logging.Any("seed", m.cfg.Simulation.Seed))

	var placements []model.Placement
	if m.cfg.Optimizer.Enabled {
		var err error
		placements, err = m.OptimizePlacement(ctx)
		if err != nil {
			return fmt.Errorf("sim: placement optimization: %w", err)
		}
	}

	sensorRecords := m.cfg.SensorRecords(m.rng)
	poiRecords := m.cfg.POIRecords(m.rng)
	for _, pl := range placements {
		if pl.Slot < len(sensorRecords) {
			sensorRecords[pl.Slot].X = pl.X
			sensorRecords[pl.Slot].Y = pl.Y
		}
	}

	m.network = core.NewNetwork(core.Params{
		Width:                m.cfg.Area.Width,
		Height:               m.cfg.Area.Height,
		SinkID:               m.cfg.Simulation.SinkID,
		PacketLossProb:       m.cfg.Communication.PacketLossProbability,
		SensorFailureProb:    m.cfg.Faults.SensorFailureRatePerRound,
		LearningRate:         m.cfg.SensorDefault.LearningRate,
		RewardMethod:         core.RewardMethod(m.cfg.Network.RewardMethod),
		KCoverageLevel:       m.cfg.Network.KCoverage,
		POIBroadcastInterval: m.cfg.Communication.POIBroadcastInterval,
		WorkingTimeSlice:     m.cfg.Network.WorkingTimeSlice,
		PerHopDelay:          m.cfg.Communication.PerHopDelay,
	}, m.rng, m.log)
	m.network.DeploySensors(sensorRecords)
	m.network.DeployPOIs(poiRecords)

	m.log.Info(ctx, "simulation setup finished")
	return nil
}

// Run executes the round loop until a termination condition fires. Setup
// runs automatically when it has not been called yet.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	ctx, log := logging.WithRunLogger(ctx, m.log)
	m.log = log

	if m.network == nil {
		if err := m.Setup(ctx); err != nil {
			return nil, err
		}
	}

	tracer := otel.Tracer("sim")
	ctx, runSpan := tracer.Start(ctx, "simulation.run",
		trace.WithAttributes(
			attribute.Int("sensors", len(m.cfg.Sensors)),
			attribute.Int("pois", len(m.cfg.POIs)),
			attribute.Int("max_rounds", m.cfg.Simulation.MaxRounds),
		))
	defer runSpan.End()

	result := &Result{EndReason: EndMaxRounds}
	start := time.Now()

	for r := 0; r < m.cfg.Simulation.MaxRounds; r++ {
		if err := ctx.Err(); err != nil {
			result.EndReason = EndCanceled
			break
		}

		roundStart := time.Now()
		roundCtx, roundSpan := tracer.Start(ctx, "simulation.round",
			trace.WithAttributes(attribute.Int("round", r+1)))
		stats := m.network.RunOneRound(roundCtx)
		roundSpan.End()

		result.Rounds = append(result.Rounds, stats)
		if m.collector != nil {
			m.collector.ObserveRound(stats, m.network.TotalPacketsGenerated, m.network.TotalPacketsDelivered)
			m.collector.RoundDuration.Observe(time.Since(roundStart).Seconds())
		}
		if m.OnRound != nil {
			m.OnRound(stats)
		}

		if reason, ended := m.checkTermination(stats); ended {
			result.EndReason = reason
			result.LifetimeRound = m.network.CurrentRound
			m.log.Info(ctx, "simulation ended",
				logging.String("reason", string(reason)),
				logging.Int("round", m.network.CurrentRound))
			break
		}
	}

	result.Duration = time.Since(start)

	if result.LifetimeRound == 0 {
		if round, over := m.network.NetworkLifetime(); over {
			result.LifetimeRound = round
		}
	}

	m.log.Info(ctx, "simulation finished",
		logging.Int("rounds", len(result.Rounds)),
		logging.String("end_reason", string(result.EndReason)),
		logging.Any("duration", result.Duration))
	return result, nil
}

// checkTermination applies the sticky coverage-lost flag plus the
// configured lifetime metric to decide whether the run should stop.
func (m *Manager) checkTermination(stats core.RoundStats) (EndReason, bool) {
	if m.network.CoverageLost() {
		return EndCoverageLost, true
	}
	hasPOIs := len(m.network.POIs()) > 0
	switch m.cfg.Simulation.LifetimeMetric {
	case config.LifetimeAllPOIsUncovered:
		if hasPOIs && stats.CoverageQ == 0 {
			return EndAllUncovered, true
		}
	case config.LifetimeQThreshold:
		if hasPOIs && stats.CoverageQ < m.cfg.Simulation.MinQCoverage {
			return EndQBelowThreshold, true
		}
	case config.LifetimeNoActiveSensors:
		if stats.ActiveSensors == 0 && len(m.network.Sensors()) > 1 {
			return EndNoActiveSensors, true
		}
	}
	return "", false
}
