package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oliwiapietka/LASensorNetwork/core"
)

// SimCollector bundles Prometheus metrics for a simulation run and updates
// them from per-round statistics.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Round         prometheus.Gauge
	ActiveSensors prometheus.Gauge
	SleepSensors  prometheus.Gauge
	DeadSensors   prometheus.Gauge
	AvgEnergy     prometheus.Gauge
	CoverageQ     prometheus.Gauge
	PDR           prometheus.Gauge
	AvgLatency    prometheus.Gauge

	PacketsGenerated prometheus.Counter
	PacketsDelivered prometheus.Counter

	RoundDuration prometheus.Histogram

	lastGenerated int
	lastDelivered int
}

// NewSimCollector registers simulation Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when
// nil. Re-registering against the same registry reuses the existing
// collectors.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SimCollector{gatherer: gatherer}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.Round, "wsn_round", "Current simulation round."},
		{&c.ActiveSensors, "wsn_active_sensors", "Non-sink sensors in the ACTIVE state."},
		{&c.SleepSensors, "wsn_sleep_sensors", "Non-sink sensors in the SLEEP state."},
		{&c.DeadSensors, "wsn_dead_sensors", "Sensors dead or permanently failed."},
		{&c.AvgEnergy, "wsn_avg_energy_alive", "Average remaining energy of alive non-sink sensors."},
		{&c.CoverageQ, "wsn_coverage_q", "Fraction of POIs meeting the required k-coverage."},
		{&c.PDR, "wsn_packet_delivery_ratio", "Cumulative packets delivered to sink over packets generated."},
		{&c.AvgLatency, "wsn_avg_latency_rounds", "Average delivery latency of sink-bound packets, in rounds."},
	}
	for _, g := range gauges {
		gauge, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name)
		if err != nil {
			return nil, err
		}
		*g.dst = gauge
	}

	generated, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsn_packets_generated_total",
		Help: "Total report packets generated by sensors.",
	}), "wsn_packets_generated_total")
	if err != nil {
		return nil, err
	}
	c.PacketsGenerated = generated

	delivered, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wsn_packets_delivered_total",
		Help: "Total report packets delivered to the sink.",
	}), "wsn_packets_delivered_total")
	if err != nil {
		return nil, err
	}
	c.PacketsDelivered = delivered

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "wsn_round_duration_seconds",
		Help:    "Wall-clock time spent computing one simulation round.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "wsn_round_duration_seconds")
	if err != nil {
		return nil, err
	}
	c.RoundDuration = duration

	return c, nil
}

// ObserveRound pushes one round's statistics into the gauges and advances
// the cumulative packet counters by the deltas since the previous call.
func (c *SimCollector) ObserveRound(stats core.RoundStats, generated, delivered int) {
	if c == nil {
		return
	}
	c.Round.Set(float64(stats.Round))
	c.ActiveSensors.Set(float64(stats.ActiveSensors))
	c.SleepSensors.Set(float64(stats.SleepSensors))
	c.DeadSensors.Set(float64(stats.DeadSensors))
	c.AvgEnergy.Set(stats.AvgEnergyAlive)
	c.CoverageQ.Set(stats.CoverageQ)
	c.PDR.Set(stats.PDR)
	c.AvgLatency.Set(stats.AvgLatency)

	if d := generated - c.lastGenerated; d > 0 {
		c.PacketsGenerated.Add(float64(d))
	}
	if d := delivered - c.lastDelivered; d > 0 {
		c.PacketsDelivered.Add(float64(d))
	}
	c.lastGenerated = generated
	c.lastDelivered = delivered
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
