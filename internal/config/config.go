// Package config loads, validates, and materializes simulation
// configuration. A successfully loaded Config is a validated value object;
// downstream code never re-checks its fields.
package config

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/oliwiapietka/LASensorNetwork/model"
)

// Lifetime metrics accepted in SimulationConfig.LifetimeMetric.
const (
	LifetimeAllPOIsUncovered = "all_pois_uncovered"
	LifetimeQThreshold       = "q_coverage_threshold"
	LifetimeNoActiveSensors  = "no_active_sensors"
)

// AreaConfig is the simulation area size.
type AreaConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// SimulationConfig controls the run loop and termination.
type SimulationConfig struct {
	MaxRounds      int     `yaml:"max_rounds"`
	Seed           int64   `yaml:"seed"`
	SinkID         int     `yaml:"sink_id"`
	LifetimeMetric string  `yaml:"lifetime_metric"`
	MinQCoverage   float64 `yaml:"min_q_coverage"`
}

// SensorDefaults supplies fallback values for sensors that do not override
// them.
type SensorDefaults struct {
	InitialEnergy float64 `yaml:"initial_energy"`
	CommRange     float64 `yaml:"comm_range"`
	SensingRange  float64 `yaml:"sensing_range"`
	LearningRate  float64 `yaml:"learning_rate"`
}

// SensorSpec describes one sensor. Nil pointer fields fall back to the
// defaults; nil coordinates are randomized at materialization.
type SensorSpec struct {
	ID            int      `yaml:"id"`
	X             *float64 `yaml:"x,omitempty"`
	Y             *float64 `yaml:"y,omitempty"`
	InitialEnergy *float64 `yaml:"initial_energy,omitempty"`
	CommRange     *float64 `yaml:"comm_range,omitempty"`
	SensingRange  *float64 `yaml:"sensing_range,omitempty"`
	LearningRate  *float64 `yaml:"learning_rate,omitempty"`
}

// POISpec describes one point of interest. Nil coordinates are randomized.
type POISpec struct {
	ID            int      `yaml:"id"`
	X             *float64 `yaml:"x,omitempty"`
	Y             *float64 `yaml:"y,omitempty"`
	CriticalLevel int      `yaml:"critical_level,omitempty"`
}

// NetworkConfig holds the scheduling parameters.
type NetworkConfig struct {
	RewardMethod     string  `yaml:"reward_method"`
	KCoverage        int     `yaml:"k_coverage"`
	WorkingTimeSlice float64 `yaml:"working_time_slice"`
}

// CommunicationConfig holds the channel parameters.
type CommunicationConfig struct {
	PacketLossProbability float64 `yaml:"packet_loss_probability"`
	POIBroadcastInterval  int     `yaml:"poi_broadcast_interval"`
	PerHopDelay           float64 `yaml:"per_hop_delay"`
}

// FaultsConfig holds the fault injection parameters.
type FaultsConfig struct {
	SensorFailureRatePerRound float64 `yaml:"sensor_failure_rate_per_round"`
}

// OptimizerConfig enables and parameterizes the GA placement search.
type OptimizerConfig struct {
	Enabled        bool    `yaml:"enabled"`
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	TournamentSize int     `yaml:"tournament_size"`
	ElitismCount   int     `yaml:"elitism_count"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OutputConfig controls where run artifacts land.
type OutputConfig struct {
	StatsFile string `yaml:"stats_file,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Config is the full simulation configuration.
type Config struct {
	Area          AreaConfig          `yaml:"area"`
	Simulation    SimulationConfig    `yaml:"simulation"`
	SensorDefault SensorDefaults      `yaml:"sensor_defaults"`
	Sensors       []SensorSpec        `yaml:"sensors"`
	POIs          []POISpec           `yaml:"pois"`
	Network       NetworkConfig       `yaml:"network"`
	Communication CommunicationConfig `yaml:"communication"`
	Faults        FaultsConfig        `yaml:"faults"`
	Optimizer     OptimizerConfig     `yaml:"optimizer"`
	Logging       LoggingConfig       `yaml:"logging"`
	Output        OutputConfig        `yaml:"output"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// Default returns a small but complete runnable configuration.
func Default() Config {
	x := func(v float64) *float64 { return &v }
	return Config{
		Area: AreaConfig{Width: 100, Height: 100},
		Simulation: SimulationConfig{
			MaxRounds:      100,
			Seed:           42,
			SinkID:         0,
			LifetimeMetric: LifetimeAllPOIsUncovered,
			MinQCoverage:   0.5,
		},
		SensorDefault: SensorDefaults{
			InitialEnergy: 100,
			CommRange:     30,
			SensingRange:  15,
			LearningRate:  0.1,
		},
		Sensors: []SensorSpec{
			{ID: 0, X: x(50), Y: x(50)},
			{ID: 1, X: x(30), Y: x(50)},
			{ID: 2, X: x(70), Y: x(50)},
			{ID: 3, X: x(50), Y: x(30)},
			{ID: 4, X: x(50), Y: x(70)},
		},
		POIs: []POISpec{
			{ID: 0, X: x(30), Y: x(40)},
			{ID: 1, X: x(70), Y: x(60)},
		},
		Network: NetworkConfig{
			RewardMethod:     "cardinality",
			KCoverage:        1,
			WorkingTimeSlice: 0.5,
		},
		Communication: CommunicationConfig{
			PacketLossProbability: 0.01,
			POIBroadcastInterval:  5,
			PerHopDelay:           1.0,
		},
		Faults: FaultsConfig{SensorFailureRatePerRound: 0.001},
		Optimizer: OptimizerConfig{
			Enabled:        false,
			PopulationSize: 30,
			Generations:    50,
			MutationRate:   0.1,
			CrossoverRate:  0.7,
			TournamentSize: 3,
			ElitismCount:   1,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	// Unknown keys are rejected so typos do not silently fall back to
	// defaults.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks structural and range constraints.
func (c Config) Validate() error {
	if c.Area.Width <= 0 || c.Area.Height <= 0 {
		return fmt.Errorf("area dimensions must be positive, got %gx%g", c.Area.Width, c.Area.Height)
	}
	if c.Simulation.MaxRounds <= 0 {
		return fmt.Errorf("simulation.max_rounds must be positive, got %d", c.Simulation.MaxRounds)
	}
	switch c.Simulation.LifetimeMetric {
	case LifetimeAllPOIsUncovered, LifetimeQThreshold, LifetimeNoActiveSensors:
	default:
		return fmt.Errorf("simulation.lifetime_metric %q is not one of %s, %s, %s",
			c.Simulation.LifetimeMetric, LifetimeAllPOIsUncovered, LifetimeQThreshold, LifetimeNoActiveSensors)
	}
	if c.Simulation.MinQCoverage < 0 || c.Simulation.MinQCoverage > 1 {
		return fmt.Errorf("simulation.min_q_coverage must be in [0,1], got %g", c.Simulation.MinQCoverage)
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("at least one sensor is required")
	}
	seen := make(map[int]struct{}, len(c.Sensors))
	sinkFound := false
	for _, s := range c.Sensors {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate sensor id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.ID == c.Simulation.SinkID {
			sinkFound = true
		}
	}
	if !sinkFound {
		return fmt.Errorf("simulation.sink_id %d does not match any sensor", c.Simulation.SinkID)
	}
	seenPOI := make(map[int]struct{}, len(c.POIs))
	for _, p := range c.POIs {
		if _, dup := seenPOI[p.ID]; dup {
			return fmt.Errorf("duplicate poi id %d", p.ID)
		}
		seenPOI[p.ID] = struct{}{}
		if p.CriticalLevel < 0 {
			return fmt.Errorf("poi %d: critical_level must not be negative", p.ID)
		}
	}
	switch c.Network.RewardMethod {
	case "", "cardinality", "energy":
	default:
		return fmt.Errorf("network.reward_method %q must be cardinality or energy", c.Network.RewardMethod)
	}
	if c.Network.KCoverage < 1 {
		return fmt.Errorf("network.k_coverage must be at least 1, got %d", c.Network.KCoverage)
	}
	if c.Communication.PacketLossProbability < 0 || c.Communication.PacketLossProbability > 1 {
		return fmt.Errorf("communication.packet_loss_probability must be in [0,1], got %g",
			c.Communication.PacketLossProbability)
	}
	if c.Faults.SensorFailureRatePerRound < 0 || c.Faults.SensorFailureRatePerRound > 1 {
		return fmt.Errorf("faults.sensor_failure_rate_per_round must be in [0,1], got %g",
			c.Faults.SensorFailureRatePerRound)
	}
	if c.SensorDefault.InitialEnergy <= 0 {
		return fmt.Errorf("sensor_defaults.initial_energy must be positive, got %g", c.SensorDefault.InitialEnergy)
	}
	if c.SensorDefault.CommRange <= 0 || c.SensorDefault.SensingRange < 0 {
		return fmt.Errorf("sensor_defaults ranges invalid: comm %g, sensing %g",
			c.SensorDefault.CommRange, c.SensorDefault.SensingRange)
	}
	if c.Optimizer.Enabled && c.Optimizer.PopulationSize < 2 {
		return fmt.Errorf("optimizer.population_size must be at least 2, got %d", c.Optimizer.PopulationSize)
	}
	return nil
}

// SensorRecords materializes sensor specs into deployable records.
// Unspecified coordinates are drawn uniformly from the area using rng, so
// the same seed yields the same random deployment.
func (c Config) SensorRecords(rng *rand.Rand) []model.SensorRecord {
	records := make([]model.SensorRecord, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		rec := model.SensorRecord{
			ID:            s.ID,
			X:             pick(s.X, func() float64 { return rng.Float64() * c.Area.Width }),
			Y:             pick(s.Y, func() float64 { return rng.Float64() * c.Area.Height }),
			InitialEnergy: orDefault(s.InitialEnergy, c.SensorDefault.InitialEnergy),
			CommRange:     orDefault(s.CommRange, c.SensorDefault.CommRange),
			SensingRange:  orDefault(s.SensingRange, c.SensorDefault.SensingRange),
			LearningRate:  orDefault(s.LearningRate, c.SensorDefault.LearningRate),
		}
		records = append(records, rec)
	}
	return records
}

// POIRecords materializes POI specs, randomizing unspecified coordinates.
func (c Config) POIRecords(rng *rand.Rand) []model.POIRecord {
	records := make([]model.POIRecord, 0, len(c.POIs))
	for _, p := range c.POIs {
		k := p.CriticalLevel
		if k < 1 {
			k = 1
		}
		records = append(records, model.POIRecord{
			ID:            p.ID,
			X:             pick(p.X, func() float64 { return rng.Float64() * c.Area.Width }),
			Y:             pick(p.Y, func() float64 { return rng.Float64() * c.Area.Height }),
			CriticalLevel: k,
		})
	}
	return records
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func pick(v *float64, gen func() float64) float64 {
	if v != nil {
		return *v
	}
	return gen()
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
