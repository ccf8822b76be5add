// Package deploy searches for sensor placements that maximize POI coverage
// and sink connectivity before a simulation starts.
package deploy

import (
	"context"
	"errors"
	"math/rand"
	"sort"

	"github.com/oliwiapietka/LASensorNetwork/core"
	"github.com/oliwiapietka/LASensorNetwork/internal/logging"
	"github.com/oliwiapietka/LASensorNetwork/model"
)

// Fitness weighting: coverage dominates, connectivity only counts once
// coverage is essentially complete.
const (
	coverageWeight       = 1000.0
	connectivityWeight   = 100.0
	fullCoverageEpsilon  = 0.9999
	earlyStopFitness     = coverageWeight + 99.0
	mutationSigmaPercent = 0.05
)

// ErrNoDeployment is returned when the search produced no individual at
// all, which only happens with a degenerate configuration.
var ErrNoDeployment = errors.New("deploy: no viable deployment found")

// Config holds the genetic algorithm parameters. Zero values fall back to
// the defaults applied by withDefaults.
type Config struct {
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	TournamentSize int     `yaml:"tournament_size"`
	ElitismCount   int     `yaml:"elitism_count"`
}

func (c Config) withDefaults() Config {
	if c.PopulationSize <= 0 {
		c.PopulationSize = 30
	}
	if c.Generations <= 0 {
		c.Generations = 50
	}
	if c.MutationRate <= 0 {
		c.MutationRate = 0.1
	}
	if c.CrossoverRate <= 0 {
		c.CrossoverRate = 0.7
	}
	if c.TournamentSize <= 0 {
		c.TournamentSize = 3
	}
	if c.ElitismCount <= 0 {
		c.ElitismCount = 1
	}
	return c
}

// Layout describes the area and the per-sensor radio parameters the
// optimizer plans for.
type Layout struct {
	Width        float64
	Height       float64
	CommRange    float64
	SensingRange float64

	// KCoverage is the required number of simultaneous coverers per POI.
	KCoverage int

	// NumSensors is the chromosome length in sensor slots; SinkIndex is
	// the slot that plays the base station (sensing range forced to 0).
	NumSensors int
	SinkIndex  int
}

// Optimizer runs a genetic search over flat coordinate chromosomes
// [s0x, s0y, s1x, s1y, ...].
type Optimizer struct {
	cfg    Config
	layout Layout
	pois   []model.POIRecord
	rng    *rand.Rand
	log    logging.Logger
}

// NewOptimizer builds an optimizer. rng is the caller's seeded source; the
// optimizer draws all randomness from it.
func NewOptimizer(cfg Config, layout Layout, pois []model.POIRecord, rng *rand.Rand, log logging.Logger) *Optimizer {
	if log == nil {
		log = logging.Noop()
	}
	if layout.KCoverage < 1 {
		layout.KCoverage = 1
	}
	return &Optimizer{cfg: cfg.withDefaults(), layout: layout, pois: pois, rng: rng, log: log}
}

func (o *Optimizer) randomIndividual() []float64 {
	ind := make([]float64, 0, o.layout.NumSensors*2)
	for i := 0; i < o.layout.NumSensors; i++ {
		ind = append(ind, o.rng.Float64()*o.layout.Width, o.rng.Float64()*o.layout.Height)
	}
	return ind
}

// materialize instantiates throwaway sensors from a chromosome. The sink
// slot gets zero sensing range so it never counts as a coverer.
func (o *Optimizer) materialize(ind []float64) []*core.Sensor {
	sensors := make([]*core.Sensor, o.layout.NumSensors)
	for i := 0; i < o.layout.NumSensors; i++ {
		pos := core.Point{X: ind[i*2], Y: ind[i*2+1]}
		sensing := o.layout.SensingRange
		sinkID := -1
		if i == o.layout.SinkIndex {
			sensing = 0
			sinkID = i
		}
		sensors[i] = core.NewSensor(i, pos, 1.0, o.layout.CommRange, sensing, sinkID, 0.1)
	}
	return sensors
}

// fitness scores a placement: normalized k-coverage of the POIs scaled by
// coverageWeight, plus, when coverage is essentially complete, the
// fraction of essential coverers with a multi-hop path to the sink scaled
// by connectivityWeight.
func (o *Optimizer) fitness(ind []float64) float64 {
	sensors := o.materialize(ind)

	tempPOIs := make([]*core.POI, len(o.pois))
	for i, rec := range o.pois {
		tempPOIs[i] = core.NewPOI(rec.ID, core.Point{X: rec.X, Y: rec.Y}, 1)
	}

	coverageScore := 1.0
	essential := make(map[int]struct{})
	if len(tempPOIs) > 0 {
		met := 0
		for _, p := range tempPOIs {
			var coverers []int
			for id, s := range sensors {
				if !s.IsSink && s.CanSensePOI(p) {
					coverers = append(coverers, id)
				}
			}
			if len(coverers) >= o.layout.KCoverage {
				met++
				for _, id := range coverers {
					essential[id] = struct{}{}
				}
			}
		}
		coverageScore = float64(met) / float64(len(tempPOIs))
	}

	// Adjacency over every slot, sink included; relays may be any sensor.
	adj := make([][]int, len(sensors))
	for i := range sensors {
		for j := i + 1; j < len(sensors); j++ {
			if sensors[i].CanCommunicateWith(sensors[j]) {
				adj[i] = append(adj[i], j)
				adj[j] = append(adj[j], i)
			}
		}
	}

	connectivityScore := 1.0
	if len(essential) > 0 {
		connected := 0
		for _, id := range sortedIDs(essential) {
			if id == o.layout.SinkIndex || o.reachesSink(id, adj) {
				connected++
			}
		}
		connectivityScore = float64(connected) / float64(len(essential))
	}

	fitness := coverageScore * coverageWeight
	if coverageScore >= fullCoverageEpsilon {
		fitness += connectivityScore * connectivityWeight
	}
	return fitness
}

func (o *Optimizer) reachesSink(start int, adj [][]int) bool {
	queue := []int{start}
	visited := map[int]struct{}{start: {}}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if u == o.layout.SinkIndex {
			return true
		}
		for _, v := range adj[u] {
			if _, seen := visited[v]; !seen {
				visited[v] = struct{}{}
				queue = append(queue, v)
			}
		}
	}
	return false
}

func sortedIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

type scored struct {
	individual []float64
	fitness    float64
}

// tournamentSelect fills a parent pool of population size by repeated
// tournaments sampled without replacement within each tournament.
func (o *Optimizer) tournamentSelect(pop []scored) [][]float64 {
	parents := make([][]float64, 0, len(pop))
	size := o.cfg.TournamentSize
	if size > len(pop) {
		size = len(pop)
	}
	for i := 0; i < len(pop); i++ {
		perm := o.rng.Perm(len(pop))
		best := pop[perm[0]]
		for _, idx := range perm[1:size] {
			if pop[idx].fitness > best.fitness {
				best = pop[idx]
			}
		}
		parents = append(parents, best.individual)
	}
	return parents
}

// crossover performs one-point crossover on coordinate-pair boundaries
// with the configured probability; otherwise the children are copies.
func (o *Optimizer) crossover(p1, p2 []float64) ([]float64, []float64) {
	c1 := append([]float64(nil), p1...)
	c2 := append([]float64(nil), p2...)
	if o.rng.Float64() < o.cfg.CrossoverRate {
		genes := len(p1) / 2
		if genes > 1 {
			point := (1 + o.rng.Intn(genes-1)) * 2
			copy(c1[point:], p2[point:])
			copy(c2[point:], p1[point:])
		}
	}
	return c1, c2
}

// mutate perturbs each coordinate with the configured probability by a
// Gaussian step sized to 5% of the dimension, clamped to the area.
func (o *Optimizer) mutate(ind []float64) []float64 {
	out := append([]float64(nil), ind...)
	for i := range out {
		if o.rng.Float64() >= o.cfg.MutationRate {
			continue
		}
		limit := o.layout.Width
		if i%2 == 1 {
			limit = o.layout.Height
		}
		out[i] += o.rng.NormFloat64() * limit * mutationSigmaPercent
		if out[i] < 0 {
			out[i] = 0
		}
		if out[i] > limit {
			out[i] = limit
		}
	}
	return out
}

// Run executes the genetic search and returns the best placement found,
// one Placement per chromosome slot. The slot index is not a sensor ID;
// callers map slots onto their configured sensor IDs.
func (o *Optimizer) Run(ctx context.Context) ([]model.Placement, error) {
	o.log.Info(ctx, "starting deployment optimization",
		logging.Int("population", o.cfg.PopulationSize),
		logging.Int("generations", o.cfg.Generations),
		logging.Int("sensors", o.layout.NumSensors),
		logging.Int("pois", len(o.pois)))

	population := make([][]float64, o.cfg.PopulationSize)
	for i := range population {
		population[i] = o.randomIndividual()
	}

	bestFitness := -1.0
	var best []float64

	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pop := make([]scored, len(population))
		for i, ind := range population {
			pop[i] = scored{individual: ind, fitness: o.fitness(ind)}
		}
		sort.SliceStable(pop, func(i, j int) bool { return pop[i].fitness > pop[j].fitness })

		if pop[0].fitness > bestFitness {
			bestFitness = pop[0].fitness
			best = append([]float64(nil), pop[0].individual...)
		}

		if (gen+1)%10 == 0 || gen == o.cfg.Generations-1 {
			o.log.Info(ctx, "generation complete",
				logging.Int("generation", gen+1),
				logging.Float64("gen_best", pop[0].fitness),
				logging.Float64("overall_best", bestFitness))
		}
		if bestFitness >= earlyStopFitness {
			o.log.Info(ctx, "high quality deployment found, stopping early",
				logging.Int("generation", gen+1))
			break
		}

		parents := o.tournamentSelect(pop)

		next := make([][]float64, 0, o.cfg.PopulationSize)
		for i := 0; i < o.cfg.ElitismCount && i < len(pop); i++ {
			next = append(next, append([]float64(nil), pop[i].individual...))
		}
		for len(next) < o.cfg.PopulationSize {
			i, j := o.rng.Intn(len(parents)), o.rng.Intn(len(parents)-1)
			if j >= i {
				j++
			}
			c1, c2 := o.crossover(parents[i], parents[j])
			next = append(next, o.mutate(c1))
			if len(next) < o.cfg.PopulationSize {
				next = append(next, o.mutate(c2))
			}
		}
		population = next[:o.cfg.PopulationSize]
	}

	o.log.Info(ctx, "deployment optimization finished",
		logging.Float64("best_fitness", bestFitness))

	if best == nil {
		return nil, ErrNoDeployment
	}
	placements := make([]model.Placement, o.layout.NumSensors)
	for i := 0; i < o.layout.NumSensors; i++ {
		placements[i] = model.Placement{
			Slot:       i,
			X:          best[i*2],
			Y:          best[i*2+1],
			IsSinkRole: i == o.layout.SinkIndex,
		}
	}
	return placements, nil
}
