package deploy

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/oliwiapietka/LASensorNetwork/model"
)

func testLayout(numSensors int) Layout {
	return Layout{
		Width:        100,
		Height:       50,
		CommRange:    15,
		SensingRange: 8,
		KCoverage:    1,
		NumSensors:   numSensors,
		SinkIndex:    0,
	}
}

func TestFitnessRewardsCoverageThenConnectivity(t *testing.T) {
	pois := []model.POIRecord{{ID: 1, X: 12, Y: 0, CriticalLevel: 1}}

	cases := []struct {
		name string
		ind  []float64
		want float64
	}{
		{
			// Slot 1 covers the POI and sits in comm range of the sink.
			name: "covered and connected",
			ind:  []float64{0, 0, 10, 0},
			want: coverageWeight + connectivityWeight,
		},
		{
			// Slot 1 covers the POI but the sink is out of radio reach.
			name: "covered but disconnected",
			ind:  []float64{90, 0, 10, 0},
			want: coverageWeight,
		},
		{
			// Nobody senses the POI; connectivity earns nothing alone.
			name: "uncovered",
			ind:  []float64{0, 0, 60, 0},
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := NewOptimizer(Config{}, testLayout(2), pois, rand.New(rand.NewSource(1)), nil)
			if got := o.fitness(tc.ind); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("fitness = %g, want %g", got, tc.want)
			}
		})
	}
}

func TestFitnessSinkNeverCountsAsCoverer(t *testing.T) {
	pois := []model.POIRecord{{ID: 1, X: 2, Y: 0, CriticalLevel: 1}}
	o := NewOptimizer(Config{}, testLayout(2), pois, rand.New(rand.NewSource(1)), nil)

	// The sink slot sits on top of the POI; the other sensor is far away.
	if got := o.fitness([]float64{2, 0, 60, 40}); got != 0 {
		t.Fatalf("fitness = %g, want 0 when only the sink is near the POI", got)
	}
}

func TestMutateClampsToArea(t *testing.T) {
	layout := testLayout(4)
	o := NewOptimizer(Config{MutationRate: 1.0}, layout, nil, rand.New(rand.NewSource(3)), nil)

	ind := []float64{0, 0, 100, 50, 99.9, 0.1, 50, 25}
	for trial := 0; trial < 50; trial++ {
		out := o.mutate(ind)
		if len(out) != len(ind) {
			t.Fatalf("mutate changed chromosome length: %d != %d", len(out), len(ind))
		}
		for i, v := range out {
			limit := layout.Width
			if i%2 == 1 {
				limit = layout.Height
			}
			if v < 0 || v > limit {
				t.Fatalf("coordinate %d = %g escaped [0, %g]", i, v, limit)
			}
		}
	}
}

func TestRunProducesPlacementPerSlot(t *testing.T) {
	layout := testLayout(5)
	pois := []model.POIRecord{
		{ID: 1, X: 20, Y: 20, CriticalLevel: 1},
		{ID: 2, X: 70, Y: 30, CriticalLevel: 1},
	}
	cfg := Config{PopulationSize: 10, Generations: 8}
	o := NewOptimizer(cfg, layout, pois, rand.New(rand.NewSource(7)), nil)

	placements, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(placements) != layout.NumSensors {
		t.Fatalf("got %d placements, want %d", len(placements), layout.NumSensors)
	}
	for i, p := range placements {
		if p.Slot != i {
			t.Fatalf("placement %d has slot %d", i, p.Slot)
		}
		if p.IsSinkRole != (i == layout.SinkIndex) {
			t.Fatalf("slot %d sink role = %v", i, p.IsSinkRole)
		}
		if p.X < 0 || p.X > layout.Width || p.Y < 0 || p.Y > layout.Height {
			t.Fatalf("slot %d at (%g, %g) outside the area", i, p.X, p.Y)
		}
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	layout := testLayout(4)
	pois := []model.POIRecord{{ID: 1, X: 30, Y: 10, CriticalLevel: 1}}
	cfg := Config{PopulationSize: 8, Generations: 5}

	run := func() []model.Placement {
		o := NewOptimizer(cfg, layout, pois, rand.New(rand.NewSource(99)), nil)
		placements, err := o.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return placements
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("placement %d differs between identical seeds: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOptimizer(Config{}, testLayout(3), nil, rand.New(rand.NewSource(1)), nil)
	if _, err := o.Run(ctx); err == nil {
		t.Fatalf("Run returned nil error on a canceled context")
	}
}
