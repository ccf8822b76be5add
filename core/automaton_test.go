package core

import (
	"math"
	"math/rand"
	"testing"
)

func TestNewAutomatonStartsIndifferent(t *testing.T) {
	a := NewAutomaton(0.1)
	if got := a.ProbActive(); got != 0.5 {
		t.Fatalf("ProbActive = %g, want 0.5", got)
	}
}

func TestSetFromEnergyRatio(t *testing.T) {
	a := NewAutomaton(0.1)

	a.SetFromEnergyRatio(0.7)
	if got := a.ProbActive(); math.Abs(got-0.7) > 1e-12 {
		t.Fatalf("ProbActive after ratio 0.7 = %g, want 0.7", got)
	}

	// Out-of-range ratios clamp, then the floor keeps both actions
	// selectable.
	a.SetFromEnergyRatio(-3)
	if got := a.ProbActive(); got != 0.001 {
		t.Fatalf("ProbActive after ratio -3 = %g, want floor 0.001", got)
	}
	a.SetFromEnergyRatio(42)
	if got := a.ProbActive(); got != 0.999 {
		t.Fatalf("ProbActive after ratio 42 = %g, want 0.999", got)
	}
}

func TestRewardMovesTowardActive(t *testing.T) {
	a := NewAutomaton(0.1)
	a.Reward(true)
	// p_active: 0.5 + 0.1*(1-0.5) = 0.55
	if got := a.ProbActive(); math.Abs(got-0.55) > 1e-12 {
		t.Fatalf("ProbActive after reward = %g, want 0.55", got)
	}
	a.Reward(true)
	// 0.55 + 0.1*0.45 = 0.595
	if got := a.ProbActive(); math.Abs(got-0.595) > 1e-12 {
		t.Fatalf("ProbActive after second reward = %g, want 0.595", got)
	}
}

func TestNoRewardLeavesProbabilitiesUntouched(t *testing.T) {
	a := NewAutomaton(0.1)
	a.SetFromEnergyRatio(0.8)
	before := a.ProbActive()
	a.Reward(false)
	if got := a.ProbActive(); got != before {
		t.Fatalf("ProbActive changed on inaction branch: %g -> %g", before, got)
	}
}

func TestRepeatedRewardsNeverExceedCeiling(t *testing.T) {
	a := NewAutomaton(0.5)
	for i := 0; i < 100; i++ {
		a.Reward(true)
	}
	if got := a.ProbActive(); got > 0.999+1e-12 {
		t.Fatalf("ProbActive after saturation = %g, want <= 0.999", got)
	}
	if got := a.ProbActive(); got < 0.99 {
		t.Fatalf("ProbActive after 100 rewards = %g, want near ceiling", got)
	}
}

func TestChooseActionFollowsDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	a := NewAutomaton(0.1)
	a.SetFromEnergyRatio(0)
	sleeps := 0
	for i := 0; i < 1000; i++ {
		if a.ChooseAction(rng) == ActionSleep {
			sleeps++
		}
	}
	if sleeps < 990 {
		t.Fatalf("with P(ACTIVE)=0.001 got %d sleeps out of 1000, want nearly all", sleeps)
	}

	a.SetFromEnergyRatio(1)
	actives := 0
	for i := 0; i < 1000; i++ {
		if a.ChooseAction(rng) == ActionActive {
			actives++
		}
	}
	if actives < 990 {
		t.Fatalf("with P(ACTIVE)=0.999 got %d actives out of 1000, want nearly all", actives)
	}
}
