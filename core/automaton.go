package core

import "math/rand"

// Action indices of the activity automaton.
const (
	ActionActive = 0
	ActionSleep  = 1
)

// minActionProb keeps both actions selectable; probabilities are clipped to
// [minActionProb, 1-minActionProb] so neither action becomes absorbing.
const minActionProb = 0.001

// Automaton is a two-action Linear-Reward-Inaction learning automaton. Each
// non-sink sensor owns one; its probabilities bias cover-set candidate
// ranking and are the target of the round's reward signal. The orchestrator
// never samples an action from it: operational state is decided by the
// cover-set algorithm, the automaton is a preference signal only.
type Automaton struct {
	// LearningRate is the reward parameter 'a' of the L_R-I scheme.
	LearningRate float64

	probs [2]float64
}

// NewAutomaton returns an automaton with both actions equally likely.
func NewAutomaton(learningRate float64) *Automaton {
	return &Automaton{
		LearningRate: learningRate,
		probs:        [2]float64{0.5, 0.5},
	}
}

// Reset restores the initial uniform probabilities.
func (a *Automaton) Reset() {
	a.probs = [2]float64{0.5, 0.5}
}

// ProbActive returns the current probability of the ACTIVE action.
func (a *Automaton) ProbActive() float64 { return a.probs[ActionActive] }

// SetFromEnergyRatio direct-sets P(ACTIVE) from the sensor's share of the
// network's remaining energy, with P(SLEEP) as the complement.
func (a *Automaton) SetFromEnergyRatio(ratio float64) {
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}
	a.probs[ActionActive] = ratio
	a.probs[ActionSleep] = 1 - ratio
	a.normalizeAndClip()
}

// Reward applies the Linear-Reward-Inaction update. Only the reward branch
// moves the probabilities: the rewarded action (always ACTIVE in this
// scheme) gains a*(1-p), the other loses a*p. Without a reward the
// automaton is left untouched (the Inaction branch).
func (a *Automaton) Reward(rewarded bool) {
	if !rewarded {
		return
	}
	pa := a.probs[ActionActive]
	ps := a.probs[ActionSleep]
	a.probs[ActionActive] = pa + a.LearningRate*(1-pa)
	a.probs[ActionSleep] = ps - a.LearningRate*ps
	a.normalizeAndClip()
}

// ChooseAction samples ACTIVE or SLEEP weighted by the current
// probabilities. The round pipeline never calls this; it exists for callers
// that want to probe the automaton's preference directly.
func (a *Automaton) ChooseAction(rng *rand.Rand) int {
	a.normalizeAndClip()
	if rng.Float64() < a.probs[ActionActive] {
		return ActionActive
	}
	return ActionSleep
}

// normalizeAndClip restores the invariant after any mutation: both
// probabilities in [0,1], summing to 1, and neither below minActionProb.
func (a *Automaton) normalizeAndClip() {
	p0 := clamp01(a.probs[ActionActive])
	p1 := clamp01(a.probs[ActionSleep])

	if total := p0 + p1; total == 0 {
		p0, p1 = 0.5, 0.5
	} else if diff := total - 1; diff > 1e-9 || diff < -1e-9 {
		p0 /= total
		p1 /= total
	}

	if p0 < minActionProb {
		p0 = minActionProb
		p1 = 1 - minActionProb
	} else if p1 < minActionProb {
		p1 = minActionProb
		p0 = 1 - minActionProb
	}

	// Normalization can only be violated here if minActionProb > 0.5,
	// which the constant rules out, but re-check to keep the invariant
	// unconditional.
	if total := p0 + p1; total != 0 {
		if diff := total - 1; diff > 1e-9 || diff < -1e-9 {
			p0 /= total
			p1 /= total
		}
	} else {
		p0, p1 = 0.5, 0.5
	}

	a.probs[ActionActive] = p0
	a.probs[ActionSleep] = p1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
