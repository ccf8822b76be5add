package core

import (
	"context"
	"math"
	"sort"

	"github.com/oliwiapietka/LASensorNetwork/internal/logging"
)

// Bridge utility weights: remaining-energy fraction versus the automaton's
// preference for being active.
const (
	bridgeEnergyWeight = 0.6
	bridgeLAWeight     = 0.4
)

func sortedSetIDs(set map[int]struct{}) []int {
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// isConnectedToSink reports whether startID can reach the sink over a path
// whose intermediate nodes all belong to activeSet. BFS over potential
// neighbor links.
func (n *Network) isConnectedToSink(startID int, activeSet map[int]struct{}) bool {
	if startID == n.params.SinkID {
		return true
	}
	if _, in := activeSet[startID]; !in {
		return false
	}
	queue := []int{startID}
	visited := map[int]struct{}{startID: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		s := n.sensors[cur]
		if s == nil {
			continue
		}
		for _, nbID := range s.Neighbors {
			if nbID == n.params.SinkID {
				return true
			}
			nb := n.sensors[nbID]
			if nb == nil || nb.IsFailed {
				continue
			}
			if _, in := activeSet[nbID]; !in {
				continue
			}
			if _, seen := visited[nbID]; seen {
				continue
			}
			visited[nbID] = struct{}{}
			queue = append(queue, nbID)
		}
	}
	return false
}

// identifyCriticalTargets finds the uncovered POIs whose candidate
// coverers hold the smallest summed energy, and the pool of sensors able
// to cover any of them. POIs nobody can cover are left out entirely.
func (n *Network) identifyCriticalTargets(uncovered map[int]*POI) (map[int]*POI, map[int]*Sensor) {
	targets := make(map[int]*POI)
	pool := make(map[int]*Sensor)

	if len(uncovered) == 0 {
		for _, s := range n.sensors {
			s.isCritical = false
		}
		return targets, pool
	}

	coverers := make(map[int][]*Sensor, len(uncovered))
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if s.IsSink || s.IsFailed || s.State == StateDead {
			continue
		}
		s.isCritical = false
		for _, p := range uncovered {
			if s.CanSensePOI(p) {
				coverers[p.ID] = append(coverers[p.ID], s)
			}
		}
	}

	sumEnergy := make(map[int]float64)
	for poiID, list := range coverers {
		if len(list) == 0 {
			continue
		}
		total := 0.0
		for _, s := range list {
			total += s.CurrentEnergy
		}
		sumEnergy[poiID] = total
	}
	if len(sumEnergy) == 0 {
		return targets, pool
	}

	minSum := 0.0
	first := true
	for _, v := range sumEnergy {
		if first || v < minSum {
			minSum = v
			first = false
		}
	}

	for poiID, p := range uncovered {
		v, ok := sumEnergy[poiID]
		if !ok || v != minSum {
			continue
		}
		targets[poiID] = p
		for _, s := range coverers[poiID] {
			pool[s.ID] = s
			s.isCritical = true
		}
	}
	return targets, pool
}

type coverCandidate struct {
	sensor        *Sensor
	probActive    float64
	energyRank    float64
	newCritical   int
	locallyUnique bool
}

func sortCoverCandidates(cands []coverCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.newCritical != b.newCritical {
			return a.newCritical > b.newCritical
		}
		if a.locallyUnique != b.locallyUnique {
			return a.locallyUnique
		}
		if a.probActive != b.probActive {
			return a.probActive > b.probActive
		}
		return a.energyRank > b.energyRank
	})
}

// newCriticalTargets returns the critical POIs the sensor would newly
// cover, i.e. those no current cover-set member already senses.
func (n *Network) newCriticalTargets(s *Sensor, targets map[int]*POI, coverSet map[int]struct{}) []*POI {
	var out []*POI
	for _, poiID := range sortedPOIIDs(targets) {
		p := targets[poiID]
		alreadyCovered := false
		for memberID := range coverSet {
			if member := n.sensors[memberID]; member != nil && member.CanSensePOI(p) {
				alreadyCovered = true
				break
			}
		}
		if !alreadyCovered && s.CanSensePOI(p) {
			out = append(out, p)
		}
	}
	return out
}

func sortedPOIIDs(pois map[int]*POI) []int {
	ids := make([]int, 0, len(pois))
	for id := range pois {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// locallyUniqueContribution reports whether at least one of the given POIs
// is not advertised as covered by any neighbor currently willing to be
// active (P(ACTIVE) >= 0.5). The check runs on last-heard advertisements,
// so it can be stale; that is inherent to the local view.
func (n *Network) locallyUniqueContribution(s *Sensor, pois []*POI) bool {
	for _, p := range pois {
		coveredByWilling := false
		for _, nbID := range s.AdvertisedNeighborIDs() {
			nb := n.sensors[nbID]
			if nb == nil || nb.Automaton == nil || nb.Automaton.ProbActive() < 0.5 {
				continue
			}
			if s.NeighborCovers(nbID, p.ID) {
				coveredByWilling = true
				break
			}
		}
		if !coveredByWilling {
			return true
		}
	}
	return false
}

// selectByRule1 picks the next cover-set member from the critical pool.
// Candidates must newly cover at least one critical target; ranking is by
// new-critical-target count, then locally unique contribution, then
// P(ACTIVE), then share of network energy. The first pass only admits
// sensors with P(ACTIVE) >= 0.5; if none qualify the constraint is
// relaxed.
func (n *Network) selectByRule1(ctx context.Context, pool map[int]*Sensor, targets map[int]*POI, coverSet map[int]struct{}) *Sensor {
	if len(pool) == 0 || len(targets) == 0 {
		return nil
	}

	totalEnergy := n.aliveNonSinkEnergy()
	if totalEnergy <= 1e-9 {
		totalEnergy = 1.0
	}

	poolIDs := make([]int, 0, len(pool))
	for id := range pool {
		poolIDs = append(poolIDs, id)
	}
	sort.Ints(poolIDs)

	var candidates []coverCandidate
	for _, relaxed := range []bool{false, true} {
		if relaxed {
			if len(candidates) > 0 {
				break
			}
			n.log.Debug(ctx, "rule1: no sensor met willing threshold, relaxing",
				logging.Int("round", n.CurrentRound))
		}
		for _, id := range poolIDs {
			s := pool[id]
			if _, in := coverSet[id]; in {
				continue
			}
			if s.Automaton == nil {
				continue
			}
			probActive := s.Automaton.ProbActive()
			if !relaxed && probActive < 0.5 {
				continue
			}
			energyShare := 0.0
			if s.CurrentEnergy > 0 {
				energyShare = s.CurrentEnergy / totalEnergy
			}
			newlyCovered := n.newCriticalTargets(s, targets, coverSet)
			if len(newlyCovered) == 0 {
				continue
			}
			candidates = append(candidates, coverCandidate{
				sensor:        s,
				probActive:    probActive,
				energyRank:    energyShare,
				newCritical:   len(newlyCovered),
				locallyUnique: n.locallyUniqueContribution(s, newlyCovered),
			})
		}
		if len(candidates) > 0 {
			break
		}
	}

	if len(candidates) == 0 {
		return nil
	}
	sortCoverCandidates(candidates)
	best := candidates[0]
	n.log.Debug(ctx, "rule1 selected sensor",
		logging.Int("round", n.CurrentRound),
		logging.Int("sensor_id", best.sensor.ID),
		logging.Int("new_critical", best.newCritical),
		logging.Float64("prob_active", best.probActive))
	return best.sensor
}

// selectFallback picks a sensor when no critical targets exist but POIs
// remain uncovered (every remaining POI is coverable only by sensors whose
// summed-energy grouping excluded it). Any live automaton-bearing sensor
// covering at least one uncovered POI is eligible; ranking mirrors rule 1
// but uses absolute energy.
func (n *Network) selectFallback(uncovered map[int]*POI, coverSet map[int]struct{}) *Sensor {
	var candidates []coverCandidate
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if _, in := coverSet[id]; in {
			continue
		}
		if s.IsFailed || s.State == StateDead || s.Automaton == nil {
			continue
		}
		var newlyCovered []*POI
		for _, poiID := range sortedPOIIDs(uncovered) {
			if p := uncovered[poiID]; s.CanSensePOI(p) {
				newlyCovered = append(newlyCovered, p)
			}
		}
		if len(newlyCovered) == 0 {
			continue
		}
		candidates = append(candidates, coverCandidate{
			sensor:        s,
			probActive:    s.Automaton.ProbActive(),
			energyRank:    s.CurrentEnergy,
			newCritical:   len(newlyCovered),
			locallyUnique: n.locallyUniqueContribution(s, newlyCovered),
		})
	}
	if len(candidates) == 0 {
		return nil
	}
	sortCoverCandidates(candidates)
	return candidates[0].sensor
}

// trimCoverSet drops redundant members from the cover set, lowest energy
// first: a member is removed when every POI stays covered without it.
func (n *Network) trimCoverSet(coverSet map[int]struct{}) map[int]struct{} {
	trimmed := make(map[int]struct{}, len(coverSet))
	for id := range coverSet {
		trimmed[id] = struct{}{}
	}

	order := sortedSetIDs(trimmed)
	sort.SliceStable(order, func(i, j int) bool {
		return n.sensors[order[i]].CurrentEnergy < n.sensors[order[j]].CurrentEnergy
	})

	for _, id := range order {
		if _, in := trimmed[id]; !in {
			continue
		}
		without := make(map[int]struct{}, len(trimmed)-1)
		for other := range trimmed {
			if other != id {
				without[other] = struct{}{}
			}
		}
		counts := n.poiCoverageMap(without)
		stillCovered := true
		for _, p := range n.pois {
			if counts[p.ID] < 1 {
				stillCovered = false
				break
			}
		}
		if stillCovered {
			delete(trimmed, id)
		}
	}
	return trimmed
}

// selectBridge finds the best single sensor whose activation would connect
// targetID to the sink given the current active set. Utility prefers
// high remaining-energy fraction, then automaton preference for ACTIVE.
func (n *Network) selectBridge(targetID int, activeSet map[int]struct{}) (int, float64, bool) {
	bestID := NoParent
	bestUtility := 0.0
	found := false
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if _, in := activeSet[id]; in {
			continue
		}
		if s.IsFailed || s.State == StateDead {
			continue
		}
		withBridge := make(map[int]struct{}, len(activeSet)+1)
		for a := range activeSet {
			withBridge[a] = struct{}{}
		}
		withBridge[id] = struct{}{}
		if !n.isConnectedToSink(targetID, withBridge) {
			continue
		}
		energyComponent := 0.0
		if s.InitialEnergy > 0 {
			energyComponent = s.CurrentEnergy / s.InitialEnergy
		}
		laComponent := 0.0
		if s.Automaton != nil {
			laComponent = s.Automaton.ProbActive()
		}
		utility := bridgeEnergyWeight*energyComponent + bridgeLAWeight*laComponent
		if !found || utility > bestUtility {
			bestID = id
			bestUtility = utility
			found = true
		}
	}
	return bestID, bestUtility, found
}

// monitoringPhase builds the round's operational set: a trimmed cover set
// for the POIs plus any bridge sensors needed to keep every coverer
// connected to the sink. It also computes the working time W for the set
// and applies the automaton reward. The returned ok is false when no
// viable cover set could be formed, which also latches the coverage-lost
// flag.
func (n *Network) monitoringPhase(ctx context.Context) (map[int]struct{}, float64, bool) {
	coverSet := make(map[int]struct{})
	uncovered := make(map[int]*POI, len(n.pois))
	for _, p := range n.pois {
		uncovered[p.ID] = p
	}

	maxIterations := len(n.sensors) + len(n.pois)
	for iter := 0; iter < maxIterations; iter++ {
		if len(uncovered) == 0 {
			break
		}
		targets, pool := n.identifyCriticalTargets(uncovered)

		if len(targets) == 0 {
			fallback := n.selectFallback(uncovered, coverSet)
			if fallback == nil {
				n.log.Debug(ctx, "fallback found no candidate",
					logging.Int("round", n.CurrentRound),
					logging.Int("uncovered", len(uncovered)))
				break
			}
			coverSet[fallback.ID] = struct{}{}
			for poiID, p := range uncovered {
				if fallback.CanSensePOI(p) {
					delete(uncovered, poiID)
				}
			}
			continue
		}
		if len(pool) == 0 {
			break
		}

		selected := n.selectByRule1(ctx, pool, targets, coverSet)
		if selected == nil {
			break
		}
		coverSet[selected.ID] = struct{}{}
		for poiID, p := range uncovered {
			if selected.CanSensePOI(p) {
				delete(uncovered, poiID)
			}
		}
	}

	if len(uncovered) > 0 && len(coverSet) == 0 && len(n.pois) > 0 {
		n.log.Warn(ctx, "could not form any cover set",
			logging.Int("round", n.CurrentRound),
			logging.Int("uncovered", len(uncovered)))
		n.coverageLost = true
		return nil, 0, false
	}

	trimmed := n.trimCoverSet(coverSet)
	if len(trimmed) == 0 && len(n.pois) > 0 {
		n.log.Warn(ctx, "trimmed cover set empty with pois present",
			logging.Int("round", n.CurrentRound))
		n.coverageLost = true
		return nil, 0, false
	}

	// Connectivity repair: activate bridges until every coverer reaches
	// the sink or no bridge helps.
	activeSet := make(map[int]struct{}, len(trimmed)+1)
	for id := range trimmed {
		activeSet[id] = struct{}{}
	}
	if n.sink != nil && !n.sink.IsFailed {
		activeSet[n.params.SinkID] = struct{}{}
	}

	bridges := make(map[int]struct{})
	for loop := 0; loop < len(n.sensors); loop++ {
		disconnected := make([]int, 0)
		for _, id := range sortedSetIDs(trimmed) {
			if !n.isConnectedToSink(id, activeSet) {
				disconnected = append(disconnected, id)
			}
		}
		if len(disconnected) == 0 {
			break
		}
		activatedAny := false
		for _, targetID := range disconnected {
			if n.isConnectedToSink(targetID, activeSet) {
				continue
			}
			bridgeID, utility, ok := n.selectBridge(targetID, activeSet)
			if !ok {
				continue
			}
			n.log.Info(ctx, "activating bridge sensor",
				logging.Int("round", n.CurrentRound),
				logging.Int("bridge_id", bridgeID),
				logging.Int("connects", targetID),
				logging.Float64("utility", utility))
			activeSet[bridgeID] = struct{}{}
			bridges[bridgeID] = struct{}{}
			activatedAny = true
			break
		}
		if !activatedAny {
			n.log.Warn(ctx, "no further bridges available",
				logging.Int("round", n.CurrentRound),
				logging.Int("disconnected", len(disconnected)))
			break
		}
	}

	if len(n.pois) > 0 {
		for id := range trimmed {
			if !n.isConnectedToSink(id, activeSet) {
				n.log.Error(ctx, "coverer still disconnected from sink",
					logging.Int("round", n.CurrentRound),
					logging.Int("sensor_id", id))
				n.coverageLost = true
				return nil, 0, false
			}
		}
	}

	operational := make(map[int]struct{}, len(trimmed)+len(bridges))
	for id := range trimmed {
		operational[id] = struct{}{}
	}
	for id := range bridges {
		operational[id] = struct{}{}
	}
	delete(operational, n.params.SinkID)

	if len(operational) == 0 && len(n.pois) > 0 {
		n.log.Warn(ctx, "operational cover set empty with pois present",
			logging.Int("round", n.CurrentRound))
		n.coverageLost = true
		return nil, 0, false
	}

	workingTime := 0.0
	if len(operational) > 0 {
		minEnergy := 0.0
		first := true
		for id := range operational {
			s := n.sensors[id]
			if s == nil || s.CurrentEnergy <= 1e-9 {
				continue
			}
			if first || s.CurrentEnergy < minEnergy {
				minEnergy = s.CurrentEnergy
				first = false
			}
		}
		if first {
			minEnergy = 0
		}
		workingTime = math.Min(n.params.WorkingTimeSlice, minEnergy)
		if workingTime < 1e-9 {
			workingTime = 0
		}
	}

	n.rewardCoverSet(ctx, operational)

	return operational, workingTime, true
}

// rewardCoverSet decides whether the operational set beats the best set
// seen so far (by cardinality or total remaining energy, per config) and
// applies the reward to each member's automaton. A member whose every
// covered POI is also advertised by another set member is locally
// redundant and is denied the reward even when the set as a whole earned
// it.
func (n *Network) rewardCoverSet(ctx context.Context, operational map[int]struct{}) {
	if len(operational) == 0 {
		return
	}

	rewardSet := false
	switch n.params.RewardMethod {
	case RewardCardinality:
		cardinality := float64(len(operational))
		if cardinality <= n.minObservedCardinality {
			rewardSet = true
			if cardinality < n.minObservedCardinality {
				n.minObservedCardinality = cardinality
				n.log.Info(ctx, "new best cover set cardinality",
					logging.Int("round", n.CurrentRound),
					logging.Int("cardinality", len(operational)))
			}
		}
	case RewardEnergy:
		total := 0.0
		for id := range operational {
			if s := n.sensors[id]; s != nil {
				total += s.CurrentEnergy
			}
		}
		if total >= n.maxObservedCSEnergy {
			rewardSet = true
			if total > n.maxObservedCSEnergy {
				n.maxObservedCSEnergy = total
				n.log.Info(ctx, "new best cover set energy",
					logging.Int("round", n.CurrentRound),
					logging.Float64("total_energy", total))
			}
		}
	}

	for _, id := range sortedSetIDs(operational) {
		s := n.sensors[id]
		if s == nil || s.Automaton == nil {
			continue
		}
		signal := rewardSet
		if rewardSet && n.memberLocallyRedundant(s, operational) {
			signal = false
		}
		s.Automaton.Reward(signal)
	}
}

// memberLocallyRedundant reports whether every POI the member covers (per
// the global coverage state) is also advertised by some other member of
// the operational set. Pure bridges cover nothing and are never redundant.
func (n *Network) memberLocallyRedundant(s *Sensor, operational map[int]struct{}) bool {
	var coveredPOIs []int
	for _, p := range n.pois {
		if p.CoveredBy(s.ID) {
			coveredPOIs = append(coveredPOIs, p.ID)
		}
	}
	if len(coveredPOIs) == 0 {
		return false
	}
	for _, poiID := range coveredPOIs {
		alsoCovered := false
		for _, nbID := range s.AdvertisedNeighborIDs() {
			if nbID == s.ID {
				continue
			}
			if _, in := operational[nbID]; !in {
				continue
			}
			if s.NeighborCovers(nbID, poiID) {
				alsoCovered = true
				break
			}
		}
		if !alsoCovered {
			return false
		}
	}
	return true
}
