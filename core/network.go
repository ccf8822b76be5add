package core

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/oliwiapietka/LASensorNetwork/internal/logging"
	"github.com/oliwiapietka/LASensorNetwork/model"
)

// RewardMethod selects how cover sets are judged for automaton reward.
type RewardMethod string

const (
	RewardCardinality RewardMethod = "cardinality"
	RewardEnergy      RewardMethod = "energy"
)

// Params carries the per-network simulation parameters. Zero values are
// normalized to defaults by NewNetwork.
type Params struct {
	Width                float64
	Height               float64
	SinkID               int
	PacketLossProb       float64
	SensorFailureProb    float64
	LearningRate         float64
	RewardMethod         RewardMethod
	KCoverageLevel       int
	POIBroadcastInterval int
	WorkingTimeSlice     float64
	PerHopDelay          float64
}

func (p Params) withDefaults() Params {
	if p.KCoverageLevel < 1 {
		p.KCoverageLevel = 1
	}
	if p.POIBroadcastInterval < 1 {
		p.POIBroadcastInterval = 5
	}
	if p.WorkingTimeSlice <= 0 {
		p.WorkingTimeSlice = 0.5
	}
	if p.LearningRate <= 0 {
		p.LearningRate = 0.1
	}
	if p.RewardMethod == "" {
		p.RewardMethod = RewardCardinality
	}
	return p
}

// Network is the simulated sensor network: the sensor arena, the POIs, the
// shared channel, and the round pipeline state. All sensors live in the
// arena map and are referenced by ID everywhere else.
type Network struct {
	params  Params
	sensors map[int]*Sensor
	pois    []*POI
	poiByID map[int]*POI
	sink    *Sensor

	channel *Channel
	router  *Router
	rng     *rand.Rand
	log     logging.Logger

	CurrentRound          int
	TotalPacketsGenerated int
	TotalPacketsDelivered int
	TotalLatency          float64

	// Reward thresholds, tightened as better cover sets are observed.
	minObservedCardinality float64
	maxObservedCSEnergy    float64

	firstRound   bool
	coverageLost bool
}

// NewNetwork creates an empty network. rng is the single simulation-wide
// source shared by the channel, fault injection, and the automata.
func NewNetwork(params Params, rng *rand.Rand, log logging.Logger) *Network {
	if log == nil {
		log = logging.Noop()
	}
	params = params.withDefaults()
	return &Network{
		params:                 params,
		sensors:                make(map[int]*Sensor),
		poiByID:                make(map[int]*POI),
		channel:                NewChannel(params.PacketLossProb, params.PerHopDelay, rng),
		router:                 NewRouter(),
		rng:                    rng,
		log:                    log,
		minObservedCardinality: math.Inf(1),
		maxObservedCSEnergy:    math.Inf(-1),
		firstRound:             true,
	}
}

// DeploySensors places sensors from the given records, clamping positions
// into the simulation area, then discovers the initial topology.
func (n *Network) DeploySensors(records []model.SensorRecord) {
	for _, rec := range records {
		pos := Point{X: rec.X, Y: rec.Y}.Clamp(n.params.Width, n.params.Height)
		lr := rec.LearningRate
		if lr <= 0 {
			lr = n.params.LearningRate
		}
		s := NewSensor(rec.ID, pos, rec.InitialEnergy, rec.CommRange, rec.SensingRange, n.params.SinkID, lr)
		n.sensors[s.ID] = s
		if s.IsSink {
			n.sink = s
		}
	}
	n.discoverTopology()
}

// DeployPOIs places POIs from the given records and refreshes each live
// sensor's view of which POIs it could monitor.
func (n *Network) DeployPOIs(records []model.POIRecord) {
	for _, rec := range records {
		k := rec.CriticalLevel
		if k < 1 {
			k = 1
		}
		p := NewPOI(rec.ID, Point{X: rec.X, Y: rec.Y}, k)
		n.pois = append(n.pois, p)
		n.poiByID[p.ID] = p
	}
	for _, s := range n.sensors {
		if s.IsFailed || s.State == StateDead {
			continue
		}
		s.MonitoredPOIs = s.MonitoredPOIs[:0]
		for _, p := range n.pois {
			if s.CanSensePOI(p) {
				s.MonitoredPOIs = append(s.MonitoredPOIs, p.ID)
			}
		}
	}
}

// Sensor returns the sensor with the given ID, or nil.
func (n *Network) Sensor(id int) *Sensor { return n.sensors[id] }

// Sensors exposes the sensor arena. Callers must not add or remove entries.
func (n *Network) Sensors() map[int]*Sensor { return n.sensors }

// POIs returns the deployed POIs in deployment order.
func (n *Network) POIs() []*POI { return n.pois }

// POI returns the POI with the given ID, or nil.
func (n *Network) POI(id int) *POI { return n.poiByID[id] }

// SinkID returns the configured base station ID.
func (n *Network) SinkID() int { return n.params.SinkID }

// Params returns the normalized network parameters.
func (n *Network) Params() Params { return n.params }

// CoverageLost reports whether a monitoring phase has concluded that the
// required coverage can no longer be maintained. The flag is sticky.
func (n *Network) CoverageLost() bool { return n.coverageLost }

// sortedSensorIDs returns all sensor IDs ascending. Phase logic iterates in
// this order so runs with the same seed are reproducible.
func (n *Network) sortedSensorIDs() []int {
	ids := make([]int, 0, len(n.sensors))
	for id := range n.sensors {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// discoverTopology rebuilds neighbor lists and monitorable-POI lists for
// every intact sensor. Potential links ignore ACTIVE/SLEEP state; dead and
// failed sensors get empty lists and appear in nobody's list.
func (n *Network) discoverTopology() {
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		s.Neighbors = s.Neighbors[:0]
		s.MonitoredPOIs = s.MonitoredPOIs[:0]
		if s.IsFailed || s.State == StateDead {
			continue
		}
		for _, otherID := range n.sortedSensorIDs() {
			if otherID == id {
				continue
			}
			if s.CanCommunicateWith(n.sensors[otherID]) {
				s.Neighbors = append(s.Neighbors, otherID)
			}
		}
		for _, p := range n.pois {
			if s.CanSensePOI(p) {
				s.MonitoredPOIs = append(s.MonitoredPOIs, p.ID)
			}
		}
	}
}

// injectFaults rolls the per-round permanent failure chance for every
// ordinary live sensor. Any failure invalidates the topology.
func (n *Network) injectFaults(ctx context.Context) {
	failed := false
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if s.IsSink || s.IsFailed || s.State == StateDead {
			continue
		}
		if n.rng.Float64() < n.params.SensorFailureProb {
			s.IsFailed = true
			s.State = StateDead
			failed = true
			n.log.Info(ctx, "sensor failed permanently",
				logging.Int("round", n.CurrentRound), logging.Int("sensor_id", s.ID))
		}
	}
	if failed {
		n.discoverTopology()
	}
}

// aliveNonSinkEnergy sums remaining energy over intact non-sink sensors.
func (n *Network) aliveNonSinkEnergy() float64 {
	total := 0.0
	for _, s := range n.sensors {
		if s.IsSink || s.IsFailed || s.State == StateDead || s.CurrentEnergy <= 0 {
			continue
		}
		total += s.CurrentEnergy
	}
	return total
}

// learningPhase biases every automaton toward ACTIVE in proportion to the
// sensor's share of the network's remaining energy.
func (n *Network) learningPhase() {
	total := n.aliveNonSinkEnergy()
	for _, s := range n.sensors {
		if s.Automaton == nil {
			continue
		}
		if total <= 1e-9 {
			s.Automaton.SetFromEnergyRatio(0)
			continue
		}
		ratio := 0.0
		if s.CurrentEnergy > 0 {
			ratio = s.CurrentEnergy / total
		}
		s.Automaton.SetFromEnergyRatio(ratio)
	}
}

// setupPhase runs once, in the first round: automata reset to the
// indifferent distribution, the topology is discovered, and the reward
// thresholds are initialized so the first viable cover set gets rewarded.
func (n *Network) setupPhase() {
	for _, s := range n.sensors {
		if s.Automaton != nil {
			s.Automaton.Reset()
		}
	}
	n.discoverTopology()
	n.minObservedCardinality = math.Inf(1)
	n.maxObservedCSEnergy = 0
	n.firstRound = false
}

// updatePhase applies the monitoring outcome: cover-set members pay the
// working time W and go ACTIVE, everyone else sleeps and pays the sleep
// cost. Death by exhaustion or failure wins over any scheduled state.
func (n *Network) updatePhase(coverSet map[int]struct{}, workingTime float64) {
	if len(coverSet) > 0 && workingTime > 1e-9 {
		for id := range coverSet {
			if s := n.sensors[id]; s != nil {
				s.DebitEnergy(workingTime)
			}
		}
	}
	for id, s := range n.sensors {
		if s.IsSink {
			s.State = StateActive
			continue
		}
		if s.IsFailed || s.CurrentEnergy <= 1e-9 {
			s.State = StateDead
			continue
		}
		if _, in := coverSet[id]; in {
			s.State = StateActive
		} else {
			s.State = StateSleep
			s.DebitSleepCost()
		}
	}
}

// activeSensorIDs returns the IDs of intact ACTIVE sensors, optionally
// excluding the sink.
func (n *Network) activeSensorIDs(includeSink bool) map[int]struct{} {
	ids := make(map[int]struct{})
	for id, s := range n.sensors {
		if s.State != StateActive || s.IsFailed {
			continue
		}
		if s.IsSink && !includeSink {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}

// UpdatePOICoverage rebuilds each POI's coverer set from the given active
// IDs, or from the current sensor states when activeIDs is nil.
func (n *Network) UpdatePOICoverage(activeIDs map[int]struct{}) {
	if activeIDs == nil {
		activeIDs = n.activeSensorIDs(true)
	}
	for _, p := range n.pois {
		p.ResetCoverage()
		for id := range activeIDs {
			s := n.sensors[id]
			if s != nil && !s.IsFailed && s.CanSensePOI(p) {
				p.AddCoverer(id)
			}
		}
	}
}

// poiCoverageMap counts, per POI, how many of the given sensors cover it.
func (n *Network) poiCoverageMap(sensorIDs map[int]struct{}) map[int]int {
	counts := make(map[int]int, len(n.pois))
	for _, p := range n.pois {
		counts[p.ID] = 0
		for id := range sensorIDs {
			s := n.sensors[id]
			if s != nil && !s.IsFailed && s.CanSensePOI(p) {
				counts[p.ID]++
			}
		}
	}
	return counts
}

// broadcastCoverageAds has every intact ACTIVE non-sink sensor advertise
// the POIs it currently covers. Runs only on rounds matching the
// configured interval; sensors covering nothing stay silent.
func (n *Network) broadcastCoverageAds(ctx context.Context) {
	if n.CurrentRound%n.params.POIBroadcastInterval != 0 {
		return
	}
	n.log.Debug(ctx, "broadcasting poi coverage advertisements",
		logging.Int("round", n.CurrentRound))
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if s.State != StateActive || s.IsSink || s.IsFailed {
			continue
		}
		var covered []int
		for _, p := range n.pois {
			if p.CoveredBy(id) {
				covered = append(covered, p.ID)
			}
		}
		if len(covered) == 0 {
			continue
		}
		neighbors := make([]*Sensor, 0, len(s.Neighbors))
		for _, nbID := range s.Neighbors {
			neighbors = append(neighbors, n.sensors[nbID])
		}
		delivered := n.channel.Broadcast(s, neighbors, BroadcastMessage{
			Type:          MsgPOICoverageAd,
			CoveredPOIIDs: covered,
		}, n.CurrentRound)
		n.log.Debug(ctx, "coverage advertisement sent",
			logging.Int("round", n.CurrentRound),
			logging.Int("sensor_id", id),
			logging.Int("delivered", delivered))
	}
}

// generateReports has each intact ACTIVE non-sink sensor emit at most one
// report per round: the first monitored POI that meets the k-coverage
// requirement under the current active set.
func (n *Network) generateReports() {
	activeIDs := n.activeSensorIDs(true)
	counts := n.poiCoverageMap(activeIDs)
	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if s.State != StateActive || s.IsFailed || s.IsSink {
			continue
		}
		for _, poiID := range s.MonitoredPOIs {
			p := n.poiByID[poiID]
			if p == nil || !s.CanSensePOI(p) {
				continue
			}
			if counts[poiID] < n.params.KCoverageLevel {
				continue
			}
			pkt := NewPacket(id, n.params.SinkID, DataPOIReport, ReportPayload{
				POIID:         poiID,
				ReporterID:    id,
				CoverageCount: counts[poiID],
				Round:         n.CurrentRound,
			}, n.CurrentRound)
			s.Buffer = append(s.Buffer, pkt)
			n.TotalPacketsGenerated++
			break
		}
	}
}

// routeToSink attempts to forward every buffered packet one hop along the
// current least-cost path. Packets that fail to send stay buffered for the
// next round; packets not addressed to the sink are dropped.
func (n *Network) routeToSink(ctx context.Context) {
	usable := n.activeSensorIDs(false)
	if n.sink != nil && n.sink.State == StateActive && !n.sink.IsFailed {
		usable[n.params.SinkID] = struct{}{}
	}
	if len(usable) == 0 {
		n.log.Warn(ctx, "no active sensors for routing", logging.Int("round", n.CurrentRound))
		return
	}

	for _, id := range n.sortedSensorIDs() {
		s := n.sensors[id]
		if s.IsSink || s.State != StateActive || s.IsFailed || len(s.Buffer) == 0 {
			continue
		}

		retained := s.Buffer[:0]
		pending := s.Buffer
		s.Buffer = nil
		for _, pkt := range pending {
			if pkt.DestinationID != n.params.SinkID {
				continue
			}
			path := n.router.FindPathToSink(n.sensors, usable, id, n.params.SinkID)
			if len(path) < 2 {
				s.ParentToSink = NoParent
				n.log.Warn(ctx, "no route to sink",
					logging.Int("round", n.CurrentRound),
					logging.Int("sensor_id", id),
					logging.String("packet_id", pkt.ID))
				retained = append(retained, pkt)
				continue
			}
			nextHop := path[1]
			s.ParentToSink = nextHop
			pkt.NextHopID = nextHop

			sent, reason := n.channel.SendUnicast(s, n.sensors[nextHop], nextHop, pkt)
			if !sent {
				n.log.Debug(ctx, "packet send failed",
					logging.Int("round", n.CurrentRound),
					logging.Int("sensor_id", id),
					logging.Int("next_hop", nextHop),
					logging.String("reason", string(reason)))
				retained = append(retained, pkt)
				continue
			}
			if nextHop == n.params.SinkID {
				n.TotalPacketsDelivered++
				n.TotalLatency += float64(n.CurrentRound-pkt.CreationRound) + pkt.Latency
				n.log.Debug(ctx, "packet delivered to sink",
					logging.Int("round", n.CurrentRound),
					logging.String("packet_id", pkt.ID),
					logging.Int("source", pkt.SourceID))
			}
		}
		s.Buffer = retained
	}
}

// CalculateQCoverage returns the fraction of POIs covered by at least the
// required k active sensors. A network without POIs counts as fully
// covered.
func (n *Network) CalculateQCoverage() float64 {
	if len(n.pois) == 0 {
		return 1.0
	}
	met := 0
	for _, p := range n.pois {
		if p.CoverageCount() >= n.params.KCoverageLevel {
			met++
		}
	}
	return float64(met) / float64(len(n.pois))
}

// NetworkLifetime returns the current round if the network stopped being
// functional this round (every sensor dead, or no ACTIVE sensors at all),
// and false otherwise.
func (n *Network) NetworkLifetime() (int, bool) {
	allDead := true
	anyActive := false
	for _, s := range n.sensors {
		if s.State != StateDead {
			allDead = false
		}
		if s.State == StateActive {
			anyActive = true
		}
	}
	if allDead || !anyActive {
		return n.CurrentRound, true
	}
	return 0, false
}

// RunOneRound advances the simulation one round through the full pipeline
// and returns the round's statistics.
func (n *Network) RunOneRound(ctx context.Context) RoundStats {
	n.CurrentRound++
	n.log.Debug(ctx, "round start", logging.Int("round", n.CurrentRound))

	if n.firstRound {
		n.setupPhase()
	}
	n.injectFaults(ctx)
	n.learningPhase()

	coverSet, workingTime, formed := n.monitoringPhase(ctx)

	n.updatePhase(coverSet, workingTime)

	n.UpdatePOICoverage(n.activeSensorIDs(true))
	n.broadcastCoverageAds(ctx)

	if n.coverageLost {
		n.log.Warn(ctx, "coverage lost", logging.Int("round", n.CurrentRound))
	}

	switch {
	case len(n.pois) == 0:
		n.log.Debug(ctx, "no pois, skipping reporting and routing",
			logging.Int("round", n.CurrentRound))
	case formed:
		n.generateReports()
		n.routeToSink(ctx)
	default:
		n.log.Warn(ctx, "no cover set formed, skipping reporting and routing",
			logging.Int("round", n.CurrentRound))
	}

	stats := n.CollectRoundStats()
	n.log.Info(ctx, "round finished",
		logging.Int("round", stats.Round),
		logging.Int("active_sensors", stats.ActiveSensors),
		logging.Float64("coverage_q", stats.CoverageQ),
		logging.Float64("pdr", stats.PDR))
	return stats
}
