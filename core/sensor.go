package core

import (
	"fmt"
	"math"
)

// SensorState is the operational state of a sensor node.
type SensorState string

const (
	StateActive SensorState = "ACTIVE"
	StateSleep  SensorState = "SLEEP"
	StateDead   SensorState = "DEAD"
)

// NoParent marks an unknown next hop toward the sink.
const NoParent = -1

// Sensor is a single node of the network. Sensors are owned exclusively by
// the Network arena and refer to each other by integer ID; neighbor and
// parent relationships are ID values resolved through the owning Network on
// demand, never direct references.
type Sensor struct {
	ID            int
	Pos           Point
	InitialEnergy float64
	CurrentEnergy float64
	CommRange     float64
	SensingRange  float64
	State         SensorState
	IsSink        bool
	IsFailed      bool

	// Automaton is nil for the sink.
	Automaton *Automaton

	// Transient topology, recomputed on discovery; not persisted across
	// topology changes.
	Neighbors     []int
	MonitoredPOIs []int

	// ParentToSink is the last next hop chosen by the router; advisory
	// only and may be stale. NoParent when unknown.
	ParentToSink int

	// Buffer holds packets awaiting forwarding, oldest first.
	Buffer []*Packet

	// neighborPOICoverage maps neighbor ID to the POI IDs that neighbor
	// advertised as covering; lastHeardFrom records the round of the most
	// recent advertisement.
	neighborPOICoverage map[int]map[int]struct{}
	lastHeardFrom       map[int]int

	isCritical bool
}

// NewSensor constructs a sensor. A sensor whose ID equals sinkID becomes
// the base station: always active, infinite energy, no automaton.
func NewSensor(id int, pos Point, initialEnergy, commRange, sensingRange float64, sinkID int, learningRate float64) *Sensor {
	s := &Sensor{
		ID:                  id,
		Pos:                 pos,
		InitialEnergy:       initialEnergy,
		CurrentEnergy:       initialEnergy,
		CommRange:           commRange,
		SensingRange:        sensingRange,
		State:               StateSleep,
		IsSink:              id == sinkID,
		ParentToSink:        NoParent,
		neighborPOICoverage: make(map[int]map[int]struct{}),
		lastHeardFrom:       make(map[int]int),
	}
	if s.IsSink {
		s.State = StateActive
		s.CurrentEnergy = math.Inf(1)
	} else {
		s.Automaton = NewAutomaton(learningRate)
	}
	return s
}

// DistanceTo returns the Euclidean distance to a position.
func (s *Sensor) DistanceTo(pos Point) float64 {
	return s.Pos.DistanceTo(pos)
}

// CanCommunicateWith reports whether a link to other is topologically
// possible: both sensors intact and other within this sensor's comm range.
// It deliberately ignores ACTIVE/SLEEP state; it describes potential, not
// current, reachability.
func (s *Sensor) CanCommunicateWith(other *Sensor) bool {
	if s.IsFailed || other.IsFailed {
		return false
	}
	return s.ID != other.ID && s.DistanceTo(other.Pos) <= s.CommRange
}

// CanSensePOI reports whether the sensor could observe the POI if active:
// not failed, not dead, and the POI within sensing range.
func (s *Sensor) CanSensePOI(p *POI) bool {
	if s.IsFailed || s.State == StateDead {
		return false
	}
	return s.DistanceTo(p.Pos) <= s.SensingRange
}

// DebitEnergy subtracts an energy amount, transitioning to DEAD when the
// reserve is exhausted. The sink and already-dead sensors are untouched.
func (s *Sensor) DebitEnergy(amount float64) {
	if s.IsSink || s.State == StateDead {
		return
	}
	s.CurrentEnergy -= amount
	if s.CurrentEnergy <= 0 {
		s.CurrentEnergy = 0
		s.State = StateDead
	}
}

// DebitSleepCost charges the fixed sleep-state cost for one round.
func (s *Sensor) DebitSleepCost() {
	s.DebitEnergy(SleepCost)
}

// EnergyRatio returns the remaining energy as a fraction of the initial
// reserve. The sink reports 1.
func (s *Sensor) EnergyRatio() float64 {
	if s.IsSink {
		return 1
	}
	if s.InitialEnergy <= 0 {
		return 0
	}
	return s.CurrentEnergy / s.InitialEnergy
}

// HandleBroadcast implements BroadcastHandler. Coverage advertisements
// update the local view of which POIs each neighbor covers.
func (s *Sensor) HandleBroadcast(senderID int, msg BroadcastMessage, round int) {
	switch msg.Type {
	case MsgPOICoverageAd:
		covered := make(map[int]struct{}, len(msg.CoveredPOIIDs))
		for _, id := range msg.CoveredPOIIDs {
			covered[id] = struct{}{}
		}
		s.neighborPOICoverage[senderID] = covered
		s.lastHeardFrom[senderID] = round
	case MsgNeighborAnnouncement:
		// Reserved; announcements carry no state yet.
	}
}

// NeighborCovers reports whether, per the last advertisement heard,
// neighbor covers the given POI.
func (s *Sensor) NeighborCovers(neighborID, poiID int) bool {
	covered, ok := s.neighborPOICoverage[neighborID]
	if !ok {
		return false
	}
	_, ok = covered[poiID]
	return ok
}

// AdvertisedNeighborIDs returns the IDs of neighbors this sensor has heard
// a coverage advertisement from, in unspecified order.
func (s *Sensor) AdvertisedNeighborIDs() []int {
	ids := make([]int, 0, len(s.neighborPOICoverage))
	for id := range s.neighborPOICoverage {
		ids = append(ids, id)
	}
	return ids
}

// LastHeardFrom returns the round the neighbor's advertisement was last
// received, and whether one was ever heard.
func (s *Sensor) LastHeardFrom(neighborID int) (int, bool) {
	r, ok := s.lastHeardFrom[neighborID]
	return r, ok
}

func (s *Sensor) String() string {
	if s.IsSink {
		return fmt.Sprintf("Sensor(id=%d, S:%s) (SINK)", s.ID, s.State)
	}
	return fmt.Sprintf("Sensor(id=%d, E:%.2f, S:%s, P(A):%.2f)",
		s.ID, s.CurrentEnergy, s.State, s.Automaton.ProbActive())
}
