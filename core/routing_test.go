package core

import "testing"

// lineTopology builds sensors 0..n-1 spaced 10 apart on the x axis with
// neighbor lists wired for the given comm range.
func lineTopology(n int, commRange float64) map[int]*Sensor {
	sensors := make(map[int]*Sensor, n)
	for i := 0; i < n; i++ {
		s := NewSensor(i, Point{X: float64(i) * 10}, 100, commRange, 15, -1, 0.1)
		s.State = StateActive
		sensors[i] = s
	}
	for _, s := range sensors {
		for _, other := range sensors {
			if other.ID != s.ID && s.DistanceTo(other.Pos) <= s.CommRange {
				s.Neighbors = append(s.Neighbors, other.ID)
			}
		}
	}
	return sensors
}

func usableSet(ids ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func pathEquals(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFindPathLineTopology(t *testing.T) {
	sensors := lineTopology(4, 15)
	r := NewRouter()

	path := r.FindPathToSink(sensors, usableSet(0, 1, 2, 3), 0, 3)
	if !pathEquals(path, []int{0, 1, 2, 3}) {
		t.Fatalf("path = %v, want [0 1 2 3]", path)
	}
}

func TestFindPathPrefersHighEnergyRelay(t *testing.T) {
	// Two relays at the same position; the drained one prices its inbound
	// edge higher through the 1/energy term.
	sensors := lineTopology(2, 30)
	strong := NewSensor(2, Point{X: 10, Y: 5}, 100, 30, 15, -1, 0.1)
	strong.State = StateActive
	weak := NewSensor(3, Point{X: 10, Y: 5}, 100, 30, 15, -1, 0.1)
	weak.State = StateActive
	weak.CurrentEnergy = 0.5
	sensors[2] = strong
	sensors[3] = weak
	sink := NewSensor(4, Point{X: 20, Y: 10}, 100, 30, 15, 4, 0.1)
	sensors[4] = sink

	for _, s := range sensors {
		s.Neighbors = nil
		for _, other := range sensors {
			if other.ID != s.ID && s.DistanceTo(other.Pos) <= s.CommRange {
				s.Neighbors = append(s.Neighbors, other.ID)
			}
		}
	}
	// Force a relay hop: the source cannot see the sink directly.
	src := sensors[0]
	trimmed := src.Neighbors[:0]
	for _, id := range src.Neighbors {
		if id != 4 {
			trimmed = append(trimmed, id)
		}
	}
	src.Neighbors = trimmed

	r := NewRouter()
	path := r.FindPathToSink(sensors, usableSet(0, 2, 3, 4), 0, 4)
	if !pathEquals(path, []int{0, 2, 4}) {
		t.Fatalf("path = %v, want relay through high-energy sensor 2", path)
	}
}

func TestFindPathUnreachableSink(t *testing.T) {
	sensors := lineTopology(4, 15)
	r := NewRouter()

	// Excluding the middle hops partitions the line.
	if path := r.FindPathToSink(sensors, usableSet(0, 3), 0, 3); path != nil {
		t.Fatalf("path = %v, want nil for a partitioned network", path)
	}
	if path := r.FindPathToSink(sensors, usableSet(1, 2, 3), 0, 3); path != nil {
		t.Fatalf("path = %v, want nil when the start is not usable", path)
	}
	if path := r.FindPathToSink(sensors, usableSet(0, 1, 2), 0, 3); path != nil {
		t.Fatalf("path = %v, want nil when the sink is not usable", path)
	}
}

func TestFindPathStartIsSink(t *testing.T) {
	sensors := lineTopology(1, 15)
	r := NewRouter()

	path := r.FindPathToSink(sensors, usableSet(0), 0, 0)
	if !pathEquals(path, []int{0}) {
		t.Fatalf("path = %v, want [0]", path)
	}

	// The degenerate case only consults the sink's own state, not the
	// usable set.
	if path := r.FindPathToSink(sensors, usableSet(), 0, 0); !pathEquals(path, []int{0}) {
		t.Fatalf("path = %v, want [0] even outside the usable set", path)
	}

	sensors[0].State = StateSleep
	if path := r.FindPathToSink(sensors, usableSet(0), 0, 0); path != nil {
		t.Fatalf("path = %v, want nil for a non-active sink", path)
	}
	sensors[0].State = StateActive
	sensors[0].IsFailed = true
	if path := r.FindPathToSink(sensors, usableSet(0), 0, 0); path != nil {
		t.Fatalf("path = %v, want nil for a failed sink", path)
	}
}
