package core

import (
	"container/heap"
	"math"
)

const (
	energyWeightFactor   = 1.0
	transmitWeightFactor = 0.1
)

// Router computes energy-aware shortest paths to the sink. Edge cost favors
// next hops with high remaining energy and penalizes long radio links.
type Router struct{}

// NewRouter returns a Router.
func NewRouter() *Router { return &Router{} }

// edgeWeight prices the hop from any sensor to dst over the given distance.
// A drained dst makes the hop infinitely expensive rather than forbidden.
func edgeWeight(dst *Sensor, distance float64) float64 {
	energyTerm := math.Inf(1)
	if dst.CurrentEnergy > 0 {
		energyTerm = 1 / dst.CurrentEnergy
	}
	return energyWeightFactor*energyTerm + transmitWeightFactor*TransmitCost(distance)
}

type routeItem struct {
	sensorID int
	cost     float64
	seq      int
	index    int
}

type routeQueue []*routeItem

func (q routeQueue) Len() int { return len(q) }

func (q routeQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].seq < q[j].seq
}

func (q routeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *routeQueue) Push(x any) {
	item := x.(*routeItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *routeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// FindPathToSink runs Dijkstra from startID to sinkID over the sensors in
// usable, returning the hop sequence including both endpoints, or nil when
// the sink is unreachable. Only IDs present in usable participate; cost
// ties break by insertion order into the frontier so runs are
// reproducible. A start that is already the sink yields a single-element
// path whenever the sink itself is intact and ACTIVE, even when the
// usable set omits it.
func (r *Router) FindPathToSink(sensors map[int]*Sensor, usable map[int]struct{}, startID, sinkID int) []int {
	if startID == sinkID {
		s := sensors[startID]
		if s == nil || s.IsFailed || s.State != StateActive {
			return nil
		}
		return []int{startID}
	}
	if _, ok := usable[startID]; !ok {
		return nil
	}
	if _, ok := usable[sinkID]; !ok {
		return nil
	}

	dist := map[int]float64{startID: 0}
	prev := make(map[int]int)
	visited := make(map[int]struct{})

	seq := 0
	q := &routeQueue{}
	heap.Init(q)
	heap.Push(q, &routeItem{sensorID: startID, cost: 0, seq: seq})

	for q.Len() > 0 {
		item := heap.Pop(q).(*routeItem)
		u := item.sensorID
		if _, done := visited[u]; done {
			continue
		}
		visited[u] = struct{}{}
		if u == sinkID {
			break
		}
		su := sensors[u]
		if su == nil {
			continue
		}
		for _, vID := range su.Neighbors {
			if _, ok := usable[vID]; !ok {
				continue
			}
			if _, done := visited[vID]; done {
				continue
			}
			sv := sensors[vID]
			if sv == nil {
				continue
			}
			w := edgeWeight(sv, su.DistanceTo(sv.Pos))
			alt := item.cost + w
			if cur, seen := dist[vID]; !seen || alt < cur {
				dist[vID] = alt
				prev[vID] = u
				seq++
				heap.Push(q, &routeItem{sensorID: vID, cost: alt, seq: seq})
			}
		}
	}

	if _, reached := visited[sinkID]; !reached {
		return nil
	}

	path := []int{sinkID}
	for cur := sinkID; cur != startID; {
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		path = append(path, p)
		cur = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
