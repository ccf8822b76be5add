package core

import "fmt"

// POI is a point of interest requiring k-coverage. CriticalLevel is the
// required number k of simultaneous active coverers.
type POI struct {
	ID            int
	Pos           Point
	CriticalLevel int

	// coveredBy holds the IDs of active sensors currently sensing this
	// POI; rebuilt by the network each time coverage is recomputed.
	coveredBy map[int]struct{}
}

// NewPOI constructs an uncovered POI.
func NewPOI(id int, pos Point, criticalLevel int) *POI {
	return &POI{
		ID:            id,
		Pos:           pos,
		CriticalLevel: criticalLevel,
		coveredBy:     make(map[int]struct{}),
	}
}

// ResetCoverage clears the coverer set before a recompute.
func (p *POI) ResetCoverage() {
	p.coveredBy = make(map[int]struct{})
}

// AddCoverer records an active sensor as covering this POI.
func (p *POI) AddCoverer(sensorID int) {
	p.coveredBy[sensorID] = struct{}{}
}

// IsCovered reports whether at least one active sensor covers the POI.
func (p *POI) IsCovered() bool {
	return len(p.coveredBy) > 0
}

// CoverageCount returns the number of active coverers.
func (p *POI) CoverageCount() int {
	return len(p.coveredBy)
}

// CoveredBy reports whether the given sensor is among the coverers.
func (p *POI) CoveredBy(sensorID int) bool {
	_, ok := p.coveredBy[sensorID]
	return ok
}

// CovererIDs returns the coverer IDs in unspecified order.
func (p *POI) CovererIDs() []int {
	ids := make([]int, 0, len(p.coveredBy))
	for id := range p.coveredBy {
		ids = append(ids, id)
	}
	return ids
}

func (p *POI) String() string {
	return fmt.Sprintf("POI(id=%d, k=%d, covered=%d)", p.ID, p.CriticalLevel, len(p.coveredBy))
}
