package core

import "github.com/google/uuid"

// DataType distinguishes packet kinds on the data plane.
type DataType string

const (
	DataPOIReport DataType = "POI_REPORT"
)

// ReportPayload is the body of a POI_REPORT packet.
type ReportPayload struct {
	POIID         int
	ReporterID    int
	CoverageCount int
	Round         int
}

// Packet is a unit of data-plane traffic. PathTaken accumulates the IDs of
// hops that received the packet; Latency accumulates per-hop delay.
type Packet struct {
	ID            string
	SourceID      int
	DestinationID int
	CurrentHopID  int
	NextHopID     int
	DataType      DataType
	Payload       ReportPayload
	PathTaken     []int
	Latency       float64
	CreationRound int
}

// NewPacket creates a packet originating at source. The path starts with
// the source itself.
func NewPacket(sourceID, destinationID int, dataType DataType, payload ReportPayload, round int) *Packet {
	return &Packet{
		ID:            uuid.NewString(),
		SourceID:      sourceID,
		DestinationID: destinationID,
		CurrentHopID:  sourceID,
		NextHopID:     NoParent,
		DataType:      dataType,
		Payload:       payload,
		PathTaken:     []int{sourceID},
		CreationRound: round,
	}
}

// RecordHop appends a hop to the path, skipping a duplicate of the tail.
func (p *Packet) RecordHop(sensorID int) {
	if n := len(p.PathTaken); n > 0 && p.PathTaken[n-1] == sensorID {
		return
	}
	p.PathTaken = append(p.PathTaken, sensorID)
}
