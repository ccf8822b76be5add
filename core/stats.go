package core

// POICoverageDetail is the per-POI coverage snapshot inside RoundStats.
type POICoverageDetail struct {
	CovererCount int
	MeetsK       bool
}

// RoundStats is the statistics snapshot collected at the end of each
// round. Counts exclude the sink unless noted.
type RoundStats struct {
	Round         int
	ActiveSensors int
	SleepSensors  int
	DeadSensors   int

	// AvgEnergyAlive averages remaining energy over alive non-sink
	// sensors (active plus sleeping).
	AvgEnergyAlive float64

	// CoverageQ is the fraction of POIs meeting k-coverage.
	CoverageQ float64

	// PDR and AvgLatency are cumulative over the whole run, not just
	// this round.
	PDR        float64
	AvgLatency float64

	SensorEnergies   map[int]float64
	SensorStates     map[int]SensorState
	SensorProbActive map[int]float64
	POICoverage      map[int]POICoverageDetail
	NeighborLists    map[int][]int
}

// CollectRoundStats assembles the end-of-round snapshot from the current
// network state.
func (n *Network) CollectRoundStats() RoundStats {
	stats := RoundStats{
		Round:            n.CurrentRound,
		SensorEnergies:   make(map[int]float64),
		SensorStates:     make(map[int]SensorState),
		SensorProbActive: make(map[int]float64),
		POICoverage:      make(map[int]POICoverageDetail, len(n.pois)),
		NeighborLists:    make(map[int][]int),
	}

	sumEnergyAlive := 0.0
	for id, s := range n.sensors {
		if s.IsSink {
			// A failed base station still counts among the dead.
			if s.State == StateDead || s.IsFailed {
				stats.DeadSensors++
			}
			continue
		}
		stats.SensorEnergies[id] = s.CurrentEnergy
		stats.SensorStates[id] = s.State

		switch {
		case s.State == StateDead || s.IsFailed:
			stats.DeadSensors++
		case s.State == StateActive:
			stats.ActiveSensors++
			sumEnergyAlive += s.CurrentEnergy
		case s.State == StateSleep:
			stats.SleepSensors++
			sumEnergyAlive += s.CurrentEnergy
		}

		if s.State != StateDead && !s.IsFailed {
			prob := -1.0
			if s.Automaton != nil {
				prob = s.Automaton.ProbActive()
			}
			stats.SensorProbActive[id] = prob
		}
	}

	if alive := stats.ActiveSensors + stats.SleepSensors; alive > 0 {
		stats.AvgEnergyAlive = sumEnergyAlive / float64(alive)
	}

	stats.CoverageQ = n.CalculateQCoverage()

	if n.TotalPacketsGenerated > 0 {
		stats.PDR = float64(n.TotalPacketsDelivered) / float64(n.TotalPacketsGenerated)
	}
	if n.TotalPacketsDelivered > 0 {
		stats.AvgLatency = n.TotalLatency / float64(n.TotalPacketsDelivered)
	}

	for _, p := range n.pois {
		stats.POICoverage[p.ID] = POICoverageDetail{
			CovererCount: p.CoverageCount(),
			MeetsK:       p.CoverageCount() >= n.params.KCoverageLevel,
		}
	}

	for id, s := range n.sensors {
		if s.IsFailed || s.State == StateDead {
			continue
		}
		list := make([]int, 0, len(s.Neighbors))
		for _, nbID := range s.Neighbors {
			nb := n.sensors[nbID]
			if nb == nil || nb.IsFailed || nb.State == StateDead {
				continue
			}
			list = append(list, nbID)
		}
		stats.NeighborLists[id] = list
	}

	return stats
}
