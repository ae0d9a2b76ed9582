package turns

import "time"

// Statistics summarises the completed turns of a session. Turns that are
// still open are not counted.
type Statistics struct {
	TotalTurns      int
	AgentTurns      int
	AudienceTurns   int
	AverageDuration time.Duration
	// PerAgent has an entry for every registered agent, including the ones
	// that have not spoken yet.
	PerAgent map[string]int
}

func (m *StateMachine) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.statistics()
}

func (m *StateMachine) statistics() Statistics {
	stats := Statistics{PerAgent: make(map[string]int, m.registry.Len())}
	for _, agent := range m.registry.All() {
		stats.PerAgent[agent.ID] = 0
	}

	var total time.Duration
	for _, record := range m.ledger.records {
		if record.Open() {
			continue
		}

		stats.TotalTurns++
		total += record.Duration
		if record.IsAudience {
			stats.AudienceTurns++
			continue
		}

		stats.AgentTurns++
		if _, ok := stats.PerAgent[record.Speaker]; ok {
			stats.PerAgent[record.Speaker]++
		}
	}

	if stats.TotalTurns > 0 {
		stats.AverageDuration = total / time.Duration(stats.TotalTurns)
	}
	return stats
}
