package turns

import (
	"time"

	"github.com/google/uuid"
)

// AudienceSpeaker is the speaker recorded for audience turns.
const AudienceSpeaker = "audience"

type TurnRecord struct {
	ID         string
	Speaker    string
	IsAudience bool
	StartTime  time.Time
	EndTime    *time.Time
	Duration   time.Duration
}

func (r TurnRecord) Open() bool {
	return r.EndTime == nil
}

func (r TurnRecord) clone() TurnRecord {
	if r.EndTime != nil {
		endTime := *r.EndTime
		r.EndTime = &endTime
	}
	return r
}

// Ledger is the append-only history of turns. A record is sealed exactly once
// and never removed.
//
// Ledger is not safe for concurrent use, [StateMachine] guards it.
type Ledger struct {
	records []TurnRecord
}

func (l *Ledger) open(speaker string, isAudience bool, at time.Time) TurnRecord {
	record := TurnRecord{
		ID:         uuid.NewString(),
		Speaker:    speaker,
		IsAudience: isAudience,
		StartTime:  at,
	}
	l.records = append(l.records, record)
	return record
}

// seal closes the nearest open record of speaker, searching from the end.
func (l *Ledger) seal(speaker string, at time.Time) (TurnRecord, bool) {
	for i := len(l.records) - 1; i >= 0; i-- {
		record := &l.records[i]
		if record.Speaker != speaker || !record.Open() {
			continue
		}

		endTime := at
		record.EndTime = &endTime
		record.Duration = max(endTime.Sub(record.StartTime), 0)
		return record.clone(), true
	}
	return TurnRecord{}, false
}

func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of the ledger from the oldest record to the newest.
func (l *Ledger) Records() []TurnRecord {
	records := make([]TurnRecord, len(l.records))
	for i, record := range l.records {
		records[i] = record.clone()
	}
	return records
}

// LastSpokenIndex maps agent ids to the end of their most recently completed
// turn. The zero time means the agent has never spoken.
type LastSpokenIndex map[string]time.Time

// Clone returns an independent copy of the index.
func (idx LastSpokenIndex) Clone() LastSpokenIndex {
	clone := make(LastSpokenIndex, len(idx))
	for id, at := range idx {
		clone[id] = at
	}
	return clone
}

// Get returns the last spoken time of id, or the zero time.
func (idx LastSpokenIndex) Get(id string) time.Time {
	return idx[id]
}
