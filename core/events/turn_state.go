package events

import "time"

const (
	// KindTurnStarted identifies a speaker taking the floor.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnEnded identifies a speaker releasing the floor.
	KindTurnEnded Kind = "turn_state.ended"
)

type TurnStarted struct {
	Base
	TurnID     string
	Speaker    string
	IsAudience bool
}

func NewTurnStarted(turnID, speaker string, isAudience bool) TurnStarted {
	return TurnStarted{
		Base:       NewBase(KindTurnStarted),
		TurnID:     turnID,
		Speaker:    speaker,
		IsAudience: isAudience,
	}
}

type TurnEnded struct {
	Base
	TurnID     string
	Speaker    string
	IsAudience bool
	Duration   time.Duration
}

func NewTurnEnded(turnID, speaker string, isAudience bool, duration time.Duration) TurnEnded {
	return TurnEnded{
		Base:       NewBase(KindTurnEnded),
		TurnID:     turnID,
		Speaker:    speaker,
		IsAudience: isAudience,
		Duration:   duration,
	}
}
