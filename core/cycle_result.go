package orchestration

import (
	"errors"
	"time"
)

var (
	ErrNoGenerator     = errors.New("no response generator configured")
	ErrEmptyResponse   = errors.New("response generator returned no text")
	ErrTurnInterrupted = errors.New("turn was stopped before the cycle finished")
)

// ErrorKind classifies how a speak cycle ended.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	// ErrorKindContention means the slot was taken when the cycle tried to
	// open its turn.
	ErrorKindContention
	ErrorKindGeneration
	ErrorKindSynthesis
	ErrorKindPlayback
	// ErrorKindCancelled means the turn was stopped from outside or the
	// session ended while the cycle ran.
	ErrorKindCancelled
	ErrorKindEmptyRoster
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindContention:
		return "contention"
	case ErrorKindGeneration:
		return "generation"
	case ErrorKindSynthesis:
		return "synthesis"
	case ErrorKindPlayback:
		return "playback"
	case ErrorKindCancelled:
		return "cancelled"
	case ErrorKindEmptyRoster:
		return "empty_roster"
	default:
		return "unknown"
	}
}

// CycleResult is the outcome of one speak cycle. None of the kinds is fatal,
// a failed cycle only means nobody speaks this round.
type CycleResult struct {
	AgentID  string
	Kind     ErrorKind
	Err      error
	Response string
	Duration time.Duration
}

func (r CycleResult) OK() bool {
	return r.Kind == ErrorKindNone
}
