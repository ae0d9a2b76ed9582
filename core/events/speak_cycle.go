package events

import "time"

const (
	// KindAgentResponse identifies generated agent text.
	KindAgentResponse Kind = "agent_response.generated"
	// KindSpeakCycleCompleted identifies a successful speak cycle.
	KindSpeakCycleCompleted Kind = "speak_cycle.completed"
	// KindSpeakCycleFailed identifies a speak cycle that ended early.
	KindSpeakCycleFailed Kind = "speak_cycle.failed"
)

// AgentResponse carries the text an agent generated for its turn.
type AgentResponse struct {
	Base
	AgentID string
	Text    string
}

func NewAgentResponse(agentID, text string) AgentResponse {
	return AgentResponse{Base: NewBase(KindAgentResponse), AgentID: agentID, Text: text}
}

type SpeakCycleCompleted struct {
	Base
	AgentID  string
	Duration time.Duration
}

func NewSpeakCycleCompleted(agentID string, duration time.Duration) SpeakCycleCompleted {
	return SpeakCycleCompleted{Base: NewBase(KindSpeakCycleCompleted), AgentID: agentID, Duration: duration}
}

// SpeakCycleFailed reports why a speak cycle ended early. Reason is the
// failure kind, e.g. "generation" or "contention".
type SpeakCycleFailed struct {
	Base
	AgentID string
	Reason  string
	Err     error
}

func NewSpeakCycleFailed(agentID, reason string, err error) SpeakCycleFailed {
	return SpeakCycleFailed{Base: NewBase(KindSpeakCycleFailed), AgentID: agentID, Reason: reason, Err: err}
}
