package selection

import (
	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/turns"
)

// MayInterrupt reports whether candidate may take the floor from its current
// holder. Agents never interrupt each other. The audience may be interrupted
// by an agent it addressed by name or by an agent with an urgent keyword in
// transcript.
func MayInterrupt(candidate agents.Agent, slot turns.SpeakingSlot, transcript string) bool {
	if !slot.HeldByAudience() {
		return false
	}

	if mentionsName(transcript, candidate) {
		return true
	}
	return mentionsAnyKeyword(transcript, candidate.UrgentKeywords())
}
