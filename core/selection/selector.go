// Package selection decides who speaks next and who may interrupt.
//
// Everything here is pure: callers take a [turns.Snapshot] under the state
// machine lock and pass it in. A decision that went stale in the meantime is
// caught when the chosen agent fails to start its turn.
package selection

import (
	"strings"
	"time"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/turns"
)

// NextSpeaker picks the agent that should speak after transcript. An empty
// transcript means there is no new input and only fairness applies.
//
// Priority order:
//  1. the first agent in registry order addressed by name
//  2. among agents with a keyword in the transcript, the least recently spoken
//  3. the least recently spoken agent of the whole registry
//
// Ties on last spoken time go to the agent registered first. ok is false only
// for an empty registry.
func NextSpeaker(transcript string, registry *agents.Registry, lastSpoken turns.LastSpokenIndex) (agentID string, ok bool) {
	if registry.Len() == 0 {
		return "", false
	}

	if transcript != "" {
		if agentID, ok := addressed(transcript, registry); ok {
			return agentID, true
		}

		if agentID, ok := leastRecent(registry, lastSpoken, func(agent agents.Agent) bool {
			return mentionsAnyKeyword(transcript, agent.Keywords)
		}); ok {
			return agentID, true
		}
	}

	return leastRecent(registry, lastSpoken, func(agents.Agent) bool { return true })
}

func addressed(transcript string, registry *agents.Registry) (string, bool) {
	for _, agent := range registry.All() {
		if mentionsName(transcript, agent) {
			return agent.ID, true
		}
	}
	return "", false
}

func leastRecent(registry *agents.Registry, lastSpoken turns.LastSpokenIndex, include func(agents.Agent) bool) (string, bool) {
	var (
		best     string
		bestTime time.Time
		found    bool
	)
	for _, agent := range registry.All() {
		if !include(agent) {
			continue
		}

		spokeAt := lastSpoken.Get(agent.ID)
		if !found || spokeAt.Before(bestTime) {
			best, bestTime, found = agent.ID, spokeAt, true
		}
	}
	return best, found
}

func mentionsName(transcript string, agent agents.Agent) bool {
	return agent.Name != "" && containsFold(transcript, agent.Name)
}

func mentionsAnyKeyword(transcript string, keywords []agents.Keyword) bool {
	for _, keyword := range keywords {
		if keyword.Text != "" && containsFold(transcript, keyword.Text) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
