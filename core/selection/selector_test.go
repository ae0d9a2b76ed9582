package selection

import (
	"testing"
	"time"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/turns"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func alexAndJordan() *agents.Registry {
	return agents.MustNewRegistry(
		agents.Agent{ID: "alex", Name: "Alex", Keywords: agents.ParseKeywords("AI")},
		agents.Agent{ID: "jordan", Name: "Jordan", Keywords: agents.ParseKeywords("business")},
	)
}

func neverSpoken(registry *agents.Registry) turns.LastSpokenIndex {
	index := turns.LastSpokenIndex{}
	for _, id := range registry.IDs() {
		index[id] = time.Time{}
	}
	return index
}

func TestNextSpeaker(t *testing.T) {
	registry := alexAndJordan()

	testCases := []struct {
		name       string
		transcript string
		lastSpoken turns.LastSpokenIndex
		expected   string
	}{
		{
			name:       "direct address wins over keyword",
			transcript: "What does Jordan think about AI?",
			lastSpoken: neverSpoken(registry),
			expected:   "jordan",
		},
		{
			name:       "keyword match",
			transcript: "Let's talk about business today",
			lastSpoken: neverSpoken(registry),
			expected:   "jordan",
		},
		{
			name:       "name match is case insensitive",
			transcript: "hey ALEX, you there?",
			lastSpoken: neverSpoken(registry),
			expected:   "alex",
		},
		{
			name:       "keyword match is case insensitive",
			transcript: "the future of ai",
			lastSpoken: turns.LastSpokenIndex{"alex": epoch.Add(time.Hour), "jordan": epoch},
			expected:   "alex",
		},
		{
			name:       "nothing matched falls back to least recent",
			transcript: "the weather is nice",
			lastSpoken: turns.LastSpokenIndex{"alex": epoch.Add(time.Hour), "jordan": epoch},
			expected:   "jordan",
		},
		{
			name:       "no transcript ties go to registry order",
			lastSpoken: neverSpoken(registry),
			expected:   "alex",
		},
		{
			name:       "first registered name wins when both are addressed",
			transcript: "Jordan and Alex, thoughts?",
			lastSpoken: turns.LastSpokenIndex{"alex": epoch.Add(time.Hour), "jordan": epoch},
			expected:   "alex",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got, ok := NextSpeaker(testCase.transcript, registry, testCase.lastSpoken)
			if !ok || got != testCase.expected {
				t.Fatalf("expected %q, got %q (ok %v)", testCase.expected, got, ok)
			}
		})
	}
}

func TestNextSpeakerKeywordTieBreaksByRecency(t *testing.T) {
	registry := agents.MustNewRegistry(
		agents.Agent{ID: "alex", Name: "Alex", Keywords: agents.ParseKeywords("markets")},
		agents.Agent{ID: "jordan", Name: "Jordan", Keywords: agents.ParseKeywords("!markets")},
		agents.Agent{ID: "sam", Name: "Sam", Keywords: agents.ParseKeywords("art")},
	)
	lastSpoken := turns.LastSpokenIndex{
		"alex":   epoch.Add(2 * time.Hour),
		"jordan": epoch.Add(time.Hour),
		"sam":    time.Time{},
	}

	got, ok := NextSpeaker("how are the markets?", registry, lastSpoken)
	if !ok || got != "jordan" {
		t.Fatalf("expected least recent keyword match jordan, got %q", got)
	}
}

func TestNextSpeakerEmptyRegistry(t *testing.T) {
	registry := agents.MustNewRegistry()
	if got, ok := NextSpeaker("anything", registry, turns.LastSpokenIndex{}); ok {
		t.Fatalf("expected no speaker for empty registry, got %q", got)
	}
	if got, ok := NextSpeaker("anything", nil, nil); ok {
		t.Fatalf("expected no speaker for nil registry, got %q", got)
	}
}

func TestNextSpeakerFairnessRotates(t *testing.T) {
	registry := agents.MustNewRegistry(
		agents.Agent{ID: "a", Name: "Ann"},
		agents.Agent{ID: "b", Name: "Ben"},
		agents.Agent{ID: "c", Name: "Cy"},
	)
	lastSpoken := turns.LastSpokenIndex{
		"a": epoch.Add(3 * time.Minute),
		"b": epoch.Add(time.Minute),
		"c": epoch.Add(2 * time.Minute),
	}

	first, _ := NextSpeaker("", registry, lastSpoken)
	if first != "b" {
		t.Fatalf("expected smallest last spoken b, got %q", first)
	}

	lastSpoken[first] = epoch.Add(4 * time.Minute)
	second, _ := NextSpeaker("", registry, lastSpoken)
	if second == first {
		t.Fatalf("expected a different agent after %q spoke", first)
	}
	if second != "c" {
		t.Fatalf("expected c next, got %q", second)
	}
}

func TestNextSpeakerOverStateMachine(t *testing.T) {
	machine := turns.NewStateMachine(alexAndJordan())

	for _, expected := range []string{"alex", "jordan", "alex"} {
		snapshot := machine.Snapshot()
		got, ok := NextSpeaker("", snapshot.Registry, snapshot.LastSpoken)
		if !ok || got != expected {
			t.Fatalf("expected %q, got %q", expected, got)
		}
		machine.StartSpeaking(got, false)
		time.Sleep(time.Millisecond)
		machine.StopSpeaking(got)
	}
}
