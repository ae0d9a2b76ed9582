package orchestration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/events"
	"github.com/koscakluka/ema-panel/core/llms"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func panelRegistry() *agents.Registry {
	return agents.MustNewRegistry(
		agents.Agent{ID: "alex", Name: "Alex", Role: "AI researcher", Keywords: agents.ParseKeywords("AI", "!breaking")},
		agents.Agent{ID: "jordan", Name: "Jordan", Role: "founder", Keywords: agents.ParseKeywords("business")},
	)
}

type generatorStub struct {
	mu    sync.Mutex
	calls []string

	respond func(ctx context.Context, agentID string) (string, error)
}

func (g *generatorStub) Generate(ctx context.Context, agentID string, _ llms.Prompt) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, agentID)
	respond := g.respond
	g.mu.Unlock()

	if respond == nil {
		return agentID + " says hi", nil
	}
	return respond(ctx, agentID)
}

func (g *generatorStub) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

type synthesizerStub struct {
	err error
}

func (s synthesizerStub) Synthesize(_ context.Context, _ string, text string) (audio.Clip, error) {
	if s.err != nil {
		return audio.Clip{}, s.err
	}
	return audio.Clip{Data: []byte(text), Encoding: audio.GetDefaultEncodingInfo()}, nil
}

// playerStub blocks the first playback until release is closed when block is
// set.
type playerStub struct {
	mu      sync.Mutex
	played  int
	block   bool
	playing chan struct{}
	release chan struct{}
}

func newBlockingPlayer() *playerStub {
	return &playerStub{block: true, playing: make(chan struct{}), release: make(chan struct{})}
}

func (p *playerStub) Play(ctx context.Context, _ audio.Clip) error {
	p.mu.Lock()
	p.played++
	first := p.played == 1
	p.mu.Unlock()

	if !p.block || !first {
		return nil
	}

	close(p.playing)
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *playerStub) Played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

type historyEntry struct {
	speakerID  string
	text       string
	isAudience bool
}

type historyStub struct {
	mu      sync.Mutex
	entries []historyEntry
}

func (h *historyStub) Record(speakerID, text string, isAudience bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, historyEntry{speakerID: speakerID, text: text, isAudience: isAudience})
}

func (h *historyStub) Entries() []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyEntry(nil), h.entries...)
}

type listenerStub struct {
	mu        sync.Mutex
	callbacks ListenerCallbacks
	listening bool
	stopped   bool

	listenErr error
	// stopBlock makes Stop hang until it is closed, ignoring ctx.
	stopBlock chan struct{}

	// listenGate, when set, holds Listen after closing entered.
	listenGate chan struct{}
	entered    chan struct{}
}

func (l *listenerStub) Listen(_ context.Context, callbacks ListenerCallbacks) error {
	if l.listenErr != nil {
		return l.listenErr
	}
	if l.listenGate != nil {
		close(l.entered)
		<-l.listenGate
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = callbacks
	l.listening = true
	return nil
}

func (l *listenerStub) Stop(context.Context) error {
	if l.stopBlock != nil {
		<-l.stopBlock
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.listening = false
	return nil
}

func (l *listenerStub) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

func (l *listenerStub) Callbacks() ListenerCallbacks {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callbacks
}

func (l *listenerStub) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Handle(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, len(r.events))
	for i, event := range r.events {
		kinds[i] = event.Kind()
	}
	return kinds
}

func (r *eventRecorder) Failures() []events.SpeakCycleFailed {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failures []events.SpeakCycleFailed
	for _, event := range r.events {
		if failed, ok := event.(events.SpeakCycleFailed); ok {
			failures = append(failures, failed)
		}
	}
	return failures
}

func (r *eventRecorder) Count(kind events.Kind) int {
	count := 0
	for _, k := range r.Kinds() {
		if k == kind {
			count++
		}
	}
	return count
}

func speakersOf(o *Orchestrator) []string {
	records := o.Records()
	speakers := make([]string, len(records))
	for i, record := range records {
		speakers[i] = record.Speaker
	}
	return speakers
}

func noChaining(int, string) bool { return false }
