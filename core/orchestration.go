// Package orchestration coordinates spoken turns between a panel of agents
// and a live audience.
//
// Audience speech reaches the [Orchestrator] through a [Listener]. Every
// final transcript stops the agent holding the floor, is recorded to the
// history and picks the next speaker. The chosen agent runs a speak loop:
// open a turn, generate, synthesize, play, release the turn and hand over to
// the least recent speaker until the turn rules end the chain.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-panel/core/agents"
	"github.com/koscakluka/ema-panel/core/events"
	"github.com/koscakluka/ema-panel/core/selection"
	"github.com/koscakluka/ema-panel/core/turns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrAlreadyStarted      = errors.New("orchestrator already started")
	ErrClosed              = errors.New("orchestrator closed")
	ErrListenerStopTimeout = errors.New("listener did not stop in time")
)

type Orchestrator struct {
	machine        *turns.StateMachine
	machineOptions []turns.StateMachineOption

	listener    Listener
	generator   ResponseGenerator
	synthesizer SpeechSynthesizer
	player      Player
	history     HistorySink
	prompts     PromptSource

	rules               TurnRules
	listenerStopTimeout time.Duration

	callbacksMu   sync.RWMutex
	eventHandler  events.Handler
	emitCallbacks eventEmitter
	onCycleResult func(CycleResult)

	runtime *runtime
	started atomic.Bool

	sessionMu  sync.Mutex
	sessionCtx context.Context
	cancels    []context.CancelFunc
	closed     bool
	closing    bool
	loops      sync.WaitGroup

	// work cancels generation and synthesis of the cycle owning a turn.
	workMu sync.Mutex
	work   map[string]context.CancelFunc

	// pending holds transcripts that arrived while the audience held the
	// floor.
	pendingMu sync.Mutex
	pending   []string

	closeOnce sync.Once
	closeErr  error

	metrics orchestratorMetrics
}

func NewOrchestrator(registry *agents.Registry, opts ...OrchestratorOption) *Orchestrator {
	sessionCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		rules:               DefaultTurnRules(),
		listenerStopTimeout: DefaultListenerStopTimeout,
		emitCallbacks:       noopEventEmitter,
		runtime:             newRuntime(),
		sessionCtx:          sessionCtx,
		cancels:             []context.CancelFunc{cancel},
		work:                map[string]context.CancelFunc{},
		metrics:             newOrchestratorMetrics(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.machine = turns.NewStateMachine(registry, o.machineOptions...)
	if o.prompts == nil {
		if prompts, ok := o.history.(PromptSource); ok {
			o.prompts = prompts
		}
	}

	return o
}

// Orchestrate starts listening. ctx bounds the session: once it is done the
// orchestrator closes itself.
//
// Orchestrate may be called once per orchestrator.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) error {
	if o.runtime.isClosed() {
		return ErrClosed
	}
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	orchestrateOptions := OrchestrateOptions{}
	for _, opt := range opts {
		opt(&orchestrateOptions)
	}
	o.callbacksMu.Lock()
	o.emitCallbacks = newCallbackEventEmitter(orchestrateOptions)
	o.onCycleResult = orchestrateOptions.onCycleResult
	o.callbacksMu.Unlock()

	sessionCtx, cancel := context.WithCancel(ctx)
	o.sessionMu.Lock()
	if o.closed {
		o.sessionMu.Unlock()
		cancel()
		return ErrClosed
	}
	o.sessionCtx = sessionCtx
	o.cancels = append(o.cancels, cancel)
	o.sessionMu.Unlock()

	o.runtime.start(o.processQueuedEvent)

	if o.listener == nil {
		context.AfterFunc(ctx, func() { _ = o.Close() })
		return nil
	}

	if err := o.listener.Listen(sessionCtx, ListenerCallbacks{
		OnTranscript:    func(transcript string) { o.runtime.enqueue(transcriptEvent, transcript) },
		OnSpeechStarted: func() { o.runtime.enqueue(speechStartedEvent, "") },
		OnSpeechEnded:   func() { o.runtime.enqueue(speechEndedEvent, "") },
	}); err != nil {
		err = fmt.Errorf("failed to start listener: %w", err)
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	o.sessionMu.Lock()
	closing := o.closing
	o.sessionMu.Unlock()
	if closing {
		// Close ran while Listen was starting, so its Stop may have come
		// too early.
		if err := o.stopListener(); err != nil {
			logger.Warn("failed to stop listener started during close", "error", err)
		}
		return ErrClosed
	}

	context.AfterFunc(ctx, func() { _ = o.Close() })
	return nil
}

// Close stops the listener, waiting at most the listener stop timeout, and
// then waits for the speak loops to finish. Audio still playing is cut off.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.sessionMu.Lock()
		o.closing = true
		o.sessionMu.Unlock()

		o.closeErr = o.stopListener()
		o.runtime.end()

		o.sessionMu.Lock()
		o.closed = true
		cancels := o.cancels
		o.sessionMu.Unlock()

		o.runtime.waitUntilEnded()
		for _, cancel := range cancels {
			cancel()
		}
		o.loops.Wait()
	})

	return o.closeErr
}

func (o *Orchestrator) stopListener() error {
	if o.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.listenerStopTimeout)
	defer cancel()

	stopped := make(chan error, 1)
	go func() { stopped <- o.listener.Stop(ctx) }()

	select {
	case err := <-stopped:
		if err != nil {
			return fmt.Errorf("failed to stop listener: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Warn("listener did not stop in time", "timeout", o.listenerStopTimeout)
		return ErrListenerStopTimeout
	}
}

func (o *Orchestrator) sessionContext() context.Context {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	return o.sessionCtx
}

func (o *Orchestrator) processQueuedEvent(event queuedEvent) {
	ctx, span := tracer.Start(o.sessionContext(), "process listener event", trace.WithAttributes(
		attribute.String("event.kind", event.kind.String()),
		attribute.Float64("event.queued_time", time.Since(event.queuedAt).Seconds()),
		attribute.Int("event.queued_events", o.runtime.queuedEventCount()),
	))
	defer span.End()

	run := panicSafeNamedWorker("listener event", func(ctx context.Context) error {
		switch event.kind {
		case transcriptEvent:
			o.handleTranscript(ctx, event.transcript)
		case speechStartedEvent:
			o.handleSpeechStarted(ctx)
		case speechEndedEvent:
			o.handleSpeechEnded(ctx)
		}
		return nil
	})
	if err := run(ctx); err != nil {
		logger.Error("failed to process listener event", "kind", event.kind.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// HandleTranscript reacts to a final audience transcript as if the listener
// had produced it. It reports the agent whose speak loop was started.
func (o *Orchestrator) HandleTranscript(transcript string) (agentID string, ok bool) {
	return o.handleTranscript(o.sessionContext(), transcript)
}

func (o *Orchestrator) handleTranscript(ctx context.Context, transcript string) (string, bool) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", false
	}

	o.emit(events.NewTranscriptReceived(transcript))
	if o.history != nil {
		o.history.Record(turns.AudienceSpeaker, transcript, true)
	}

	slot := o.machine.Slot()
	switch {
	case slot.HeldByAgent():
		if _, err := o.endTurn(ctx, slot.TurnID); err != nil {
			logger.Debug("agent turn already ended", "agent_id", slot.Speaker, "error", err)
		}

	case slot.HeldByAudience():
		o.addPending(transcript)
		for _, agent := range o.machine.Registry().All() {
			if !selection.MayInterrupt(agent, slot, transcript) {
				continue
			}
			if _, err := o.endTurn(ctx, slot.TurnID); err != nil {
				return "", false
			}
			o.takePending()
			return agent.ID, o.startSpeakLoop(agent.ID)
		}
		return "", false
	}

	agentID, ok := o.GetNextSpeaker(transcript, false)
	if !ok {
		return "", false
	}
	return agentID, o.startSpeakLoop(agentID)
}

func (o *Orchestrator) handleSpeechStarted(ctx context.Context) {
	o.emit(events.NewAudienceSpeechStarted())

	if o.machine.Slot().Empty() {
		if _, err := o.beginTurn(ctx, turns.AudienceSpeaker, true); err != nil {
			logger.Debug("audience turn not started", "error", err)
		}
	}
}

func (o *Orchestrator) handleSpeechEnded(ctx context.Context) {
	o.emit(events.NewAudienceSpeechEnded())

	transcript := o.takePending()
	if slot := o.machine.Slot(); slot.HeldByAudience() {
		if _, err := o.endTurn(ctx, slot.TurnID); err != nil {
			logger.Debug("audience turn already ended", "error", err)
		}
	}

	if transcript == "" {
		return
	}
	if agentID, ok := o.GetNextSpeaker(transcript, false); ok {
		o.startSpeakLoop(agentID)
	}
}

func (o *Orchestrator) addPending(transcript string) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	o.pending = append(o.pending, transcript)
}

func (o *Orchestrator) takePending() string {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	transcript := strings.Join(o.pending, " ")
	o.pending = nil
	return transcript
}

// StartTurn opens a turn. An empty speakerID with isAudience set opens an
// audience turn.
func (o *Orchestrator) StartTurn(speakerID string, isAudience bool) bool {
	_, err := o.beginTurn(o.sessionContext(), speakerID, isAudience)
	return err == nil
}

// StopTurn ends the current turn if speakerID holds it. An empty speakerID
// ends whoever holds the floor.
func (o *Orchestrator) StopTurn(speakerID string) bool {
	slot := o.machine.Slot()
	if slot.Empty() || (speakerID != "" && speakerID != slot.Speaker) {
		return false
	}
	_, err := o.endTurn(o.sessionContext(), slot.TurnID)
	return err == nil
}

// GetNextSpeaker picks who should speak after transcript. Nobody is picked
// while the audience is active or the slot is taken.
func (o *Orchestrator) GetNextSpeaker(transcript string, audienceActive bool) (string, bool) {
	if audienceActive {
		return "", false
	}

	snapshot := o.machine.Snapshot()
	if !snapshot.Slot.Empty() {
		return "", false
	}
	return selection.NextSpeaker(transcript, snapshot.Registry, snapshot.LastSpoken)
}

// ShouldInterrupt reports whether agentID may take the floor from the current
// speaker given transcript.
func (o *Orchestrator) ShouldInterrupt(agentID, transcript string) bool {
	agent, ok := o.machine.Registry().Agent(agentID)
	if !ok {
		return false
	}
	return selection.MayInterrupt(agent, o.machine.Slot(), transcript)
}

func (o *Orchestrator) Statistics() turns.Statistics { return o.machine.Statistics() }
func (o *Orchestrator) Slot() turns.SpeakingSlot     { return o.machine.Slot() }
func (o *Orchestrator) Records() []turns.TurnRecord  { return o.machine.Records() }
func (o *Orchestrator) Roster() *agents.Registry     { return o.machine.Registry() }

// SetRoster replaces the agents taking part. Turns already recorded are kept.
func (o *Orchestrator) SetRoster(registry *agents.Registry) {
	o.machine.SetRegistry(registry)
	if history, ok := o.history.(interface{ SetRegistry(*agents.Registry) }); ok {
		history.SetRegistry(registry)
	}
}

func (o *Orchestrator) beginTurn(ctx context.Context, speakerID string, isAudience bool) (turns.TurnRecord, error) {
	record, err := o.machine.Begin(speakerID, isAudience)
	attrs := metric.WithAttributes(attribute.Bool("turn.audience", isAudience))
	if err != nil {
		if o.metrics.turnsRejected != nil {
			o.metrics.turnsRejected.Add(ctx, 1, attrs)
		}
		return record, err
	}

	if o.metrics.turnsStarted != nil {
		o.metrics.turnsStarted.Add(ctx, 1, attrs)
	}
	o.emit(events.NewTurnStarted(record.ID, record.Speaker, record.IsAudience))
	return record, nil
}

// endTurn seals turnID if it still holds the floor and cancels whatever its
// speak cycle is still generating.
func (o *Orchestrator) endTurn(ctx context.Context, turnID string) (turns.TurnRecord, error) {
	record, err := o.machine.EndTurn(turnID)
	if err != nil {
		return record, err
	}

	o.cancelWork(turnID)
	trace.SpanFromContext(ctx).AddEvent("turn ended", trace.WithAttributes(
		attribute.String("turn.speaker", record.Speaker),
		attribute.Float64("turn.duration", record.Duration.Seconds()),
	))
	o.emit(events.NewTurnEnded(record.ID, record.Speaker, record.IsAudience, record.Duration))
	return record, nil
}

func (o *Orchestrator) setWork(turnID string, cancel context.CancelFunc) {
	o.workMu.Lock()
	defer o.workMu.Unlock()
	o.work[turnID] = cancel
}

func (o *Orchestrator) cancelWork(turnID string) {
	o.workMu.Lock()
	cancel, ok := o.work[turnID]
	delete(o.work, turnID)
	o.workMu.Unlock()

	if ok {
		cancel()
	}
}
