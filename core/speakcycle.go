package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-panel/core/events"
	"github.com/koscakluka/ema-panel/core/llms"
	"github.com/koscakluka/ema-panel/core/turns"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Speak runs a single speak cycle for agentID and waits for it, without
// handing the floor to anyone afterwards.
func (o *Orchestrator) Speak(ctx context.Context, agentID string) CycleResult {
	result := o.speakCycle(ctx, agentID)
	o.reportCycle(ctx, result)
	return result
}

func (o *Orchestrator) startSpeakLoop(agentID string) bool {
	o.sessionMu.Lock()
	if o.closed {
		o.sessionMu.Unlock()
		return false
	}
	ctx := o.sessionCtx
	o.loops.Add(1)
	o.sessionMu.Unlock()

	go func() {
		defer o.loops.Done()

		run := panicSafeNamedWorker("speak loop", func(ctx context.Context) error {
			o.speakLoop(ctx, agentID)
			return nil
		})
		if err := run(ctx); err != nil {
			logger.Error("speak loop stopped", "agent_id", agentID, "error", err)
		}
	}()
	return true
}

// speakLoop lets agentID speak and then keeps handing the floor to the least
// recent speaker until a cycle fails, nobody is eligible or the turn rules
// end the chain.
func (o *Orchestrator) speakLoop(ctx context.Context, agentID string) {
	for chainLength := 0; ; chainLength++ {
		result := o.speakCycle(ctx, agentID)
		o.reportCycle(ctx, result)
		if !result.OK() {
			return
		}

		if !o.mayChain(chainLength+1, agentID) {
			return
		}
		if !sleepContext(ctx, o.rules.MinTimeBetweenTurns) {
			return
		}

		next, ok := o.GetNextSpeaker("", false)
		if !ok {
			if o.machine.Registry().Len() == 0 {
				o.reportCycle(ctx, CycleResult{Kind: ErrorKindEmptyRoster})
			}
			return
		}
		agentID = next
	}
}

func (o *Orchestrator) mayChain(chainLength int, lastSpeaker string) bool {
	if o.rules.MaxChainedTurns > 0 && chainLength > o.rules.MaxChainedTurns {
		return false
	}
	if o.rules.ChainPolicy != nil && !o.rules.ChainPolicy(chainLength, lastSpeaker) {
		return false
	}
	return true
}

func (o *Orchestrator) speakCycle(ctx context.Context, agentID string) (result CycleResult) {
	startedAt := time.Now()
	result.AgentID = agentID

	ctx, span := tracer.Start(ctx, "speak cycle", trace.WithAttributes(attribute.String("agent.id", agentID)))
	defer func() {
		result.Duration = time.Since(startedAt)
		span.SetAttributes(attribute.String("result.kind", result.Kind.String()))
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
		span.End()
	}()

	record, err := o.beginTurn(ctx, agentID, false)
	if err != nil {
		result.Kind, result.Err = ErrorKindContention, err
		if errors.Is(err, turns.ErrUnknownSpeaker) && o.machine.Registry().Len() == 0 {
			result.Kind = ErrorKindEmptyRoster
		}
		return result
	}

	workCtx, cancelWork := o.turnContext(ctx)
	defer cancelWork()
	o.setWork(record.ID, cancelWork)

	result.Kind, result.Response, result.Err = o.speak(ctx, workCtx, record)

	if _, err := o.endTurn(ctx, record.ID); err != nil {
		// Someone else ended the turn, whatever failed after that is a
		// consequence of it.
		result.Kind = ErrorKindCancelled
		result.Err = errors.Join(ErrTurnInterrupted, result.Err)
	} else if result.Kind != ErrorKindNone && ctx.Err() != nil {
		result.Kind = ErrorKindCancelled
	}
	return result
}

// speak generates, synthesizes and plays agent's response. Generation and
// synthesis run on workCtx, playback on ctx so a stopped turn still finishes
// its audio.
func (o *Orchestrator) speak(ctx, workCtx context.Context, record turns.TurnRecord) (ErrorKind, string, error) {
	agentID := record.Speaker
	if o.generator == nil {
		return ErrorKindGeneration, "", ErrNoGenerator
	}

	prompt, err := o.prompt(agentID)
	if err != nil {
		return ErrorKindGeneration, "", fmt.Errorf("failed to build prompt: %w", err)
	}

	response, err := o.generator.Generate(workCtx, agentID, prompt)
	if err != nil {
		return ErrorKindGeneration, "", fmt.Errorf("failed to generate response: %w", err)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return ErrorKindGeneration, "", ErrEmptyResponse
	}

	if o.history != nil {
		o.history.Record(agentID, response, false)
	}
	o.emit(events.NewAgentResponse(agentID, response))

	if o.synthesizer == nil {
		return ErrorKindNone, response, nil
	}

	clip, err := o.synthesizer.Synthesize(workCtx, agentID, response)
	if err != nil {
		return ErrorKindSynthesis, response, fmt.Errorf("failed to synthesize speech: %w", err)
	}

	if o.player == nil || clip.Empty() {
		return ErrorKindNone, response, nil
	}
	if o.machine.Slot().TurnID != record.ID {
		return ErrorKindCancelled, response, ErrTurnInterrupted
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Float64("audio.duration", clip.Duration().Seconds()))
	if err := o.player.Play(ctx, clip); err != nil {
		return ErrorKindPlayback, response, fmt.Errorf("failed to play speech: %w", err)
	}
	return ErrorKindNone, response, nil
}

func (o *Orchestrator) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.rules.MaxTurnDuration > 0 {
		return context.WithTimeout(ctx, o.rules.MaxTurnDuration)
	}
	return context.WithCancel(ctx)
}

func (o *Orchestrator) prompt(agentID string) (llms.Prompt, error) {
	if o.prompts != nil {
		return o.prompts.Prompt(agentID)
	}

	agent, ok := o.machine.Registry().Agent(agentID)
	if !ok {
		return llms.Prompt{}, fmt.Errorf("%w: %q", turns.ErrUnknownSpeaker, agentID)
	}
	system := "You are " + agent.DisplayName() + "."
	if agent.Role != "" {
		system = "You are " + agent.DisplayName() + ", " + agent.Role + "."
	}
	return llms.Prompt{
		System: system,
		User:   "Please continue the conversation as " + agent.DisplayName() + ".",
	}, nil
}

func (o *Orchestrator) reportCycle(ctx context.Context, result CycleResult) {
	if o.metrics.speakCycles != nil {
		o.metrics.speakCycles.Add(ctx, 1, metric.WithAttributes(attribute.String("result.kind", result.Kind.String())))
	}

	switch result.Kind {
	case ErrorKindNone:
		o.emit(events.NewSpeakCycleCompleted(result.AgentID, result.Duration))
	case ErrorKindContention, ErrorKindCancelled, ErrorKindEmptyRoster:
		logger.Debug("speak cycle ended early", "agent_id", result.AgentID, "kind", result.Kind.String(), "error", result.Err)
		o.emit(events.NewSpeakCycleFailed(result.AgentID, result.Kind.String(), result.Err))
	default:
		logger.Warn("speak cycle failed", "agent_id", result.AgentID, "kind", result.Kind.String(), "error", result.Err)
		o.emit(events.NewSpeakCycleFailed(result.AgentID, result.Kind.String(), result.Err))
	}

	o.callbacksMu.RLock()
	onCycleResult := o.onCycleResult
	o.callbacksMu.RUnlock()
	if onCycleResult != nil {
		onCycleResult(result)
	}
}
