package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/events"
	"github.com/koscakluka/ema-panel/core/llms"
	"github.com/koscakluka/ema-panel/core/turns"
)

const (
	DefaultListenerStopTimeout = 5 * time.Second
	DefaultMaxTurnDuration     = 30 * time.Second
	DefaultMinTimeBetweenTurns = 2 * time.Second
)

// Listener turns audience speech into callbacks. No callback is invoked after
// Stop returns.
type Listener interface {
	Listen(ctx context.Context, callbacks ListenerCallbacks) error
	Stop(ctx context.Context) error
}

// ListenerCallbacks are invoked from the listener's goroutine. The transcript
// of an utterance arrives before its OnSpeechEnded.
type ListenerCallbacks struct {
	OnTranscript    func(transcript string)
	OnSpeechStarted func()
	OnSpeechEnded   func()
}

type ResponseGenerator interface {
	Generate(ctx context.Context, agentID string, prompt llms.Prompt) (string, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, agentID, text string) (audio.Clip, error)
}

// Player blocks until clip has been played or ctx is done.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
}

type HistorySink interface {
	Record(speakerID, text string, isAudience bool)
}

type PromptSource interface {
	Prompt(agentID string) (llms.Prompt, error)
}

// ChainPolicy decides whether another agent may follow after chainLength
// agent turns without new audience input.
type ChainPolicy func(chainLength int, lastSpeaker string) bool

// TurnRules pace the speak loop.
type TurnRules struct {
	// MaxTurnDuration bounds generation and synthesis of a single turn.
	// Playback is not bounded. Zero disables the limit.
	MaxTurnDuration time.Duration
	// MinTimeBetweenTurns is the pause before an agent follows another one.
	MinTimeBetweenTurns time.Duration
	// MaxChainedTurns caps how many agent turns may follow the one that
	// answered the audience. Zero means no cap.
	MaxChainedTurns int
	ChainPolicy     ChainPolicy
}

func DefaultTurnRules() TurnRules {
	return TurnRules{
		MaxTurnDuration:     DefaultMaxTurnDuration,
		MinTimeBetweenTurns: DefaultMinTimeBetweenTurns,
	}
}

type OrchestratorOption func(*Orchestrator)

func WithListener(listener Listener) OrchestratorOption {
	return func(o *Orchestrator) { o.listener = listener }
}

func WithResponseGenerator(generator ResponseGenerator) OrchestratorOption {
	return func(o *Orchestrator) { o.generator = generator }
}

func WithSpeechSynthesizer(synthesizer SpeechSynthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

func WithPlayer(player Player) OrchestratorOption {
	return func(o *Orchestrator) { o.player = player }
}

// WithHistory records every utterance to history. When history also
// implements [PromptSource] it builds the agents' prompts unless
// [WithPromptSource] is given.
func WithHistory(history HistorySink) OrchestratorOption {
	return func(o *Orchestrator) { o.history = history }
}

func WithPromptSource(prompts PromptSource) OrchestratorOption {
	return func(o *Orchestrator) { o.prompts = prompts }
}

func WithTurnRules(rules TurnRules) OrchestratorOption {
	return func(o *Orchestrator) { o.rules = rules }
}

func WithMaxTurnDuration(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.rules.MaxTurnDuration = max(d, 0) }
}

func WithMinTimeBetweenTurns(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.rules.MinTimeBetweenTurns = max(d, 0) }
}

func WithMaxChainedTurns(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.rules.MaxChainedTurns = max(n, 0) }
}

func WithChainPolicy(policy ChainPolicy) OrchestratorOption {
	return func(o *Orchestrator) { o.rules.ChainPolicy = policy }
}

func WithListenerStopTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.listenerStopTimeout = d
		}
	}
}

func WithStateMachineOptions(opts ...turns.StateMachineOption) OrchestratorOption {
	return func(o *Orchestrator) { o.machineOptions = append(o.machineOptions, opts...) }
}

// WithEventHandler receives every observability event. The handler is called
// synchronously and must not block.
func WithEventHandler(handler events.Handler) OrchestratorOption {
	return func(o *Orchestrator) { o.eventHandler = handler }
}

type OrchestrateOptions struct {
	onTranscription        func(transcript string)
	onSpeakingStateChanged func(isSpeaking bool)
	onTurnStarted          func(speaker string, isAudience bool)
	onTurnEnded            func(speaker string, duration time.Duration)
	onResponse             func(agentID, response string)
	onCycleResult          func(CycleResult)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptionCallback registers a callback for final audience
// transcripts, including those passed to [Orchestrator.HandleTranscript].
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTranscription = callback }
}

// WithSpeakingStateChangedCallback registers a callback for the audience's
// voice activity as reported by the listener.
func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onSpeakingStateChanged = callback }
}

func WithTurnStartedCallback(callback func(speaker string, isAudience bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTurnStarted = callback }
}

func WithTurnEndedCallback(callback func(speaker string, duration time.Duration)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onTurnEnded = callback }
}

func WithResponseCallback(callback func(agentID, response string)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onResponse = callback }
}

// WithCycleResultCallback receives the result of every speak cycle, failed
// ones included.
func WithCycleResultCallback(callback func(CycleResult)) OrchestrateOption {
	return func(o *OrchestrateOptions) { o.onCycleResult = callback }
}
