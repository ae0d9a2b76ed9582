package orchestration

import "github.com/koscakluka/ema-panel/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.TranscriptReceived:
			if opts.onTranscription != nil {
				opts.onTranscription(typedEvent.Transcript)
			}
		case events.AudienceSpeechStarted:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(true)
			}
		case events.AudienceSpeechEnded:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(false)
			}
		case events.TurnStarted:
			if opts.onTurnStarted != nil {
				opts.onTurnStarted(typedEvent.Speaker, typedEvent.IsAudience)
			}
		case events.TurnEnded:
			if opts.onTurnEnded != nil {
				opts.onTurnEnded(typedEvent.Speaker, typedEvent.Duration)
			}
		case events.AgentResponse:
			if opts.onResponse != nil {
				opts.onResponse(typedEvent.AgentID, typedEvent.Text)
			}
		}
	}
}

func (o *Orchestrator) emit(event events.Event) {
	o.callbacksMu.RLock()
	handler, emitCallbacks := o.eventHandler, o.emitCallbacks
	o.callbacksMu.RUnlock()

	logger.Debug("panel event", "namespace", event.Kind().Namespace(), "kind", string(event.Kind()))
	events.Handlers(handler, events.Handler(emitCallbacks))(event)
}
