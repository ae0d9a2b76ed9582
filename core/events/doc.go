// Package events defines the typed events the panel orchestrator emits.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - audience.*
//   - turn_state.*
//   - agent_response.*
//   - speak_cycle.*
//
// audience events
//
//   - AudienceSpeechStarted (audience.speech_started): the listener detected
//     audience speech.
//   - AudienceSpeechEnded (audience.speech_ended): audience speech ended.
//   - TranscriptReceived (audience.transcript_received): final transcript of
//     an audience utterance.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a speaker took the floor.
//   - TurnEnded (turn_state.ended): the floor was released; includes the
//     sealed turn duration.
//
// agent_response events
//
//   - AgentResponse (agent_response.generated): text an agent is about to say.
//
// speak_cycle events
//
//   - SpeakCycleCompleted (speak_cycle.completed): an agent finished a full
//     start, generate, synthesize, play and stop iteration.
//   - SpeakCycleFailed (speak_cycle.failed): an iteration ended early; carries
//     the failure kind and error.
package events
