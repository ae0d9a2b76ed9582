package events

const (
	// KindAudienceSpeechStarted identifies start of audience speech activity.
	KindAudienceSpeechStarted Kind = "audience.speech_started"
	// KindAudienceSpeechEnded identifies end of audience speech activity.
	KindAudienceSpeechEnded Kind = "audience.speech_ended"
	// KindTranscriptReceived identifies a final audience transcript.
	KindTranscriptReceived Kind = "audience.transcript_received"
)

// AudienceSpeechStarted marks when audience speech activity starts.
type AudienceSpeechStarted struct{ Base }

func NewAudienceSpeechStarted() AudienceSpeechStarted {
	return AudienceSpeechStarted{Base: NewBase(KindAudienceSpeechStarted)}
}

// AudienceSpeechEnded marks when audience speech activity ends.
type AudienceSpeechEnded struct{ Base }

func NewAudienceSpeechEnded() AudienceSpeechEnded {
	return AudienceSpeechEnded{Base: NewBase(KindAudienceSpeechEnded)}
}

// TranscriptReceived carries a final transcript of audience speech.
type TranscriptReceived struct {
	Base
	Transcript string
}

func NewTranscriptReceived(transcript string) TranscriptReceived {
	return TranscriptReceived{Base: NewBase(KindTranscriptReceived), Transcript: transcript}
}
