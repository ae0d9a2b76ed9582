package orchestration

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/speechtotext"
)

type audioInputStub struct {
	mu       sync.Mutex
	onAudio  func([]byte)
	stopped  bool
	startErr error
}

func (i *audioInputStub) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}
}

func (i *audioInputStub) StartCapture(_ context.Context, onAudio func([]byte)) error {
	if i.startErr != nil {
		return i.startErr
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.onAudio = onAudio
	return nil
}

func (i *audioInputStub) StopCapture() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stopped = true
	return nil
}

func (i *audioInputStub) capture(chunk []byte) {
	i.mu.Lock()
	onAudio := i.onAudio
	i.mu.Unlock()
	onAudio(chunk)
}

type speechToTextStub struct {
	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
	sent    [][]byte
	stopped bool
}

func (s *speechToTextStub) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range opts {
		opt(&s.options)
	}
	return nil
}

func (s *speechToTextStub) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *speechToTextStub) StopStream(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func TestCaptureListenerForwardsAudioAndTranscripts(t *testing.T) {
	input := &audioInputStub{}
	stt := &speechToTextStub{}
	var inputAudio [][]byte
	listener := NewCaptureListener(input, stt, WithInputAudioCallback(func(chunk []byte) {
		inputAudio = append(inputAudio, chunk)
	}))

	var (
		transcripts []string
		started     int
		ended       int
	)
	err := listener.Listen(context.Background(), ListenerCallbacks{
		OnTranscript:    func(transcript string) { transcripts = append(transcripts, transcript) },
		OnSpeechStarted: func() { started++ },
		OnSpeechEnded:   func() { ended++ },
	})
	if err != nil {
		t.Fatalf("expected listener to start, got %v", err)
	}
	if err := listener.Listen(context.Background(), ListenerCallbacks{}); !errors.Is(err, ErrListenerRunning) {
		t.Fatalf("expected ErrListenerRunning, got %v", err)
	}

	if stt.options.EncodingInfo != input.EncodingInfo() {
		t.Fatalf("expected input encoding to be passed on, got %+v", stt.options.EncodingInfo)
	}

	input.capture([]byte{1, 2})
	if len(stt.sent) != 1 || !bytes.Equal(stt.sent[0], []byte{1, 2}) {
		t.Fatalf("expected audio to reach speech-to-text, got %v", stt.sent)
	}
	if len(inputAudio) != 1 {
		t.Fatalf("expected input audio callback, got %v", inputAudio)
	}

	stt.options.SpeechStartedCallback()
	stt.options.TranscriptionCallback("hello panel")
	stt.options.SpeechEndedCallback()

	if err := listener.Stop(context.Background()); err != nil {
		t.Fatalf("expected listener to stop, got %v", err)
	}
	if !input.stopped || !stt.stopped {
		t.Fatalf("expected capture and stream to be stopped")
	}

	stt.options.TranscriptionCallback("too late")
	if len(transcripts) != 1 || transcripts[0] != "hello panel" || started != 1 || ended != 1 {
		t.Fatalf("unexpected callbacks: transcripts %v, started %d, ended %d", transcripts, started, ended)
	}
}

func TestCaptureListenerStopsStreamWhenCaptureFails(t *testing.T) {
	captureErr := errors.New("device busy")
	input := &audioInputStub{startErr: captureErr}
	stt := &speechToTextStub{}
	listener := NewCaptureListener(input, stt)

	if err := listener.Listen(context.Background(), ListenerCallbacks{}); !errors.Is(err, captureErr) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if !stt.stopped {
		t.Fatalf("expected the stream to be stopped")
	}
	if err := listener.Stop(context.Background()); err != nil {
		t.Fatalf("expected stopping an idle listener to be a no-op, got %v", err)
	}
}
