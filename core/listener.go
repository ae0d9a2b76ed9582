package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/speechtotext"
)

var ErrListenerRunning = errors.New("listener is already running")

// AudioInput captures audience audio, e.g. a microphone.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	// StopStream returns once the last transcript has been delivered.
	StopStream(ctx context.Context) error
}

// CaptureListener is a [Listener] that streams captured audio to a
// speech-to-text client.
type CaptureListener struct {
	input        AudioInput
	speechToText SpeechToText
	onInputAudio func(audio []byte)

	listening atomic.Bool
	stopped   atomic.Bool
}

type CaptureListenerOption func(*CaptureListener)

// WithInputAudioCallback registers a callback for raw input audio chunks. The
// callback runs inline on the capture path and should not block.
func WithInputAudioCallback(callback func(audio []byte)) CaptureListenerOption {
	return func(l *CaptureListener) { l.onInputAudio = callback }
}

func NewCaptureListener(input AudioInput, speechToText SpeechToText, opts ...CaptureListenerOption) *CaptureListener {
	l := &CaptureListener{input: input, speechToText: speechToText}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *CaptureListener) Listen(ctx context.Context, callbacks ListenerCallbacks) error {
	if !l.listening.CompareAndSwap(false, true) {
		return ErrListenerRunning
	}
	l.stopped.Store(false)

	opts := []speechtotext.TranscriptionOption{
		speechtotext.WithEncodingInfo(l.input.EncodingInfo()),
	}
	if callbacks.OnTranscript != nil {
		opts = append(opts, speechtotext.WithTranscriptionCallback(func(transcript string) {
			if !l.stopped.Load() {
				callbacks.OnTranscript(transcript)
			}
		}))
	}
	if callbacks.OnSpeechStarted != nil {
		opts = append(opts, speechtotext.WithSpeechStartedCallback(func() {
			if !l.stopped.Load() {
				callbacks.OnSpeechStarted()
			}
		}))
	}
	if callbacks.OnSpeechEnded != nil {
		opts = append(opts, speechtotext.WithSpeechEndedCallback(func() {
			if !l.stopped.Load() {
				callbacks.OnSpeechEnded()
			}
		}))
	}

	if err := l.speechToText.Transcribe(ctx, opts...); err != nil {
		l.listening.Store(false)
		return fmt.Errorf("failed to start transcribing: %w", err)
	}

	if err := l.input.StartCapture(ctx, l.onAudio); err != nil {
		l.listening.Store(false)
		return errors.Join(
			fmt.Errorf("failed to start audio capture: %w", err),
			l.speechToText.StopStream(ctx),
		)
	}

	return nil
}

func (l *CaptureListener) onAudio(audio []byte) {
	if l.onInputAudio != nil {
		l.onInputAudio(audio)
	}
	if err := l.speechToText.SendAudio(audio); err != nil {
		logger.Debug("failed to send audio to speech-to-text", "error", err)
	}
}

// Stop stops capturing and waits until the speech-to-text client delivered
// its last transcript, or ctx is done.
func (l *CaptureListener) Stop(ctx context.Context) error {
	if !l.listening.CompareAndSwap(true, false) {
		return nil
	}
	defer l.stopped.Store(true)

	var errs error
	if err := l.input.StopCapture(); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to stop audio capture: %w", err))
	}
	if err := l.speechToText.StopStream(ctx); err != nil {
		errs = errors.Join(errs, fmt.Errorf("failed to stop transcribing: %w", err))
	}
	return errs
}
