package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/speechtotext"
	"github.com/koscakluka/ema-panel/internal/utils"
)

type callbacks struct {
	interimTranscriptionCallback func(string)
	transcriptionCallback        func(string)
	startSpeechCallback          func()
	endSpeechCallback            func()

	accumulate bool
}

type wsConfig struct {
	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

func newCallbackConfig(options speechtotext.TranscriptionOptions) (callbacks, wsConfig) {
	cb := callbacks{
		interimTranscriptionCallback: func(string) {},
		transcriptionCallback:        func(string) {},
		startSpeechCallback:          func() {},
		endSpeechCallback:            func() {},
		accumulate:                   options.TranscriptionCallback != nil,
	}
	if options.InterimTranscriptionCallback != nil {
		cb.interimTranscriptionCallback = options.InterimTranscriptionCallback
	}
	if options.TranscriptionCallback != nil {
		cb.transcriptionCallback = options.TranscriptionCallback
	}
	if options.SpeechStartedCallback != nil {
		cb.startSpeechCallback = options.SpeechStartedCallback
	}
	if options.SpeechEndedCallback != nil {
		cb.endSpeechCallback = options.SpeechEndedCallback
	}

	return cb, wsConfig{
		shouldDetectSpeechStart:            options.SpeechStartedCallback != nil,
		shouldEnhanceSpeechEndingDetection: options.TranscriptionCallback != nil || options.SpeechEndedCallback != nil,
		shouldRequestInterimResults:        options.InterimTranscriptionCallback != nil,
	}
}

// Transcribe opens the stream. Callbacks are invoked from a single reader
// goroutine in the order Deepgram sends its messages.
func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	cb, config := newCallbackConfig(options)
	conn, err := s.connectWebsocket(ctx, encoding, config)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	done := make(chan struct{})
	s.connMu.Lock()
	s.conn = conn
	s.readerDone = done
	s.connMu.Unlock()
	s.lastMsgTs.Store(time.Now().UnixNano())

	go s.readAndProcessMessages(ctx, conn, cb, options.EncodingInfo, done)
	return nil
}

func (s *TranscriptionClient) connectWebsocket(ctx context.Context, encoding streamEncoding, config wsConfig) (*websocket.Conn, error) {
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	listenUrl, err := url.Parse(s.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenUrl.Query()
	encoding.setQuery(queryParams)
	queryParams.Set("model", s.model)
	queryParams.Set("language", s.language)
	queryParams.Set("smart_format", "true")
	if config.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if config.shouldRequestInterimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	if config.shouldDetectSpeechStart || config.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("vad_events", "true")
	}

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := s.dialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type controlMessage struct {
	Type string `json:"type"`
}

func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.lastMsgTs.Store(time.Now().UnixNano())
	return s.write(websocket.BinaryMessage, audio)
}

func (s *TranscriptionClient) sendSilence(audio []byte) error {
	return s.write(websocket.BinaryMessage, audio)
}

func (s *TranscriptionClient) sendKeepAlive() error {
	return s.writeJSON(controlMessage{Type: "KeepAlive"})
}

func (s *TranscriptionClient) write(messageType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrNotConnected
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// StopStream asks Deepgram to flush and close the stream, then waits for the
// last callbacks to be delivered or ctx to be done.
func (s *TranscriptionClient) StopStream(ctx context.Context) error {
	s.connMu.Lock()
	conn, done := s.conn, s.readerDone
	s.connMu.Unlock()
	if conn == nil {
		return nil
	}

	if err := s.writeJSON(controlMessage{Type: string(api.TypeCloseStreamResponse)}); err != nil && !errors.Is(err, ErrNotConnected) {
		_ = conn.Close()
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = conn.Close()
		<-done
		return ctx.Err()
	}
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, cb callbacks, encoding audio.EncodingInfo, done chan struct{}) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer func() {
		silenceCancel()
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
		_ = conn.Close()
		close(done)
	}()

	go s.generateSilence(silenceCtx, encoding)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Warn("failed to read deepgram websocket message", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, cb)
		}
	}
}

func (s *TranscriptionClient) processMessage(msg []byte, cb callbacks) {
	var parsedMsg controlMessage
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		if !msgResp.IsFinal {
			if transcript != "" {
				cb.interimTranscriptionCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
			}
			return
		}

		if transcript != "" && cb.accumulate {
			s.accumulatedTranscript += " " + transcript
		}
		if msgResp.SpeechFinal {
			s.onSpeechEnded(cb)
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment {
			s.onSpeechEnded(cb)
		}

	case api.TypeSpeechStartedResponse:
		if !s.unendedSegment {
			s.unendedSegment = true
			cb.startSpeechCallback()
		}
	}
}

func (s *TranscriptionClient) onSpeechEnded(cb callbacks) {
	wasSpeaking := s.unendedSegment
	s.unendedSegment = false

	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if fullTranscript != "" {
		cb.transcriptionCallback(fullTranscript)
	}
	if wasSpeaking || fullTranscript != "" {
		cb.endSpeechCallback()
	}
}

// generateSilence keeps the stream alive while no audio is sent: a second of
// silence so endpointing can finish the utterance, then periodic KeepAlive
// messages.
func (s *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const chunkDuration = 50 * time.Millisecond
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	chunk := audio.Silence(encoding, chunkDuration).Data
	sinceLastAudio := func() time.Duration {
		return time.Since(time.Unix(0, s.lastMsgTs.Load()))
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if sinceLastAudio() > chunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if sinceLastAudio() < chunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.sendSilence(chunk); err != nil && !errors.Is(err, ErrNotConnected) {
					logger.Warn("failed to send silence", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if sinceLastAudio() < chunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					if err := s.sendKeepAlive(); err != nil && !errors.Is(err, ErrNotConnected) {
						logger.Warn("failed to send keep alive", "error", err)
					}
				}
			}
		}
	}
}
