package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/texttospeech"
)

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

func speakMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

// Synthesize sends text in a single Speak message, flushes it and collects
// the audio until Deepgram confirms the flush.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, voice, text string) (audio.Clip, error) {
	if voice == "" {
		voice = string(c.voice)
	}
	if !IsAvailableVoice(voice) {
		return audio.Clip{}, fmt.Errorf("%w: %q", ErrInvalidVoice, voice)
	}

	// Aura reads markup out loud, an ellipsis gives a similar pause.
	text = strings.TrimSpace(texttospeech.ReplaceBreaks(text, "... "))
	if text == "" {
		return audio.Clip{Encoding: c.encoding}, nil
	}

	conn, err := c.connectWebsocket(ctx, voice)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := conn.WriteJSON(speakMsg(text)); err != nil {
		return audio.Clip{}, contextOr(ctx, fmt.Errorf("failed to send text to deepgram: %w", err))
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return audio.Clip{}, contextOr(ctx, fmt.Errorf("failed to flush deepgram buffer: %w", err))
	}

	clip := audio.Clip{Encoding: c.encoding}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return audio.Clip{}, contextOr(ctx, fmt.Errorf("failed to read deepgram audio: %w", err))
		}

		switch msgType {
		case websocket.BinaryMessage:
			clip.Data = append(clip.Data, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type    string `json:"type"`
				ErrMsg  string `json:"err_msg"`
				Warning string `json:"warn_msg"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				if err := conn.WriteJSON(closeMsg); err != nil {
					logger.Debug("failed to close deepgram stream", "error", err)
				}
				return clip, nil
			case "Warning":
				logger.Warn("deepgram warning", "message", parsedMsg.Warning)
			case "Error":
				return audio.Clip{}, fmt.Errorf("deepgram error: %s", parsedMsg.ErrMsg)
			}
		}
	}
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, voice string) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	speakURL, err := url.Parse(c.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}
	urlValues := speakURL.Query()
	urlValues.Set("encoding", c.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	urlValues.Set("model", voice)
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}
