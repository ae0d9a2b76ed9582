package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-panel/core/audio"
	"github.com/koscakluka/ema-panel/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-panel/core/texttospeech/elevenlabs"

var logger = otelslog.NewLogger(scopeName)

const (
	Name = "elevenlabs"

	DefaultModel   = "eleven_flash_v2_5"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

	defaultBaseURL = "wss://api.elevenlabs.io"
	writeTimeout   = 5 * time.Second
)

var ErrMissingAPIKey = errors.New("elevenlabs api key not found")

// TextToSpeechClient synthesizes speech over ElevenLabs' stream-input
// websocket. Each Synthesize call uses its own connection.
type TextToSpeechClient struct {
	apiKey       string
	baseURL      string
	model        string
	voiceID      string
	encoding     audio.EncodingInfo
	outputFormat string
	dialer       *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithModel(model string) ClientOption {
	return func(c *TextToSpeechClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithVoice sets the voice used when Synthesize gets an empty voice.
func WithVoice(voiceID string) ClientOption {
	return func(c *TextToSpeechClient) {
		if voiceID != "" {
			c.voiceID = voiceID
		}
	}
}

func WithEncodingInfo(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if !encoding.IsZero() {
			c.encoding = encoding
		}
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// NewTextToSpeechClient creates a client. An empty apiKey falls back to the
// ELEVENLABS_API_KEY environment variable.
func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	client := &TextToSpeechClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		model:    DefaultModel,
		voiceID:  DefaultVoiceID,
		encoding: audio.GetDefaultEncodingInfo(),
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	outputFormat, err := outputFormatFor(client.encoding)
	if err != nil {
		return nil, err
	}
	client.outputFormat = outputFormat
	return client, nil
}

func (c *TextToSpeechClient) Name() string { return Name }

func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo { return c.encoding }

func outputFormatFor(encoding audio.EncodingInfo) (string, error) {
	switch encoding.Format {
	case audio.EncodingLinear16:
		switch encoding.SampleRate {
		case 16000, 22050, 24000, 44100:
			return "pcm_" + strconv.Itoa(encoding.SampleRate), nil
		}
	case audio.EncodingMulaw:
		if encoding.SampleRate == 8000 {
			return "ulaw_8000", nil
		}
	}
	return "", fmt.Errorf("%w: %s", audio.ErrUnsupportedEncoding, encoding)
}

type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type audioMessage struct {
	Audio   string `json:"audio"`
	IsFinal *bool  `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize sends text followed by the end-of-input message and collects the
// audio until ElevenLabs marks the stream final.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, voice, text string) (audio.Clip, error) {
	if voice == "" {
		voice = c.voiceID
	}
	text = strings.TrimSpace(texttospeech.ReplaceBreaksFunc(text, func(d time.Duration) string {
		return fmt.Sprintf(` <break time="%.1fs" /> `, d.Seconds())
	}))
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

	for _, msg := range []textMessage{
		{Text: " "},
		{Text: text + " ", TryTriggerGeneration: true},
		{Text: ""},
	} {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			return audio.Clip{}, contextOr(ctx, fmt.Errorf("failed to send text to elevenlabs: %w", err))
		}
	}

	clip := audio.Clip{Encoding: c.encoding}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && !clip.Empty() {
				return clip, nil
			}
			return audio.Clip{}, contextOr(ctx, fmt.Errorf("failed to read elevenlabs audio: %w", err))
		}

		var msg audioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("failed to unmarshal elevenlabs message", "error", err)
			continue
		}
		if msg.Error != "" {
			return audio.Clip{}, fmt.Errorf("elevenlabs error: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return audio.Clip{}, fmt.Errorf("failed to decode elevenlabs audio: %w", err)
			}
			clip.Data = append(clip.Data, chunk...)
		}
		if msg.IsFinal != nil && *msg.IsFinal {
			return clip, nil
		}
	}
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, voice string) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	streamURL, err := url.Parse(c.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice) + "/stream-input")
	if err != nil {
		return nil, fmt.Errorf("invalid elevenlabs url: %w", err)
	}
	query := streamURL.Query()
	query.Set("model_id", c.model)
	query.Set("output_format", c.outputFormat)
	streamURL.RawQuery = query.Encode()

	conn, _, err := c.dialer.DialContext(ctx, streamURL.String(), http.Header{"xi-api-key": {c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to elevenlabs: %w", err)
	}
	return conn, nil
}

func contextOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, err)
	}
	return err
}
