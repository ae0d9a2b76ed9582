package deepgram

import (
	"errors"
	"fmt"
	"os"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-panel/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-panel/core/texttospeech/deepgram"

var logger = otelslog.NewLogger(scopeName)

const (
	Name            = "deepgram"
	defaultSpeakURL = "wss://api.deepgram.com/v1/speak"
)

var (
	ErrMissingAPIKey = errors.New("deepgram api key not found")
	ErrInvalidVoice  = errors.New("invalid deepgram voice")
)

// TextToSpeechClient synthesizes speech with Deepgram's Aura voices over the
// streaming speak API. Each Synthesize call uses its own connection.
type TextToSpeechClient struct {
	apiKey   string
	speakURL string
	voice    deepgramVoice
	encoding audio.EncodingInfo
	dialer   *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

// WithVoice sets the voice used when Synthesize gets an empty voice.
func WithVoice(voice string) ClientOption {
	return func(c *TextToSpeechClient) {
		if voice != "" {
			c.voice = deepgramVoice(voice)
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

func WithSpeakURL(speakURL string) ClientOption {
	return func(c *TextToSpeechClient) {
		if speakURL != "" {
			c.speakURL = speakURL
		}
	}
}

// NewTextToSpeechClient creates a client. An empty apiKey falls back to the
// DEEPGRAM_API_KEY environment variable.
func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}

	client := &TextToSpeechClient{
		apiKey:   apiKey,
		speakURL: defaultSpeakURL,
		voice:    defaultVoice,
		encoding: audio.GetDefaultEncodingInfo(),
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	if !IsAvailableVoice(string(client.voice)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVoice, client.voice)
	}
	if err := checkEncoding(client.encoding); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *TextToSpeechClient) Name() string { return Name }

func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo { return c.encoding }

func checkEncoding(encoding audio.EncodingInfo) error {
	switch encoding.Format {
	case audio.EncodingLinear16:
		switch encoding.SampleRate {
		case 8000, 16000, 24000, 32000, 48000:
			return nil
		}
	case audio.EncodingMulaw, audio.EncodingALaw:
		if encoding.SampleRate == 8000 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", audio.ErrUnsupportedEncoding, encoding)
}
