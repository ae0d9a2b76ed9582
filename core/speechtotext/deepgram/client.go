package deepgram

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-panel/core/speechtotext/deepgram"

var logger = otelslog.NewLogger(scopeName)

const (
	defaultListenURL = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en-US"
)

var (
	ErrMissingAPIKey = errors.New("deepgram api key not found")
	ErrNotConnected  = errors.New("deepgram connection is not open")
)

// TranscriptionClient streams audio to Deepgram's live transcription API.
type TranscriptionClient struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	dialer    *websocket.Dialer

	conn      *websocket.Conn
	connMu    sync.Mutex
	lastMsgTs atomic.Int64

	readerDone chan struct{}

	// Only touched by the reader goroutine.
	accumulatedTranscript string
	unendedSegment        bool
}

type ClientOption func(*TranscriptionClient)

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		if language != "" {
			c.language = language
		}
	}
}

// WithListenURL points the client at a different endpoint, e.g. a proxy.
func WithListenURL(listenURL string) ClientOption {
	return func(c *TranscriptionClient) {
		if listenURL != "" {
			c.listenURL = listenURL
		}
	}
}

// NewTranscriptionClient creates a client. An empty apiKey falls back to the
// DEEPGRAM_API_KEY environment variable.
func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	if apiKey == "" {
		apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}

	client := &TranscriptionClient{
		apiKey:    apiKey,
		listenURL: defaultListenURL,
		model:     defaultModel,
		language:  defaultLanguage,
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}
