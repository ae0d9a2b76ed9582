package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-panel/core/audio"
)

type speakServer struct {
	*httptest.Server
	texts   chan string
	queries chan url.Values
}

func newSpeakServer(t *testing.T, chunks [][]byte, flush bool) *speakServer {
	t.Helper()

	server := &speakServer{texts: make(chan string, 4), queries: make(chan url.Values, 4)}
	upgrader := websocket.Upgrader{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		server.queries <- r.URL.Query()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg websocketMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "Speak":
				server.texts <- msg.Text
			case "Flush":
				for _, chunk := range chunks {
					if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
						return
					}
				}
				if flush {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
				}
			case "Close":
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSynthesizeCollectsAudioUntilFlushed(t *testing.T) {
	server := newSpeakServer(t, [][]byte{{1, 2}, {3, 4}}, true)

	client, err := NewTextToSpeechClient("test-key", WithSpeakURL(wsURL(server.Server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	clip, err := client.Synthesize(context.Background(), string(VoiceOrion),
		"Hello there. <break time='500ms'/> Nice to meet you.")
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if string(clip.Data) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("expected concatenated audio, got %v", clip.Data)
	}
	if clip.Encoding != audio.GetDefaultEncodingInfo() {
		t.Fatalf("expected default encoding, got %v", clip.Encoding)
	}

	if text := <-server.texts; text != "Hello there.... Nice to meet you." {
		t.Fatalf("expected break marker replaced, got %q", text)
	}
	query := <-server.queries
	for key, want := range map[string]string{
		"model": "aura-orion-en", "encoding": "linear16", "sample_rate": "16000", "container": "none",
	} {
		if got := query.Get(key); got != want {
			t.Fatalf("expected %s=%s, got %q", key, want, got)
		}
	}
}

func TestSynthesizeUsesDefaultVoice(t *testing.T) {
	server := newSpeakServer(t, [][]byte{{0, 0}}, true)

	client, err := NewTextToSpeechClient("test-key", WithSpeakURL(wsURL(server.Server)), WithVoice(string(VoiceLuna)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "", "hi"); err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if got := (<-server.queries).Get("model"); got != string(VoiceLuna) {
		t.Fatalf("expected configured default voice, got %q", got)
	}
}

func TestSynthesizeRespectsContext(t *testing.T) {
	server := newSpeakServer(t, nil, false)

	client, err := NewTextToSpeechClient("test-key", WithSpeakURL(wsURL(server.Server)))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = client.Synthesize(ctx, "", "never flushed")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSynthesizeRejectsUnknownVoice(t *testing.T) {
	client, err := NewTextToSpeechClient("test-key")
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "not-a-voice", "hi"); !errors.Is(err, ErrInvalidVoice) {
		t.Fatalf("expected invalid voice error, got %v", err)
	}
}

func TestNewTextToSpeechClientValidatesConfiguration(t *testing.T) {
	if _, err := NewTextToSpeechClient("key", WithVoice("robot")); !errors.Is(err, ErrInvalidVoice) {
		t.Fatalf("expected invalid voice error, got %v", err)
	}

	mulaw16k := audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}
	if _, err := NewTextToSpeechClient("key", WithEncodingInfo(mulaw16k)); !errors.Is(err, audio.ErrUnsupportedEncoding) {
		t.Fatalf("expected unsupported encoding error, got %v", err)
	}
}

func TestSynthesizeWithoutAPIKeyFails(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")

	client, err := NewTextToSpeechClient("")
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "", "hi"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}

func TestWebsocketMessagesMatchDeepgramProtocol(t *testing.T) {
	encoded, err := json.Marshal(speakMsg("hi"))
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}
	if string(encoded) != `{"type":"Speak","text":"hi"}` {
		t.Fatalf("unexpected speak message %s", encoded)
	}
	encoded, _ = json.Marshal(flushMsg)
	if string(encoded) != `{"type":"Flush"}` {
		t.Fatalf("unexpected flush message %s", encoded)
	}
}
