package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-panel/core/audio"
)

type request struct {
	path   string
	model  string
	format string
	texts  []string
}

func newStreamInputServer(t *testing.T, chunks [][]byte, requests chan<- request) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		defer conn.Close()

		req := request{
			path:   r.URL.Path,
			model:  r.URL.Query().Get("model_id"),
			format: r.URL.Query().Get("output_format"),
		}
		for {
			var msg textMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			req.texts = append(req.texts, msg.Text)
			if msg.Text == "" {
				break
			}
		}
		requests <- req

		for _, chunk := range chunks {
			payload := fmt.Sprintf(`{"audio":%q,"isFinal":null}`, base64.StdEncoding.EncodeToString(chunk))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"isFinal":true}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSynthesizeDecodesAudioUntilFinal(t *testing.T) {
	requests := make(chan request, 1)
	server := newStreamInputServer(t, [][]byte{{1, 2}, {3, 4}}, requests)

	client, err := NewTextToSpeechClient("test-key", WithBaseURL("ws"+strings.TrimPrefix(server.URL, "http")))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	clip, err := client.Synthesize(context.Background(), "voice-123", "Well. <break time='500ms'/> Indeed.")
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if string(clip.Data) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("expected decoded audio, got %v", clip.Data)
	}

	req := <-requests
	if req.path != "/v1/text-to-speech/voice-123/stream-input" {
		t.Fatalf("unexpected path %q", req.path)
	}
	if req.model != DefaultModel || req.format != "pcm_16000" {
		t.Fatalf("unexpected model %q or format %q", req.model, req.format)
	}
	if len(req.texts) != 3 || req.texts[0] != " " || req.texts[2] != "" {
		t.Fatalf("expected init, text and end-of-input messages, got %q", req.texts)
	}
	if req.texts[1] != `Well. <break time="0.5s" /> Indeed. ` {
		t.Fatalf("expected break marker in elevenlabs syntax, got %q", req.texts[1])
	}
}

func TestSynthesizeUsesDefaultVoice(t *testing.T) {
	requests := make(chan request, 1)
	server := newStreamInputServer(t, [][]byte{{0, 0}}, requests)

	client, err := NewTextToSpeechClient("test-key",
		WithBaseURL("ws"+strings.TrimPrefix(server.URL, "http")), WithVoice("narrator"))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "", "hello"); err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if req := <-requests; req.path != "/v1/text-to-speech/narrator/stream-input" {
		t.Fatalf("expected default voice in path, got %q", req.path)
	}
}

func TestOutputFormatForEncoding(t *testing.T) {
	tests := []struct {
		encoding audio.EncodingInfo
		want     string
		wantErr  bool
	}{
		{encoding: audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}, want: "pcm_16000"},
		{encoding: audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16}, want: "pcm_44100"},
		{encoding: audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw}, want: "ulaw_8000"},
		{encoding: audio.EncodingInfo{SampleRate: 48000, Format: audio.EncodingLinear16}, wantErr: true},
		{encoding: audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingALaw}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := outputFormatFor(tt.encoding)
		if tt.wantErr {
			if !errors.Is(err, audio.ErrUnsupportedEncoding) {
				t.Fatalf("%s: expected unsupported encoding, got %v", tt.encoding, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("%s: expected %q, got %q (%v)", tt.encoding, tt.want, got, err)
		}
	}
}

func TestSynthesizeWithoutAPIKeyFails(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")

	client, err := NewTextToSpeechClient("")
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if _, err := client.Synthesize(context.Background(), "", "hello"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing api key error, got %v", err)
	}
}
