package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"deskchat/internal/ports"
)

type fakeAudioCapture struct {
	session ports.AudioSession
	err     error
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// fakeAudioSession blocks reads until data is written or the session is
// stopped, mimicking a live microphone.
type fakeAudioSession struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	stopOnce sync.Once
}

func newFakeAudioSession() *fakeAudioSession {
	pr, pw := io.Pipe()
	return &fakeAudioSession{pr: pr, pw: pw}
}

func (f *fakeAudioSession) Read(p []byte) (int, error) { return f.pr.Read(p) }

func (f *fakeAudioSession) Stop() error {
	f.stopOnce.Do(func() { _ = f.pw.Close() })
	return nil
}

func (f *fakeAudioSession) Close() error {
	_ = f.Stop()
	return f.pr.Close()
}

func newListenServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
}

func drainClient(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestStartReturnsFirstEndpointedTranscript(t *testing.T) {
	t.Parallel()

	server := newListenServer(t, func(conn *websocket.Conn, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token dg_key" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.URL.Query().Get("model"); got != "nova-2" {
			t.Errorf("unexpected model %q", got)
		}
		go drainClient(conn)

		writeJSON := func(payload string) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				t.Errorf("write failed: %v", err)
			}
		}
		writeJSON(`{"is_final":false,"channel":{"alternatives":[{"transcript":"buy"}]}}`)
		writeJSON(`{"is_final":true,"channel":{"alternatives":[{"transcript":"buy milk"}]}}`)
		writeJSON(`{"is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"please"}]}}`)

		// Hold the connection open until the client tears it down.
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	recognizer := NewRecognizer(Config{
		APIKey:     "dg_key",
		APIBaseURL: server.URL,
		Capture:    &fakeAudioCapture{session: newFakeAudioSession()},
	})

	session, err := recognizer.Start(context.Background(), ports.RecognitionConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Stop()

	select {
	case text, ok := <-session.Result():
		if !ok {
			t.Fatalf("result channel closed without a transcript")
		}
		if text != "buy milk please" {
			t.Fatalf("unexpected transcript %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}
	if err := session.Err(); err != nil {
		t.Fatalf("unexpected session error: %v", err)
	}
}

func TestStartProviderErrorConcludesWithoutResult(t *testing.T) {
	t.Parallel()

	server := newListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		go drainClient(conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Error","message":"bad model"}`))
		time.Sleep(500 * time.Millisecond)
	})
	defer server.Close()

	recognizer := NewRecognizer(Config{
		APIKey:     "dg_key",
		APIBaseURL: server.URL,
		Capture:    &fakeAudioCapture{session: newFakeAudioSession()},
	})

	session, err := recognizer.Start(context.Background(), ports.RecognitionConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case _, ok := <-session.Result():
		if ok {
			t.Fatalf("expected no transcript on provider error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for conclusion")
	}

	if err := session.Err(); err == nil || !strings.Contains(err.Error(), "bad model") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestStopEarlyYieldsNoResult(t *testing.T) {
	t.Parallel()

	server := newListenServer(t, func(conn *websocket.Conn, _ *http.Request) {
		drainClient(conn)
	})
	defer server.Close()

	audio := newFakeAudioSession()
	recognizer := NewRecognizer(Config{
		APIKey:     "dg_key",
		APIBaseURL: server.URL,
		Capture:    &fakeAudioCapture{session: audio},
	})

	session, err := recognizer.Start(context.Background(), ports.RecognitionConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	// Stop is idempotent.
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}

	select {
	case _, ok := <-session.Result():
		if ok {
			t.Fatalf("expected no transcript after early stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for conclusion")
	}
}

func TestStartMissingAPIKey(t *testing.T) {
	t.Parallel()

	recognizer := NewRecognizer(Config{Capture: &fakeAudioCapture{}})
	_, err := recognizer.Start(context.Background(), ports.RecognitionConfig{})
	if err == nil || !strings.Contains(err.Error(), "DEEPGRAM_API_KEY") {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBuildListenURL(t *testing.T) {
	t.Parallel()

	wsURL, err := buildListenURL(
		Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2", SmartFormat: true},
		ports.RecognitionConfig{Language: "en-GB", SampleRate: 44100, Channels: 2, Encoding: "linear16", InterimResults: true},
	)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.HasPrefix(wsURL, "wss://api.deepgram.com/v1/listen?") {
		t.Fatalf("unexpected url %q", wsURL)
	}
	for _, want := range []string{
		"model=nova-2",
		"language=en-GB",
		"sample_rate=44100",
		"channels=2",
		"encoding=linear16",
		"interim_results=true",
		"smart_format=true",
	} {
		if !strings.Contains(wsURL, want) {
			t.Fatalf("url %q missing %q", wsURL, want)
		}
	}
}

func TestBuildListenURLDefaults(t *testing.T) {
	t.Parallel()

	wsURL, err := buildListenURL(Config{Model: "nova-2"}, ports.RecognitionConfig{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	for _, want := range []string{
		"wss://api.deepgram.com/v1/listen?",
		"encoding=linear16",
		"sample_rate=16000",
		"channels=1",
		"language=en-US",
	} {
		if !strings.Contains(wsURL, want) {
			t.Fatalf("url %q missing %q", wsURL, want)
		}
	}
}

func TestExtractTranscript(t *testing.T) {
	t.Parallel()

	if got := extractTranscript(listenResponse{}); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}

	var response listenResponse
	response.Channel.Alternatives = []struct {
		Transcript string `json:"transcript"`
	}{{Transcript: "  hello world  "}}
	if got := extractTranscript(response); got != "hello world" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestSetErrFiltersExpectedCloses(t *testing.T) {
	t.Parallel()

	session := &dictationSession{}

	session.setErr(&websocket.CloseError{Code: websocket.CloseNormalClosure})
	if err := session.Err(); err != nil {
		t.Fatalf("normal close recorded as error: %v", err)
	}

	session.setErr(io.ErrUnexpectedEOF)
	if err := session.Err(); err == nil {
		t.Fatalf("expected error recorded")
	}

	session.setErr(io.EOF)
	if err := session.Err(); err != io.ErrUnexpectedEOF {
		t.Fatalf("first error was overwritten: %v", err)
	}
}
