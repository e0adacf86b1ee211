package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"deskchat/internal/ports"
)

// Config controls the Deepgram dictation provider.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool

	// Capture supplies microphone audio for the websocket stream.
	Capture   ports.AudioCapture
	Audio     ports.AudioConfig
	ChunkSize int
}

// Recognizer implements ports.SpeechRecognizer over the Deepgram streaming
// API. Each capture session voices one utterance: the first finalized
// transcript concludes the session, matching single-phrase dictation.
type Recognizer struct {
	cfg Config
}

func NewRecognizer(cfg Config) *Recognizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Start(ctx context.Context, cfg ports.RecognitionConfig) (ports.CaptureSession, error) {
	if strings.TrimSpace(r.cfg.APIKey) == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}
	if r.cfg.Capture == nil {
		return nil, errors.New("no audio capture is configured")
	}

	wsURL, err := buildListenURL(r.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	audio, err := r.cfg.Capture.Start(ctx, r.cfg.Audio)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	session := &dictationSession{
		conn:   conn,
		audio:  audio,
		result: make(chan string, 1),
		done:   make(chan struct{}),
	}

	go session.readLoop()
	go session.pumpAudio(r.cfg.ChunkSize)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Stop()
		case <-session.done:
		}
	}()

	return session, nil
}

// dictationSession is one live capture. The single writer is pumpAudio, the
// single reader is readLoop; conclude owns teardown and runs at most once.
type dictationSession struct {
	conn  *websocket.Conn
	audio ports.AudioSession

	result chan string
	done   chan struct{}

	mu     sync.Mutex
	finals []string
	err    error

	concludeOnce sync.Once
}

func (s *dictationSession) Result() <-chan string {
	return s.result
}

// Stop ends the capture early, discarding anything heard so far.
func (s *dictationSession) Stop() error {
	s.conclude("")
	return nil
}

func (s *dictationSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *dictationSession) conclude(text string) {
	s.concludeOnce.Do(func() {
		_ = s.audio.Stop()
		_ = s.conn.Close()
		if text != "" {
			s.result <- text
		}
		close(s.result)
		close(s.done)
	})
}

func (s *dictationSession) concludeNatural() {
	s.mu.Lock()
	joined := strings.TrimSpace(strings.Join(s.finals, " "))
	s.mu.Unlock()
	s.conclude(joined)
}

func (s *dictationSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	// An early Stop closes the connection under the read loop; that is not a
	// capture failure.
	if errors.Is(err, net.ErrClosed) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *dictationSession) pumpAudio(chunkSize int) {
	buf := make([]byte, chunkSize)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			if writeErr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(fmt.Errorf("audio capture error: %w", err))
			}
			_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
			return
		}
	}
}

func (s *dictationSession) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			s.concludeNatural()
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			s.conclude("")
			return
		}

		transcript := extractTranscript(response)
		if transcript == "" {
			continue
		}

		if response.IsFinal || response.SpeechFinal {
			s.mu.Lock()
			s.finals = append(s.finals, transcript)
			s.mu.Unlock()
		}

		// One utterance per session: the first endpointed phrase is the
		// dictation result.
		if response.SpeechFinal {
			s.concludeNatural()
			return
		}
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func extractTranscript(response listenResponse) string {
	if len(response.Channel.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(response.Channel.Alternatives[0].Transcript)
}

func buildListenURL(providerCfg Config, cfg ports.RecognitionConfig) (string, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = "https://api.deepgram.com/v1"
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	listenURL, err := url.Parse(base + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}

	query := listenURL.Query()
	query.Set("model", providerCfg.Model)
	query.Set("encoding", cfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", cfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", cfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", cfg.InterimResults))
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	query.Set("language", cfg.Language)
	listenURL.RawQuery = query.Encode()
	return listenURL.String(), nil
}
