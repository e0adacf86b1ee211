package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"deskchat/internal/ports"
)

// Config controls ElevenLabs synthesis and local playback.
type Config struct {
	APIKey        string
	APIBaseURL    string
	VoiceID       string
	ModelID       string
	PlayerCommand string
	HTTPClient    *http.Client
}

// Synthesizer implements ports.SpeechSynthesizer: text is synthesized through
// the ElevenLabs HTTP API and the returned audio is voiced by an external
// player process. The running process is the utterance; killing it is
// cancellation.
type Synthesizer struct {
	cfg  Config
	http *http.Client
}

func NewSynthesizer(cfg Config) *Synthesizer {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.elevenlabs.io"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.PlayerCommand == "" {
		cfg.PlayerCommand = "ffplay"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Synthesizer{cfg: cfg, http: httpClient}
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (s *Synthesizer) Speak(ctx context.Context, text string) (ports.Utterance, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return nil, errors.New("ELEVENLABS_API_KEY is not configured")
	}
	if strings.TrimSpace(s.cfg.VoiceID) == "" {
		return nil, errors.New("ELEVENLABS_VOICE_ID is not configured")
	}

	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	return startPlayback(s.cfg.PlayerCommand, audio)
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, ModelID: s.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	endpoint := strings.TrimRight(s.cfg.APIBaseURL, "/") + "/v1/text-to-speech/" + s.cfg.VoiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(payload))
		if detail == "" {
			detail = resp.Status
		}
		return nil, fmt.Errorf("synthesis returned %d: %s", resp.StatusCode, detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesis returned no audio")
	}
	return audio, nil
}

func startPlayback(command string, audio []byte) (*playbackUtterance, error) {
	cmd := exec.Command(command, "-autoexit", "-nodisp", "-loglevel", "quiet", "-")
	cmd.Stdin = bytes.NewReader(audio)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio player %q: %w", command, err)
	}

	u := &playbackUtterance{
		process: cmd.Process,
		done:    make(chan struct{}),
	}
	go func() {
		_ = cmd.Wait()
		close(u.done)
	}()
	return u, nil
}

type playbackUtterance struct {
	process    *os.Process
	done       chan struct{}
	cancelOnce sync.Once
}

func (u *playbackUtterance) Done() <-chan struct{} {
	return u.done
}

func (u *playbackUtterance) Cancel() {
	u.cancelOnce.Do(func() {
		if u.process != nil {
			_ = u.process.Kill()
		}
	})
	<-u.done
}
