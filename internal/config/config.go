package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config stores runtime configuration for the assistant.
type Config struct {
	Chat       ChatConfig
	Deepgram   DeepgramConfig
	ElevenLabs ElevenLabsConfig
	OCR        OCRConfig
	Clerk      ClerkConfig
	Audio      AudioConfig
	Refine     RefineConfig
	Session    SessionConfig
}

type ChatConfig struct {
	EndpointURL string
	Timeout     time.Duration
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type ElevenLabsConfig struct {
	APIKey        string
	APIBaseURL    string
	VoiceID       string
	ModelID       string
	PlayerCommand string
}

type OCRConfig struct {
	Command  string
	Language string
}

type ClerkConfig struct {
	SecretKey  string
	APIBaseURL string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type RefineConfig struct {
	Path           string
	IterationLimit int
}

type SessionConfig struct {
	ChunkSize int
}

// Load resolves configuration from environment variables and sensible
// defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	rulesPath := strings.TrimSpace(os.Getenv("DESKCHAT_RULES_FILE"))
	if rulesPath == "" {
		candidate := filepath.Join(home, ".config", "deskchat", "substitutions.rules")
		if _, err := os.Stat(candidate); err == nil {
			rulesPath = candidate
		}
	}

	cfg := Config{
		Chat: ChatConfig{
			EndpointURL: envOrDefault("DESKCHAT_CHAT_URL", "https://useless-85e9.onrender.com/chat"),
			Timeout:     time.Duration(envOrDefaultInt("DESKCHAT_CHAT_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    envOrDefault("DEEPGRAM_LANGUAGE", "en-US"),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:        strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
			APIBaseURL:    envOrDefault("ELEVENLABS_API_BASE", "https://api.elevenlabs.io"),
			VoiceID:       strings.TrimSpace(os.Getenv("ELEVENLABS_VOICE_ID")),
			ModelID:       envOrDefault("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
			PlayerCommand: envOrDefault("DESKCHAT_PLAYER_COMMAND", "ffplay"),
		},
		OCR: OCRConfig{
			Command:  envOrDefault("DESKCHAT_OCR_COMMAND", "tesseract"),
			Language: envOrDefault("DESKCHAT_OCR_LANGUAGE", "eng"),
		},
		Clerk: ClerkConfig{
			SecretKey:  strings.TrimSpace(os.Getenv("CLERK_SECRET_KEY")),
			APIBaseURL: envOrDefault("CLERK_API_BASE", "https://api.clerk.com"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("DESKCHAT_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("DESKCHAT_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:     envOrDefault("DESKCHAT_AUDIO_INPUT_DEVICE", "default"),
			SampleRate:      envOrDefaultInt("DESKCHAT_SAMPLE_RATE", 16000),
			Channels:        envOrDefaultInt("DESKCHAT_CHANNELS", 1),
		},
		Refine: RefineConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("DESKCHAT_RULE_ITERATION_LIMIT", 30),
		},
		Session: SessionConfig{
			ChunkSize: envOrDefaultInt("DESKCHAT_AUDIO_CHUNK_SIZE", 4096),
		},
	}

	if cfg.Chat.Timeout <= 0 {
		cfg.Chat.Timeout = 30 * time.Second
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Refine.IterationLimit <= 0 {
		cfg.Refine.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}

	return cfg, nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
