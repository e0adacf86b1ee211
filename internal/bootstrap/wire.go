package bootstrap

import (
	"os/exec"

	"deskchat/internal/audio"
	"deskchat/internal/config"
	"deskchat/internal/ports"
	"deskchat/internal/providers/chatapi"
	"deskchat/internal/providers/clerk"
	"deskchat/internal/providers/deepgram"
	"deskchat/internal/providers/elevenlabs"
	"deskchat/internal/providers/tesseract"
	"deskchat/internal/rules"
	"deskchat/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Identity   ports.Identity
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime. Capabilities
// whose providers are not configured are left nil; the controller exposes
// them as disabled instead of failing per use.
func Build(events ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	refiner, err := rules.NewRefiner(cfg.Refine.Path, cfg.Refine.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	var recognizer ports.SpeechRecognizer
	if cfg.Deepgram.APIKey != "" {
		recognizer = deepgram.NewRecognizer(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Capture:     audio.NewMicCapture(cfg.Audio.RecorderCommand),
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			ChunkSize: cfg.Session.ChunkSize,
		})
	}

	var synthesizer ports.SpeechSynthesizer
	if cfg.ElevenLabs.APIKey != "" && cfg.ElevenLabs.VoiceID != "" {
		synthesizer = elevenlabs.NewSynthesizer(elevenlabs.Config{
			APIKey:        cfg.ElevenLabs.APIKey,
			APIBaseURL:    cfg.ElevenLabs.APIBaseURL,
			VoiceID:       cfg.ElevenLabs.VoiceID,
			ModelID:       cfg.ElevenLabs.ModelID,
			PlayerCommand: cfg.ElevenLabs.PlayerCommand,
		})
	}

	var extractor ports.TextExtractor
	if _, err := exec.LookPath(cfg.OCR.Command); err == nil {
		extractor = tesseract.NewExtractor(tesseract.Config{
			Command:  cfg.OCR.Command,
			Language: cfg.OCR.Language,
		})
	}

	var identity ports.Identity
	if cfg.Clerk.SecretKey != "" {
		identity = clerk.NewIdentity(clerk.Config{
			SecretKey:  cfg.Clerk.SecretKey,
			APIBaseURL: cfg.Clerk.APIBaseURL,
		})
	}

	controller := usecase.NewSessionController(
		chatapi.NewClient(chatapi.Config{EndpointURL: cfg.Chat.EndpointURL}),
		recognizer,
		synthesizer,
		extractor,
		refiner,
		clipboard,
		events,
		usecase.Config{
			Recognition: ports.RecognitionConfig{
				Language:       cfg.Deepgram.Language,
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			DeliveryTimeout: cfg.Chat.Timeout,
		},
	)

	return Services{Controller: controller, Identity: identity, Config: cfg}, nil
}
