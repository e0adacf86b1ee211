package ports

import (
	"context"
	"io"

	"deskchat/internal/domain"
)

// DeliveryChannel sends one user message to the remote chat backend and
// returns the reply text. Transport failures, non-2xx statuses and malformed
// bodies are all reported as errors.
type DeliveryChannel interface {
	Send(ctx context.Context, message string) (string, error)
}

// RecognitionConfig describes provider-agnostic dictation settings.
type RecognitionConfig struct {
	Language       string
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// CaptureSession is one live dictation capture. Result yields at most one
// final transcript and is then closed; Stop ends the capture early without a
// result.
type CaptureSession interface {
	Result() <-chan string
	Stop() error
	Err() error
}

// SpeechRecognizer starts dictation capture sessions.
type SpeechRecognizer interface {
	Start(ctx context.Context, cfg RecognitionConfig) (CaptureSession, error)
}

// Utterance is one in-flight speech playback. Done is closed when playback
// finishes for any reason; Cancel stops it immediately and is idempotent.
type Utterance interface {
	Done() <-chan struct{}
	Cancel()
}

// SpeechSynthesizer voices text aloud.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string) (Utterance, error)
}

// TextExtractor runs OCR over an image payload.
type TextExtractor interface {
	Extract(ctx context.Context, image []byte) (string, error)
}

// TextRefiner cleans up machine-produced text (dictation, OCR) before it is
// offered as draft input.
type TextRefiner interface {
	Refine(text string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Identity resolves the signed-in user for the greeting and page gate.
type Identity interface {
	Resolve(ctx context.Context) (domain.User, error)
}

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live microphone capture.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions for the recognizer.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// EventSink pushes session changes to the UI.
type EventSink interface {
	FlagsChanged(flags domain.Flags, reason domain.StateReason)
	MessageAppended(message domain.Message)
	MessageRemoved(id string)
	DraftChanged(text string)
	Notice(code domain.NoticeCode, detail string)
}
