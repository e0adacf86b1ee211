package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deskchat/internal/domain"
	"deskchat/internal/ports"
)

var (
	ErrEmptyDraft         = errors.New("draft is empty")
	ErrSendInFlight       = errors.New("a send is already in flight")
	ErrExtractionInFlight = errors.New("an image extraction is already in flight")
	ErrUnsupportedImage   = errors.New("only PNG, JPG and JPEG images are supported")
)

// FailureReply is appended in place of a bot reply when delivery fails.
const FailureReply = "Sorry, there was an error processing your message."

var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
}

// Config controls session behavior.
type Config struct {
	Recognition ports.RecognitionConfig
	// DeliveryTimeout bounds one chat round trip so a hung backend cannot
	// leave the session stuck in the sending state.
	DeliveryTimeout time.Duration
}

// SessionController owns the transcript, the pending draft and the transient
// session flags, and mediates every producer and consumer of the
// conversation. All state lives in memory for one session only.
type SessionController struct {
	delivery    ports.DeliveryChannel
	recognizer  ports.SpeechRecognizer
	synthesizer ports.SpeechSynthesizer
	extractor   ports.TextExtractor
	refiner     ports.TextRefiner
	clipboard   ports.Clipboard
	events      ports.EventSink
	cfg         Config
	now         func() time.Time

	mu         sync.Mutex
	transcript transcript
	draft      string
	flags      domain.Flags
	utterance  ports.Utterance
	capture    ports.CaptureSession
	closed     bool
}

func NewSessionController(
	delivery ports.DeliveryChannel,
	recognizer ports.SpeechRecognizer,
	synthesizer ports.SpeechSynthesizer,
	extractor ports.TextExtractor,
	refiner ports.TextRefiner,
	clipboard ports.Clipboard,
	events ports.EventSink,
	cfg Config,
) *SessionController {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	return &SessionController{
		delivery:    delivery,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		extractor:   extractor,
		refiner:     refiner,
		clipboard:   clipboard,
		events:      events,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Capabilities reports which optional affordances are wired so the UI can
// disable the rest instead of erroring per use.
type Capabilities struct {
	Dictation  bool `json:"dictation"`
	Synthesis  bool `json:"synthesis"`
	Extraction bool `json:"extraction"`
}

func (c *SessionController) Capabilities() Capabilities {
	return Capabilities{
		Dictation:  c.recognizer != nil,
		Synthesis:  c.synthesizer != nil,
		Extraction: c.extractor != nil,
	}
}

// SetDraft replaces the pending input unconditionally; last writer wins.
func (c *SessionController) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
	c.events.DraftChanged(text)
}

// Draft returns the current pending input.
func (c *SessionController) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Transcript returns a snapshot of the conversation log.
func (c *SessionController) Transcript() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.snapshot()
}

// Flags returns a snapshot of the transient session state.
func (c *SessionController) Flags() domain.Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// Send consumes the draft: it appends a user message, delivers the text to
// the backend and appends exactly one reply-or-failure bot message. An empty
// draft or an in-flight send leaves the transcript untouched. Delivery
// failures are converted into a transcript entry and never re-raised.
func (c *SessionController) Send(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	text := strings.TrimSpace(c.draft)
	if text == "" {
		c.mu.Unlock()
		return ErrEmptyDraft
	}
	if c.flags.Sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	userMessage := domain.NewMessage(text, domain.SenderUser, false, c.now())
	c.transcript.append(userMessage)
	c.draft = ""
	c.flags.Sending = true
	flags := c.flags
	c.mu.Unlock()

	c.events.MessageAppended(userMessage)
	c.events.DraftChanged("")
	c.events.FlagsChanged(flags, domain.ReasonSendStarted)

	reply, err := c.deliver(ctx, text)

	c.mu.Lock()
	var botMessage domain.Message
	reason := domain.ReasonReplyReceived
	if err != nil {
		botMessage = domain.NewMessage(FailureReply, domain.SenderBot, true, c.now())
		reason = domain.ReasonReplyFailed
	} else {
		botMessage = domain.NewMessage(reply, domain.SenderBot, false, c.now())
	}
	c.transcript.append(botMessage)
	c.flags.Sending = false
	flags = c.flags
	c.mu.Unlock()

	if err != nil {
		c.events.Notice(domain.NoticeDelivery, err.Error())
	}
	c.events.MessageAppended(botMessage)
	c.events.FlagsChanged(flags, reason)
	return nil
}

func (c *SessionController) deliver(ctx context.Context, text string) (string, error) {
	if c.cfg.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DeliveryTimeout)
		defer cancel()
	}
	return c.delivery.Send(ctx, text)
}

// CopyMessage places the addressed message text on the system clipboard. An
// unknown id is a no-op; a denied clipboard is reported as a notice only.
func (c *SessionController) CopyMessage(ctx context.Context, id string) error {
	c.mu.Lock()
	message, ok := c.transcript.byID(id)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := c.clipboard.SetText(ctx, message.Text); err != nil {
		c.events.Notice(domain.NoticeClipboard, err.Error())
		return err
	}
	return nil
}

// DeleteMessage removes the addressed message. Unknown ids are a silent
// no-op. Deleting the message currently being spoken cancels playback first.
func (c *SessionController) DeleteMessage(id string) bool {
	c.mu.Lock()
	removed := c.transcript.removeByID(id)
	var cancelled ports.Utterance
	if removed && c.flags.SpeakingID == id && c.utterance != nil {
		cancelled = c.utterance
		c.utterance = nil
		c.flags.Speaking = false
		c.flags.SpeakingID = ""
	}
	flags := c.flags
	c.mu.Unlock()

	if !removed {
		return false
	}
	if cancelled != nil {
		cancelled.Cancel()
		c.events.FlagsChanged(flags, domain.ReasonPlaybackStopped)
	}
	c.events.MessageRemoved(id)
	return true
}

// ToggleSpeak toggles playback. Any toggle while an utterance is active
// cancels it, regardless of which message was clicked; otherwise synthesis of
// the addressed message starts, provided the message allows it. At most one
// utterance is active at a time.
func (c *SessionController) ToggleSpeak(ctx context.Context, id string) error {
	if c.synthesizer == nil {
		return nil
	}

	c.mu.Lock()
	if c.utterance != nil {
		cancelled := c.utterance
		c.utterance = nil
		c.flags.Speaking = false
		c.flags.SpeakingID = ""
		flags := c.flags
		c.mu.Unlock()
		cancelled.Cancel()
		c.events.FlagsChanged(flags, domain.ReasonPlaybackStopped)
		return nil
	}
	message, ok := c.transcript.byID(id)
	closed := c.closed
	c.mu.Unlock()

	if closed || !ok || !message.Allows(domain.ActionSpeak) {
		return nil
	}

	utterance, err := c.synthesizer.Speak(ctx, message.Text)
	if err != nil {
		c.events.Notice(domain.NoticeSynthesis, err.Error())
		return err
	}

	c.mu.Lock()
	if c.closed || c.utterance != nil {
		// The session was torn down, or another utterance won the race.
		c.mu.Unlock()
		utterance.Cancel()
		return nil
	}
	c.utterance = utterance
	c.flags.Speaking = true
	c.flags.SpeakingID = message.ID
	flags := c.flags
	c.mu.Unlock()

	c.events.FlagsChanged(flags, domain.ReasonPlaybackStarted)
	go c.watchUtterance(utterance)
	return nil
}

// watchUtterance clears the speaking state when playback finishes naturally.
// A cancelled utterance is not the current one anymore, so its completion is
// ignored and the transition is reported exactly once.
func (c *SessionController) watchUtterance(utterance ports.Utterance) {
	<-utterance.Done()

	c.mu.Lock()
	if c.utterance != utterance {
		c.mu.Unlock()
		return
	}
	c.utterance = nil
	c.flags.Speaking = false
	c.flags.SpeakingID = ""
	flags := c.flags
	c.mu.Unlock()

	c.events.FlagsChanged(flags, domain.ReasonPlaybackFinished)
}

// ToggleDictation starts a capture session when idle and stops the active one
// early, without a result, when listening.
func (c *SessionController) ToggleDictation(ctx context.Context) error {
	if c.recognizer == nil {
		return nil
	}

	c.mu.Lock()
	if c.capture != nil {
		session := c.capture
		c.capture = nil
		c.flags.Listening = false
		flags := c.flags
		c.mu.Unlock()
		_ = session.Stop()
		c.events.FlagsChanged(flags, domain.ReasonDictationStopped)
		return nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	session, err := c.recognizer.Start(ctx, c.cfg.Recognition)
	if err != nil {
		c.events.Notice(domain.NoticeDictation, err.Error())
		return err
	}

	c.mu.Lock()
	if c.closed || c.capture != nil {
		c.mu.Unlock()
		_ = session.Stop()
		return nil
	}
	c.capture = session
	c.flags.Listening = true
	flags := c.flags
	c.mu.Unlock()

	c.events.FlagsChanged(flags, domain.ReasonDictationStarted)
	go c.watchCapture(session)
	return nil
}

// watchCapture waits for the capture session to conclude. A session stopped
// early is no longer current, so a late result cannot modify the draft.
func (c *SessionController) watchCapture(session ports.CaptureSession) {
	text, ok := <-session.Result()

	c.mu.Lock()
	current := c.capture == session
	if current {
		c.capture = nil
		c.flags.Listening = false
	}
	flags := c.flags
	c.mu.Unlock()

	if !current {
		return
	}

	if !ok || strings.TrimSpace(text) == "" {
		reason := domain.ReasonDictationFinished
		if err := session.Err(); err != nil {
			reason = domain.ReasonDictationFailed
			c.events.Notice(domain.NoticeDictation, err.Error())
		}
		c.events.FlagsChanged(flags, reason)
		return
	}

	c.setDraftRefined(text)
	c.events.FlagsChanged(flags, domain.ReasonDictationFinished)
}

// AttachImage validates and OCRs one uploaded image into the draft. The
// Extracting flag is the single-flight guard; on failure the draft is left
// unchanged and the flag is cleared.
func (c *SessionController) AttachImage(ctx context.Context, filename string, mimeType string, image []byte) error {
	if c.extractor == nil {
		return nil
	}
	if _, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(mimeType))]; !ok {
		return ErrUnsupportedImage
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.flags.Extracting {
		c.mu.Unlock()
		return ErrExtractionInFlight
	}
	c.flags.Extracting = true
	flags := c.flags
	c.mu.Unlock()

	c.events.FlagsChanged(flags, domain.ReasonExtractionStarted)

	text, err := c.extractor.Extract(ctx, image)

	c.mu.Lock()
	c.flags.Extracting = false
	flags = c.flags
	c.mu.Unlock()

	if err != nil {
		c.events.Notice(domain.NoticeExtraction, fmt.Sprintf("failed to extract text from %s: %v", filename, err))
		c.events.FlagsChanged(flags, domain.ReasonExtractionFailed)
		return err
	}

	c.setDraftRefined(text)
	c.events.FlagsChanged(flags, domain.ReasonExtractionFinished)
	return nil
}

// setDraftRefined runs machine-produced text through the refiner before the
// draft write. Refinement failures fall back to the raw text.
func (c *SessionController) setDraftRefined(text string) {
	if c.refiner != nil {
		if refined, err := c.refiner.Refine(text); err == nil {
			text = refined
		}
	}
	c.SetDraft(strings.TrimSpace(text))
}

// Close tears the session down: the active utterance and capture session are
// forcibly stopped. Idempotent.
func (c *SessionController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	utterance := c.utterance
	c.utterance = nil
	capture := c.capture
	c.capture = nil
	c.flags = domain.Flags{}
	flags := c.flags
	c.mu.Unlock()

	if utterance != nil {
		utterance.Cancel()
	}
	if capture != nil {
		_ = capture.Stop()
	}
	c.events.FlagsChanged(flags, domain.ReasonSessionClosed)
}
