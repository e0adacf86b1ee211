package domain

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a transcript message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Action is a per-message capability tag shown in the UI.
type Action string

const (
	ActionCopy   Action = "copy"
	ActionDelete Action = "delete"
	ActionSpeak  Action = "speak"
)

// TimestampLayout is the display format for message creation times.
const TimestampLayout = "3:04:05 PM"

// Message is one entry in the conversation transcript. Actions are fixed at
// creation and never mutated afterwards.
type Message struct {
	ID        string   `json:"id"`
	Text      string   `json:"text"`
	Sender    Sender   `json:"sender"`
	Timestamp string   `json:"timestamp"`
	Actions   []Action `json:"actions"`
}

// NewMessage builds a transcript message with a fresh id and the action set
// determined by the sender. failed marks a bot message that stands in for a
// delivery failure and is only copyable.
func NewMessage(text string, sender Sender, failed bool, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: now.Format(TimestampLayout),
		Actions:   actionsFor(sender, failed),
	}
}

func actionsFor(sender Sender, failed bool) []Action {
	if sender == SenderUser {
		return []Action{ActionCopy, ActionDelete}
	}
	if failed {
		return []Action{ActionCopy}
	}
	return []Action{ActionCopy, ActionSpeak}
}

// Allows reports whether the message carries the given capability.
func (m Message) Allows(action Action) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Flags is a snapshot of the transient session state.
type Flags struct {
	Sending    bool   `json:"sending"`
	Listening  bool   `json:"listening"`
	Speaking   bool   `json:"speaking"`
	Extracting bool   `json:"extracting"`
	SpeakingID string `json:"speakingId,omitempty"`
}

// StateReason provides a structured reason for flag transitions.
type StateReason string

const (
	ReasonReady              StateReason = "ready"
	ReasonSendStarted        StateReason = "send_started"
	ReasonReplyReceived      StateReason = "reply_received"
	ReasonReplyFailed        StateReason = "reply_failed"
	ReasonPlaybackStarted    StateReason = "playback_started"
	ReasonPlaybackStopped    StateReason = "playback_stopped"
	ReasonPlaybackFinished   StateReason = "playback_finished"
	ReasonDictationStarted   StateReason = "dictation_started"
	ReasonDictationStopped   StateReason = "dictation_stopped"
	ReasonDictationFinished  StateReason = "dictation_finished"
	ReasonDictationFailed    StateReason = "dictation_failed"
	ReasonExtractionStarted  StateReason = "extraction_started"
	ReasonExtractionFinished StateReason = "extraction_finished"
	ReasonExtractionFailed   StateReason = "extraction_failed"
	ReasonSessionClosed      StateReason = "session_closed"
)

// NoticeCode identifies user-visible notices and diagnostic errors.
type NoticeCode string

const (
	NoticeStartup         NoticeCode = "startup"
	NoticeDelivery        NoticeCode = "delivery"
	NoticeClipboard       NoticeCode = "clipboard"
	NoticeSynthesis       NoticeCode = "synthesis"
	NoticeDictation       NoticeCode = "dictation"
	NoticeExtraction      NoticeCode = "extraction"
	NoticeUnsupportedFile NoticeCode = "unsupported_file"
	NoticeAuth            NoticeCode = "auth"
)

// User is the signed-in identity; only the first name is used, for the
// greeting line.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
}
