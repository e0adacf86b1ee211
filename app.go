package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"deskchat/internal/bootstrap"
	"deskchat/internal/config"
	"deskchat/internal/domain"
	"deskchat/internal/usecase"
)

const (
	eventState   = "deskchat:state"
	eventMessage = "deskchat:message"
	eventRemoved = "deskchat:removed"
	eventDraft   = "deskchat:draft"
	eventNotice  = "deskchat:notice"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error

	signedIn bool
	user     domain.User
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsClipboard{})
	if err != nil {
		a.bootErr = err
		a.Notice(domain.NoticeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller

	if services.Identity != nil {
		resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		user, err := services.Identity.Resolve(resolveCtx)
		if err != nil {
			a.Notice(domain.NoticeAuth, err.Error())
		} else {
			a.signedIn = true
			a.user = user
		}
	}

	a.FlagsChanged(domain.Flags{}, domain.ReasonReady)
}

// shutdown tears the session down so no capture or playback outlives the
// window.
func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Close()
	}
}

// IsSignedIn reports whether an authenticated user was resolved at startup.
func (a *App) IsSignedIn() bool {
	return a.signedIn
}

// Greeting returns the welcome line shown over an empty transcript.
func (a *App) Greeting() string {
	name := a.user.FirstName
	if name == "" {
		name = "User"
	}
	return fmt.Sprintf("Hi %s, I'm here to help! What can I do for you today?", name)
}

// GetTranscript returns the conversation log.
func (a *App) GetTranscript() []domain.Message {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

// GetFlags returns the transient session state.
func (a *App) GetFlags() domain.Flags {
	if a.controller == nil {
		return domain.Flags{}
	}
	return a.controller.Flags()
}

// GetCapabilities reports which affordances the UI should enable.
func (a *App) GetCapabilities() usecase.Capabilities {
	if a.controller == nil {
		return usecase.Capabilities{}
	}
	return a.controller.Capabilities()
}

// SetDraft mirrors the text input field into the session.
func (a *App) SetDraft(text string) {
	if a.controller == nil {
		return
	}
	a.controller.SetDraft(text)
}

// SendMessage submits the current draft. Empty-draft and in-flight calls are
// deliberate no-ops.
func (a *App) SendMessage() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.controller.Send(a.ctx)
	if errors.Is(err, usecase.ErrEmptyDraft) || errors.Is(err, usecase.ErrSendInFlight) {
		return nil
	}
	return err
}

// CopyMessage places a message's text on the clipboard. Failures are logged
// and surfaced as notices, never raised.
func (a *App) CopyMessage(id string) {
	if a.controller == nil {
		return
	}
	_ = a.controller.CopyMessage(a.ctx, id)
}

// DeleteMessage removes a message; an unknown id is ignored.
func (a *App) DeleteMessage(id string) {
	if a.controller == nil {
		return
	}
	a.controller.DeleteMessage(id)
}

// ToggleSpeak starts or stops reading a message aloud.
func (a *App) ToggleSpeak(id string) {
	if a.controller == nil {
		return
	}
	_ = a.controller.ToggleSpeak(a.ctx, id)
}

// ToggleDictation starts or stops the microphone capture.
func (a *App) ToggleDictation() {
	if a.controller == nil {
		return
	}
	_ = a.controller.ToggleDictation(a.ctx)
}

// AttachImage OCRs one uploaded image into the draft. Unsupported formats
// surface a blocking notice and change nothing.
func (a *App) AttachImage(filename string, mimeType string, data []byte) {
	if a.controller == nil {
		return
	}
	err := a.controller.AttachImage(a.ctx, filename, mimeType, data)
	if errors.Is(err, usecase.ErrUnsupportedImage) {
		a.Notice(domain.NoticeUnsupportedFile, fmt.Sprintf("%s: %v", filename, err))
	}
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"chatEndpoint": a.cfg.Chat.EndpointURL,
		"dictation":    "Deepgram " + a.cfg.Deepgram.Model,
		"synthesis":    "ElevenLabs " + a.cfg.ElevenLabs.ModelID,
		"ocrLanguage":  a.cfg.OCR.Language,
		"audioInput":   a.cfg.Audio.InputDevice,
		"rulesFile":    a.cfg.Refine.Path,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// FlagsChanged emits session state updates to the frontend.
func (a *App) FlagsChanged(flags domain.Flags, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]any{
		"flags":   flags,
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// MessageAppended emits a new transcript entry to the frontend.
func (a *App) MessageAppended(message domain.Message) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMessage, message)
}

// MessageRemoved emits a transcript deletion to the frontend.
func (a *App) MessageRemoved(id string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRemoved, map[string]string{"id": id})
}

// DraftChanged mirrors draft rewrites (dictation, OCR, send) to the UI.
func (a *App) DraftChanged(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventDraft, map[string]string{"text": text})
}

// Notice emits user-visible notices and logs the detail for diagnostics.
func (a *App) Notice(code domain.NoticeCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.LogWarningf(a.ctx, "%s: %s", code, detail)
	runtime.EventsEmit(a.ctx, eventNotice, map[string]string{
		"code":    string(code),
		"message": noticeMessage(code, detail),
		"detail":  detail,
	})
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Online"
	case domain.ReasonSendStarted:
		return "Sending..."
	case domain.ReasonReplyReceived:
		return "Reply received"
	case domain.ReasonReplyFailed:
		return "Reply failed"
	case domain.ReasonPlaybackStarted:
		return "Speaking"
	case domain.ReasonPlaybackStopped:
		return "Playback stopped"
	case domain.ReasonPlaybackFinished:
		return "Playback finished"
	case domain.ReasonDictationStarted:
		return "Listening..."
	case domain.ReasonDictationStopped:
		return "Dictation stopped"
	case domain.ReasonDictationFinished:
		return "Dictation finished"
	case domain.ReasonDictationFailed:
		return "Dictation failed"
	case domain.ReasonExtractionStarted:
		return "Reading image..."
	case domain.ReasonExtractionFinished:
		return "Image text ready"
	case domain.ReasonExtractionFailed:
		return "Image reading failed"
	case domain.ReasonSessionClosed:
		return "Session closed"
	default:
		return ""
	}
}

func noticeMessage(code domain.NoticeCode, detail string) string {
	switch code {
	case domain.NoticeStartup:
		return "Startup failed"
	case domain.NoticeDelivery:
		return "Message delivery failed"
	case domain.NoticeClipboard:
		return "Clipboard write failed"
	case domain.NoticeSynthesis:
		return "Speech playback failed"
	case domain.NoticeDictation:
		return "Dictation failed"
	case domain.NoticeExtraction:
		return "Failed to extract text from the image. Please try again."
	case domain.NoticeUnsupportedFile:
		return "You can't share this file. Only PNG, JPG, and JPEG formats are allowed."
	case domain.NoticeAuth:
		return "Sign-in required"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
