package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"screenguide/internal/bootstrap"
	"screenguide/internal/capture"
	"screenguide/internal/config"
	"screenguide/internal/domain"
	"screenguide/internal/usecase"
)

const (
	eventStatus       = "screenguide:status"
	eventTranscript   = "screenguide:transcript"
	eventInstructions = "screenguide:instructions"
	eventNarration    = "screenguide:narration"
	eventNotify       = "screenguide:notify"
)

// App is the Wails application root.
type App struct {
	ctx context.Context
	log *slog.Logger

	assistant *usecase.Assistant
	services  bootstrap.Services
	cfg       config.Config
	bootErr   error
}

func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{log: logger.With("component", "app")}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, a, &wailsClipboard{}, a.log)
	if err != nil {
		a.bootErr = err
		a.log.Error("startup failed", "err", err)
		a.Notify(domain.Notification{Code: domain.ErrorCodeStartup, Detail: err.Error()})
		a.StatusChanged(domain.StatusError, domain.ReasonStartup)
		return
	}

	a.services = services
	a.cfg = services.Config
	a.assistant = services.Assistant
	a.StatusChanged(domain.StatusIdle, domain.ReasonStartup)
	a.InstructionsUpdated(usecase.GreetingMessage)
}

func (a *App) shutdown(_ context.Context) {
	if a.assistant == nil {
		return
	}
	if err := a.assistant.Stop(); err != nil {
		a.log.Warn("stop on shutdown failed", "err", err)
	}
	if err := a.services.Close(); err != nil {
		a.log.Warn("close services failed", "err", err)
	}
}

// StartCapture begins screen and microphone capture. An empty deviceID uses
// the configured microphone.
func (a *App) StartCapture(deviceID string) (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.assistant.Start(a.ctx, strings.TrimSpace(deviceID)); err != nil {
		return a.assistant.Snapshot(), err
	}
	return a.assistant.Snapshot(), nil
}

// StopCapture ends the active capture session, if any.
func (a *App) StopCapture() (domain.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return domain.Snapshot{}, err
	}
	if err := a.assistant.Stop(); err != nil {
		a.log.Warn("stop reported release errors", "err", err)
	}
	return a.assistant.Snapshot(), nil
}

// Narrate speaks the current instructions.
func (a *App) Narrate() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.assistant.Narrate(a.ctx)
}

// Summarize describes what is currently on screen.
func (a *App) Summarize() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	summary, err := a.assistant.Summarize(a.ctx)
	if errors.Is(err, usecase.ErrNoActiveSession) {
		return "", fmt.Errorf("start capture before asking for a summary")
	}
	return summary, err
}

// CopyInstructions writes the current instructions to the clipboard.
func (a *App) CopyInstructions() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	return a.assistant.CopyInstructions(a.ctx)
}

// GetSnapshot returns the assistant state for the UI.
func (a *App) GetSnapshot() domain.Snapshot {
	if a.assistant == nil {
		if a.bootErr != nil {
			return domain.Snapshot{Status: domain.StatusError, Message: a.bootErr.Error()}
		}
		return domain.Snapshot{Status: domain.StatusIdle, Instructions: usecase.GreetingMessage}
	}
	return a.assistant.Snapshot()
}

// GetNarration returns the cached narration as base64 for replay.
func (a *App) GetNarration() map[string]string {
	if a.assistant == nil {
		return nil
	}
	audio, ok := a.assistant.NarrationAudio()
	if !ok {
		return nil
	}
	return narrationPayload(audio)
}

// ListAudioInputs returns microphone sources with the system default first.
func (a *App) ListAudioInputs() []domain.AudioInput {
	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	inputs, err := capture.ListAudioInputs(ctx, a.cfg.Audio.DevicesCommand)
	if err != nil {
		a.log.Warn("list audio inputs failed", "err", err)
	}
	return inputs
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"adviceProvider":    a.cfg.Advice.Provider,
		"narrationProvider": a.cfg.Narration.Provider,
		"transcription":     "Deepgram " + a.cfg.Deepgram.Model,
		"language":          a.cfg.Deepgram.Language,
		"rulesFile":         a.cfg.Rules.Path,
		"audioInput":        a.cfg.Audio.InputDevice,
		"audioInputFormat":  a.cfg.Audio.InputFormat,
		"display":           a.cfg.Screen.Display,
		"analysisInterval":  a.cfg.Session.AnalysisInterval.String(),
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.assistant == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StatusChanged emits status transitions to the frontend.
func (a *App) StatusChanged(status domain.Status, reason domain.StatusReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStatus, map[string]string{
		"status":  string(status),
		"reason":  string(reason),
		"message": statusReasonMessage(reason),
	})
}

// TranscriptUpdated emits the live transcript.
func (a *App) TranscriptUpdated(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// InstructionsUpdated emits new guidance.
func (a *App) InstructionsUpdated(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventInstructions, map[string]string{"text": text})
}

// NarrationReady emits synthesized audio so the UI can offer replay.
func (a *App) NarrationReady(audio domain.Audio) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventNarration, narrationPayload(audio))
}

// Notify emits user-facing errors to the UI.
func (a *App) Notify(n domain.Notification) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventNotify, map[string]string{
		"code":   string(n.Code),
		"title":  notificationTitle(n),
		"detail": n.Detail,
	})
}

func narrationPayload(audio domain.Audio) map[string]string {
	return map[string]string{
		"mimeType": audio.MIMEType,
		"data":     base64.StdEncoding.EncodeToString(audio.Data),
	}
}

func statusReasonMessage(reason domain.StatusReason) string {
	switch reason {
	case domain.ReasonStartup:
		return "Ready"
	case domain.ReasonCaptureStarted:
		return usecase.CaptureStartedMessage
	case domain.ReasonCaptureFailed:
		return "Capture failed"
	case domain.ReasonCaptureStopped:
		return usecase.CaptureStoppedMessage
	case domain.ReasonScreenShareEnded:
		return "Screen sharing ended"
	case domain.ReasonPermissionRevoked:
		return "Microphone permission revoked"
	case domain.ReasonMicrophoneEnded:
		return "Microphone stopped"
	case domain.ReasonAnalysisStarted:
		return "Analyzing your screen..."
	case domain.ReasonAnalysisCompleted:
		return "Instructions updated"
	case domain.ReasonAnalysisFailed:
		return "Analysis failed"
	case domain.ReasonNarrationStarted:
		return "Speaking..."
	case domain.ReasonNarrationCompleted:
		return "Finished speaking"
	case domain.ReasonNarrationFailed:
		return "Narration failed"
	default:
		return ""
	}
}

func notificationTitle(n domain.Notification) string {
	if n.Title != "" {
		return n.Title
	}
	switch n.Code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeCaptureFailed:
		return "Capture failed"
	case domain.ErrorCodeAnalysisFailed:
		return "Analysis failed"
	case domain.ErrorCodeNarrationFailed:
		return "Narration failed"
	case domain.ErrorCodeMicrophonePermissionDenied:
		return "Microphone permission denied"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if n.Detail == "" {
			return "Unknown error"
		}
		return n.Detail
	}
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
