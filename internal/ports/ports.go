package ports

import (
	"context"
	"io"

	"screenguide/internal/domain"
)

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

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// ScreenConfig describes how the screen should be captured.
type ScreenConfig struct {
	InputFormat string
	Display     string
	FPS         int
	MaxWidth    int
	Quality     int
}

// ScreenStream is a live screen share. Done is closed when the stream ends
// for any reason, including ones outside the application's control.
type ScreenStream interface {
	Sample() (domain.Frame, error)
	Done() <-chan struct{}
	Stop() error
}

// ScreenCapture creates screen share streams.
type ScreenCapture interface {
	Start(ctx context.Context, cfg ScreenConfig) (ScreenStream, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// TranscriptionSession delivers transcript snapshots followed by exactly one
// terminated event, after which the channel is closed.
type TranscriptionSession interface {
	Events() <-chan domain.TranscriptionEvent
	Stop() error
}

// SpeechTranscriber turns a microphone session into transcript snapshots.
type SpeechTranscriber interface {
	Start(ctx context.Context, audio AudioSession) (TranscriptionSession, error)
}

// Advisor asks a hosted model for guidance about a frame and transcript.
type Advisor interface {
	Advise(ctx context.Context, req domain.AdviceRequest) (domain.Advice, error)
}

// Narrator converts text into speech audio.
type Narrator interface {
	Narrate(ctx context.Context, text string) (domain.Audio, error)
}

// Player plays narration audio and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, audio domain.Audio) error
}

// TextRules rewrites text deterministically.
type TextRules interface {
	Apply(text string) (string, error)
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits assistant state and notifications to the UI. Calls are made
// in state order while the assistant holds its lock, so implementations must
// not call back into the assistant.
type EventSink interface {
	StatusChanged(status domain.Status, reason domain.StatusReason)
	TranscriptUpdated(text string)
	InstructionsUpdated(text string)
	NarrationReady(audio domain.Audio)
	Notify(n domain.Notification)
}
