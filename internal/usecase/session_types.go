package usecase

import (
	"context"
	"log/slog"

	"screenguide/internal/ports"
)

// captureSession is owned by Assistant. Every field below the stream handles
// is guarded by Assistant.mu.
type captureSession struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	screen ports.ScreenStream
	audio  ports.AudioSession

	transcription ports.TranscriptionSession
	transcript    string
	lastAnalyzed  string
	analyzing     bool
	analyses      int
}

// narrationCache remembers synthesized audio for one instructions text.
type narrationCache struct {
	text  string
	audio []byte
	mime  string
}
