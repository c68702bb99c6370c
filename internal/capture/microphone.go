package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"screenguide/internal/ports"
)

// exitSettle bounds how long a failed read waits for ffmpeg to exit so its
// diagnostics can be inspected.
const exitSettle = 500 * time.Millisecond

// FFMPEGAudioCapture streams microphone PCM audio using ffmpeg.
type FFMPEGAudioCapture struct {
	command string
}

func NewFFMPEGAudioCapture(command string) *FFMPEGAudioCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGAudioCapture{command: command}
}

func (c *FFMPEGAudioCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	proc, err := startProcess(ctx, "microphone capture", c.command, args)
	if err != nil {
		return nil, err
	}
	return &micSession{proc: proc}, nil
}

type micSession struct {
	proc *process
}

// Read returns raw s16le PCM. When ffmpeg dies because the device was
// revoked or unplugged, the read error wraps the matching domain error.
func (s *micSession) Read(p []byte) (int, error) {
	n, err := s.proc.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if cause := s.proc.failure(exitSettle); cause != nil {
		return n, cause
	}
	if errors.Is(err, os.ErrClosed) {
		return n, io.EOF
	}
	return n, err
}

func (s *micSession) Close() error {
	return s.Stop()
}

func (s *micSession) Stop() error {
	return s.proc.stop()
}
