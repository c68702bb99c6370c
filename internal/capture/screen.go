package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"strconv"
	"strings"
	"sync"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

const maxFrameBytes = 16 << 20

// FFMPEGScreenCapture shares the screen as an MJPEG stream produced by ffmpeg.
type FFMPEGScreenCapture struct {
	command string
}

func NewFFMPEGScreenCapture(command string) *FFMPEGScreenCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGScreenCapture{command: command}
}

func (c *FFMPEGScreenCapture) Start(ctx context.Context, cfg ports.ScreenConfig) (ports.ScreenStream, error) {
	proc, err := startProcess(ctx, "screen capture", c.command, screenArgs(cfg))
	if err != nil {
		return nil, err
	}

	s := &screenStream{proc: proc}
	go s.readFrames()
	return s, nil
}

func screenArgs(cfg ports.ScreenConfig) []string {
	if cfg.InputFormat == "" {
		cfg.InputFormat = "x11grab"
	}
	if cfg.Display == "" {
		cfg.Display = strings.TrimSpace(os.Getenv("DISPLAY"))
	}
	if cfg.Display == "" {
		cfg.Display = ":0.0"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 1
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = 1280
	}
	if cfg.Quality < 2 || cfg.Quality > 31 {
		cfg.Quality = 5
	}

	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", cfg.Display,
		"-vf", fmt.Sprintf("scale='min(iw,%d)':-2", cfg.MaxWidth),
		"-q:v", strconv.Itoa(cfg.Quality),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	}
}

type screenStream struct {
	proc *process

	mu     sync.Mutex
	latest *domain.Frame
}

// Sample returns the most recent complete frame.
func (s *screenStream) Sample() (domain.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return domain.Frame{}, domain.ErrNoFrame
	}
	return *s.latest, nil
}

func (s *screenStream) Done() <-chan struct{} {
	return s.proc.Done()
}

func (s *screenStream) Stop() error {
	return s.proc.stop()
}

func (s *screenStream) readFrames() {
	scanner := bufio.NewScanner(s.proc.stdout)
	scanner.Buffer(make([]byte, 0, 256<<10), maxFrameBytes)
	scanner.Split(scanJPEGFrames)

	for scanner.Scan() {
		data := bytes.Clone(scanner.Bytes())
		frame := domain.Frame{Data: data, MIMEType: "image/jpeg"}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			frame.Width = cfg.Width
			frame.Height = cfg.Height
		}

		s.mu.Lock()
		s.latest = &frame
		s.mu.Unlock()
	}
}

// scanJPEGFrames is a bufio.SplitFunc that yields one JPEG image per token
// from a concatenated MJPEG stream.
func scanJPEGFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) < len(jpegSOI) {
			return 0, nil, nil
		}
		// Keep the final byte in case it is the first half of a marker.
		return len(data) - 1, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
