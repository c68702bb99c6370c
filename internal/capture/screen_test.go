package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

func TestFFMPEGScreenCaptureSamplesLatestFrame(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.jpg")
	second := filepath.Join(dir, "second.jpg")
	writeJPEG(t, first, 8, 6)
	writeJPEG(t, second, 16, 9)

	script := writeScript(t, "grab.sh", "#!/usr/bin/env bash\ncat '"+first+"'\nsleep 0.1\ncat '"+second+"'\nexec sleep 2\n")
	stream, err := NewFFMPEGScreenCapture(script).Start(context.Background(), ports.ScreenConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer stream.Stop()

	deadline := time.Now().Add(2 * time.Second)
	var frame domain.Frame
	for time.Now().Before(deadline) {
		frame, err = stream.Sample()
		if err == nil && frame.Width == 16 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if frame.Width != 16 || frame.Height != 9 {
		t.Fatalf("expected latest 16x9 frame, got %dx%d (err=%v)", frame.Width, frame.Height, err)
	}
	if frame.MIMEType != "image/jpeg" || !bytes.HasPrefix(frame.Data, jpegSOI) {
		t.Fatalf("unexpected frame payload")
	}
}

func TestFFMPEGScreenCaptureNoFrameYet(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "idle.sh", "#!/usr/bin/env bash\nexec sleep 2\n")
	stream, err := NewFFMPEGScreenCapture(script).Start(context.Background(), ports.ScreenConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer stream.Stop()

	if _, err := stream.Sample(); !errors.Is(err, domain.ErrNoFrame) {
		t.Fatalf("expected no frame error, got %v", err)
	}
}

func TestFFMPEGScreenCaptureDoneWhenGrabberExits(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "ends.sh", "#!/usr/bin/env bash\nsleep 0.4\n")
	stream, err := NewFFMPEGScreenCapture(script).Start(context.Background(), ports.ScreenConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer stream.Stop()

	select {
	case <-stream.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected done after the grabber exited")
	}
}

func TestFFMPEGScreenCaptureStopClosesDone(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "long.sh", "#!/usr/bin/env bash\nexec sleep 5\n")
	stream, err := NewFFMPEGScreenCapture(script).Start(context.Background(), ports.ScreenConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case <-stream.Done():
	default:
		t.Fatalf("expected done to be closed after stop")
	}
}

func TestFFMPEGScreenCaptureDisplayUnavailable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "nodisplay.sh", "#!/usr/bin/env bash\necho 'Cannot open display :9, error 1.' 1>&2\nexit 1\n")
	_, err := NewFFMPEGScreenCapture(script).Start(context.Background(), ports.ScreenConfig{Display: ":9"})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestScreenArgs(t *testing.T) {
	t.Parallel()

	args := screenArgs(ports.ScreenConfig{Display: ":1.0+0,0", FPS: 2, MaxWidth: 960, Quality: 40})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-f x11grab", "-framerate 2", "-i :1.0+0,0", "scale='min(iw,960)':-2", "-q:v 5", "-vcodec mjpeg"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args: %s", want, joined)
		}
	}
	if args[len(args)-1] != "-" {
		t.Fatalf("expected output to stdout, got %v", args)
	}
}

func TestScanJPEGFramesSplitsConcatenatedImages(t *testing.T) {
	t.Parallel()

	a := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}
	b := []byte{0xff, 0xd8, 0x03, 0xff, 0xd9}
	stream := slices.Concat([]byte{0x00, 0x00}, a, []byte{0x07}, b, []byte{0xff, 0xd8, 0x04})

	scanner := bufio.NewScanner(bytes.NewReader(stream))
	scanner.Buffer(make([]byte, 0, 4), 64)
	scanner.Split(scanJPEGFrames)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, bytes.Clone(scanner.Bytes()))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(frames) != 2 || !bytes.Equal(frames[0], a) || !bytes.Equal(frames[1], b) {
		t.Fatalf("unexpected frames: %x", frames)
	}
}

func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
}
