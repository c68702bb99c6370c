package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

func TestFFMPEGAudioCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nexec sleep 2\n")
	capture := NewFFMPEGAudioCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestFFMPEGAudioCaptureStartEarlyExit(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 1\n")
	capture := NewFFMPEGAudioCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{})
	if err == nil {
		t.Fatalf("expected early exit error")
	}
	if !strings.Contains(err.Error(), "exited before capture started") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFFMPEGAudioCaptureStartPermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'default: Permission denied' 1>&2\nexit 1\n")
	_, err := NewFFMPEGAudioCapture(script).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestFFMPEGAudioCaptureStartMissingCommand(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "no-ffmpeg")
	_, err := NewFFMPEGAudioCapture(missing).Start(context.Background(), ports.AudioConfig{})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
}

func TestFFMPEGAudioCaptureReadReportsRevokedDevice(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "revoked.sh", "#!/usr/bin/env bash\nprintf 'pcm'\nsleep 0.4\necho 'pulse: Access denied' 1>&2\nexit 1\n")
	session, err := NewFFMPEGAudioCapture(script).Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Stop()

	data, err := io.ReadAll(session)
	if string(data) != "pcm" {
		t.Fatalf("unexpected audio: %q", string(data))
	}
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied from read, got %v", err)
	}
}

func TestFFMPEGAudioCaptureReadCleanEOF(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "short.sh", "#!/usr/bin/env bash\nsleep 0.4\nprintf 'pcm'\n")
	session, err := NewFFMPEGAudioCapture(script).Start(context.Background(), ports.AudioConfig{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer session.Stop()

	data, err := io.ReadAll(session)
	if err != nil {
		t.Fatalf("expected clean end of stream, got %v", err)
	}
	if string(data) != "pcm" {
		t.Fatalf("unexpected audio: %q", string(data))
	}
}

func TestClassifyOutput(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"[pulse] Permission denied":                 domain.ErrPermissionDenied,
		"x11grab: Cannot open display :9, error 1.": domain.ErrDeviceUnavailable,
		"hw:3: No such device":                      domain.ErrDeviceUnavailable,
		"Conversion failed!":                        nil,
	}
	for output, want := range cases {
		if got := classifyOutput(output); !errors.Is(got, want) {
			t.Fatalf("classifyOutput(%q) = %v, want %v", output, got, want)
		}
	}
}

func TestNormalizeStopErrExitErrorIsIgnored(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeStopErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
