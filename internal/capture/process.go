package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"screenguide/internal/domain"
)

const (
	startupGrace = 250 * time.Millisecond
	stopTimeout  = 1200 * time.Millisecond
)

var (
	permissionMarkers = []string{"permission denied", "access denied", "operation not permitted"}
	deviceMarkers     = []string{"no such device", "no such entity", "cannot open display", "can't open display", "no such file or directory", "connection refused"}
)

// process is a running ffmpeg child whose stdout carries the capture.
type process struct {
	name   string
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *lockedBuffer

	exited  chan struct{}
	exitErr error

	stopping chan struct{}
	stopOnce sync.Once
	stopErr  error
}

func startProcess(ctx context.Context, name string, command string, args []string) (*process, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = stopTimeout

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s stdout pipe: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s command %q not found", domain.ErrDeviceUnavailable, name, command)
		}
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &process{
		name:     name,
		cmd:      cmd,
		stdout:   stdout,
		stderr:   stderr,
		exited:   make(chan struct{}),
		stopping: make(chan struct{}),
	}
	go func() {
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()

	select {
	case <-p.exited:
		return nil, p.startupError()
	case <-time.After(startupGrace):
	}
	return p, nil
}

func (p *process) startupError() error {
	output := p.stderr.String()
	if classified := classifyOutput(output); classified != nil {
		return fmt.Errorf("%s exited before capture started: %w: %s", p.name, classified, output)
	}
	if p.exitErr != nil {
		return fmt.Errorf("%s exited before capture started: %w: %s", p.name, p.exitErr, output)
	}
	return fmt.Errorf("%s exited before capture started", p.name)
}

// failure reports why the process ended on its own. It returns nil while the
// process is running, after Stop, or when stderr has nothing recognizable.
func (p *process) failure(wait time.Duration) error {
	select {
	case <-p.exited:
	case <-time.After(wait):
		return nil
	}
	select {
	case <-p.stopping:
		return nil
	default:
	}
	output := p.stderr.String()
	if classified := classifyOutput(output); classified != nil {
		return fmt.Errorf("%s stopped: %w: %s", p.name, classified, output)
	}
	return nil
}

func (p *process) Done() <-chan struct{} {
	return p.exited
}

func (p *process) stop() error {
	p.stopOnce.Do(func() {
		close(p.stopping)
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(os.Interrupt)
		}

		select {
		case <-p.exited:
		case <-time.After(stopTimeout):
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Kill()
			}
			<-p.exited
		}
		p.stopErr = normalizeStopErr(p.exitErr)

		if closeErr := p.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if p.stopErr == nil {
				p.stopErr = closeErr
			}
		}

		if p.stopErr != nil {
			if output := p.stderr.String(); output != "" {
				p.stopErr = fmt.Errorf("%w: %s", p.stopErr, output)
			}
		}
	})
	return p.stopErr
}

// classifyOutput maps ffmpeg diagnostics onto domain errors.
func classifyOutput(output string) error {
	lower := strings.ToLower(output)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return domain.ErrPermissionDenied
		}
	}
	for _, marker := range deviceMarkers {
		if strings.Contains(lower, marker) {
			return domain.ErrDeviceUnavailable
		}
	}
	return nil
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}

// lockedBuffer collects stderr while the process is still writing to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}
