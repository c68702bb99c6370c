package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

func TestTranscriberEmitsSnapshotsThenBenignTermination(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: "hello"}
	stream.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "hello world"}

	session := startSession(t, stream, blockingAudio(t))
	stream.finish(nil)

	events := collect(t, session.Events())
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if events[0].Text != "hello" || events[1].Text != "hello world" {
		t.Fatalf("unexpected snapshots: %+v", events)
	}
	last := events[2]
	if last.Kind != domain.TranscriptionTerminated || last.Reason != domain.TerminationBenign {
		t.Fatalf("expected benign termination, got %+v", last)
	}
}

func TestTranscriberNoSpeechTimeoutIsBenign(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	session := startSession(t, stream, blockingAudio(t))
	stream.finish(fmt.Errorf("provider closed: %w", domain.ErrNoSpeechTimeout))

	events := collect(t, session.Events())
	last := events[len(events)-1]
	if last.Reason != domain.TerminationBenign {
		t.Fatalf("expected benign termination, got %+v", last)
	}
}

func TestTranscriberProviderFailureIsOther(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	session := startSession(t, stream, blockingAudio(t))
	stream.finish(errors.New("socket reset"))

	events := collect(t, session.Events())
	last := events[len(events)-1]
	if last.Reason != domain.TerminationOther || last.Err == nil {
		t.Fatalf("expected other termination with error, got %+v", last)
	}
}

func TestTranscriberMicrophonePermissionDenied(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	audio := &fakeAudioSession{err: fmt.Errorf("ffmpeg: %w", domain.ErrPermissionDenied)}
	session := startSession(t, stream, audio)

	events := collect(t, session.Events())
	last := events[len(events)-1]
	if last.Reason != domain.TerminationPermissionDenied {
		t.Fatalf("expected permission denied termination, got %+v", last)
	}
}

func TestTranscriberEndedMicrophoneIsCaptureLost(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	session := startSession(t, stream, &fakeAudioSession{})

	events := collect(t, session.Events())
	last := events[len(events)-1]
	if last.Reason != domain.TerminationCaptureLost || !errors.Is(last.Err, domain.ErrAudioEnded) {
		t.Fatalf("expected capture lost termination, got %+v", last)
	}
	if stream.closeSends != 1 {
		t.Fatalf("expected provider input to be closed once, got %d", stream.closeSends)
	}
}

func TestTranscriberRestartHandsAudioToNewSession(t *testing.T) {
	t.Parallel()

	audio := &chanAudioSession{chunks: make(chan []byte, 1)}
	t.Cleanup(func() { close(audio.chunks) })

	first, second := newFakeStream(), newFakeStream()
	provider := &sequenceProvider{streams: []*fakeStream{first, second}}
	transcriber := NewTranscriber(provider, Config{ChunkSize: 512}, nil)

	session, err := transcriber.Start(context.Background(), audio)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	audio.chunks <- []byte("after restart")
	if _, err := transcriber.Start(context.Background(), audio); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for second.sentBytes() != "after restart" {
		if time.Now().After(deadline) {
			t.Fatalf("restarted session did not receive audio, got %q", second.sentBytes())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := first.sentBytes(); got != "" {
		t.Fatalf("stopped session consumed audio: %q", got)
	}
}

func TestTranscriberStopIsIdempotent(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	session := startSession(t, stream, blockingAudio(t))

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if stream.closeCalls == 0 {
		t.Fatalf("expected provider stream to be closed")
	}

	select {
	case _, ok := <-session.Events():
		for ok {
			_, ok = <-session.Events()
		}
	case <-time.After(time.Second):
		t.Fatalf("expected events channel to close")
	}
}

func TestTranscriberStartPropagatesProviderError(t *testing.T) {
	t.Parallel()

	transcriber := NewTranscriber(&fakeProvider{err: errors.New("dial failed")}, Config{}, nil)
	if _, err := transcriber.Start(context.Background(), blockingAudio(t)); err == nil {
		t.Fatalf("expected provider error")
	}
}

type fakeProvider struct {
	stream *fakeStream
	err    error
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

type sequenceProvider struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (p *sequenceProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.streams) == 0 {
		return nil, errors.New("no more streams")
	}
	stream := p.streams[0]
	p.streams = p.streams[1:]
	return stream, nil
}

// chanAudioSession delivers one chunk per read and ends when chunks closes.
type chanAudioSession struct {
	chunks chan []byte
}

func (a *chanAudioSession) Read(p []byte) (int, error) {
	chunk, ok := <-a.chunks
	if !ok {
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (a *chanAudioSession) Close() error { return nil }
func (a *chanAudioSession) Stop() error  { return nil }

func startSession(t *testing.T, stream *fakeStream, audio ports.AudioSession) ports.TranscriptionSession {
	t.Helper()

	transcriber := NewTranscriber(&fakeProvider{stream: stream}, Config{ChunkSize: 512}, nil)
	session, err := transcriber.Start(context.Background(), audio)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return session
}

func blockingAudio(t *testing.T) *fakeAudioSession {
	t.Helper()
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	return &fakeAudioSession{block: block}
}

func collect(t *testing.T, events <-chan domain.TranscriptionEvent) []domain.TranscriptionEvent {
	t.Helper()

	var out []domain.TranscriptionEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, event)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %+v", out)
		}
	}
}
