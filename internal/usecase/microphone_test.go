package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
	"screenguide/internal/speech"
)

func TestAssistantEndedMicrophoneStopsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	provider := &closingProvider{}
	assistant := NewAssistant(Dependencies{
		Screen:   h.screen,
		Audio:    h.audio,
		Speech:   speech.NewTranscriber(provider, speech.Config{}, nil),
		Advisor:  h.advisor,
		Narrator: h.narrator,
		Player:   h.player,
		Events:   h.events,
	}, Config{
		AnalysisInterval:        time.Hour,
		RecognitionRestartDelay: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = assistant.Stop() })

	// fakeMic reports io.EOF on every read.
	if err := assistant.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "session stop", func() bool { return !assistant.Snapshot().Active })
	time.Sleep(50 * time.Millisecond)

	if got := provider.opened(); got != 1 {
		t.Fatalf("expected a single provider stream for an ended microphone, got %d", got)
	}
	notices := h.events.notices()
	if len(notices) != 1 || notices[0].Code != domain.ErrorCodeAudioStream {
		t.Fatalf("expected microphone ended notification, got %+v", notices)
	}
	if last := h.events.lastStatus(); last.status != domain.StatusIdle || last.reason != domain.ReasonMicrophoneEnded {
		t.Fatalf("unexpected final status: %+v", last)
	}
	if mic := h.audio.last(); mic == nil || mic.stopCount() != 1 {
		t.Fatalf("expected microphone to be released")
	}
	if screen := h.screen.last(); screen == nil || screen.stopCount() != 1 {
		t.Fatalf("expected screen to be released")
	}
}

// closingProvider hands out streams that end cleanly once audio input closes.
type closingProvider struct {
	mu    sync.Mutex
	count int
}

func (p *closingProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return &closingStream{events: make(chan domain.TranscriptEvent)}, nil
}

func (p *closingProvider) opened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

type closingStream struct {
	events    chan domain.TranscriptEvent
	closeOnce sync.Once
}

func (s *closingStream) SendAudio(_ []byte) error { return nil }

func (s *closingStream) CloseSend() error {
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

func (s *closingStream) Events() <-chan domain.TranscriptEvent { return s.events }
func (s *closingStream) Wait() error                           { return nil }

func (s *closingStream) Close() error {
	return s.CloseSend()
}
