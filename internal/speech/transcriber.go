package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

// Config controls how microphone audio is streamed to the provider.
type Config struct {
	Streaming ports.StreamingConfig
	ChunkSize int
}

// Transcriber implements ports.SpeechTranscriber on top of a streaming
// provider. Each Start opens a fresh provider stream, so snapshots restart
// from empty after every restart.
type Transcriber struct {
	provider ports.TranscriptionProvider
	cfg      Config
	log      *slog.Logger

	mu    sync.Mutex
	feeds map[ports.AudioSession]*audioFeed
}

func NewTranscriber(provider ports.TranscriptionProvider, cfg Config, logger *slog.Logger) *Transcriber {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		provider: provider,
		cfg:      cfg,
		log:      logger.With("component", "speech"),
		feeds:    make(map[ports.AudioSession]*audioFeed),
	}
}

func (t *Transcriber) Start(ctx context.Context, audio ports.AudioSession) (ports.TranscriptionSession, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := t.provider.StartStreaming(streamCtx, t.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &session{
		cancel:   cancel,
		stream:   stream,
		events:   make(chan domain.TranscriptionEvent, 16),
		stopped:  make(chan struct{}),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
		log:      t.log,
	}

	go s.pump(t.feedFor(audio))
	go s.run()
	return s, nil
}

// feedFor returns the reader for audio, starting one on first use. The feed
// is forgotten once the microphone ends.
func (t *Transcriber) feedFor(audio ports.AudioSession) *audioFeed {
	t.mu.Lock()
	defer t.mu.Unlock()
	if feed, ok := t.feeds[audio]; ok {
		return feed
	}

	feed := newAudioFeed()
	t.feeds[audio] = feed
	go func() {
		feed.read(audio, t.cfg.ChunkSize)
		t.mu.Lock()
		if t.feeds[audio] == feed {
			delete(t.feeds, audio)
		}
		t.mu.Unlock()
	}()
	return feed
}

type session struct {
	cancel context.CancelFunc
	stream ports.StreamingSession
	log    *slog.Logger

	events   chan domain.TranscriptionEvent
	stopped  chan struct{}
	done     chan struct{}
	pumpDone chan struct{}

	stopOnce sync.Once
	errMu    sync.Mutex
	pumpErr  error
}

func (s *session) Events() <-chan domain.TranscriptionEvent {
	return s.events
}

// Stop closes the provider stream and waits for the terminal event to be
// produced and the audio pump to detach. Pending events are dropped once Stop
// has been called.
func (s *session) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.cancel()
		_ = s.stream.Close()
	})
	<-s.pumpDone
	<-s.done
	return nil
}

func (s *session) pump(feed *audioFeed) {
	err := pumpAudioChunks(feed, s.stream, s.stopped)
	if err == nil || errors.Is(err, errStreamClosed) {
		close(s.pumpDone)
		return
	}

	s.errMu.Lock()
	s.pumpErr = err
	s.errMu.Unlock()
	close(s.pumpDone)
	// The microphone ended, so let the provider flush and close.
	_ = s.stream.CloseSend()
}

func (s *session) run() {
	defer close(s.done)
	defer close(s.events)

	agg := newAggregator()
	for event := range s.stream.Events() {
		snapshot, changed := agg.Add(event)
		if !changed {
			continue
		}
		if !s.emit(domain.TranscriptionEvent{Kind: domain.TranscriptionSnapshot, Text: snapshot}) {
			s.drain()
			break
		}
	}

	streamErr := s.stream.Wait()

	var cause error
	select {
	case <-s.stopped:
	default:
		cause = streamErr
		if pumpErr := s.pumpError(); pumpErr != nil {
			cause = pumpErr
		}
	}

	reason := domain.TerminationReasonFor(cause)
	s.log.Debug("transcription session ended", "reason", reason, "err", cause)
	s.emit(domain.TranscriptionEvent{Kind: domain.TranscriptionTerminated, Reason: reason, Err: cause})
}

func (s *session) pumpError() error {
	select {
	case <-s.pumpDone:
	default:
		return nil
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.pumpErr
}

func (s *session) emit(event domain.TranscriptionEvent) bool {
	select {
	case s.events <- event:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *session) drain() {
	for range s.stream.Events() {
	}
}
