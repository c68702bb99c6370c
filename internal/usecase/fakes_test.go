package usecase

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

type harness struct {
	assistant *Assistant
	screen    *fakeScreenCapture
	audio     *fakeAudioCapture
	speech    *fakeSpeech
	advisor   *fakeAdvisor
	narrator  *fakeNarrator
	player    *fakePlayer
	clipboard *fakeClipboard
	events    *fakeEventSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		screen:    &fakeScreenCapture{},
		audio:     &fakeAudioCapture{},
		speech:    &fakeSpeech{},
		advisor:   &fakeAdvisor{reply: "Click the blue button."},
		narrator:  &fakeNarrator{},
		player:    &fakePlayer{},
		clipboard: &fakeClipboard{},
		events:    &fakeEventSink{},
	}
	h.assistant = NewAssistant(Dependencies{
		Screen:    h.screen,
		Audio:     h.audio,
		Speech:    h.speech,
		Advisor:   h.advisor,
		Narrator:  h.narrator,
		Player:    h.player,
		Rules:     upperRules{},
		Clipboard: h.clipboard,
		Events:    h.events,
	}, Config{
		AnalysisInterval:        time.Hour,
		RecognitionRestartDelay: 10 * time.Millisecond,
	})
	t.Cleanup(func() { _ = h.assistant.Stop() })
	return h
}

func (h *harness) start(t *testing.T) *captureSession {
	t.Helper()

	if err := h.assistant.Start(context.Background(), ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sess := h.current()
	if sess == nil {
		t.Fatalf("expected active session after start")
	}
	return sess
}

func (h *harness) current() *captureSession {
	h.assistant.mu.Lock()
	defer h.assistant.mu.Unlock()
	return h.assistant.current
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeScreenCapture blocks in Start until ctx is done when block is set.
type fakeScreenCapture struct {
	mu      sync.Mutex
	err     error
	streams []*fakeScreen
	block   bool
	started chan struct{}
}

func (f *fakeScreenCapture) Start(ctx context.Context, _ ports.ScreenConfig) (ports.ScreenStream, error) {
	f.mu.Lock()
	block, started := f.block, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	stream := &fakeScreen{
		frame: domain.Frame{Data: []byte{0xff, 0xd8, 0xff, 0xd9}, MIMEType: "image/jpeg", Width: 4, Height: 3},
		done:  make(chan struct{}),
	}
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeScreenCapture) last() *fakeScreen {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

type fakeScreen struct {
	mu        sync.Mutex
	frame     domain.Frame
	sampleErr error
	done      chan struct{}
	endOnce   sync.Once
	stops     int
}

func (f *fakeScreen) Sample() (domain.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sampleErr != nil {
		return domain.Frame{}, f.sampleErr
	}
	return f.frame, nil
}

func (f *fakeScreen) Done() <-chan struct{} { return f.done }

func (f *fakeScreen) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.end()
	return nil
}

func (f *fakeScreen) end() {
	f.endOnce.Do(func() { close(f.done) })
}

func (f *fakeScreen) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	err      error
	configs  []ports.AudioConfig
	sessions []*fakeMic
}

func (f *fakeAudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	mic := &fakeMic{}
	f.sessions = append(f.sessions, mic)
	return mic, nil
}

func (f *fakeAudioCapture) last() *fakeMic {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

type fakeMic struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeMic) Read(_ []byte) (int, error) { return 0, io.EOF }
func (f *fakeMic) Close() error               { return nil }

func (f *fakeMic) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeMic) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// fakeSpeech returns a new transcription per Start. startErrs[i] fails the
// i-th call when set.
type fakeSpeech struct {
	mu        sync.Mutex
	startErrs map[int]error
	sessions  []*fakeTranscription
	calls     int
}

func (f *fakeSpeech) Start(_ context.Context, _ ports.AudioSession) (ports.TranscriptionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.calls
	f.calls++
	if err := f.startErrs[call]; err != nil {
		return nil, err
	}
	session := &fakeTranscription{events: make(chan domain.TranscriptionEvent, 16)}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeSpeech) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSpeech) session(i int) *fakeTranscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

type fakeTranscription struct {
	events    chan domain.TranscriptionEvent
	closeOnce sync.Once
	mu        sync.Mutex
	stops     int
}

func (f *fakeTranscription) Events() <-chan domain.TranscriptionEvent { return f.events }

func (f *fakeTranscription) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeTranscription) snapshot(text string) {
	f.events <- domain.TranscriptionEvent{Kind: domain.TranscriptionSnapshot, Text: text}
}

func (f *fakeTranscription) terminate(reason domain.TerminationReason, err error) {
	f.closeOnce.Do(func() {
		f.events <- domain.TranscriptionEvent{Kind: domain.TranscriptionTerminated, Reason: reason, Err: err}
		close(f.events)
	})
}

func (f *fakeTranscription) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeAdvisor struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests []domain.AdviceRequest
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeAdvisor) Advise(_ context.Context, req domain.AdviceRequest) (domain.Advice, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	reply, err, block, started := f.reply, f.err, f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return domain.Advice{}, err
	}
	return domain.Advice{Text: reply}, nil
}

func (f *fakeAdvisor) calls() []domain.AdviceRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AdviceRequest(nil), f.requests...)
}

func (f *fakeAdvisor) setReply(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reply = reply
}

type fakeNarrator struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (f *fakeNarrator) Narrate(_ context.Context, text string) (domain.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return domain.Audio{}, f.err
	}
	return domain.Audio{Data: []byte("mp3:" + text), MIMEType: "audio/mpeg"}, nil
}

func (f *fakeNarrator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// fakePlayer holds each playback until block is closed when block is set.
type fakePlayer struct {
	mu      sync.Mutex
	played  [][]byte
	block   chan struct{}
	started chan struct{}
}

func (f *fakePlayer) Play(_ context.Context, audio domain.Audio) error {
	f.mu.Lock()
	f.played = append(f.played, audio.Data)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return nil
}

func (f *fakePlayer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

type upperRules struct{}

func (upperRules) Apply(text string) (string, error) {
	return strings.ToUpper(text), nil
}

type fakeClipboard struct {
	mu   sync.Mutex
	text string
	err  error
}

func (f *fakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.text = text
	return nil
}

type statusEvent struct {
	status domain.Status
	reason domain.StatusReason
}

type fakeEventSink struct {
	mu            sync.Mutex
	statuses      []statusEvent
	transcripts   []string
	instructions  []string
	narrations    []domain.Audio
	notifications []domain.Notification
}

func (f *fakeEventSink) StatusChanged(status domain.Status, reason domain.StatusReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusEvent{status: status, reason: reason})
}

func (f *fakeEventSink) TranscriptUpdated(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, text)
}

func (f *fakeEventSink) InstructionsUpdated(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructions = append(f.instructions, text)
}

func (f *fakeEventSink) NarrationReady(audio domain.Audio) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.narrations = append(f.narrations, audio)
}

func (f *fakeEventSink) Notify(n domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakeEventSink) statusSequence() []domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Status, 0, len(f.statuses))
	for _, ev := range f.statuses {
		out = append(out, ev.status)
	}
	return out
}

func (f *fakeEventSink) lastStatus() statusEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return statusEvent{}
	}
	return f.statuses[len(f.statuses)-1]
}

func (f *fakeEventSink) notices() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.notifications...)
}

func (f *fakeEventSink) instructionTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.instructions...)
}
