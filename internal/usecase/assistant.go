package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"screenguide/internal/domain"
	"screenguide/internal/ports"
)

var ErrNoActiveSession = errors.New("no active capture session")

const (
	GreetingMessage        = "Hi there! I'm Screen Guide. Share your screen and I'll help you out."
	CaptureStartingMessage = "Starting capture... Please select a screen to share."
	CaptureStartedMessage  = "Capture started! I'm now watching and listening."
	CaptureStoppedMessage  = "Capture stopped. Start again when you're ready."

	// SilentTranscript replaces an empty transcript in advice requests.
	SilentTranscript = "User is not speaking."
)

const (
	defaultAnalysisInterval        = 7 * time.Second
	defaultAnalysisTimeout         = 60 * time.Second
	defaultNarrationTimeout        = 60 * time.Second
	defaultRecognitionRestartDelay = time.Second
)

// Config controls session timing and capture settings.
type Config struct {
	Audio                   ports.AudioConfig
	Screen                  ports.ScreenConfig
	AnalysisInterval        time.Duration
	AnalysisTimeout         time.Duration
	NarrationTimeout        time.Duration
	RecognitionRestartDelay time.Duration
}

// Dependencies groups the adapters the assistant drives.
type Dependencies struct {
	Screen    ports.ScreenCapture
	Audio     ports.AudioCapture
	Speech    ports.SpeechTranscriber
	Advisor   ports.Advisor
	Narrator  ports.Narrator
	Player    ports.Player
	Rules     ports.TextRules
	Clipboard ports.Clipboard
	Events    ports.EventSink
	Logger    *slog.Logger
}

// Assistant orchestrates screen capture, transcription, periodic analysis and
// on-demand narration. It is the single writer of the user-visible status.
type Assistant struct {
	screen    ports.ScreenCapture
	audio     ports.AudioCapture
	speech    ports.SpeechTranscriber
	advisor   ports.Advisor
	narrator  ports.Narrator
	player    ports.Player
	rules     ports.TextRules
	clipboard ports.Clipboard
	events    ports.EventSink
	log       *slog.Logger
	cfg       Config

	mu           sync.Mutex
	status       domain.Status
	instructions string
	narration    *narrationCache
	narrating    bool
	starting     bool
	startCancel  context.CancelFunc
	startAborted bool
	current      *captureSession
}

func NewAssistant(deps Dependencies, cfg Config) *Assistant {
	if cfg.AnalysisInterval <= 0 {
		cfg.AnalysisInterval = defaultAnalysisInterval
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = defaultAnalysisTimeout
	}
	if cfg.NarrationTimeout <= 0 {
		cfg.NarrationTimeout = defaultNarrationTimeout
	}
	if cfg.RecognitionRestartDelay <= 0 {
		cfg.RecognitionRestartDelay = defaultRecognitionRestartDelay
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Assistant{
		screen:       deps.Screen,
		audio:        deps.Audio,
		speech:       deps.Speech,
		advisor:      deps.Advisor,
		narrator:     deps.Narrator,
		player:       deps.Player,
		rules:        deps.Rules,
		clipboard:    deps.Clipboard,
		events:       deps.Events,
		log:          logger.With("component", "assistant"),
		cfg:          cfg,
		status:       domain.StatusIdle,
		instructions: GreetingMessage,
	}
}

// Start acquires the screen and microphone and arms the analysis ticker.
// An empty audioDeviceID selects the configured default device. Calling Start
// while a session is active does nothing.
func (a *Assistant) Start(ctx context.Context, audioDeviceID string) error {
	a.mu.Lock()
	if a.current != nil || a.starting {
		a.mu.Unlock()
		return nil
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	a.starting = true
	a.startCancel = cancel
	a.setInstructionsLocked(CaptureStartingMessage)
	a.mu.Unlock()

	screen, mic, err := a.acquire(sessionCtx, audioDeviceID)
	var transcription ports.TranscriptionSession
	if err == nil {
		transcription, err = a.speech.Start(sessionCtx, mic)
		if err != nil {
			err = fmt.Errorf("start transcription: %w", err)
			releaseStreams(a.log, screen, mic)
		}
	}

	a.mu.Lock()
	aborted := a.startAborted
	a.starting = false
	a.startCancel = nil
	a.startAborted = false
	if aborted {
		a.mu.Unlock()
		cancel()
		if transcription != nil {
			_ = transcription.Stop()
		}
		if err == nil {
			releaseStreams(a.log, screen, mic)
		}
		a.log.Info("capture start aborted by stop")

		a.mu.Lock()
		defer a.mu.Unlock()
		a.setInstructionsLocked(CaptureStoppedMessage)
		a.setStatusLocked(domain.StatusIdle, domain.ReasonCaptureStopped)
		return nil
	}
	if err != nil {
		defer a.mu.Unlock()
		cancel()
		a.log.Error("capture start failed", "err", err)

		a.setInstructionsLocked(GreetingMessage)
		a.notifyLocked(captureFailedNotification(err))
		a.setStatusLocked(domain.StatusIdle, domain.ReasonCaptureFailed)
		return err
	}

	id := uuid.NewString()
	sess := &captureSession{
		id:            id,
		ctx:           sessionCtx,
		cancel:        cancel,
		log:           a.log.With("session", id),
		screen:        screen,
		audio:         mic,
		transcription: transcription,
	}

	a.current = sess
	a.events.TranscriptUpdated("")
	a.setInstructionsLocked(CaptureStartedMessage)
	a.setStatusLocked(domain.StatusCapturing, domain.ReasonCaptureStarted)
	a.mu.Unlock()

	sess.log.Info("capture started", "interval", a.cfg.AnalysisInterval)
	go a.watch(sess, transcription.Events())
	return nil
}

// Stop ends the active session. It is safe to call when nothing is running.
// A Start still acquiring streams is cancelled and leaves no session behind.
func (a *Assistant) Stop() error {
	a.mu.Lock()
	sess := a.current
	if sess == nil && a.starting && !a.startAborted {
		a.startAborted = true
		a.startCancel()
	}
	a.mu.Unlock()
	if sess == nil {
		return nil
	}
	return a.stopSession(sess, domain.ReasonCaptureStopped, nil)
}

// Narrate speaks the current instructions. It does nothing when there is
// nothing to say or a narration is already playing.
func (a *Assistant) Narrate(ctx context.Context) error {
	a.mu.Lock()
	text := a.instructions
	if strings.TrimSpace(text) == "" || a.narrating {
		a.mu.Unlock()
		return nil
	}
	a.narrating = true
	var cached *domain.Audio
	if a.narration != nil && a.narration.text == text {
		cached = &domain.Audio{Data: a.narration.audio, MIMEType: a.narration.mime}
	}
	a.setStatusLocked(domain.StatusSpeaking, domain.ReasonNarrationStarted)
	a.mu.Unlock()

	err := a.narrate(ctx, text, cached)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.narrating = false
	if err != nil {
		a.log.Error("narration failed", "err", err)
		a.notifyLocked(domain.Notification{
			Code:   domain.ErrorCodeNarrationFailed,
			Title:  "Narration Failed",
			Detail: failureDetail(err, "Could not read the instructions aloud."),
		})
		a.setStatusLocked(domain.StatusError, domain.ReasonNarrationFailed)
		a.setStatusLocked(a.restingStatusLocked(), domain.ReasonNarrationFailed)
		return err
	}
	a.setStatusLocked(a.restingStatusLocked(), domain.ReasonNarrationCompleted)
	return nil
}

// Summarize asks the model for a short first-person description of the
// current screen. It leaves status and instructions untouched.
func (a *Assistant) Summarize(ctx context.Context) (string, error) {
	a.mu.Lock()
	sess := a.current
	var transcript string
	if sess != nil {
		transcript = strings.TrimSpace(sess.transcript)
	}
	a.mu.Unlock()
	if sess == nil {
		return "", ErrNoActiveSession
	}

	advice, err := a.requestAdvice(ctx, sess, domain.AdviceScreenSummary, transcript)
	if err != nil {
		return "", err
	}
	return advice.Text, nil
}

// Snapshot returns the current presentation state.
func (a *Assistant) Snapshot() domain.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := domain.Snapshot{
		Status:       a.status,
		Instructions: a.instructions,
		HasNarration: a.narration != nil && a.narration.text == a.instructions,
	}
	if a.current != nil {
		snap.Active = true
		snap.SessionID = a.current.id
		snap.Transcript = a.current.transcript
	}
	return snap
}

// NarrationAudio returns the cached narration for the current instructions.
func (a *Assistant) NarrationAudio() (domain.Audio, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.narration == nil || a.narration.text != a.instructions {
		return domain.Audio{}, false
	}
	return domain.Audio{Data: a.narration.audio, MIMEType: a.narration.mime}, true
}

func (a *Assistant) acquire(ctx context.Context, audioDeviceID string) (ports.ScreenStream, ports.AudioSession, error) {
	audioCfg := a.cfg.Audio
	if id := strings.TrimSpace(audioDeviceID); id != "" {
		audioCfg.InputDevice = id
	}

	var (
		screen ports.ScreenStream
		mic    ports.AudioSession
		g      errgroup.Group
	)
	g.Go(func() error {
		s, err := a.screen.Start(ctx, a.cfg.Screen)
		if err != nil {
			return fmt.Errorf("start screen capture: %w", err)
		}
		screen = s
		return nil
	})
	g.Go(func() error {
		m, err := a.audio.Start(ctx, audioCfg)
		if err != nil {
			return fmt.Errorf("start microphone capture: %w", err)
		}
		mic = m
		return nil
	})

	if err := g.Wait(); err != nil {
		releaseStreams(a.log, screen, mic)
		return nil, nil, err
	}
	return screen, mic, nil
}

func (a *Assistant) watch(sess *captureSession, events <-chan domain.TranscriptionEvent) {
	ticker := time.NewTicker(a.cfg.AnalysisInterval)
	defer ticker.Stop()

	var (
		retry         <-chan time.Time
		lastImmediate time.Time
	)
	for {
		select {
		case <-sess.ctx.Done():
			return
		case <-sess.screen.Done():
			sess.log.Info("screen share ended externally")
			_ = a.stopSession(sess, domain.ReasonScreenShareEnded, nil)
			return
		case <-ticker.C:
			go a.tick(sess)
		case <-retry:
			retry = nil
			next, err := a.restartTranscription(sess)
			if err != nil {
				if a.handleRestartError(sess, err) {
					return
				}
				retry = time.After(a.cfg.RecognitionRestartDelay)
				continue
			}
			events = next
		case ev, ok := <-events:
			if !ok {
				events = nil
				if retry == nil {
					retry = time.After(a.cfg.RecognitionRestartDelay)
				}
				continue
			}
			switch ev.Kind {
			case domain.TranscriptionSnapshot:
				a.ingestTranscript(sess, ev.Text)
			case domain.TranscriptionTerminated:
				events = nil
				switch ev.Reason {
				case domain.TerminationPermissionDenied:
					a.revokeMicrophone(sess, ev.Err)
					return
				case domain.TerminationCaptureLost:
					a.loseMicrophone(sess, ev.Err)
					return
				case domain.TerminationBenign:
					// Back-to-back benign endings wait like failures do.
					if time.Since(lastImmediate) < a.cfg.RecognitionRestartDelay {
						sess.log.Debug("transcription ended again quickly, delaying restart", "err", ev.Err)
						retry = time.After(a.cfg.RecognitionRestartDelay)
						continue
					}
					lastImmediate = time.Now()
					sess.log.Debug("transcription ended, restarting", "err", ev.Err)
					next, err := a.restartTranscription(sess)
					if err != nil {
						if a.handleRestartError(sess, err) {
							return
						}
						retry = time.After(a.cfg.RecognitionRestartDelay)
						continue
					}
					events = next
				default:
					sess.log.Warn("transcription failed, restarting", "err", ev.Err)
					retry = time.After(a.cfg.RecognitionRestartDelay)
				}
			}
		}
	}
}

// handleRestartError reports whether the session was torn down.
func (a *Assistant) handleRestartError(sess *captureSession, err error) bool {
	if errors.Is(err, ErrNoActiveSession) {
		return true
	}
	if errors.Is(err, domain.ErrPermissionDenied) {
		a.revokeMicrophone(sess, err)
		return true
	}
	sess.log.Warn("transcription restart failed", "err", err)
	return false
}

func (a *Assistant) restartTranscription(sess *captureSession) (<-chan domain.TranscriptionEvent, error) {
	a.mu.Lock()
	if a.current != sess {
		a.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	previous := sess.transcription
	a.mu.Unlock()

	if previous != nil {
		_ = previous.Stop()
	}

	next, err := a.speech.Start(sess.ctx, sess.audio)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.current != sess {
		a.mu.Unlock()
		_ = next.Stop()
		return nil, ErrNoActiveSession
	}
	sess.transcription = next
	a.mu.Unlock()
	return next.Events(), nil
}

func (a *Assistant) revokeMicrophone(sess *captureSession, cause error) {
	sess.log.Warn("microphone permission denied", "err", cause)
	_ = a.stopSession(sess, domain.ReasonPermissionRevoked, &domain.Notification{
		Code:   domain.ErrorCodeMicrophonePermissionDenied,
		Title:  "Audio permission denied",
		Detail: "Please allow microphone access in your system settings.",
	})
}

func (a *Assistant) loseMicrophone(sess *captureSession, cause error) {
	sess.log.Warn("microphone stream ended", "err", cause)
	_ = a.stopSession(sess, domain.ReasonMicrophoneEnded, &domain.Notification{
		Code:   domain.ErrorCodeAudioStream,
		Title:  "Microphone stopped",
		Detail: "The microphone stream ended. Start capture again to continue.",
	})
}

func (a *Assistant) ingestTranscript(sess *captureSession, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != sess || sess.transcript == text {
		return
	}
	sess.transcript = text
	a.events.TranscriptUpdated(text)
}

func (a *Assistant) tick(sess *captureSession) {
	a.mu.Lock()
	if a.current != sess {
		a.mu.Unlock()
		return
	}
	if sess.analyzing {
		a.mu.Unlock()
		sess.log.Debug("analysis still in flight, skipping tick")
		return
	}
	transcript := strings.TrimSpace(sess.transcript)
	if transcript != "" && transcript == sess.lastAnalyzed {
		a.mu.Unlock()
		return
	}
	kind := domain.AdviceContextualHelp
	if sess.analyses == 0 {
		kind = domain.AdviceInitialInstructions
	}
	sess.analyzing = true
	a.setStatusLocked(domain.StatusAnalyzing, domain.ReasonAnalysisStarted)
	a.mu.Unlock()

	started := time.Now()
	advice, err := a.requestAdvice(sess.ctx, sess, kind, transcript)

	a.mu.Lock()
	defer a.mu.Unlock()
	sess.analyzing = false
	if a.current != sess {
		sess.log.Debug("discarding analysis for stopped session", "err", err)
		return
	}
	if err != nil {
		sess.log.Error("analysis failed", "err", err, "durationMs", time.Since(started).Milliseconds())
		a.notifyLocked(domain.Notification{
			Code:   domain.ErrorCodeAnalysisFailed,
			Title:  "Analysis Failed",
			Detail: failureDetail(err, "Could not get instructions from the AI."),
		})
		a.setStatusLocked(domain.StatusError, domain.ReasonAnalysisFailed)
		a.setStatusLocked(a.restingStatusLocked(), domain.ReasonAnalysisFailed)
		return
	}

	sess.log.Info("analysis completed", "kind", kind, "durationMs", time.Since(started).Milliseconds())
	sess.lastAnalyzed = transcript
	sess.analyses++
	a.setInstructionsLocked(advice.Text)
	a.setStatusLocked(a.restingStatusLocked(), domain.ReasonAnalysisCompleted)
}

// requestAdvice samples a frame and calls the advisor. The call outlives
// session cancellation so that a stop never aborts it half way.
func (a *Assistant) requestAdvice(ctx context.Context, sess *captureSession, kind domain.AdviceKind, transcript string) (domain.Advice, error) {
	frame, err := sess.screen.Sample()
	if err != nil {
		return domain.Advice{}, fmt.Errorf("sample frame: %w", err)
	}
	if transcript == "" {
		transcript = SilentTranscript
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.AnalysisTimeout)
	defer cancel()

	advice, err := a.advisor.Advise(callCtx, domain.AdviceRequest{Kind: kind, Frame: frame, Transcript: transcript})
	if err != nil {
		return domain.Advice{}, err
	}
	advice.Text = strings.TrimSpace(advice.Text)
	if advice.Text == "" {
		return domain.Advice{}, fmt.Errorf("%w: empty advice", domain.ErrServiceError)
	}
	return advice, nil
}

func (a *Assistant) narrate(ctx context.Context, text string, cached *domain.Audio) error {
	audio := cached
	if audio == nil {
		spoken := text
		if a.rules != nil {
			rewritten, err := a.rules.Apply(text)
			if err != nil {
				a.log.Warn("narration rules failed, using raw text", "err", err)
			} else {
				spoken = rewritten
			}
		}

		synthCtx, cancel := context.WithTimeout(ctx, a.cfg.NarrationTimeout)
		synthesized, err := a.narrator.Narrate(synthCtx, spoken)
		cancel()
		if err != nil {
			return fmt.Errorf("synthesize narration: %w", err)
		}
		audio = &synthesized

		a.mu.Lock()
		if a.instructions == text {
			a.narration = &narrationCache{text: text, audio: synthesized.Data, mime: synthesized.MIMEType}
			a.events.NarrationReady(synthesized)
		}
		a.mu.Unlock()
	}

	if a.player == nil {
		return nil
	}
	if err := a.player.Play(ctx, *audio); err != nil {
		return fmt.Errorf("play narration: %w", err)
	}
	return nil
}

func (a *Assistant) stopSession(sess *captureSession, reason domain.StatusReason, notice *domain.Notification) error {
	a.mu.Lock()
	if a.current != sess {
		a.mu.Unlock()
		return nil
	}
	a.current = nil
	sess.cancel()
	transcription := sess.transcription
	if sess.transcript != "" {
		a.events.TranscriptUpdated("")
	}
	sess.transcript = ""
	sess.lastAnalyzed = ""
	a.setInstructionsLocked(CaptureStoppedMessage)
	if notice != nil {
		a.notifyLocked(*notice)
	}
	a.setStatusLocked(domain.StatusIdle, reason)
	a.mu.Unlock()

	sess.log.Info("capture stopped", "reason", reason)

	var errs []error
	if transcription != nil {
		if err := transcription.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop transcription: %w", err))
		}
	}
	if err := releaseStreams(sess.log, sess.screen, sess.audio); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *Assistant) restingStatusLocked() domain.Status {
	switch {
	case a.current == nil && a.narrating:
		return domain.StatusSpeaking
	case a.current == nil:
		return domain.StatusIdle
	case a.current.analyzing:
		return domain.StatusAnalyzing
	case a.narrating:
		return domain.StatusSpeaking
	default:
		return domain.StatusCapturing
	}
}

func (a *Assistant) setStatusLocked(status domain.Status, reason domain.StatusReason) {
	if a.status == status {
		return
	}
	a.status = status
	a.events.StatusChanged(status, reason)
}

func (a *Assistant) setInstructionsLocked(text string) {
	if a.instructions == text {
		return
	}
	a.instructions = text
	a.narration = nil
	a.events.InstructionsUpdated(text)
}

func (a *Assistant) notifyLocked(n domain.Notification) {
	a.events.Notify(n)
}

func releaseStreams(log *slog.Logger, screen ports.ScreenStream, mic ports.AudioSession) error {
	var errs []error
	if screen != nil {
		if err := screen.Stop(); err != nil {
			log.Warn("screen stream did not stop cleanly", "err", err)
			errs = append(errs, fmt.Errorf("stop screen capture: %w", err))
		}
	}
	if mic != nil {
		if err := mic.Stop(); err != nil {
			log.Warn("microphone did not stop cleanly", "err", err)
			errs = append(errs, fmt.Errorf("stop microphone capture: %w", err))
		}
	}
	return errors.Join(errs...)
}

func captureFailedNotification(err error) domain.Notification {
	detail := "Could not start screen or audio capture. Please try again."
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		detail = "You denied permission for screen capture. Please allow it to use the app."
	case errors.Is(err, domain.ErrDeviceUnavailable):
		detail = "The selected screen or microphone is not available."
	}
	return domain.Notification{Code: domain.ErrorCodeCaptureFailed, Title: "Capture Failed", Detail: detail}
}

func failureDetail(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "The AI service is rate limiting requests. Try again shortly."
	case errors.Is(err, domain.ErrNoFrame):
		return "No screen frame is available yet."
	default:
		return fallback
	}
}
