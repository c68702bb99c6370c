package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"screenguide/internal/capture"
	"screenguide/internal/config"
	"screenguide/internal/playback"
	"screenguide/internal/ports"
	"screenguide/internal/providers/deepgram"
	"screenguide/internal/providers/elevenlabs"
	"screenguide/internal/providers/gemini"
	"screenguide/internal/providers/openai"
	"screenguide/internal/proxy"
	"screenguide/internal/rules"
	"screenguide/internal/speech"
	"screenguide/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Assistant *usecase.Assistant
	Config    config.Config

	closers []io.Closer
}

// Close releases provider clients. The assistant must be stopped first.
func (s Services) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Build loads configuration from the environment and wires all backend
// dependencies for the current runtime.
func Build(ctx context.Context, eventSink ports.EventSink, clipboard ports.Clipboard, logger *slog.Logger) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(ctx, cfg, eventSink, clipboard, logger)
}

// BuildWithConfig wires the runtime graph from an already resolved config.
func BuildWithConfig(ctx context.Context, cfg config.Config, eventSink ports.EventSink, clipboard ports.Clipboard, logger *slog.Logger) (Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return Services{}, err
	}

	rulesEngine, err := rules.Load(rules.Options{
		Path:           cfg.Rules.Path,
		IterationLimit: cfg.Rules.IterationLimit,
	})
	if err != nil {
		return Services{}, err
	}

	httpClient, err := proxy.NewHTTPClient(cfg.Network.SOCKSProxy, cfg.Network.HTTPTimeout)
	if err != nil {
		return Services{}, err
	}

	var closers []io.Closer
	advisor, closer, err := newAdvisor(ctx, cfg, httpClient)
	if err != nil {
		return Services{}, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}
	narrator, err := newNarrator(cfg, httpClient)
	if err != nil {
		return Services{}, err
	}

	transcriber := speech.NewTranscriber(
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		speech.Config{
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize: cfg.Session.ChunkSize,
		},
		logger,
	)

	assistant := usecase.NewAssistant(usecase.Dependencies{
		Screen:    capture.NewFFMPEGScreenCapture(cfg.Audio.RecorderCommand),
		Audio:     capture.NewFFMPEGAudioCapture(cfg.Audio.RecorderCommand),
		Speech:    transcriber,
		Advisor:   advisor,
		Narrator:  narrator,
		Player:    playback.NewPlayer(),
		Rules:     rulesEngine,
		Clipboard: clipboard,
		Events:    eventSink,
		Logger:    logger,
	}, usecase.Config{
		Audio: ports.AudioConfig{
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
			InputFormat: cfg.Audio.InputFormat,
			InputDevice: cfg.Audio.InputDevice,
		},
		Screen: ports.ScreenConfig{
			InputFormat: cfg.Screen.InputFormat,
			Display:     cfg.Screen.Display,
			FPS:         cfg.Screen.FPS,
			MaxWidth:    cfg.Screen.MaxWidth,
			Quality:     cfg.Screen.Quality,
		},
		AnalysisInterval:        cfg.Session.AnalysisInterval,
		AnalysisTimeout:         cfg.Session.AnalysisTimeout,
		NarrationTimeout:        cfg.Session.NarrationTimeout,
		RecognitionRestartDelay: cfg.Session.RecognitionRestartDelay,
	})

	logger.Info("services ready",
		"component", "bootstrap",
		"advice", cfg.Advice.Provider,
		"narration", cfg.Narration.Provider,
		"rules", rulesEngine.Len(),
		"proxy", cfg.Network.SOCKSProxy != "",
	)

	return Services{Assistant: assistant, Config: cfg, closers: closers}, nil
}

func newAdvisor(ctx context.Context, cfg config.Config, httpClient *http.Client) (ports.Advisor, io.Closer, error) {
	switch cfg.Advice.Provider {
	case config.ProviderGemini:
		advisor, err := gemini.New(ctx, gemini.Config{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		})
		if err != nil {
			return nil, nil, err
		}
		return advisor, advisor, nil
	case config.ProviderOpenAI:
		return openai.New(openAIConfig(cfg, httpClient)), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown advice provider %q", cfg.Advice.Provider)
	}
}

func newNarrator(cfg config.Config, httpClient *http.Client) (ports.Narrator, error) {
	switch cfg.Narration.Provider {
	case config.ProviderOpenAI:
		return openai.New(openAIConfig(cfg, httpClient)), nil
	case config.ProviderElevenLabs:
		return elevenlabs.New(elevenlabs.Config{
			APIKey:     cfg.Eleven.APIKey,
			VoiceID:    cfg.Eleven.VoiceID,
			ModelID:    cfg.Eleven.ModelID,
			HTTPClient: httpClient,
		}), nil
	default:
		return nil, fmt.Errorf("unknown narration provider %q", cfg.Narration.Provider)
	}
}

func openAIConfig(cfg config.Config, httpClient *http.Client) openai.Config {
	return openai.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		SpeechModel: cfg.OpenAI.SpeechModel,
		Voice:       cfg.OpenAI.Voice,
		MaxRetries:  cfg.OpenAI.MaxRetries,
		HTTPClient:  httpClient,
	}
}
