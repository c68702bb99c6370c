package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
)

// Config stores runtime configuration for the assistant.
type Config struct {
	Advice    AdviceConfig
	Narration NarrationConfig
	Gemini    GeminiConfig
	OpenAI    OpenAIConfig
	Eleven    ElevenLabsConfig
	Deepgram  DeepgramConfig
	Audio     AudioConfig
	Screen    ScreenConfig
	Rules     RulesConfig
	Session   SessionConfig
	Network   NetworkConfig
	LogLevel  slog.Level
}

type AdviceConfig struct {
	Provider string
}

type NarrationConfig struct {
	Provider string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	SpeechModel string
	Voice       string
	MaxRetries  int
}

type ElevenLabsConfig struct {
	APIKey  string
	VoiceID string
	ModelID string
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

type AudioConfig struct {
	RecorderCommand string
	DevicesCommand  string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
}

type ScreenConfig struct {
	InputFormat string
	Display     string
	FPS         int
	MaxWidth    int
	Quality     int
}

type RulesConfig struct {
	Path           string
	IterationLimit int
}

type SessionConfig struct {
	ChunkSize               int
	AnalysisInterval        time.Duration
	AnalysisTimeout         time.Duration
	NarrationTimeout        time.Duration
	RecognitionRestartDelay time.Duration
}

type NetworkConfig struct {
	SOCKSProxy  string
	HTTPTimeout time.Duration
}

// LoadDotEnv loads variables from the given .env files without overriding
// the process environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	rulesPath := strings.TrimSpace(os.Getenv("SCREENGUIDE_RULES_FILE"))
	if rulesPath == "" {
		rulesPath = firstExisting(
			filepath.Join(home, ".config", "screenguide", "narration.rules"),
			filepath.Join(home, ".config", "screenguide", "substitutions.rules"),
		)
	}

	cfg := Config{
		Advice: AdviceConfig{
			Provider: strings.ToLower(envOrDefault("SCREENGUIDE_ADVICE_PROVIDER", ProviderGemini)),
		},
		Narration: NarrationConfig{
			Provider: strings.ToLower(envOrDefault("SCREENGUIDE_NARRATION_PROVIDER", ProviderOpenAI)),
		},
		Gemini: GeminiConfig{
			APIKey: firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")),
			Model:  envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			BaseURL:     strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
			Model:       envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			SpeechModel: envOrDefault("OPENAI_TTS_MODEL", "gpt-4o-mini-tts"),
			Voice:       envOrDefault("OPENAI_TTS_VOICE", "alloy"),
			MaxRetries:  envOrDefaultInt("OPENAI_MAX_RETRIES", 2),
		},
		Eleven: ElevenLabsConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
			VoiceID: envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
			ModelID: envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		},
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:  envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:       envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:    strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat: envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("SCREENGUIDE_FFMPEG_COMMAND", "ffmpeg"),
			DevicesCommand:  envOrDefault("SCREENGUIDE_PACTL_COMMAND", "pactl"),
			InputFormat:     envOrDefault("SCREENGUIDE_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("SCREENGUIDE_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				"default",
			),
			SampleRate: envOrDefaultInt("SCREENGUIDE_SAMPLE_RATE", 16000),
			Channels:   envOrDefaultInt("SCREENGUIDE_CHANNELS", 1),
		},
		Screen: ScreenConfig{
			InputFormat: envOrDefault("SCREENGUIDE_SCREEN_INPUT_FORMAT", "x11grab"),
			Display:     firstNonEmpty(os.Getenv("SCREENGUIDE_DISPLAY"), os.Getenv("DISPLAY"), ":0.0"),
			FPS:         envOrDefaultInt("SCREENGUIDE_SCREEN_FPS", 1),
			MaxWidth:    envOrDefaultInt("SCREENGUIDE_FRAME_MAX_WIDTH", 1280),
			Quality:     envOrDefaultInt("SCREENGUIDE_FRAME_QUALITY", 5),
		},
		Rules: RulesConfig{
			Path:           rulesPath,
			IterationLimit: envOrDefaultInt("SCREENGUIDE_RULE_ITERATION_LIMIT", 30),
		},
		Session: SessionConfig{
			ChunkSize:               envOrDefaultInt("SCREENGUIDE_AUDIO_CHUNK_SIZE", 4096),
			AnalysisInterval:        envOrDefaultMillis("SCREENGUIDE_ANALYSIS_INTERVAL_MS", 7*time.Second),
			AnalysisTimeout:         envOrDefaultMillis("SCREENGUIDE_ANALYSIS_TIMEOUT_MS", 60*time.Second),
			NarrationTimeout:        envOrDefaultMillis("SCREENGUIDE_NARRATION_TIMEOUT_MS", 60*time.Second),
			RecognitionRestartDelay: envOrDefaultMillis("SCREENGUIDE_RECOGNITION_RESTART_MS", time.Second),
		},
		Network: NetworkConfig{
			SOCKSProxy:  strings.TrimSpace(os.Getenv("SCREENGUIDE_SOCKS_PROXY")),
			HTTPTimeout: envOrDefaultMillis("SCREENGUIDE_HTTP_TIMEOUT_MS", 120*time.Second),
		},
		LogLevel: ParseLogLevel(os.Getenv("SCREENGUIDE_LOG_LEVEL")),
	}

	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Screen.FPS <= 0 {
		cfg.Screen.FPS = 1
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.AnalysisInterval < time.Second {
		cfg.Session.AnalysisInterval = 7 * time.Second
	}
	if cfg.OpenAI.MaxRetries < 0 {
		cfg.OpenAI.MaxRetries = 0
	}

	return cfg, nil
}

// Validate reports missing credentials for the selected providers.
func (c Config) Validate() error {
	var errs []error
	if c.Deepgram.APIKey == "" {
		errs = append(errs, errors.New("DEEPGRAM_API_KEY is required for speech recognition"))
	}

	switch c.Advice.Provider {
	case ProviderGemini:
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when SCREENGUIDE_ADVICE_PROVIDER=gemini"))
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when SCREENGUIDE_ADVICE_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown advice provider %q", c.Advice.Provider))
	}

	switch c.Narration.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when SCREENGUIDE_NARRATION_PROVIDER=openai"))
		}
	case ProviderElevenLabs:
		if c.Eleven.APIKey == "" {
			errs = append(errs, errors.New("ELEVENLABS_API_KEY is required when SCREENGUIDE_NARRATION_PROVIDER=elevenlabs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown narration provider %q", c.Narration.Provider))
	}

	return errors.Join(errs...)
}

// ParseLogLevel maps debug/info/warn/error to a slog level. Anything else is info.
func ParseLogLevel(value string) slog.Level {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	ms := envOrDefaultInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
