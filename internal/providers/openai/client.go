// Package openai adapts the OpenAI API to the advisor and narrator ports.
package openai

import (
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"screenguide/internal/domain"
	"screenguide/internal/providers"
)

// Config controls the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	SpeechModel string
	Voice       string
	MaxRetries  int
	HTTPClient  *http.Client
}

// Client implements ports.Advisor with vision chat completions and
// ports.Narrator with the speech endpoint.
type Client struct {
	api oai.Client
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = "gpt-4o-mini-tts"
	}
	if cfg.Voice == "" {
		cfg.Voice = string(oai.AudioSpeechNewParamsVoiceAlloy)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{api: oai.NewClient(opts...), cfg: cfg}
}

func classify(op string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai %s: %w: %w", op, providers.ErrorForStatus(apiErr.StatusCode), err)
	}
	return fmt.Errorf("openai %s: %w: %w", op, domain.ErrServiceError, err)
}
