// Package gemini adapts Google's Gemini models to the advisor port.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"screenguide/internal/domain"
	"screenguide/internal/prompts"
	"screenguide/internal/providers"
)

// Config controls the Gemini advisor.
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	Temperature float32
}

// generator is the part of *genai.GenerativeModel the advisor needs.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Advisor implements ports.Advisor with a multimodal Gemini model.
type Advisor struct {
	client *genai.Client
	model  generator
}

func New(ctx context.Context, cfg Config) (*Advisor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	if cfg.Temperature > 0 {
		model.SetTemperature(cfg.Temperature)
	}
	return &Advisor{client: client, model: model}, nil
}

func (a *Advisor) Advise(ctx context.Context, req domain.AdviceRequest) (domain.Advice, error) {
	if len(req.Frame.Data) == 0 {
		return domain.Advice{}, domain.ErrNoFrame
	}
	prompt, err := prompts.Render(req.Kind, req.Transcript)
	if err != nil {
		return domain.Advice{}, err
	}

	resp, err := a.model.GenerateContent(ctx, frameBlob(req.Frame), genai.Text(prompt))
	if err != nil {
		return domain.Advice{}, classify(err)
	}

	text := responseText(resp)
	if text == "" {
		return domain.Advice{}, fmt.Errorf("gemini: %w: empty response", domain.ErrServiceError)
	}
	return domain.Advice{Text: text}, nil
}

func (a *Advisor) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func frameBlob(frame domain.Frame) genai.Blob {
	mimeType := frame.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return genai.Blob{MIMEType: mimeType, Data: frame.Data}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		// First candidate with content wins.
		if b.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %w: %w", providers.ErrorForStatus(apiErr.Code), err)
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("gemini: %w: response blocked: %w", domain.ErrServiceError, err)
	}
	return fmt.Errorf("gemini: %w: %w", domain.ErrServiceError, err)
}
