// Package elevenlabs adapts the ElevenLabs text-to-speech API to the
// narrator port.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"screenguide/internal/domain"
	"screenguide/internal/providers"
)

// Config controls the ElevenLabs narrator.
type Config struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	Stability    float64
	Similarity   float64
	HTTPClient   *http.Client
}

// Narrator implements ports.Narrator.
type Narrator struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Narrator {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.elevenlabs.io/v1"
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = "21m00Tcm4TlvDq8ikWAM"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.Stability == 0 {
		cfg.Stability = 0.75
	}
	if cfg.Similarity == 0 {
		cfg.Similarity = 0.7
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Narrator{cfg: cfg, http: client}
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (n *Narrator) Narrate(ctx context.Context, text string) (domain.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Audio{}, errors.New("elevenlabs: nothing to narrate")
	}
	if strings.TrimSpace(n.cfg.APIKey) == "" {
		return domain.Audio{}, errors.New("ELEVENLABS_API_KEY is not configured")
	}

	endpoint, err := n.speechURL()
	if err != nil {
		return domain.Audio{}, err
	}
	payload, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: n.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       n.cfg.Stability,
			SimilarityBoost: n.cfg.Similarity,
		},
	})
	if err != nil {
		return domain.Audio{}, fmt.Errorf("elevenlabs: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.Audio{}, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", n.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := n.http.Do(req)
	if err != nil {
		return domain.Audio{}, fmt.Errorf("elevenlabs: %w: %w", domain.ErrServiceError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Audio{}, fmt.Errorf("elevenlabs: %w: %s: %s",
			providers.ErrorForStatus(resp.StatusCode), resp.Status, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Audio{}, fmt.Errorf("elevenlabs: %w: read audio: %w", domain.ErrServiceError, err)
	}
	if len(data) == 0 {
		return domain.Audio{}, fmt.Errorf("elevenlabs: %w: empty audio", domain.ErrServiceError)
	}
	return domain.Audio{Data: data, MIMEType: "audio/mpeg"}, nil
}

func (n *Narrator) speechURL() (string, error) {
	base, err := url.Parse(strings.TrimRight(n.cfg.APIBaseURL, "/") + "/text-to-speech/" + url.PathEscape(n.cfg.VoiceID))
	if err != nil {
		return "", fmt.Errorf("invalid ElevenLabs API base URL: %w", err)
	}
	q := base.Query()
	q.Set("output_format", n.cfg.OutputFormat)
	base.RawQuery = q.Encode()
	return base.String(), nil
}
