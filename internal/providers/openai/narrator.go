package openai

import (
	"context"
	"fmt"
	"io"
	"mime"
	"strings"

	oai "github.com/openai/openai-go/v3"

	"screenguide/internal/domain"
)

// maxSpeechInput is the longest input the speech endpoint accepts.
const maxSpeechInput = 4096

func (c *Client) Narrate(ctx context.Context, text string) (domain.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Audio{}, fmt.Errorf("openai speech: nothing to narrate")
	}
	if len(text) > maxSpeechInput {
		text = truncateAtSpace(text, maxSpeechInput)
	}

	resp, err := c.api.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(c.cfg.SpeechModel),
		Voice:          oai.AudioSpeechNewParamsVoice(c.cfg.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return domain.Audio{}, classify("speech", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Audio{}, fmt.Errorf("openai speech: %w: read audio: %w", domain.ErrServiceError, err)
	}
	if len(data) == 0 {
		return domain.Audio{}, fmt.Errorf("openai speech: %w: empty audio", domain.ErrServiceError)
	}

	mimeType := "audio/mpeg"
	if parsed, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && strings.HasPrefix(parsed, "audio/") {
		mimeType = parsed
	}
	return domain.Audio{Data: data, MIMEType: mimeType}, nil
}

func truncateAtSpace(text string, limit int) string {
	cut := text[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.ToValidUTF8(cut, "")
}
