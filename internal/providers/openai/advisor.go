package openai

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go/v3"

	"screenguide/internal/domain"
	"screenguide/internal/prompts"
)

func (c *Client) Advise(ctx context.Context, req domain.AdviceRequest) (domain.Advice, error) {
	if len(req.Frame.Data) == 0 {
		return domain.Advice{}, domain.ErrNoFrame
	}
	prompt, err := prompts.Render(req.Kind, req.Transcript)
	if err != nil {
		return domain.Advice{}, err
	}

	resp, err := c.api.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(c.cfg.Model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(prompt),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL:    req.Frame.DataURI(),
					Detail: "auto",
				}),
			}),
		},
	})
	if err != nil {
		return domain.Advice{}, classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Advice{}, fmt.Errorf("openai chat completion: %w: no choices in response", domain.ErrServiceError)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return domain.Advice{}, fmt.Errorf("openai chat completion: %w: empty message content", domain.ErrServiceError)
	}
	return domain.Advice{Text: text}, nil
}
