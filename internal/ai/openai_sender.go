package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAISender отправляет запрос через openai-go в любой OpenAI-совместимый эндпоинт.
type OpenAISender struct {
	client *openai.Client
}

// NewOpenAISender принимает как корень API, так и полный URL chat/completions.
func NewOpenAISender(baseURL, apiKey string, timeout time.Duration) *OpenAISender {
	c := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHeader("API-Key", apiKey),
		option.WithBaseURL(apiRoot(baseURL)),
		option.WithMaxRetries(0), // повторы делает Client
		option.WithRequestTimeout(timeout),
	)
	return &OpenAISender{client: &c}
}

func apiRoot(u string) string {
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, "/chat/completions")
	return u + "/"
}

func (s *OpenAISender) Send(ctx context.Context, req CompletionRequest) (Answer, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toOpenAIMessages(req),
		Temperature: openai.Float(req.Temperature),
		TopP:        openai.Float(req.TopP),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Answer{}, &StatusError{Code: apiErr.StatusCode, Message: apiErr.Message, Type: apiErr.Type}
		}
		return Answer{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Answer{}, errors.New("openai chat completion: empty choices")
	}
	return Answer{
		Content:          resp.Choices[0].Message.Content,
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}, nil
}

func toOpenAIMessages(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Text()))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Text()))
		default:
			if req.Mode == ModeText || !m.HasImage() {
				out = append(out, openai.UserMessage(m.Text()))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Content))
			for _, p := range m.Content {
				if p.Type == PartImageURL {
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: p.ImageURL}))
				} else {
					parts = append(parts, openai.TextContentPart(p.Text))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}
