package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const maxResponseSize = 8 << 20

// MoonshotSender отправляет запрос напрямую в Moonshot chat/completions.
type MoonshotSender struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewMoonshotSender(url, apiKey string, timeout time.Duration) *MoonshotSender {
	return &MoonshotSender{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

type wireRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Messages    []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role    Role `json:"role"`
	Content any  `json:"content"` // string в текстовом режиме, []any в мультимодальном
}

type wireTextPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text"`
}

type wireImagePart struct {
	Type     PartType `json:"type"`
	ImageURL string   `json:"image_url"`
}

func encodeRequest(req CompletionRequest) wireRequest {
	msgs := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if req.Mode == ModeText {
			msgs = append(msgs, wireMessage{Role: m.Role, Content: m.Text()})
			continue
		}
		parts := make([]any, 0, len(m.Content))
		for _, p := range m.Content {
			if p.Type == PartImageURL {
				parts = append(parts, wireImagePart{Type: PartImageURL, ImageURL: p.ImageURL})
			} else {
				parts = append(parts, wireTextPart{Type: PartText, Text: p.Text})
			}
		}
		msgs = append(msgs, wireMessage{Role: m.Role, Content: parts})
	}
	return wireRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Messages:    msgs,
	}
}

func (s *MoonshotSender) Send(ctx context.Context, req CompletionRequest) (Answer, error) {
	body, err := json.Marshal(encodeRequest(req))
	if err != nil {
		return Answer{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// ключ без канонизации имени: Moonshot ожидает ровно "API-Key"
	httpReq.Header["API-Key"] = []string{s.apiKey}

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return Answer{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Answer{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Answer{}, &StatusError{
			Code:    resp.StatusCode,
			Message: gjson.GetBytes(respBody, "error.message").String(),
			Type:    gjson.GetBytes(respBody, "error.type").String(),
		}
	}
	return parseAnswer(respBody)
}

var answerPaths = []string{"usage.total_tokens", "usage.completion_tokens", "choices.0.message.content"}

func parseAnswer(body []byte) (Answer, error) {
	if !gjson.ValidBytes(body) {
		return Answer{}, errors.New("malformed response body")
	}
	res := gjson.GetManyBytes(body, answerPaths...)
	for i, r := range res {
		if !r.Exists() {
			return Answer{}, fmt.Errorf("malformed response: missing %s", answerPaths[i])
		}
	}
	if res[0].Type != gjson.Number || res[1].Type != gjson.Number {
		return Answer{}, errors.New("malformed response: usage is not numeric")
	}
	if res[2].Type != gjson.String {
		return Answer{}, errors.New("malformed response: content is not a string")
	}
	return Answer{
		Content:          res[2].String(),
		CompletionTokens: int(res[1].Int()),
		TotalTokens:      int(res[0].Int()),
	}, nil
}
