package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIRoot(t *testing.T) {
	assert.Equal(t, "https://api.moonshot.cn/v1/", apiRoot("https://api.moonshot.cn/v1/chat/completions"))
	assert.Equal(t, "https://api.moonshot.cn/v1/", apiRoot("https://api.moonshot.cn/v1"))
	assert.Equal(t, "https://api.moonshot.cn/v1/", apiRoot("https://api.moonshot.cn/v1/"))
}

func TestOpenAISender(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	s := NewOpenAISender(srv.URL+"/v1/chat/completions", "secret", time.Second)
	ans, err := s.Send(context.Background(), textRequest())
	require.NoError(t, err)
	assert.Equal(t, Answer{Content: "ok", CompletionTokens: 1, TotalTokens: 2}, ans)
	assert.Equal(t, "moonshot-v1-128k", body["model"])
}

func TestOpenAISenderStatusError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_reached_error"}}`)
	}))
	defer srv.Close()

	_, err := NewOpenAISender(srv.URL, "secret", time.Second).Send(context.Background(), textRequest())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Equal(t, KindRateLimited, Classify(err).Kind)
	assert.Equal(t, 1, calls)
}
