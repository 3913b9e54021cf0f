package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sipeed/picopost/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPayload = pipeline.Payload{
	System:      "be brief",
	Prompt:      "share a fact",
	ImagePrompt: "neon city",
	MaxTokens:   280,
	Temperature: 0.85,
}

func jsonServer(t *testing.T, path string, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, path) {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIGenerate(t *testing.T) {
	var req map[string]any
	srv := jsonServer(t, "/chat/completions", http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4",
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Minds scale.  "}}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
	}`, &req)

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	out, err := p.Generate(context.Background(), testPayload)
	require.NoError(t, err)
	assert.Equal(t, "Minds scale.", out.Text)
	assert.Equal(t, "gpt-4", out.Model)

	assert.Equal(t, "gpt-4", req["model"])
	assert.EqualValues(t, 280, req["max_tokens"])
	assert.InDelta(t, 0.85, req["temperature"], 1e-9)
	msgs, ok := req["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	srv := jsonServer(t, "/chat/completions", http.StatusOK,
		`{"id": "x", "object": "chat.completion", "created": 1, "model": "gpt-4", "choices": []}`, nil)

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	_, err := p.Generate(context.Background(), testPayload)
	require.Error(t, err)
	assert.Equal(t, pipeline.KindGeneration, pipeline.KindOf(err))
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	srv := jsonServer(t, "/chat/completions", http.StatusBadRequest,
		`{"error": {"message": "bad request", "type": "invalid_request_error", "param": null, "code": null}}`, nil)

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	_, err := p.Generate(context.Background(), testPayload)
	require.Error(t, err)
	assert.Equal(t, pipeline.KindGeneration, pipeline.KindOf(err))
	assert.Contains(t, err.Error(), "status 400")
}

func TestOpenAIGenerateTransportError(t *testing.T) {
	srv := jsonServer(t, "/chat/completions", http.StatusOK, `{}`, nil)
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Generate(ctx, testPayload)
	require.Error(t, err)
	assert.Equal(t, pipeline.KindTransport, pipeline.KindOf(err))
}

func TestOpenAIGenerateImage(t *testing.T) {
	var req map[string]any
	srv := jsonServer(t, "/images/generations", http.StatusOK,
		`{"created": 1, "data": [{"url": "https://img.example/1.png"}]}`, &req)

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	url, err := p.GenerateImage(context.Background(), "neon city")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/1.png", url)
	assert.Equal(t, "dall-e-3", req["model"])
	assert.Equal(t, "neon city", req["prompt"])
}

func TestOpenAIGenerateImageRejectsEmptyPrompt(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: "http://127.0.0.1:0/"})
	_, err := p.GenerateImage(context.Background(), "  ")
	assert.Equal(t, pipeline.KindGeneration, pipeline.KindOf(err))
}

func TestAnthropicGenerate(t *testing.T) {
	var req map[string]any
	srv := jsonServer(t, "/v1/messages", http.StatusOK, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "Synapses outnumber stars."}],
		"stop_reason": "end_turn", "stop_sequence": null,
		"usage": {"input_tokens": 5, "output_tokens": 4}
	}`, &req)

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "key", BaseURL: srv.URL + "/"})
	out, err := p.Generate(context.Background(), testPayload)
	require.NoError(t, err)
	assert.Equal(t, "Synapses outnumber stars.", out.Text)
	assert.Equal(t, "claude-sonnet-4-5", req["model"])
	assert.EqualValues(t, 280, req["max_tokens"])
	require.NotNil(t, req["system"])
}

func TestAnthropicGenerateEmptyContent(t *testing.T) {
	srv := jsonServer(t, "/v1/messages", http.StatusOK, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
		"content": [], "stop_reason": "end_turn", "usage": {"input_tokens": 5, "output_tokens": 0}
	}`, nil)

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "key", BaseURL: srv.URL + "/"})
	_, err := p.Generate(context.Background(), testPayload)
	assert.Equal(t, pipeline.KindGeneration, pipeline.KindOf(err))
}
