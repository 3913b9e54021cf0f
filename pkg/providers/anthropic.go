package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
)

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(2),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_5)
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *AnthropicProvider) Generate(ctx context.Context, payload pipeline.Payload) (pipeline.RawOutput, error) {
	maxTokens := payload.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 280
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(payload.Prompt)),
		},
	}
	if payload.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: payload.System}}
	}
	if payload.Temperature > 0 {
		params.Temperature = anthropic.Float(payload.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return pipeline.RawOutput{}, pipeline.GenerationError("anthropic message", fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
		}
		return pipeline.RawOutput{}, pipeline.TransportError("anthropic message", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return pipeline.RawOutput{}, pipeline.GenerationError("anthropic message", errors.New("response has no text content"))
	}

	logger.DebugCF("anthropic", "Message received", map[string]any{
		"model":       string(msg.Model),
		"stop_reason": string(msg.StopReason),
	})

	return pipeline.RawOutput{Text: text, Model: string(msg.Model)}, nil
}
