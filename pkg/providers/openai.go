// Package providers adapts hosted generation services to the pipeline ports.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sipeed/picopost/pkg/logger"
	"github.com/sipeed/picopost/pkg/pipeline"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	Timeout    time.Duration
}

type OpenAIProvider struct {
	client     openai.Client
	model      string
	imageModel string
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
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
		cfg.Model = openai.ChatModelGPT4
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = openai.ImageModelDallE3
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, payload pipeline.Payload) (pipeline.RawOutput, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(payload.System),
			openai.UserMessage(payload.Prompt),
		},
	}
	if payload.MaxTokens > 0 {
		params.MaxTokens = openai.Int(payload.MaxTokens)
	}
	if payload.Temperature > 0 {
		params.Temperature = openai.Float(payload.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return pipeline.RawOutput{}, classify("openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return pipeline.RawOutput{}, pipeline.GenerationError("openai chat completion", errors.New("response has no choices"))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return pipeline.RawOutput{}, pipeline.GenerationError("openai chat completion", errors.New("response content is empty"))
	}

	logger.DebugCF("openai", "Completion received", map[string]any{
		"model":  resp.Model,
		"tokens": resp.Usage.CompletionTokens,
	})

	return pipeline.RawOutput{Text: text, Model: resp.Model}, nil
}

// GenerateImage returns the URL of a generated image.
func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", pipeline.GenerationError("openai image", errors.New("image prompt is empty"))
	}

	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          p.imageModel,
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", classify("openai image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", pipeline.GenerationError("openai image", errors.New("response has no image url"))
	}
	return resp.Data[0].URL, nil
}

// classify maps SDK errors onto the pipeline taxonomy: API responses are
// generation failures, anything without a response is a transport failure.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return pipeline.GenerationError(op, fmt.Errorf("status %d: %w", apiErr.StatusCode, err))
	}
	return pipeline.TransportError(op, err)
}
