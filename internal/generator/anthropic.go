package generator

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/kayz/promptbot/internal/logger"
)

// Anthropic sends the whole assembled prompt as one user message.
type Anthropic struct {
	Tokenizer
	client *anthropic.Client
	model  string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

const defaultAnthropicModel = "claude-3-haiku-20240307"

func NewAnthropic(cfg AnthropicConfig, tok Tokenizer) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		Tokenizer: tok,
		client:    anthropic.NewClient(cfg.APIKey, opts...),
		model:     cfg.Model,
	}, nil
}

func (p *Anthropic) Generate(ctx context.Context, prompt string, params Params) ([]string, error) {
	model := params.Model
	if model == "" {
		model = p.model
	}
	temperature := float32(params.Temperature)

	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:         anthropic.Model(model),
		Messages:      []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens:     params.MaxTokens,
		Temperature:   &temperature,
		StopSequences: params.StopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}
	logger.Debug("[GEN] anthropic model=%s stop_reason=%s output_tokens=%d", model, resp.StopReason, resp.Usage.OutputTokens)

	text := resp.GetFirstContentText()
	if text == "" && len(resp.Content) == 0 {
		return nil, fmt.Errorf("anthropic: %w", ErrNoGeneration)
	}
	return []string{text}, nil
}
