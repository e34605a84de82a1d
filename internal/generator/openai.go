package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kayz/promptbot/internal/logger"
)

// OpenAI completes prompts with the legacy completions endpoint, which
// takes raw text prompts and stop sequences.
type OpenAI struct {
	Tokenizer
	client *openai.Client
	model  string
}

// OpenAIConfig holds configuration for an OpenAI-compatible completions API.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

const defaultOpenAIModel = "gpt-3.5-turbo-instruct"

func NewOpenAI(cfg OpenAIConfig, tok Tokenizer) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		Tokenizer: tok,
		client:    openai.NewClientWithConfig(config),
		model:     cfg.Model,
	}, nil
}

func (p *OpenAI) Generate(ctx context.Context, prompt string, params Params) ([]string, error) {
	model := params.Model
	if model == "" {
		model = p.model
	}

	start := time.Now()
	resp, err := p.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:            model,
		Prompt:           prompt,
		MaxTokens:        params.MaxTokens,
		Temperature:      float32(params.Temperature),
		FrequencyPenalty: float32(params.FrequencyPenalty),
		PresencePenalty:  float32(params.PresencePenalty),
		Stop:             params.StopSequences,
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	logger.Debug("[GEN] openai model=%s duration=%s completion_tokens=%d", model, time.Since(start), resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", ErrNoGeneration)
	}
	out := make([]string, len(resp.Choices))
	for i, c := range resp.Choices {
		out[i] = c.Text
	}
	return out, nil
}
