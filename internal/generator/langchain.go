package generator

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LangChain completes prompts through any langchaingo model.
type LangChain struct {
	Tokenizer
	provider string
	llm      llms.Model
}

// LangChainConfig selects a langchaingo provider.
type LangChainConfig struct {
	Provider string // "cohere", "ollama" or "openai"
	APIKey   string
	BaseURL  string
	Model    string
}

const defaultOllamaURL = "http://localhost:11434"

func NewLangChain(cfg LangChainConfig, tok Tokenizer) (*LangChain, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "cohere":
		opts := []cohere.Option{cohere.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, cohere.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, cohere.WithBaseURL(cfg.BaseURL))
		}
		model, err = cohere.New(opts...)
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		model, err = ollama.New(ollama.WithServerURL(baseURL), ollama.WithModel(cfg.Model))
	case "openai":
		opts := []lcopenai.Option{lcopenai.WithToken(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, lcopenai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
		}
		model, err = lcopenai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", cfg.Provider, err)
	}
	return &LangChain{Tokenizer: tok, provider: cfg.Provider, llm: model}, nil
}

func (p *LangChain) Generate(ctx context.Context, prompt string, params Params) ([]string, error) {
	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
	}
	if params.Model != "" {
		opts = append(opts, llms.WithModel(params.Model))
	}
	if params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}
	if params.FrequencyPenalty != 0 {
		opts = append(opts, llms.WithFrequencyPenalty(params.FrequencyPenalty))
	}
	if params.PresencePenalty != 0 {
		opts = append(opts, llms.WithPresencePenalty(params.PresencePenalty))
	}
	if len(params.StopSequences) > 0 {
		opts = append(opts, llms.WithStopWords(params.StopSequences))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", p.provider, err)
	}
	return []string{text}, nil
}
