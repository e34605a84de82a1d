package generator

import (
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kayz/promptbot/internal/config"
	"github.com/kayz/promptbot/internal/logger"
)

// New creates the generator selected by cfg.Provider, wrapped in a rate
// limiter when cfg.RateLimit is positive.
func New(cfg config.GeneratorConfig) (TextGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	tok, err := NewTokenizer(cfg.Tokenizer, cfg.Model)
	if err != nil {
		return nil, err
	}

	var gen TextGenerator
	switch provider {
	case "scripted", "dry-run":
		s := NewScripted()
		if cfg.Tokenizer != "" {
			s.Tokenizer = tok
		}
		gen = s
	case "openai":
		gen, err = NewOpenAI(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, tok)
	case "anthropic", "claude":
		gen, err = NewAnthropic(AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, tok)
	case "cohere", "ollama":
		gen, err = NewLangChain(LangChainConfig{Provider: provider, APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, tok)
	case "langchain-openai":
		gen, err = NewLangChain(LangChainConfig{Provider: "openai", APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, tok)
	default:
		return nil, fmt.Errorf("unsupported generator provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		logger.Debug("[GEN] rate limit %.2f/s burst %d", cfg.RateLimit, burst)
		gen = RateLimited(gen, rate.NewLimiter(rate.Limit(cfg.RateLimit), burst))
	}
	logger.Info("[GEN] using %s generator", provider)
	return gen, nil
}
