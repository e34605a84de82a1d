package promptbuild

import (
	"context"
	"errors"
	"fmt"

	"github.com/kayz/promptbot/internal/logger"
	"github.com/kayz/promptbot/internal/template"
)

// Tokenizer counts the tokens of a text the way the target model does.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) (int, error)
}

// Builder assembles prompts that fit the model's input budget.
type Builder struct {
	tokenizer Tokenizer
	auditor   *Auditor
}

// Option configures a Builder.
type Option func(*Builder)

// WithAuditor records every assembled prompt.
func WithAuditor(a *Auditor) Option {
	return func(b *Builder) {
		b.auditor = a
	}
}

// NewBuilder creates a Builder that measures prompts with tok.
func NewBuilder(tok Tokenizer, opts ...Option) *Builder {
	b := &Builder{tokenizer: tok}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StaticSize returns the token count of the template's static prompt.
func (b *Builder) StaticSize(ctx context.Context, tpl *template.Template) (int, error) {
	n, err := b.tokenizer.Tokenize(ctx, tpl.Text())
	if err != nil {
		return 0, fmt.Errorf("tokenize static prompt: %w", err)
	}
	return n, nil
}

// TurnCost returns the token count of one history turn as it is rendered
// into a prompt, separator included.
func (b *Builder) TurnCost(ctx context.Context, tpl *template.Template, turn template.Interaction) (int, error) {
	return b.tokenizer.Tokenize(ctx, turnText(tpl, turn))
}

// Build assembles the prompt for one query. The most recent history turns
// are kept, up to MaxContextExamples; when the prompt exceeds
// MaxPromptSize the oldest retained turns are dropped first until it
// fits. A warning is attached whenever fewer turns than requested fit.
// The request is never modified.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if req.Template == nil {
		return nil, errors.New("build prompt: template is required")
	}
	if req.MaxContextExamples < 0 {
		return nil, ErrInvalidContext
	}

	tpl := req.Template
	sizes, err := b.historyCosts(ctx, tpl, req.History, req.HistorySizes)
	if err != nil {
		return nil, err
	}

	total := len(req.History)
	start := min(req.MaxContextExamples, total)
	n := start

	prompt := renderPrompt(tpl, req.History[total-n:], req.Query)
	size, err := b.tokenizer.Tokenize(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("tokenize prompt: %w", err)
	}

	for size > req.MaxPromptSize && n > 0 {
		// Drop one turn at a time. The cached cost only skips measuring
		// candidates that are still over budget.
		estimate := size - sizes[total-n]
		n--
		if n > 0 && estimate > req.MaxPromptSize {
			size = estimate
			continue
		}
		prompt = renderPrompt(tpl, req.History[total-n:], req.Query)
		if size, err = b.tokenizer.Tokenize(ctx, prompt); err != nil {
			return nil, fmt.Errorf("tokenize prompt: %w", err)
		}
		logger.Debug("[PROMPT] shrunk context to %d turns, %d/%d tokens", n, size, req.MaxPromptSize)
	}

	if size > req.MaxPromptSize {
		static, err := b.StaticSize(ctx, tpl)
		if err != nil {
			return nil, err
		}
		return nil, &PromptTooLargeError{
			StaticTokens:  static,
			HistoryTokens: sumCosts(sizes[total-start:]),
			QueryTokens:   max(size-static, 0),
			MaxTokens:     req.MaxTokens,
			MaxPromptSize: req.MaxPromptSize,
			HardCap:       req.HardCap,
		}
	}

	res := &BuildResult{
		Prompt:           prompt,
		EffectiveContext: n,
		PromptTokens:     size,
		HistorySizes:     sizes,
	}
	if n < start {
		res.Warning = contextReduced(req.MaxContextExamples, n)
		logger.Warn("[PROMPT] %s", res.Warning.Message)
	}

	if b.auditor != nil {
		if err := b.auditor.Record(req, res); err != nil {
			logger.Warn("[PROMPT] audit record failed: %v", err)
		}
	}
	return res, nil
}
