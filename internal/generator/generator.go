// Package generator adapts text completion backends to the single
// capability the chat engine needs: count tokens and complete a prompt.
package generator

import (
	"context"
	"errors"
)

// ErrNoGeneration is returned when a backend answers without any text.
var ErrNoGeneration = errors.New("backend returned no generations")

// Tokenizer counts the tokens of a text the way the target model does.
type Tokenizer interface {
	Tokenize(ctx context.Context, text string) (int, error)
}

// TextGenerator completes prompts and measures them.
type TextGenerator interface {
	Tokenizer
	Generate(ctx context.Context, prompt string, params Params) ([]string, error)
}

// Params are the per-call generation settings.
type Params struct {
	Model            string
	MaxTokens        int
	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
	StopSequences    []string
}
