package generator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cohere-ai/tokenizer"
	"github.com/tmc/langchaingo/llms"
)

// EstimateTokenizer approximates token counts without a vocabulary.
// ASCII runes weigh a quarter token each; other runes weigh one.
type EstimateTokenizer struct{}

func (EstimateTokenizer) Tokenize(_ context.Context, text string) (int, error) {
	return EstimateTokens(text), nil
}

// EstimateTokens is the heuristic behind EstimateTokenizer.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// WordTokenizer counts whitespace separated words.
type WordTokenizer struct{}

func (WordTokenizer) Tokenize(_ context.Context, text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// TiktokenTokenizer counts tokens with the BPE encoding of an OpenAI model.
type TiktokenTokenizer struct {
	Model string
}

func (t TiktokenTokenizer) Tokenize(_ context.Context, text string) (int, error) {
	return llms.CountTokens(t.Model, text), nil
}

// CohereTokenizer counts tokens with Cohere's prebuilt vocabulary. The
// encoder is loaded on first use.
type CohereTokenizer struct {
	Vocabulary string

	once    sync.Once
	encoder *tokenizer.Encoder
	err     error
}

const defaultCohereVocabulary = "coheretext-50k"

func NewCohereTokenizer(vocabulary string) *CohereTokenizer {
	if vocabulary == "" {
		vocabulary = defaultCohereVocabulary
	}
	return &CohereTokenizer{Vocabulary: vocabulary}
}

func (t *CohereTokenizer) Tokenize(_ context.Context, text string) (int, error) {
	t.once.Do(func() {
		t.encoder, t.err = tokenizer.NewFromPrebuilt(t.Vocabulary)
	})
	if t.err != nil {
		return 0, fmt.Errorf("load cohere vocabulary %s: %w", t.Vocabulary, t.err)
	}
	ids, _ := t.encoder.Encode(text)
	return len(ids), nil
}

// NewTokenizer returns the tokenizer registered under name. model is used
// by the tiktoken tokenizer to pick an encoding.
func NewTokenizer(name, model string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "estimate":
		return EstimateTokenizer{}, nil
	case "words":
		return WordTokenizer{}, nil
	case "tiktoken":
		return TiktokenTokenizer{Model: model}, nil
	case "cohere":
		return NewCohereTokenizer(""), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}
