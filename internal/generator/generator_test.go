package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kayz/promptbot/internal/config"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"你好", 2},
		{"hi 你", 2},
	}
	for _, tc := range tests {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestWordTokenizer(t *testing.T) {
	n, err := WordTokenizer{}.Tokenize(context.Background(), "User: hi there\nBot:")
	if err != nil || n != 4 {
		t.Fatalf("Tokenize = %d, %v", n, err)
	}
}

func TestNewTokenizer(t *testing.T) {
	for _, name := range []string{"", "estimate", "words", "tiktoken", "cohere"} {
		if _, err := NewTokenizer(name, "gpt-3.5-turbo"); err != nil {
			t.Fatalf("NewTokenizer(%q): %v", name, err)
		}
	}
	if _, err := NewTokenizer("sentencepiece", ""); err == nil {
		t.Fatal("expected error for unknown tokenizer")
	}
}

func TestScriptedReplaysQueueThenDefault(t *testing.T) {
	s := NewScripted("first")
	s.Queue("second")
	s.Default = "fallback"
	ctx := context.Background()

	for _, want := range []string{"first", "second", "fallback"} {
		out, err := s.Generate(ctx, "prompt", Params{MaxTokens: 5})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if len(out) != 1 || out[0] != want {
			t.Fatalf("Generate = %q, want %q", out, want)
		}
	}
	calls := s.Calls()
	if len(calls) != 3 || calls[0].Prompt != "prompt" || calls[0].Params.MaxTokens != 5 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestScriptedError(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted()
	s.Err = boom
	if _, err := s.Generate(context.Background(), "p", Params{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestRateLimitedHonoursContext(t *testing.T) {
	s := NewScripted()
	gen := RateLimited(s, rate.NewLimiter(rate.Every(time.Hour), 1))

	if _, err := gen.Generate(context.Background(), "p", Params{}); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := gen.Generate(ctx, "p", Params{}); err == nil {
		t.Fatal("expected rate limit error")
	}
	if len(s.Calls()) != 1 {
		t.Fatalf("limited call reached the backend: %d calls", len(s.Calls()))
	}
	if n, err := gen.Tokenize(context.Background(), "a b c"); err != nil || n != 3 {
		t.Fatalf("Tokenize through limiter = %d, %v", n, err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	gen, err := New(config.GeneratorConfig{Provider: "scripted", Tokenizer: "words"})
	if err != nil {
		t.Fatalf("New scripted: %v", err)
	}
	if _, ok := gen.(*Scripted); !ok {
		t.Fatalf("expected *Scripted, got %T", gen)
	}

	gen, err = New(config.GeneratorConfig{Provider: "openai", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New openai: %v", err)
	}
	if _, ok := gen.(*OpenAI); !ok {
		t.Fatalf("expected *OpenAI, got %T", gen)
	}

	gen, err = New(config.GeneratorConfig{Provider: "anthropic", APIKey: "sk-ant-test", RateLimit: 1})
	if err != nil {
		t.Fatalf("New anthropic: %v", err)
	}
	if _, ok := gen.(*rateLimited); !ok {
		t.Fatalf("expected rate limited wrapper, got %T", gen)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(config.GeneratorConfig{Provider: "openai"}); err == nil {
		t.Fatal("expected missing API key error")
	}
	if _, err := New(config.GeneratorConfig{Provider: "gpt-j"}); err == nil {
		t.Fatal("expected unsupported provider error")
	}
	if _, err := New(config.GeneratorConfig{Provider: "scripted", Tokenizer: "bogus"}); err == nil {
		t.Fatal("expected unknown tokenizer error")
	}
}
