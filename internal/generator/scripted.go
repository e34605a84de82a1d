package generator

import (
	"context"
	"sync"
)

// Call records one Generate invocation of a Scripted generator.
type Call struct {
	Prompt string
	Params Params
}

// Scripted is a deterministic generator. It replays queued replies in
// order, then falls back to Default. Tokens are counted as words unless
// another tokenizer is set.
type Scripted struct {
	Tokenizer Tokenizer
	Default   string
	// Err, when set, is returned by every Generate call.
	Err error

	mu      sync.Mutex
	replies []string
	calls   []Call
}

func NewScripted(replies ...string) *Scripted {
	return &Scripted{
		Tokenizer: WordTokenizer{},
		Default:   "...",
		replies:   replies,
	}
}

// Queue appends replies to the script.
func (s *Scripted) Queue(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

func (s *Scripted) Tokenize(ctx context.Context, text string) (int, error) {
	if s.Tokenizer == nil {
		return WordTokenizer{}.Tokenize(ctx, text)
	}
	return s.Tokenizer.Tokenize(ctx, text)
}

func (s *Scripted) Generate(ctx context.Context, prompt string, params Params) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Prompt: prompt, Params: params})
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.replies) == 0 {
		return []string{s.Default}, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return []string{reply}, nil
}

// Calls returns a copy of the recorded calls.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}
