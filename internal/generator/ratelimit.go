package generator

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimited struct {
	TextGenerator
	limiter *rate.Limiter
}

// RateLimited waits on limiter before every generation. Tokenization is
// not limited.
func RateLimited(gen TextGenerator, limiter *rate.Limiter) TextGenerator {
	if limiter == nil {
		return gen
	}
	return &rateLimited{TextGenerator: gen, limiter: limiter}
}

func (r *rateLimited) Generate(ctx context.Context, prompt string, params Params) ([]string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.TextGenerator.Generate(ctx, prompt, params)
}
