package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped provider.
type Limited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewLimited allows perMinute calls per minute with a burst of one.
// perMinute <= 0 disables throttling.
func NewLimited(next Provider, perMinute int) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (l *Limited) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return l.next.Generate(ctx, systemPrompt, userPrompt)
}
