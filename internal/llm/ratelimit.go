package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// defaultRequestsPerMinute matches the Groq free tier.
const defaultRequestsPerMinute = 30

// rateLimiter spaces inference requests evenly across a minute, allowing a
// burst of one minute's quota.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = defaultRequestsPerMinute
	}
	every := rate.Every(time.Minute / time.Duration(requestsPerMinute))
	return &rateLimiter{limiter: rate.NewLimiter(every, requestsPerMinute)}
}

// wait blocks until a request may proceed or ctx is done.
func (rl *rateLimiter) wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("rate limiter canceled: %w", ctxErr)
		}
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
