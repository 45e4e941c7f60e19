package grader

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/victornm/questiontime/internal/domain"
)

// Limited throttles calls to the wrapped grader. Waiting for a token honours
// the caller's context; a call that cannot be admitted in time is reported as
// ErrUnavailable.
type Limited struct {
	next    Grader
	limiter *rate.Limiter
}

// NewLimited allows rps calls per second with the given burst. rps <= 0 disables limiting.
func NewLimited(next Grader, rps float64, burst int) Grader {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}

	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (l *Limited) Grade(ctx context.Context, q domain.Question, answer string) (bool, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("%w: rate limited: %v", ErrUnavailable, err)
	}

	return l.next.Grade(ctx, q, answer)
}
