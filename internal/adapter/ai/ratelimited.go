package ai

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

// Limiter is satisfied by ratelimiter.RedisLuaLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimitedAssistant takes a token from a shared bucket before every call to
// the wrapped assistant. A denied call surfaces as a 429 UpstreamError so that
// the retrying caller applies its rate-limit wait.
type RateLimitedAssistant struct {
	next    domain.Assistant
	limiter Limiter
	key     string
}

var _ domain.Assistant = (*RateLimitedAssistant)(nil)

// NewRateLimitedAssistant wraps next. A nil limiter returns next unchanged.
func NewRateLimitedAssistant(next domain.Assistant, limiter Limiter, key string) domain.Assistant {
	if limiter == nil {
		return next
	}
	return &RateLimitedAssistant{next: next, limiter: limiter, key: key}
}

func (a *RateLimitedAssistant) take(ctx context.Context) error {
	allowed, retryAfter, err := a.limiter.Allow(ctx, a.key, 1)
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("rate limiter unavailable, allowing call",
			slog.String("bucket", a.key), slog.Any("error", err))
		return nil
	}
	if allowed {
		return nil
	}
	return &domain.UpstreamError{
		Provider:   "limiter:" + a.key,
		StatusCode: http.StatusTooManyRequests,
		Body:       "local token bucket exhausted",
		RetryAfter: retryAfter,
	}
}

func (a *RateLimitedAssistant) RunTask(ctx context.Context, prompt, taskContext string, target domain.Transcript) (string, error) {
	if err := a.take(ctx); err != nil {
		return "", err
	}
	return a.next.RunTask(ctx, prompt, taskContext, target)
}

func (a *RateLimitedAssistant) Summarize(ctx context.Context, taskContext, answerFormat string, target domain.Transcript) (string, error) {
	if err := a.take(ctx); err != nil {
		return "", err
	}
	return a.next.Summarize(ctx, taskContext, answerFormat, target)
}

func (a *RateLimitedAssistant) AnswerQuestions(ctx context.Context, questions []domain.FixedQuestion, target domain.Transcript) ([]domain.QAPair, error) {
	if err := a.take(ctx); err != nil {
		return nil, err
	}
	return a.next.AnswerQuestions(ctx, questions, target)
}
