package ai

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

// Caller repeats remote calls under a fixed-interval policy. After a
// rate-limited failure it waits RateLimitWait instead of Interval.
type Caller struct {
	policy domain.RetryPolicy
}

// NewCaller returns a Caller for the given policy.
func NewCaller(policy domain.RetryPolicy) *Caller {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Caller{policy: policy}
}

// Policy returns the policy the caller was built with.
func (c *Caller) Policy() domain.RetryPolicy { return c.policy }

// maxRetryAfter bounds a provider-supplied Retry-After.
const maxRetryAfter = 5 * time.Minute

// rateAwareBackOff is a constant backoff whose next wait depends on the last
// failure. A rate-limited failure waits the longer of rateLimit and the
// error's RetryAfter.
type rateAwareBackOff struct {
	mu          sync.Mutex
	interval    time.Duration
	rateLimit   time.Duration
	rateLimited bool
	retryAfter  time.Duration
}

func (b *rateAwareBackOff) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rateLimited = domain.IsRateLimited(err)
	b.retryAfter = 0
	var ue *domain.UpstreamError
	if b.rateLimited && errors.As(err, &ue) {
		b.retryAfter = min(ue.RetryAfter, maxRetryAfter)
	}
}

func (b *rateAwareBackOff) NextBackOff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rateLimited {
		return max(b.rateLimit, b.retryAfter)
	}
	return b.interval
}

func (b *rateAwareBackOff) Reset() {
	b.mu.Lock()
	b.rateLimited = false
	b.retryAfter = 0
	b.mu.Unlock()
}

// Call runs fn until it succeeds or the attempt budget is spent. It never
// returns an error: on exhaustion, a permanent failure or context
// cancellation it returns def with ok=false.
//
// fn signals "try again" by returning any error. Returning an error wrapping
// domain.ErrRetriesExhausted, or an upstream error that is not retryable,
// stops immediately.
func Call[T any](ctx context.Context, c *Caller, op string, def T, fn func(context.Context) (T, error)) (T, bool) {
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("op", op))

	bo := &rateAwareBackOff{interval: c.policy.Interval, rateLimit: c.policy.RateLimitWait}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.policy.MaxAttempts-1)), ctx)

	var (
		out      T
		attempts int
	)
	operation := func() error {
		attempts++
		v, err := fn(ctx)
		if err != nil {
			bo.observe(err)
			if domain.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		reason := retryReason(err)
		observability.RecordRetry(op, reason)
		lg.Warn("remote call failed, retrying",
			slog.Int("attempt", attempts),
			slog.Int("max_attempts", c.policy.MaxAttempts),
			slog.String("reason", reason),
			slog.Duration("wait", wait),
			slog.Any("error", err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		observability.RecordDegraded(op)
		lg.Error("remote call gave up, using default",
			slog.Int("attempts", attempts),
			slog.Any("error", err))
		return def, false
	}
	if attempts > 1 {
		lg.Info("remote call succeeded after retry", slog.Int("attempts", attempts))
	}
	return out, true
}

func retryReason(err error) string {
	switch {
	case domain.IsRateLimited(err):
		return "rate_limited"
	case errors.Is(err, domain.ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, domain.ErrSchemaInvalid):
		return "schema_invalid"
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
