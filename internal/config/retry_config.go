package config

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

// GetRetryPolicy returns the retry policy for remote LLM calls.
// In test environments the waits shrink so that suites stay fast.
func (c Config) GetRetryPolicy() domain.RetryPolicy {
	p := domain.RetryPolicy{
		MaxAttempts:   c.RetryMaxAttempts,
		Interval:      c.RetryInterval,
		RateLimitWait: c.RetryRateLimitWait,
	}
	if c.IsTest() {
		p.Interval = 5 * time.Millisecond
		p.RateLimitWait = 20 * time.Millisecond
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return p
}

// GetPollBackoff returns the backoff used while waiting for a transcript to finish.
func (c Config) GetPollBackoff() backoff.BackOff {
	interval, timeout := c.TranscriptPollInterval, c.TranscriptPollTimeout
	if c.IsTest() {
		interval, timeout = 10*time.Millisecond, 2*time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = timeout
	return b
}
