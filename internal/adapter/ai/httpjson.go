package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

const maxErrorBody = 512

// NewHTTPClient returns a traced HTTP client for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// DoJSON sends req once and decodes a 2xx JSON body into out. Non-2xx
// answers become *domain.UpstreamError; transport failures wrap
// domain.ErrUpstreamTimeout. Retrying is left to the caller.
func DoJSON(hc *http.Client, req *http.Request, provider, op string, out any) error {
	ctx := req.Context()
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("provider", provider), slog.String("op", op))

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		observability.ObserveAIRequest(provider, op, err, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return err
		}
		lg.Warn("ai provider transport error", slog.Any("error", err))
		return fmt.Errorf("op=%s.%s: %w: %v", provider, op, domain.ErrUpstreamTimeout, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ue := &domain.UpstreamError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       snippet(body),
			RetryAfter: domain.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
		observability.ObserveAIRequest(provider, op, ue, time.Since(start))
		if resp.StatusCode == http.StatusTooManyRequests {
			lg.Warn("ai provider rate limited", slog.Int("status", resp.StatusCode), slog.Duration("retry_after", ue.RetryAfter))
		} else {
			lg.Warn("ai provider non-2xx", slog.Int("status", resp.StatusCode), slog.String("body", ue.Body))
		}
		return fmt.Errorf("op=%s.%s: %w", provider, op, ue)
	}
	observability.ObserveAIRequest(provider, op, nil, time.Since(start))
	if readErr != nil {
		return fmt.Errorf("op=%s.%s: read body: %w: %v", provider, op, domain.ErrUpstreamTimeout, readErr)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		lg.Error("ai provider decode error", slog.Any("error", err))
		return fmt.Errorf("op=%s.%s: decode: %w: %v", provider, op, domain.ErrSchemaInvalid, err)
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(b)
}
