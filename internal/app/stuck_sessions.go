package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
)

// StuckSessionSweeper fails sessions that stayed in transcribing or analyzing
// longer than maxAge, typically because a worker died mid-run.
type StuckSessionSweeper struct {
	sessions domain.SessionRepository
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewStuckSessionSweeper(sessions domain.SessionRepository, maxAge, interval time.Duration) *StuckSessionSweeper {
	if sessions == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StuckSessionSweeper{sessions: sessions, maxAge: maxAge, interval: interval, now: time.Now}
}

func (s *StuckSessionSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck session sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

const sweepPageSize = 100

// sweepOnce returns how many sessions were marked failed.
func (s *StuckSessionSweeper) sweepOnce(ctx context.Context) int {
	tracer := otel.Tracer("sessions.sweeper")
	ctx, span := tracer.Start(ctx, "StuckSessionSweeper.sweepOnce")
	defer span.End()

	cutoff := s.now().Add(-s.maxAge)
	span.SetAttributes(attribute.Float64("sessions.max_age_seconds", s.maxAge.Seconds()))

	marked := 0
	for {
		stuck, err := s.sessions.ListStuck(ctx, cutoff, sweepPageSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck session sweep failed to list sessions", slog.Any("error", err))
			break
		}
		progressed := 0
		for _, sess := range stuck {
			msg := fmt.Sprintf("session stayed %s longer than %v; marked failed by sweeper", sess.Status, s.maxAge)
			if err := s.sessions.UpdateStatus(ctx, sess.ID, domain.SessionFailed, &msg); err != nil {
				span.RecordError(err)
				slog.Error("stuck session sweep failed to update session",
					slog.String("session_id", sess.ID), slog.Any("error", err))
				continue
			}
			observability.CountSession(string(domain.SessionFailed))
			progressed++
		}
		marked += progressed
		// A page that could not be updated would be listed again; stop instead of spinning.
		if len(stuck) < sweepPageSize || progressed == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("sessions.marked_failed", marked))
	if marked > 0 {
		slog.Warn("stuck sessions marked failed", slog.Int("count", marked))
	}
	return marked
}
