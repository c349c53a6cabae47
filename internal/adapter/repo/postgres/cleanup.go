package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner removes stored uploads older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// CleanupService handles data retention for sessions and their uploads.
type CleanupService struct {
	Pool          PgxPool
	Uploads       Pruner
	RetentionDays int
	now           func() time.Time
}

// NewCleanupService creates a new cleanup service. uploads may be nil.
func NewCleanupService(pool PgxPool, uploads Pruner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &CleanupService{Pool: pool, Uploads: uploads, RetentionDays: retentionDays, now: time.Now}
}

// CleanupOldData removes terminal sessions and uploads older than the retention period.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := s.now().UTC().AddDate(0, 0, -s.RetentionDays)

	tag, err := s.Pool.Exec(ctx, `DELETE FROM sessions WHERE created_at < $1 AND status IN ($2,$3)`,
		cutoff, "completed", "failed")
	if err != nil {
		return fmt.Errorf("op=cleanup.sessions: %w", err)
	}

	var pruned int
	if s.Uploads != nil {
		pruned, err = s.Uploads.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("op=cleanup.uploads: %w", err)
		}
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_sessions", tag.RowsAffected()),
		slog.Int("deleted_uploads", pruned),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs CleanupOldData immediately and then on every tick until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
