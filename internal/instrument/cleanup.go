package instrument

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shankh-dashboard/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays from the _events table.
func CleanupOldEvents(ctx context.Context, s *store.Store, retentionDays int) (int64, error) {
	pb := s.Dialect.NewParamBuilder()
	where := s.Dialect.IntervalDeleteExpr("created_at", pb, retentionDays)
	n, err := store.Exec(ctx, s.DB, fmt.Sprintf("DELETE FROM _events WHERE %s", where), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("event cleanup: %w", err)
	}
	return n, nil
}

// RunCleanup prunes the event log once per interval until ctx is cancelled.
func RunCleanup(ctx context.Context, s *store.Store, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := CleanupOldEvents(ctx, s, retentionDays)
		if err != nil {
			slog.ErrorContext(ctx, "Event cleanup failed", "err", err)
		} else if n > 0 {
			slog.InfoContext(ctx, "Event cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
