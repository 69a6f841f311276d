package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Bootstrap creates the _events table and its indexes if they are missing.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range splitStatements(s.Dialect.EventsTableSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap events table: %w", err)
		}
	}
	slog.InfoContext(ctx, "Event log ready", "driver", s.Dialect.Name())
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, stmt := range strings.Split(ddl, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
