package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"RegIngest/internal/ports"
)

// Open returns the store for the configured driver: postgres, sqlite or memory.
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (ports.Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "":
		return OpenPostgres(ctx, dsn, log)
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, dsn, log)
	case "memory":
		return NewMemoryStore(log), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
