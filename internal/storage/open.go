package storage

import (
	"context"
	"errors"
	"strings"

	"sharebot/internal/vault"
	"sharebot/pkg/logx"
)

// Open initializes the configured store. An empty driver selects sqlite.
func Open(ctx context.Context, cfg Config, log logx.Logger) (vault.Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "sqlite3":
		return openSQLite(ctx, cfg, log)
	case DriverPostgres, "postgresql", "pg":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
