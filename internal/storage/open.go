package storage

import (
	"context"
	"errors"
	"strings"

	"gatebot/pkg/logx"
)

// Store is the persistence API used by the gate, the dispatcher and the router.
type Store interface {
	// UpsertMember inserts m or overwrites the existing row with the same UserID.
	UpsertMember(ctx context.Context, m Member) error
	CountMembers(ctx context.Context) (int, error)
	// ListMemberIDs returns a snapshot of every member id, ascending.
	ListMemberIDs(ctx context.Context) ([]int64, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store. An empty driver means sqlite.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(cfg, log)
	case "file":
		return openFile(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// splitStatements breaks a migration script on ';'. Scripts must not contain
// semicolons inside literals.
func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func migrate(ctx context.Context, exec func(ctx context.Context, q string) error, script string) error {
	for _, stmt := range splitStatements(script) {
		if err := exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
