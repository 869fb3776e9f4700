package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"gatebot/pkg/logx"
)

// dialect captures the differences between the SQL drivers.
type dialect struct {
	name string
	// dollar placeholders ($1, $2, ...) instead of '?'
	dollar bool
	// timeArg converts a timestamp into a driver argument.
	timeArg func(time.Time) any
}

var (
	sqliteDialect = dialect{
		name:    "sqlite",
		timeArg: func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
	}
	postgresDialect = dialect{
		name:    "postgres",
		dollar:  true,
		timeArg: func(t time.Time) any { return t.UTC() },
	}
)

// rebind rewrites '?' placeholders for the dialect.
func (d dialect) rebind(q string) string {
	if !d.dollar {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// sqlStore implements Store on database/sql for every SQL driver.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) migrate(ctx context.Context, script string) error {
	return migrate(ctx, func(ctx context.Context, q string) error {
		_, err := s.db.ExecContext(ctx, q)
		return err
	}, script)
}

func (s *sqlStore) UpsertMember(ctx context.Context, m Member) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.d.rebind(
		`INSERT INTO users(user_id, username, full_name, joined_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   username = excluded.username,
		   full_name = excluded.full_name,
		   joined_at = excluded.joined_at`),
		m.UserID, nullStr(m.Handle), m.DisplayName, s.d.timeArg(m.JoinedAt),
	)
	return err
}

func (s *sqlStore) CountMembers(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *sqlStore) ListMemberIDs(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.d.rebind(
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, thread_id, action, target, ok, fail, err, took_ms, meta)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`),
		s.d.timeArg(e.At), e.ActorID, nullStr(e.ActorUsername), e.ChatID, e.ThreadID,
		e.Action, e.Target, e.OK, e.Fail, nullStr(e.Error), e.TookMS, nullStr(e.MetaJSON),
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
