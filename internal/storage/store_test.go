package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"gatebot/pkg/logx"
)

func openForTest(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "users.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreContract(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"memory", "file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openForTest(t, driver)

			n, err := st.CountMembers(ctx)
			if err != nil || n != 0 {
				t.Fatalf("CountMembers() = %d, %v, want 0, nil", n, err)
			}

			joined := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for _, m := range []Member{
				{UserID: 30, DisplayName: "Cleo", JoinedAt: joined},
				{UserID: 10, DisplayName: "Ann", Handle: "ann", JoinedAt: joined},
				{UserID: 10, DisplayName: "Ann B", Handle: "annb", JoinedAt: joined.Add(time.Hour)},
			} {
				if err := st.UpsertMember(ctx, m); err != nil {
					t.Fatalf("UpsertMember(%d): %v", m.UserID, err)
				}
			}

			n, err = st.CountMembers(ctx)
			if err != nil || n != 2 {
				t.Fatalf("CountMembers() = %d, %v, want 2, nil", n, err)
			}
			ids, err := st.ListMemberIDs(ctx)
			if err != nil {
				t.Fatalf("ListMemberIDs: %v", err)
			}
			if !slices.Equal(ids, []int64{10, 30}) {
				t.Fatalf("ListMemberIDs() = %v, want [10 30]", ids)
			}

			if err := st.AppendAudit(ctx, AuditEntry{ActorID: 1, Action: "broadcast", OK: 2}); err != nil {
				t.Fatalf("AppendAudit: %v", err)
			}
		})
	}
}

func TestStoreConcurrentUpserts(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := openForTest(t, driver)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := int64(i%5 + 1)
					if err := st.UpsertMember(ctx, Member{UserID: id, DisplayName: fmt.Sprint("u", i)}); err != nil {
						t.Errorf("UpsertMember: %v", err)
					}
				}(i)
			}
			wg.Wait()

			n, err := st.CountMembers(ctx)
			if err != nil || n != 5 {
				t.Fatalf("CountMembers() = %d, %v, want 5, nil", n, err)
			}
		})
	}
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "members")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs := st.(*fileStore)
	fs.compactEvery = 2
	for id := int64(1); id <= 3; id++ {
		if err := st.UpsertMember(ctx, Member{UserID: id, DisplayName: "x"}); err != nil {
			t.Fatalf("UpsertMember: %v", err)
		}
	}
	// Close compacts; reopen must see snapshot and journal contents.
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := st.UpsertMember(ctx, Member{UserID: 9}); err != ErrClosed {
		t.Fatalf("UpsertMember after Close = %v, want ErrClosed", err)
	}

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	ids, err := st2.ListMemberIDs(ctx)
	if err != nil {
		t.Fatalf("ListMemberIDs: %v", err)
	}
	if !slices.Equal(ids, []int64{1, 2, 3}) {
		t.Fatalf("ListMemberIDs() = %v, want [1 2 3]", ids)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()

	q := "INSERT INTO t(a,b) VALUES(?,?)"
	if got := sqliteDialect.rebind(q); got != q {
		t.Fatalf("sqlite rebind = %q, want unchanged", got)
	}
	if got, want := postgresDialect.rebind(q), "INSERT INTO t(a,b) VALUES($1,$2)"; got != want {
		t.Fatalf("postgres rebind = %q, want %q", got, want)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("Open(redis) = nil error, want error")
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("Open(postgres) without DSN = nil error, want error")
	}
}

func TestSplitStatements(t *testing.T) {
	t.Parallel()

	got := splitStatements(sqliteMigrations)
	if len(got) != 3 {
		t.Fatalf("splitStatements() returned %d statements, want 3", len(got))
	}
}
