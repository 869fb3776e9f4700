package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config selects and configures a driver.
type Config struct {
	Driver      string
	Path        string        // sqlite file or file-driver prefix
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Member is a verified user. UserID is the key; every other field is
// overwritten by a later upsert.
type Member struct {
	UserID      int64
	DisplayName string
	Handle      string // may be empty
	JoinedAt    time.Time
}

// AuditEntry records an operator action.
type AuditEntry struct {
	At            time.Time
	ActorID       int64
	ActorUsername string
	ChatID        int64
	ThreadID      int
	Action        string
	Target        string
	OK            int
	Fail          int
	Error         string
	TookMS        int64
	MetaJSON      string
}
