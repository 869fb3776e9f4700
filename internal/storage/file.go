package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gatebot/pkg/logx"
)

// fileStore keeps members in memory and persists them as:
//   - <prefix>.members.snapshot.json  (full map, rewritten on compaction)
//   - <prefix>.members.journal.jsonl  (one upsert per line)
//   - <prefix>.audit.jsonl            (append-only)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	members      map[int64]memberRecord
	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int

	audit *os.File
}

type memberRecord struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"full_name"`
	Handle      string    `json:"username,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

type auditRecord struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id"`
	ThreadID      int       `json:"thread_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok"`
	Fail          int       `json:"fail"`
	Error         string    `json:"err,omitempty"`
	TookMS        int64     `json:"took_ms"`
	Meta          string    `json:"meta,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".members.snapshot.json"
	journalPath := prefix + ".members.journal.jsonl"

	members := map[int64]memberRecord{}
	if err := loadSnapshot(snapPath, members); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("member snapshot unreadable", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, members); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("member journal replay stopped early", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	log.Info("member store opened", logx.String("prefix", prefix), logx.Int("members", len(members)))
	return &fileStore{
		log:          log,
		members:      members,
		snapshotPath: snapPath,
		journal:      jf,
		compactEvery: 1000,
		audit:        af,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.journal != nil {
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) UpsertMember(_ context.Context, m Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	rec := memberRecord{
		UserID:      m.UserID,
		DisplayName: m.DisplayName,
		Handle:      m.Handle,
		JoinedAt:    m.JoinedAt.UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(rec); err != nil {
		return err
	}
	s.members[rec.UserID] = rec

	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("member journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) CountMembers(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, ErrClosed
	}
	return len(s.members), nil
}

func (s *fileStore) ListMemberIDs(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return sortedIDs(s.members), nil
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.audit).Encode(auditRecord{
		At:            e.At.UTC(),
		ActorID:       e.ActorID,
		ActorUsername: e.ActorUsername,
		ChatID:        e.ChatID,
		ThreadID:      e.ThreadID,
		Action:        e.Action,
		Target:        e.Target,
		OK:            e.OK,
		Fail:          e.Fail,
		Error:         e.Error,
		TookMS:        e.TookMS,
		Meta:          e.MetaJSON,
	})
}

// compactLocked writes the full map to the snapshot and truncates the journal.
func (s *fileStore) compactLocked() error {
	recs := make([]memberRecord, 0, len(s.members))
	for _, id := range sortedIDs(s.members) {
		recs = append(recs, s.members[id])
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(recs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[int64]memberRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var recs []memberRecord
	if err := json.NewDecoder(f).Decode(&recs); err != nil {
		return err
	}
	for _, r := range recs {
		out[r.UserID] = r
	}
	return nil
}

// replayJournal applies journal lines in order. A torn last line is skipped.
func replayJournal(path string, out map[int64]memberRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r memberRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.UserID == 0 {
			continue
		}
		out[r.UserID] = r
	}
	return sc.Err()
}
