package storage

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	members map[int64]memberRecord
	audit   []AuditEntry
	closed  bool
}

func NewMemory() *Memory {
	return &Memory{members: map[int64]memberRecord{}}
}

func (m *Memory) UpsertMember(_ context.Context, mem Member) error {
	if mem.JoinedAt.IsZero() {
		mem.JoinedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.members[mem.UserID] = memberRecord{
		UserID:      mem.UserID,
		DisplayName: mem.DisplayName,
		Handle:      mem.Handle,
		JoinedAt:    mem.JoinedAt,
	}
	return nil
}

func (m *Memory) CountMembers(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return len(m.members), nil
}

func (m *Memory) ListMemberIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return sortedIDs(m.members), nil
}

// Member returns the stored row for id.
func (m *Memory) Member(id int64) (Member, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.members[id]
	if !ok {
		return Member{}, false
	}
	return Member{UserID: r.UserID, DisplayName: r.DisplayName, Handle: r.Handle, JoinedAt: r.JoinedAt}, true
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.audit = append(m.audit, e)
	return nil
}

// Audit returns a copy of the recorded audit entries.
func (m *Memory) Audit() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.audit)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func sortedIDs(m map[int64]memberRecord) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
