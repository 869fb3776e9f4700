package gate

import (
	"sync"
	"time"

	"gatebot/internal/captcha"
)

// Pending is one unresolved challenge. It is never mutated after Issue.
type Pending struct {
	UserID    int64
	Answer    int
	ExpiresAt time.Time
	ChatID    int64 // group the user asked to join
}

// PendingSet owns every in-flight challenge of the process.
//
// All operations hold one mutex, so the lookup, identity check, TTL check and
// delete of Resolve happen as one step.
type PendingSet struct {
	mu sync.Mutex
	m  map[int64]Pending
}

func NewPendingSet() *PendingSet {
	return &PendingSet{m: map[int64]Pending{}}
}

// Issue stores p, replacing any live challenge for the same user.
func (s *PendingSet) Issue(p Pending) (replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, replaced = s.m[p.UserID]
	s.m[p.UserID] = p
	return replaced
}

// Resolve settles the challenge named by pl on behalf of actorID.
//
// Unauthorized leaves the set untouched. Every other outcome removes the
// record, so a challenge resolves at most once.
func (s *PendingSet) Resolve(actorID int64, pl captcha.Payload, now time.Time) (Pending, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[pl.UserID]
	if !ok || actorID != pl.UserID {
		return Pending{}, OutcomeUnauthorized
	}
	delete(s.m, pl.UserID)

	switch {
	case now.After(p.ExpiresAt):
		return p, OutcomeExpired
	case pl.Value == p.Answer:
		return p, OutcomeVerified
	default:
		return p, OutcomeWrong
	}
}

// Sweep removes records that expired before cutoff and returns how many.
func (s *PendingSet) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.m {
		if p.ExpiresAt.Before(cutoff) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *PendingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
