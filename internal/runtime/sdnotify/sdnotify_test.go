package sdnotify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gatebot/pkg/logx"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) count(state string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s == state {
			n++
		}
	}
	return n
}

func TestReadyAndStopping(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify

	n.Ready()
	n.Status("polling")
	n.Stopping()

	want := []string{"READY=1", "STATUS=polling", "STOPPING=1"}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states = %v, want %v", rec.states, want)
		}
	}
}

func TestWatchdogDisabledReturns(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify
	n.watchdog = func() (time.Duration, error) { return 0, nil }

	done := make(chan struct{})
	go func() {
		n.Watchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog blocked while disabled")
	}
}

func TestWatchdogInvalidReturns(t *testing.T) {
	t.Parallel()
	n := New(logx.Nop())
	n.watchdog = func() (time.Duration, error) { return 0, errors.New("bad WATCHDOG_USEC") }
	n.Watchdog(context.Background())
}

func TestWatchdogPings(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := New(logx.Nop())
	n.notify = rec.notify
	n.watchdog = func() (time.Duration, error) { return 20 * time.Millisecond, nil }

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	n.Watchdog(ctx)

	if got := rec.count("WATCHDOG=1"); got < 3 {
		t.Fatalf("watchdog pings = %d, want at least 3", got)
	}
}
