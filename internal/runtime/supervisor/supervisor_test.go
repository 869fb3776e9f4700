package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("boom", func(context.Context) { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Wait() = %v, want error naming the goroutine", err)
	}
	if s.Context().Err() == nil {
		t.Fatalf("context not cancelled after panic")
	}
}

func TestGoCanceledIsClean(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v, want nil", err)
	}
	if got := s.Active(); got != 0 {
		t.Fatalf("Active() = %d, want 0", got)
	}
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := New(context.Background())
	s.GoRestart("flaky", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond), WithPublishFirstError(true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if err == nil || !strings.Contains(err.Error(), "transient") {
		t.Fatalf("Wait() = %v, want published first error", err)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := New(context.Background())
	s.GoRestart("broken", func(context.Context) error {
		calls.Add(1)
		return errors.New("nope")
	}, WithRestartBackoff(time.Millisecond, time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatalf("Wait() = nil, want error")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3 (initial run + 2 restarts)", got)
	}
}
