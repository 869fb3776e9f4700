package gate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gatebot/internal/eventbus"
	"gatebot/pkg/logx"
)

const DefaultSweepSchedule = "@every 10m"

// SweepConfig controls the periodic removal of abandoned challenges.
// An empty Schedule disables the sweep; expiry is then lazy only.
type SweepConfig struct {
	Schedule string
	Grace    time.Duration
}

// Sweeper removes challenges that expired more than Grace ago. The grace
// keeps a late answer on the Expired path instead of Unauthorized.
type Sweeper struct {
	pending *PendingSet
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time
	parser  cron.Parser

	mu     sync.Mutex
	cfg    SweepConfig
	c      *cron.Cron
	active bool // between Run start and ctx done
}

func NewSweeper(cfg SweepConfig, pending *PendingSet, bus eventbus.Bus, log logx.Logger) *Sweeper {
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{
		pending: pending,
		bus:     bus,
		log:     log.With(logx.String("comp", "sweeper")),
		now:     time.Now,
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		cfg:     cfg,
	}
}

// Validate reports whether schedule parses. Empty is valid.
func (s *Sweeper) Validate(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return nil
	}
	if _, err := s.parser.Parse(schedule); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// Run starts the cron and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.mu.Lock()
	c, err := s.newCronLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.active = true
	s.c = c
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	s.active = false
	c = s.c
	s.c = nil
	s.mu.Unlock()
	stopCron(c)
	return nil
}

// Apply swaps the schedule and grace. A running cron is rebuilt only when
// the schedule changed.
func (s *Sweeper) Apply(cfg SweepConfig) error {
	if err := s.Validate(cfg.Schedule); err != nil {
		return err
	}
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	if !s.active || strings.TrimSpace(old.Schedule) == strings.TrimSpace(cfg.Schedule) {
		s.mu.Unlock()
		return nil
	}
	// The swap happens under mu so Run's shutdown always sees the cron
	// installed here.
	prev := s.c
	c, err := s.newCronLocked()
	if err == nil {
		s.c = c
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	stopCron(prev)
	return nil
}

// newCronLocked builds and starts a cron for s.cfg. It returns nil when the
// sweep is disabled.
func (s *Sweeper) newCronLocked() (*cron.Cron, error) {
	spec := strings.TrimSpace(s.cfg.Schedule)
	if spec == "" {
		s.log.Info("pending sweep disabled")
		return nil, nil
	}
	c := cron.New(cron.WithParser(s.parser))
	if _, err := c.AddFunc(spec, func() { s.SweepOnce() }); err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	c.Start()
	s.log.Info("pending sweep started", logx.String("schedule", spec), logx.Duration("grace", s.graceLocked()))
	return c, nil
}

// stopCron waits for a running sweep; it must be called without mu held.
func stopCron(c *cron.Cron) {
	if c != nil {
		<-c.Stop().Done()
	}
}

// running reports whether a cron is installed.
func (s *Sweeper) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

func (s *Sweeper) graceLocked() time.Duration {
	if s.cfg.Grace < 0 {
		return 0
	}
	return s.cfg.Grace
}

// SweepOnce removes challenges that expired more than the grace ago.
func (s *Sweeper) SweepOnce() int {
	s.mu.Lock()
	grace := s.graceLocked()
	s.mu.Unlock()

	n := s.pending.Sweep(s.now().Add(-grace))
	if n > 0 {
		s.bus.Publish(eventbus.Event{Type: eventbus.ChallengesSwept, Data: n})
		s.log.Info("abandoned challenges swept", logx.Int("removed", n), logx.Int("left", s.pending.Len()))
	}
	return n
}
