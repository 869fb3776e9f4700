package config

import (
	"fmt"
	"strings"
	"time"
)

// durationSetting is one duration-valued path of the config. Empty or zero
// selects def; a set value below floor is rejected.
type durationSetting struct {
	path  string
	raw   func(c *Config) string
	def   time.Duration
	floor time.Duration
}

// durationSettings is ordered so validation errors are reported in file order.
var durationSettings = []durationSetting{
	{path: "telegram.poll_timeout", raw: func(c *Config) string { return c.Telegram.PollTimeout }, def: 10 * time.Second, floor: time.Second},
	{path: "gate.ttl", raw: func(c *Config) string { return c.Gate.TTL }, def: 5 * time.Minute, floor: time.Second},
	{path: "gate.sweep_grace", raw: func(c *Config) string { return c.Gate.SweepGrace }, def: time.Hour},
	{path: "broadcast.interval", raw: func(c *Config) string { return c.Broadcast.Interval }, def: 50 * time.Millisecond},
	{path: "router.handler_timeout", raw: func(c *Config) string { return c.Router.HandlerTimeout }, def: 30 * time.Second},
	// zero keeps the driver default
	{path: "storage.busy_timeout", raw: func(c *Config) string { return c.Storage.BusyTimeout }},
}

func lookupDuration(path string) (durationSetting, bool) {
	for _, s := range durationSettings {
		if s.path == path {
			return s, true
		}
	}
	return durationSetting{}, false
}

// Duration returns the setting at path with its default applied.
func (c *Config) Duration(path string) (time.Duration, error) {
	s, ok := lookupDuration(path)
	if !ok {
		return 0, fmt.Errorf("unknown duration setting %q", path)
	}
	return s.resolve(c)
}

func (s durationSetting) resolve(c *Config) (time.Duration, error) {
	raw := strings.TrimSpace(s.raw(c))
	if raw == "" {
		return s.def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", s.path, raw, err)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", s.path)
	case d == 0:
		return s.def, nil
	case d < s.floor:
		return 0, fmt.Errorf("%s: %s is below the minimum of %s", s.path, d, s.floor)
	}
	return d, nil
}

func validateDurations(c *Config) error {
	for _, s := range durationSettings {
		if _, err := s.resolve(c); err != nil {
			return err
		}
	}
	return nil
}
