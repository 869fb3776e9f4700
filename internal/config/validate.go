package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnconfigured means a required setting is missing. The bot cannot
// start without it.
var ErrUnconfigured = errors.New("bot is not configured")

const DefaultPort = 8080

// Validate checks required settings, durations and bounds.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: no config", ErrUnconfigured)
	}
	var missing []string
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, "telegram.token (TELEGRAM_BOT_TOKEN)")
	}
	if cfg.Telegram.GroupChatID == 0 {
		missing = append(missing, "telegram.group_chat_id (GROUP_CHAT_ID)")
	}
	if cfg.Telegram.AdminUserID == 0 {
		missing = append(missing, "telegram.admin_user_id (ADMIN_ID)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrUnconfigured, strings.Join(missing, ", "))
	}

	if err := validateDurations(cfg); err != nil {
		return err
	}
	// Zero picks the default pool (max(NumCPU, 2) workers, 256 queued).
	// One worker is enough: /broadcast runs outside the pool.
	if cfg.Router.Workers < 0 {
		return fmt.Errorf("router.workers must be >= 0")
	}
	if cfg.Router.QueueSize < 0 {
		return fmt.Errorf("router.queue_size must be >= 0")
	}
	if p := cfg.Health.Port; p < 0 || p > 65535 {
		return fmt.Errorf("health.port out of range: %d", p)
	}
	if cfg.Logging.Telegram.Enabled && cfg.Logging.Telegram.ChatID == 0 {
		return fmt.Errorf("logging.telegram.chat_id is required when logging.telegram.enabled is true")
	}
	return nil
}

// HealthAddr is health.addr, or 0.0.0.0 on health.port (default 8080).
func (c *Config) HealthAddr() string {
	if a := strings.TrimSpace(c.Health.Addr); a != "" {
		return a
	}
	port := c.Health.Port
	if port == 0 {
		port = DefaultPort
	}
	return "0.0.0.0:" + strconv.Itoa(port)
}

// SweepSchedule returns the configured schedule; nil means the default.
func (c *Config) SweepSchedule(def string) string {
	if c.Gate.SweepSchedule == nil {
		return def
	}
	return strings.TrimSpace(*c.Gate.SweepSchedule)
}
