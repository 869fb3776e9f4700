package config

// Config is the on-disk configuration, overlaid by environment variables.
// All durations are Go duration strings (e.g. "50ms", "5m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Gate      GateConfig      `json:"gate"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Router    RouterConfig    `json:"router"`
	Storage   StorageConfig   `json:"storage"`
	Health    HealthConfig    `json:"health"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	Token       string `json:"token" env:"TELEGRAM_BOT_TOKEN"`
	GroupChatID int64  `json:"group_chat_id" env:"GROUP_CHAT_ID"`
	AdminUserID int64  `json:"admin_user_id" env:"ADMIN_ID"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// GateConfig controls challenge issuance and the success path.
//
// SweepSchedule is a cron spec (seconds optional, descriptors allowed).
// Omitted means "@every 10m"; an explicit empty string disables the sweep.
type GateConfig struct {
	TTL              string     `json:"ttl,omitempty"`
	ApproveOnSuccess bool       `json:"approve_on_success,omitempty"`
	WelcomePhotoURL  string     `json:"welcome_photo_url,omitempty" env:"WELCOME_PHOTO_URL"`
	SweepSchedule    *string    `json:"sweep_schedule,omitempty"`
	SweepGrace       string     `json:"sweep_grace,omitempty"`
	Texts            *GateTexts `json:"texts,omitempty"`
}

// GateTexts overrides user-facing strings. Empty fields keep the defaults.
type GateTexts struct {
	ChallengeTitle  string `json:"challenge_title,omitempty"`
	ChallengeFooter string `json:"challenge_footer,omitempty"`
	ButtonError     string `json:"button_error,omitempty"`
	NotYours        string `json:"not_yours,omitempty"`
	Expired         string `json:"expired,omitempty"`
	Wrong           string `json:"wrong,omitempty"`
	Done            string `json:"done,omitempty"`
	Welcome         string `json:"welcome,omitempty"`
	Failure         string `json:"failure,omitempty"`
}

type BroadcastConfig struct {
	// Interval is the minimum spacing between two member sends.
	Interval string `json:"interval,omitempty"`
}

// RouterConfig sizes the update worker pool. Zero means the default; any
// positive size works because long commands do not occupy a worker.
type RouterConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

// StorageConfig selects the member store.
//
// Example:
//
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/gate" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty" env:"STORAGE_DRIVER"`
	Path        string `json:"path,omitempty" env:"DB_FILE"`
	DSN         string `json:"dsn,omitempty" env:"DATABASE_URL"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HealthConfig controls the liveness listener. Port is used when Addr is
// empty.
type HealthConfig struct {
	Addr          string `json:"addr,omitempty"`
	Port          int    `json:"port,omitempty" env:"PORT"`
	Pprof         bool   `json:"pprof,omitempty"`
	PprofPrefix   string `json:"pprof_prefix,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level,omitempty" env:"LOG_LEVEL"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
