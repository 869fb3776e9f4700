package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validJSON = `{
  "telegram": {"token": "123:abc", "group_chat_id": -100200, "admin_user_id": 42},
  "gate": {"ttl": "2m", "sweep_schedule": ""},
  "broadcast": {"interval": "10ms"},
  "logging": {"level": "debug", "console": false}
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func newManager(path string, env map[string]string) *Manager {
	m := NewManager(path)
	if env == nil {
		env = map[string]string{}
	}
	m.SetEnvironment(env)
	return m
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	m := newManager(writeFile(t, "config.json", validJSON), nil)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.AdminUserID != 42 || cfg.Telegram.GroupChatID != -100200 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Gate.TTL != "2m" || cfg.Broadcast.Interval != "10ms" {
		t.Fatalf("gate/broadcast = %+v / %+v", cfg.Gate, cfg.Broadcast)
	}
	if got := cfg.SweepSchedule("@every 10m"); got != "" {
		t.Fatalf("explicit empty sweep_schedule = %q, want disabled", got)
	}
	if m.Get() != cfg {
		t.Fatalf("Get() did not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	body := `
telegram:
  token: "123:abc"
  group_chat_id: -100200
  admin_user_id: 42
gate:
  approve_on_success: true
  texts:
    done: "ok!"
health:
  port: 9090
`
	cfg, err := newManager(writeFile(t, "config.yaml", body), nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Gate.ApproveOnSuccess || cfg.Gate.Texts == nil || cfg.Gate.Texts.Done != "ok!" {
		t.Fatalf("gate = %+v", cfg.Gate)
	}
	if got := cfg.HealthAddr(); got != "0.0.0.0:9090" {
		t.Fatalf("HealthAddr() = %q", got)
	}
	if got := cfg.SweepSchedule("@every 10m"); got != "@every 10m" {
		t.Fatalf("omitted sweep_schedule = %q, want default", got)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	t.Parallel()
	body := strings.Replace(validJSON, `"broadcast"`, `"typo": 1, "broadcast"`, 1)
	if _, err := newManager(writeFile(t, "config.json", body), nil).Load(); err == nil {
		t.Fatal("Load accepted an unknown field")
	}
}

func TestTrailingDataRejected(t *testing.T) {
	t.Parallel()
	if _, err := newManager(writeFile(t, "config.json", validJSON+"{}"), nil).Load(); err == nil {
		t.Fatal("Load accepted trailing data")
	}
}

func TestEnvOnly(t *testing.T) {
	t.Parallel()
	m := newManager("", map[string]string{
		"TELEGRAM_BOT_TOKEN": "1:x",
		"GROUP_CHAT_ID":      "-1001",
		"ADMIN_ID":           "7",
		"PORT":               "8181",
		"DB_FILE":            "members.db",
		"LOG_LEVEL":          "warn",
	})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "1:x" || cfg.Telegram.GroupChatID != -1001 || cfg.Telegram.AdminUserID != 7 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
	if cfg.HealthAddr() != "0.0.0.0:8181" || cfg.Storage.Path != "members.db" || cfg.Logging.Level != "warn" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Logging.Console {
		t.Fatal("console logging should default to on")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Parallel()
	m := newManager(writeFile(t, "config.json", validJSON), map[string]string{"ADMIN_ID": "99"})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.AdminUserID != 99 {
		t.Fatalf("admin = %d, want env value 99", cfg.Telegram.AdminUserID)
	}
	if cfg.Telegram.GroupChatID != -100200 {
		t.Fatalf("unset env var overwrote the file value")
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Parallel()
	m := newManager(writeFile(t, "config.json", validJSON), map[string]string{"GROUP_CHAT_ID": "not-a-number"})
	if _, err := m.Load(); err == nil {
		t.Fatal("Load accepted a malformed GROUP_CHAT_ID")
	}
}

func TestValidateUnconfigured(t *testing.T) {
	t.Parallel()
	_, err := newManager("", nil).Load()
	if !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("Load() error = %v, want ErrUnconfigured", err)
	}
	for _, want := range []string{"TELEGRAM_BOT_TOKEN", "GROUP_CHAT_ID", "ADMIN_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not name %s", err, want)
		}
	}
}

func TestValidateBounds(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		c := Default()
		c.Telegram = TelegramConfig{Token: "t", GroupChatID: -1, AdminUserID: 1}
		return c
	}
	for _, tc := range []struct {
		name string
		mut  func(c *Config)
	}{
		{"bad ttl", func(c *Config) { c.Gate.TTL = "soon" }},
		{"negative interval", func(c *Config) { c.Broadcast.Interval = "-1s" }},
		{"negative workers", func(c *Config) { c.Router.Workers = -1 }},
		{"negative queue", func(c *Config) { c.Router.QueueSize = -1 }},
		{"poll timeout below a second", func(c *Config) { c.Telegram.PollTimeout = "10ms" }},
		{"port range", func(c *Config) { c.Health.Port = 70000 }},
		{"telegram sink without chat", func(c *Config) { c.Logging.Telegram.Enabled = true }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mut(c)
			if err := Validate(c); err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
		})
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("Validate(base) = %v", err)
	}
	single := base()
	single.Router.Workers, single.Router.QueueSize = 1, 1
	if err := Validate(single); err != nil {
		t.Fatalf("Validate(one worker) = %v", err)
	}
}

func TestDurationByPath(t *testing.T) {
	t.Parallel()
	c := Default()
	c.Gate.TTL = "2m"
	c.Broadcast.Interval = "0s"

	for _, tc := range []struct {
		path string
		want time.Duration
	}{
		{"gate.ttl", 2 * time.Minute},
		{"broadcast.interval", 50 * time.Millisecond},
		{"gate.sweep_grace", time.Hour},
		{"telegram.poll_timeout", 10 * time.Second},
		{"router.handler_timeout", 30 * time.Second},
		{"storage.busy_timeout", 0},
	} {
		got, err := c.Duration(tc.path)
		if err != nil || got != tc.want {
			t.Fatalf("Duration(%q) = %v, %v, want %v", tc.path, got, err, tc.want)
		}
	}
	if _, err := c.Duration("gate.nope"); err == nil {
		t.Fatal("unknown path accepted")
	}

	c.Gate.TTL = "abc"
	if _, err := c.Duration("gate.ttl"); err == nil || !strings.Contains(err.Error(), "gate.ttl") {
		t.Fatalf("bad ttl error = %v", err)
	}
	c.Gate.TTL = "500ms"
	if _, err := c.Duration("gate.ttl"); err == nil {
		t.Fatal("ttl below the floor accepted")
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	a := Default()
	a.Telegram = TelegramConfig{Token: "t1", GroupChatID: -1, AdminUserID: 1}
	b := *a
	if ch := Diff(a, &b); !ch.Empty() {
		t.Fatalf("Diff of equal configs = %+v", ch.Sections)
	}

	b.Telegram.AdminUserID = 2
	b.Telegram.Token = "t2"
	b.Broadcast.Interval = "1s"
	ch := Diff(a, &b)
	if strings.Join(ch.Sections, ",") != "broadcast,telegram" {
		t.Fatalf("Sections = %v", ch.Sections)
	}
	if len(ch.RestartRequired) != 1 || ch.RestartRequired[0] != "telegram.token" {
		t.Fatalf("RestartRequired = %v", ch.RestartRequired)
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	path := writeFile(t, "config.json", validJSON)
	m := newManager(path, nil)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	// Let the watcher register the directory.
	time.Sleep(100 * time.Millisecond)

	// An invalid file is rejected and not published.
	if err := os.WriteFile(path, []byte(`{"telegram": {}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	select {
	case c := <-sub:
		t.Fatalf("invalid config published: %+v", c.Telegram)
	default:
	}

	updated := strings.Replace(validJSON, `"admin_user_id": 42`, `"admin_user_id": 43`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-sub:
		if c.Telegram.AdminUserID != 43 {
			t.Fatalf("published admin = %d, want 43", c.Telegram.AdminUserID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reload not published")
	}
	if m.Get().Telegram.AdminUserID != 43 {
		t.Fatal("reload not committed")
	}
}

func TestWatchWithoutFileWaits(t *testing.T) {
	t.Parallel()
	m := newManager("", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
