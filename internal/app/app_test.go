package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"gatebot/internal/captcha"
	"gatebot/internal/config"
	kit "gatebot/internal/transport"
	"gatebot/internal/transport/transporttest"
)

const (
	testGroup = int64(-100777)
	testAdmin = int64(4242)
)

var promptRe = regexp.MustCompile(`(\d+) \+ (\d+) = \?`)

func configJSON(admin string) string {
	return `{
  "telegram": {"token": "1:test", "group_chat_id": -100777, "admin_user_id": ` + admin + `},
  "storage": {"driver": "memory"},
  "health": {"addr": "127.0.0.1:0"},
  "broadcast": {"interval": "1ms"},
  "logging": {"level": "error", "console": true}
}`
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startApp(t *testing.T) (*App, *transporttest.Fake, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(configJSON("4242")), 0o600); err != nil {
		t.Fatal(err)
	}
	ad := transporttest.New()
	a, err := New(Options{ConfigPath: path, Environ: map[string]string{}, Adapter: ad})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a, ad, path
}

func TestNewUnconfigured(t *testing.T) {
	t.Parallel()
	_, err := New(Options{Environ: map[string]string{}, Adapter: transporttest.New()})
	if !errors.Is(err, config.ErrUnconfigured) {
		t.Fatalf("New() error = %v, want ErrUnconfigured", err)
	}
}

func TestNewRejectsBadSweepSchedule(t *testing.T) {
	t.Parallel()
	_, err := New(Options{
		Environ: map[string]string{
			"TELEGRAM_BOT_TOKEN": "1:x",
			"GROUP_CHAT_ID":      "-1",
			"ADMIN_ID":           "1",
			"STORAGE_DRIVER":     "memory",
		},
		ConfigPath: writeConfig(t, `{"gate": {"sweep_schedule": "every now and then"}}`),
		Adapter:    transporttest.New(),
	})
	if err == nil {
		t.Fatal("New accepted an invalid sweep schedule")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEndToEndAdmission(t *testing.T) {
	a, ad, _ := startApp(t)
	ctx := context.Background()

	resp, err := http.Get("http://" + a.HealthAddr() + "/")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	ad.Push(ctx, kit.Update{Kind: kit.UpdateJoinRequest, JoinRequest: &kit.JoinRequest{
		ChatID: testGroup,
		From:   kit.User{ID: 501, FirstName: "Joiner"},
	}})
	var challenge transporttest.Sent
	waitFor(t, "challenge", func() bool {
		var ok bool
		challenge, ok = ad.Last("text")
		return ok && challenge.To.ChatID == 501
	})

	m := promptRe.FindStringSubmatch(challenge.Text)
	if m == nil {
		t.Fatalf("no prompt in challenge %q", challenge.Text)
	}
	a1, _ := strconv.Atoi(m[1])
	a2, _ := strconv.Atoi(m[2])
	data := captcha.Payload{Value: a1 + a2, UserID: 501}.String()
	ad.Push(ctx, kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", From: kit.User{ID: 501}, ChatID: 501, MessageID: 1, Data: data,
	}})
	waitFor(t, "resolution", func() bool { return a.gate.Pending().Len() == 0 })
	waitFor(t, "welcome", func() bool {
		n, _ := a.store.CountMembers(ctx)
		return n == 1
	})
	if len(ad.Of("answer")) != 1 {
		t.Fatalf("callback answered %d times", len(ad.Of("answer")))
	}
}

func TestStatsAndBroadcastThroughApp(t *testing.T) {
	a, ad, _ := startApp(t)
	ctx := context.Background()

	for _, id := range []int64{11, 12} {
		ad.Push(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
			ChatID: id, From: kit.User{ID: id, FirstName: "M"}, Text: "/start",
		}})
	}
	waitFor(t, "registrations", func() bool {
		n, _ := a.store.CountMembers(ctx)
		return n == 2
	})

	ad.Push(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: testAdmin, From: kit.User{ID: testAdmin}, Text: "/broadcast hello\nworld",
	}})
	waitFor(t, "broadcast summary", func() bool {
		last, ok := ad.Last("text")
		return ok && last.To.ChatID == testAdmin && strings.Contains(last.Text, "Delivered: 2")
	})
}

func TestHotReloadChangesAdmin(t *testing.T) {
	a, ad, path := startApp(t)
	ctx := context.Background()
	// Let the watcher register the directory.
	time.Sleep(150 * time.Millisecond)

	if err := os.WriteFile(path, []byte(configJSON("5151")), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reload", func() bool { return a.cfgm.Get().Telegram.AdminUserID == 5151 })

	ad.Reset()
	ad.Push(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: 5151, From: kit.User{ID: 5151}, Text: "/stats",
	}})
	waitFor(t, "stats reply to the new admin", func() bool {
		last, ok := ad.Last("text")
		return ok && last.To.ChatID == 5151 && strings.HasPrefix(last.Text, "Members:")
	})
}

func TestStopIsIdempotent(t *testing.T) {
	a, _, _ := startApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done() not closed after Stop")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	sc, err := mapStorageConfig(cfg)
	if err != nil || sc.Driver != "sqlite" || sc.Path != defaultSQLitePath {
		t.Fatalf("default storage = %+v, %v", sc, err)
	}
	cfg.Storage.Driver = "postgres"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("postgres without dsn accepted")
	}
	cfg.Storage.Driver = "mongo"
	if _, err := mapStorageConfig(cfg); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
