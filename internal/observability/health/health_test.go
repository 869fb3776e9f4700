package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"gatebot/pkg/logx"
)

func get(t *testing.T, url string, header map[string]string) (int, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func start(t *testing.T, cfg Config) *Server {
	t.Helper()
	s := New(cfg, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestLivenessRoutes(t *testing.T) {
	s := start(t, Config{Addr: "127.0.0.1:0"})
	if s.Addr() == "" {
		t.Fatal("Addr() is empty after Start")
	}

	for _, path := range []string{"/", "/healthz"} {
		code, body := get(t, "http://"+s.Addr()+path, nil)
		if code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, code)
		}
		var got map[string]string
		if err := json.Unmarshal(body, &got); err != nil || got["status"] != "ok" {
			t.Fatalf("GET %s body = %s (%v)", path, body, err)
		}
	}

	if code, _ := get(t, "http://"+s.Addr()+"/nope", nil); code != http.StatusNotFound {
		t.Fatalf("GET /nope status = %d, want 404", code)
	}
	if code, _ := get(t, "http://"+s.Addr()+"/debug/pprof/", nil); code != http.StatusNotFound {
		t.Fatalf("pprof mounted while disabled: status = %d", code)
	}
}

func TestPprofRequiresToken(t *testing.T) {
	s := start(t, Config{Addr: "127.0.0.1:0", Pprof: true, Token: "sekret"})

	if code, _ := get(t, "http://"+s.Addr()+"/debug/pprof/", nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", code)
	}
	if code, _ := get(t, "http://"+s.Addr()+"/debug/pprof/?token=sekret", nil); code != http.StatusOK {
		t.Fatalf("query token: status = %d, want 200", code)
	}
	hdr := map[string]string{"Authorization": "Bearer sekret"}
	if code, _ := get(t, "http://"+s.Addr()+"/debug/pprof/cmdline", hdr); code != http.StatusOK {
		t.Fatalf("bearer token: status = %d, want 200", code)
	}
	if code, _ := get(t, "http://"+s.Addr()+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("liveness must not need a token: status = %d", code)
	}
}

func TestStopReleasesListener(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Addr() != "" {
		t.Fatalf("Addr() = %q after Stop", s.Addr())
	}
	client := &http.Client{Timeout: 500 * time.Millisecond}
	if resp, err := client.Get("http://" + addr + "/healthz"); err == nil {
		resp.Body.Close()
		t.Fatalf("server still answering after Stop")
	}
}

func TestPprofAllowed(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name string
		cfg  Config
		want bool
	}{
		{"off", Config{Addr: "127.0.0.1:0"}, false},
		{"loopback", Config{Addr: "127.0.0.1:0", Pprof: true}, true},
		{"localhost", Config{Addr: "localhost:6060", Pprof: true}, true},
		{"public without token", Config{Addr: "0.0.0.0:8080", Pprof: true}, false},
		{"public with token", Config{Addr: "0.0.0.0:8080", Pprof: true, Token: "x"}, true},
		{"public insecure", Config{Addr: ":8080", Pprof: true, AllowInsecure: true}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.cfg, logx.Nop())
			if got := s.pprofAllowed(); got != tc.want {
				t.Fatalf("pprofAllowed() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":           "/debug/pprof/",
		"dbg":        "/dbg/",
		"/x/pprof":   "/x/pprof/",
		"/debug/pp/": "/debug/pp/",
	} {
		if got := normalizePrefix(in); got != want {
			t.Fatalf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}
