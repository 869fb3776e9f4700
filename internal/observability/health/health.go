// Package health serves the liveness endpoint and, optionally, pprof.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "gatebot/internal/runtime/supervisor"
	"gatebot/pkg/logx"
)

const DefaultAddr = "0.0.0.0:8080"

// Config controls the HTTP listener.
//
// pprof is mounted only when the listener is loopback, a Token is set, or
// AllowInsecure is true. The liveness routes never require a token.
type Config struct {
	Addr string

	Pprof         bool
	PprofPrefix   string
	Token         string
	AllowInsecure bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	cfg Config
	log logx.Logger

	mu   sync.Mutex
	srv  *http.Server
	sup  *rtsup.Supervisor
	addr string
}

func New(cfg Config, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log.With(logx.String("comp", "health"))}
}

// Addr returns the bound address, or "" when not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background. A bind failure is
// returned to the caller; later serve errors are restarted.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{
		Handler:      s.handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	srv, sup := s.srv, s.sup

	cur := ln
	sup.GoRestart("http.serve", func(c context.Context) error {
		err := srv.Serve(cur)
		if c.Err() != nil || errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		// Serve closed the listener; bind again before the next attempt.
		next, lerr := net.Listen("tcp", cur.Addr().String())
		if lerr != nil {
			return lerr
		}
		cur = next
		return err
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
	sup.Go0("http.shutdown_on_cancel", func(c context.Context) {
		<-c.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(sctx)
		cancel()
	})

	s.log.Info("health server started", logx.String("addr", s.addr), logx.Bool("pprof", s.pprofAllowed()))
	return nil
}

// Stop shuts the server down and waits for the serve loop to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, sup := s.srv, s.sup
	s.srv, s.sup, s.addr = nil, nil, ""
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	sup.Cancel()
	if werr := sup.Wait(ctx); err == nil {
		err = werr
	}
	s.log.Info("health server stopped")
	return err
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", statusOK)
	mux.HandleFunc("GET /healthz", statusOK)

	if s.cfg.Pprof {
		if !s.pprofAllowed() {
			s.log.Error("pprof disabled: non-loopback addr requires token or allow_insecure", logx.String("addr", s.cfg.Addr))
		} else {
			if s.cfg.AllowInsecure && s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
				s.log.Warn("pprof running without token on non-loopback addr (insecure)", logx.String("addr", s.cfg.Addr))
			}
			mountPprof(mux, normalizePrefix(s.cfg.PprofPrefix), s.cfg.Token)
		}
	}
	return mux
}

func (s *Server) pprofAllowed() bool {
	if !s.cfg.Pprof {
		return false
	}
	return s.cfg.AllowInsecure || strings.TrimSpace(s.cfg.Token) != "" || isLoopbackAddr(s.cfg.Addr)
}

func statusOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func mountPprof(mux *http.ServeMux, prefix, token string) {
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(token, h) }
	base := strings.TrimSuffix(prefix, "/")
	mux.HandleFunc(prefix, wrap(indexAt(prefix)))
	mux.HandleFunc(base+"/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc(base+"/profile", wrap(hpprof.Profile))
	mux.HandleFunc(base+"/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc(base+"/trace", wrap(hpprof.Trace))
}

// withAuth accepts "Authorization: Bearer <token>" or "?token=<token>".
func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				got = strings.TrimSpace(ah)
			}
		}
		if got != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// indexAt serves pprof.Index under a custom prefix; Index expects paths
// rooted at /debug/pprof/.
func indexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + strings.TrimPrefix(r.URL.Path, prefix)
		hpprof.Index(w, r2)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
