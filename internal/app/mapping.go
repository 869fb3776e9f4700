package app

import (
	"fmt"
	"strings"

	"gatebot/internal/broadcast"
	"gatebot/internal/config"
	"gatebot/internal/gate"
	"gatebot/internal/observability/health"
	"gatebot/internal/storage"
	telegram "gatebot/internal/transport/telegram/adapter"
	"gatebot/internal/transport/telegram/router"
	"gatebot/pkg/logx"
)

const defaultSQLitePath = "users.db"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := cfg.Duration("storage.busy_timeout")
	if err != nil {
		return storage.Config{}, err
	}
	out := storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), DSN: strings.TrimSpace(sc.DSN), BusyTimeout: busy}
	switch driver {
	case "", "sqlite", "sqlite3":
		out.Driver = "sqlite"
		if out.Path == "" {
			out.Path = defaultSQLitePath
		}
	case "postgres", "postgresql", "pgx":
		if out.DSN == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn (DATABASE_URL) is required when storage.driver=%s", driver)
		}
	case "file", "memory", "mem":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, nil
}

func mapGateConfig(cfg *config.Config) (gate.Config, error) {
	ttl, err := cfg.Duration("gate.ttl")
	if err != nil {
		return gate.Config{}, err
	}
	out := gate.Config{
		GroupChatID:      cfg.Telegram.GroupChatID,
		TTL:              ttl,
		ApproveOnSuccess: cfg.Gate.ApproveOnSuccess,
		WelcomePhotoURL:  strings.TrimSpace(cfg.Gate.WelcomePhotoURL),
	}
	if t := cfg.Gate.Texts; t != nil {
		out.Texts = gate.Texts{
			ChallengeTitle:  t.ChallengeTitle,
			ChallengeFooter: t.ChallengeFooter,
			ButtonError:     t.ButtonError,
			NotYours:        t.NotYours,
			Expired:         t.Expired,
			Wrong:           t.Wrong,
			Done:            t.Done,
			Welcome:         t.Welcome,
			Failure:         t.Failure,
		}
	}
	return out, nil
}

func mapSweepConfig(cfg *config.Config) (gate.SweepConfig, error) {
	grace, err := cfg.Duration("gate.sweep_grace")
	if err != nil {
		return gate.SweepConfig{}, err
	}
	return gate.SweepConfig{Schedule: cfg.SweepSchedule(gate.DefaultSweepSchedule), Grace: grace}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	iv, err := cfg.Duration("broadcast.interval")
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{AdminUserID: cfg.Telegram.AdminUserID, Interval: iv}, nil
}

func mapRouterConfig(cfg *config.Config) (router.Config, error) {
	timeout, err := cfg.Duration("router.handler_timeout")
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		AdminUserID:    cfg.Telegram.AdminUserID,
		HandlerTimeout: timeout,
		Workers:        cfg.Router.Workers,
		QueueSize:      cfg.Router.QueueSize,
	}, nil
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := cfg.Duration("telegram.poll_timeout")
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: strings.TrimSpace(cfg.Telegram.Token), PollTimeout: poll}, nil
}

func mapHealthConfig(cfg *config.Config) health.Config {
	h := cfg.Health
	return health.Config{
		Addr:          cfg.HealthAddr(),
		Pprof:         h.Pprof,
		PprofPrefix:   h.PprofPrefix,
		Token:         h.Token,
		AllowInsecure: h.AllowInsecure,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     l.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}
