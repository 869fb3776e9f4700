// Package app wires the gate, the broadcast dispatcher and their transports
// into one process.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gatebot/internal/broadcast"
	"gatebot/internal/captcha"
	"gatebot/internal/config"
	"gatebot/internal/eventbus"
	"gatebot/internal/gate"
	"gatebot/internal/observability/health"
	"gatebot/internal/runtime/sdnotify"
	"gatebot/internal/runtime/supervisor"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	telegram "gatebot/internal/transport/telegram/adapter"
	"gatebot/internal/transport/telegram/router"
	"gatebot/pkg/logx"
)

// Options configure New. Zero values select production behavior.
type Options struct {
	ConfigPath string
	// Environ replaces the process environment for the config overlay.
	Environ map[string]string
	// Adapter replaces the Telegram adapter built from the config.
	Adapter kit.Adapter
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter

	gate       *gate.Gate
	sweeper    *gate.Sweeper
	dispatcher *broadcast.Dispatcher
	router     *router.Router
	health     *health.Server
	sd         *sdnotify.Notifier

	updates  chan kit.Update
	stopOnce sync.Once
}

// New loads the configuration and builds every component. It returns an
// error wrapping config.ErrUnconfigured when a required setting is missing.
func New(opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	if opts.Environ != nil {
		cfgm.SetEnvironment(opts.Environ)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	gateCfg, err := mapGateConfig(cfg)
	if err != nil {
		return nil, err
	}
	sweepCfg, err := mapSweepConfig(cfg)
	if err != nil {
		return nil, err
	}
	bcCfg, err := mapBroadcastConfig(cfg)
	if err != nil {
		return nil, err
	}
	rtCfg, err := mapRouterConfig(cfg)
	if err != nil {
		return nil, err
	}
	stCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	ad := opts.Adapter
	if ad == nil {
		adCfg, err := mapAdapterConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(adCfg, root)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}
	logs.SetSender(ad)

	store, err := storage.Open(stCfg, root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", stCfg.Driver))

	bus := eventbus.New()
	g := gate.New(gateCfg, gate.Deps{
		Adapter:   ad,
		Members:   store,
		Generator: captcha.NewGenerator(),
		Bus:       bus,
		Log:       root,
	})
	sw := gate.NewSweeper(sweepCfg, g.Pending(), bus, root)
	if err := sw.Validate(sweepCfg.Schedule); err != nil {
		_ = store.Close()
		return nil, err
	}
	d := broadcast.New(bcCfg, ad, store, bus, root)
	r := router.New(rtCfg, router.Deps{
		Adapter:     ad,
		Gate:        g,
		Members:     store,
		Broadcaster: d,
		Log:         root,
	})

	return &App{
		cfgm:       cfgm,
		log:        log,
		logs:       logs,
		bus:        bus,
		store:      store,
		adapter:    ad,
		gate:       g,
		sweeper:    sw,
		dispatcher: d,
		router:     r,
		health:     health.New(mapHealthConfig(cfg), root),
		sd:         sdnotify.New(root),
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// HealthAddr returns the bound liveness address.
func (a *App) HealthAddr() string { return a.health.Addr() }

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if err := a.health.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
	if err := a.router.UpdateMenu(mctx); err != nil {
		a.log.Warn("menu update failed", logx.Err(err))
	}
	cancel()

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go("gate.sweeper", a.sweeper.Run)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: apply only the newest.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						next = newer
					default:
						drained = true
					}
				}
				a.apply(last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("sdnotify.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.log.Info("app started", logx.String("health", a.health.Addr()))
	return nil
}

// validate rejects reloads that cannot be applied.
func (a *App) validate(_ context.Context, cfg *config.Config) error {
	if _, err := mapGateConfig(cfg); err != nil {
		return err
	}
	sc, err := mapSweepConfig(cfg)
	if err != nil {
		return err
	}
	if err := a.sweeper.Validate(sc.Schedule); err != nil {
		return err
	}
	if _, err := mapBroadcastConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRouterConfig(cfg); err != nil {
		return err
	}
	_, err = mapStorageConfig(cfg)
	return err
}

// apply pushes the hot fields of next into the running components.
func (a *App) apply(prev, next *config.Config) {
	ch := config.Diff(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("settings", strings.Join(ch.RestartRequired, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	// The group is fixed for the life of the process.
	if gc, err := mapGateConfig(next); err == nil {
		gc.GroupChatID = prev.Telegram.GroupChatID
		a.gate.SetConfig(gc)
	}
	if sc, err := mapSweepConfig(next); err == nil {
		if err := a.sweeper.Apply(sc); err != nil {
			a.log.Warn("sweep config not applied", logx.Err(err))
		}
	}
	if bc, err := mapBroadcastConfig(next); err == nil {
		a.dispatcher.SetConfig(bc)
	}
	if rc, err := mapRouterConfig(next); err == nil {
		a.router.SetConfig(rc)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Time: time.Now(), Data: ch.Sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts the app down in dependency order. Each step is bounded; a
// step that overruns is logged and skipped.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	var stopErr error
	a.stopOnce.Do(func() { stopErr = a.stop(ctx, reason) })
	return stopErr
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(sctx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-sctx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Stop intake first so no update is routed into a closing store.
	step("adapter", 3*time.Second, a.adapter.Stop)
	a.sup.Cancel()
	step("supervisor", 5*time.Second, a.sup.Wait)
	step("health", 2*time.Second, a.health.Stop)
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
