// Package broadcast sends one operator message to every verified member.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"gatebot/internal/eventbus"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
)

var (
	ErrUnauthorized = errors.New("broadcast: caller is not the operator")
	ErrEmptyMessage = errors.New("broadcast: empty message")
	ErrBusy         = errors.New("broadcast: another run is in progress")
)

type Config struct {
	AdminUserID int64
	// Interval is the minimum spacing between two sends.
	Interval time.Duration
}

// Store is the subset of storage.Store the dispatcher needs.
type Store interface {
	ListMemberIDs(ctx context.Context) ([]int64, error)
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Request is one operator invocation.
type Request struct {
	OperatorID       int64
	OperatorUsername string
	ReplyTo          kit.ChatTarget
	Text             string
}

// Result is the tally of one run.
type Result struct {
	Attempted int
	Succeeded int
	Failed    int
	Took      time.Duration
}

type Dispatcher struct {
	ad    kit.Adapter
	store Store
	bus   eventbus.Bus
	log   logx.Logger

	cfg     atomic.Pointer[Config]
	running atomic.Bool
}

func New(cfg Config, ad kit.Adapter, store Store, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if bus == nil {
		bus = eventbus.Nop()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{ad: ad, store: store, bus: bus, log: log.With(logx.String("comp", "broadcast"))}
	d.SetConfig(cfg)
	return d
}

// SetConfig applies to the next run.
func (d *Dispatcher) SetConfig(cfg Config) {
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	d.cfg.Store(&cfg)
}

// Running reports whether a run is in progress.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Broadcast sends req.Text to every member, one attempt each, paced by the
// configured interval, then replies with a summary.
//
// Non-operators get ErrUnauthorized and no reply. An empty text gets a usage
// hint and ErrEmptyMessage. Delivery failures are counted and never abort the
// run.
func (d *Dispatcher) Broadcast(ctx context.Context, req Request) (Result, error) {
	cfg := *d.cfg.Load()
	if req.OperatorID == 0 || req.OperatorID != cfg.AdminUserID {
		return Result{}, ErrUnauthorized
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		d.reply(ctx, req.ReplyTo, "Usage: /broadcast <text>")
		return Result{}, ErrEmptyMessage
	}
	if !d.running.CompareAndSwap(false, true) {
		d.reply(ctx, req.ReplyTo, "A broadcast is already running.")
		return Result{}, ErrBusy
	}
	defer d.running.Store(false)

	ids, err := d.store.ListMemberIDs(ctx)
	if err != nil {
		d.reply(ctx, req.ReplyTo, "Could not load members.")
		return Result{}, fmt.Errorf("list members: %w", err)
	}

	d.reply(ctx, req.ReplyTo, "Broadcasting to "+strconv.Itoa(len(ids))+" members...")
	d.log.Info("broadcast started", logx.Int("recipients", len(ids)), logx.Duration("interval", cfg.Interval))

	res := d.run(ctx, ids, text, cfg.Interval)

	d.reply(ctx, req.ReplyTo, fmt.Sprintf("Done\nDelivered: %d\nFailed: %d", res.Succeeded, res.Failed))
	d.log.Info("broadcast finished",
		logx.Int("attempted", res.Attempted),
		logx.Int("ok", res.Succeeded),
		logx.Int("fail", res.Failed),
		logx.Duration("took", res.Took),
	)
	d.bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Data: res})

	// The audit outlives a cancelled request context.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.store.AppendAudit(actx, storage.AuditEntry{
		ActorID:       req.OperatorID,
		ActorUsername: req.OperatorUsername,
		ChatID:        req.ReplyTo.ChatID,
		ThreadID:      req.ReplyTo.ThreadID,
		Action:        "broadcast",
		Target:        "members",
		OK:            res.Succeeded,
		Fail:          res.Failed,
		TookMS:        res.Took.Milliseconds(),
	}); err != nil {
		d.log.Warn("audit append failed", logx.Err(err))
	}
	return res, nil
}

// run sends text to every id sequentially. Attempted always equals len(ids).
func (d *Dispatcher) run(ctx context.Context, ids []int64, text string, interval time.Duration) Result {
	start := time.Now()
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	lim := rate.NewLimiter(limit, 1)

	res := Result{Attempted: len(ids)}
	for _, id := range ids {
		// A cancelled wait still makes the attempt, which then fails fast.
		_ = lim.Wait(ctx)
		if _, err := d.ad.SendText(ctx, kit.ChatTarget{ChatID: id}, text, &kit.SendOptions{}); err != nil {
			res.Failed++
			d.log.Debug("broadcast delivery failed", logx.Int64("user_id", id), logx.Err(err))
			continue
		}
		res.Succeeded++
	}
	res.Took = time.Since(start)
	return res
}

func (d *Dispatcher) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if to.ChatID == 0 {
		return
	}
	if _, err := d.ad.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		d.log.Warn("operator reply failed", logx.Err(err))
	}
}
