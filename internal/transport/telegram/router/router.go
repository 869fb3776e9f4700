// Package router turns transport updates into gate, dispatcher and store calls.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gatebot/internal/broadcast"
	"gatebot/internal/captcha"
	"gatebot/internal/gate"
	"gatebot/internal/runtime/supervisor"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Description string
	Access      Access
	// Timeout overrides the router default; negative means unbounded.
	Timeout time.Duration
	// Detached commands run on their own goroutine instead of a pool
	// worker, so a long run never holds up other updates.
	Detached bool
	Handle   HandlerFunc
}

// Request is the per-update context handed to handlers.
type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	From    kit.User
	Command string
	// Args is the raw text after the command word, inner newlines kept.
	Args   string
	ReqID  string
	Logger logx.Logger
}

func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r != nil && !r.Logger.IsZero() {
		return r.Logger
	}
	return fallback
}

// Gate is the admission side of the router.
type Gate interface {
	OnJoinIntent(ctx context.Context, ji gate.JoinIntent) error
	OnAnswer(ctx context.Context, a gate.Answer) (gate.Outcome, error)
}

// Members is the subset of storage.Store used by commands.
type Members interface {
	UpsertMember(ctx context.Context, m storage.Member) error
	CountMembers(ctx context.Context) (int, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, req broadcast.Request) (broadcast.Result, error)
}

type Config struct {
	AdminUserID    int64
	HandlerTimeout time.Duration
	Workers        int
	QueueSize      int
}

type Deps struct {
	Adapter     kit.Adapter
	Gate        Gate
	Members     Members
	Broadcaster Broadcaster
	Log         logx.Logger
	Now         func() time.Time
}

type Router struct {
	ad          kit.Adapter
	gate        Gate
	members     Members
	broadcaster Broadcaster
	log         logx.Logger
	now         func() time.Time

	admin    atomic.Int64
	timeout  atomic.Int64 // time.Duration
	workers  int
	queueCap int

	mu       sync.RWMutex
	commands map[string]Command
}

func New(cfg Config, d Deps) *Router {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	queueCap := cfg.QueueSize
	if queueCap <= 0 {
		queueCap = 256
	}
	r := &Router{
		ad:          d.Adapter,
		gate:        d.Gate,
		members:     d.Members,
		broadcaster: d.Broadcaster,
		log:         log.With(logx.String("comp", "router")),
		now:         now,
		workers:     workers,
		queueCap:    queueCap,
	}
	r.SetConfig(cfg)
	r.SetCommands(r.builtinCommands())
	return r
}

// SetConfig applies the hot-reloadable fields (admin id, handler timeout).
func (r *Router) SetConfig(cfg Config) {
	r.admin.Store(cfg.AdminUserID)
	t := cfg.HandlerTimeout
	if t == 0 {
		t = 30 * time.Second
	}
	r.timeout.Store(int64(t))
}

// SetCommands replaces the command table.
func (r *Router) SetCommands(cmds []Command) {
	m := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		m[name] = c
	}
	r.mu.Lock()
	r.commands = m
	r.mu.Unlock()
}

func (r *Router) command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Commands returns the public commands for the platform menu, sorted by name.
func (r *Router) Commands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.commands))
	for name, c := range r.commands {
		if c.Access == AccessEveryone {
			out = append(out, kit.BotCommand{Command: name, Description: c.Description})
		}
	}
	sortBotCommands(out)
	return out
}

// UpdateMenu publishes the public commands when the adapter supports it.
func (r *Router) UpdateMenu(ctx context.Context) error {
	up, ok := r.ad.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, r.Commands())
}

// job is one routed update. wait marks updates that must not be dropped when
// the queue is full; detach runs it outside the worker pool.
type job struct {
	name   string
	run    func(ctx context.Context)
	wait   bool
	detach bool
	// busy is called instead of run when the queue is full.
	busy func(ctx context.Context)
}

// Handle routes and runs one update on the calling goroutine.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	if j, ok := r.route(ctx, up); ok {
		j.run(ctx)
	}
}

// DispatchLoop reads updates until ctx is done or the channel closes and runs
// them on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	jobs := make(chan job, r.queueCap)
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case j, ok := <-jobs:
					if !ok {
						return nil
					}
					r.runJob(c, idx, j)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("queue_cap", r.queueCap))

	defer func() {
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			j, ok := r.route(ctx, up)
			if !ok {
				continue
			}
			if j.detach {
				sup.Go0("router.detached."+j.name, func(c context.Context) { r.runJob(c, -1, j) })
				continue
			}
			r.enqueue(ctx, jobs, j)
		}
	}
}

func (r *Router) enqueue(ctx context.Context, jobs chan<- job, j job) {
	if j.wait {
		select {
		case jobs <- j:
		case <-ctx.Done():
		}
		return
	}
	select {
	case jobs <- j:
	default:
		r.log.Warn("job queue full")
		if j.busy != nil {
			j.busy(ctx)
		}
	}
}

// runJob keeps a worker alive if a job panics outside the middleware.
func (r *Router) runJob(ctx context.Context, idx int, j job) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	j.run(ctx)
}

func (r *Router) route(ctx context.Context, up kit.Update) (job, bool) {
	switch up.Kind {
	case kit.UpdateMessage:
		return r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		return r.routeCallback(up)
	case kit.UpdateJoinRequest:
		return r.routeJoinRequest(up)
	}
	return job{}, false
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from kit.User, cmd string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		From:    from,
		Command: cmd,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from.ID),
			logx.String("cmd", cmd),
		),
	}
}

func (r *Router) chain(h HandlerFunc, timeout time.Duration) HandlerFunc {
	return Chain(h,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
}

func (r *Router) routeMessage(_ context.Context, up kit.Update) (job, bool) {
	msg := up.Message
	if msg == nil {
		return job{}, false
	}
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return job{}, false
	}
	cmd, ok := r.command(name)
	if !ok {
		return job{}, false
	}
	// Admin commands stay silent for everyone else.
	if cmd.Access == AccessAdminOnly && (msg.From.ID == 0 || msg.From.ID != r.admin.Load()) {
		r.log.Debug("admin command ignored", logx.String("cmd", name), logx.Int64("from_id", msg.From.ID))
		return job{}, false
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	req := r.newRequest(up, chat, msg.From, name)
	req.Args = args

	timeout := time.Duration(r.timeout.Load())
	switch {
	case cmd.Timeout < 0:
		timeout = 0
	case cmd.Timeout > 0:
		timeout = cmd.Timeout
	}
	h := r.chain(cmd.Handle, timeout)
	return job{
		name:   name,
		detach: cmd.Detached,
		run:    func(ctx context.Context) { _ = h(ctx, req) },
		busy: func(ctx context.Context) {
			_, _ = r.ad.SendText(ctx, chat, "Busy, try again in a moment.", nil)
		},
	}, true
}

func (r *Router) routeCallback(up kit.Update) (job, bool) {
	cb := up.Callback
	if cb == nil || !captcha.IsPayload(cb.Data) {
		return job{}, false
	}
	chat := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	req := r.newRequest(up, chat, cb.From, "captcha.answer")

	h := r.chain(func(ctx context.Context, req *Request) error {
		out, err := r.gate.OnAnswer(ctx, gate.Answer{
			CallbackID: cb.ID,
			From:       cb.From,
			Data:       cb.Data,
			Message:    kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID},
		})
		req.Logger.Debug("captcha answered", logx.String("outcome", out.String()))
		return err
	}, time.Duration(r.timeout.Load()))

	return job{
		run: func(ctx context.Context) { _ = h(ctx, req) },
		busy: func(ctx context.Context) {
			_ = r.ad.AnswerCallback(ctx, cb.ID, "Busy, try again.")
		},
	}, true
}

func (r *Router) routeJoinRequest(up kit.Update) (job, bool) {
	jr := up.JoinRequest
	if jr == nil {
		return job{}, false
	}
	req := r.newRequest(up, kit.ChatTarget{ChatID: jr.ChatID}, jr.From, "captcha.issue")
	h := r.chain(func(ctx context.Context, _ *Request) error {
		return r.gate.OnJoinIntent(ctx, gate.JoinIntent{ChatID: jr.ChatID, User: jr.From})
	}, time.Duration(r.timeout.Load()))

	return job{run: func(ctx context.Context) { _ = h(ctx, req) }, wait: true}, true
}

// parseCommand splits "/name@bot rest" into ("name", "rest").
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, rest := text[1:], ""
	if i := strings.IndexAny(word, " \t\r\n"); i >= 0 {
		word, rest = word[:i], word[i:]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", "", false
	}
	return strings.ToLower(word), strings.TrimSpace(rest), true
}

func newReqID() string {
	return "req_" + uuid.New().String()[:8]
}
