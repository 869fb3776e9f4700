// Package gate admits users to the group after they solve a captcha.
package gate

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"gatebot/internal/captcha"
	"gatebot/internal/eventbus"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
	"gatebot/pkg/logx"
	"gatebot/pkg/tgui"
)

const DefaultTTL = 5 * time.Minute

// Config is the hot-swappable part of the gate.
type Config struct {
	GroupChatID      int64
	TTL              time.Duration
	ApproveOnSuccess bool
	WelcomePhotoURL  string
	Texts            Texts
}

// MemberWriter is the subset of storage.Store the gate needs.
type MemberWriter interface {
	UpsertMember(ctx context.Context, m storage.Member) error
}

// JoinIntent is a request to join a chat.
type JoinIntent struct {
	ChatID int64
	User   kit.User
}

// Answer is one press of a captcha button.
type Answer struct {
	CallbackID string
	From       kit.User
	Data       string
	Message    kit.MessageRef // the challenge message, edited with the reply
}

// Resolution is published on the bus for every answer.
type Resolution struct {
	UserID  int64
	Outcome Outcome
}

type Deps struct {
	Adapter   kit.Adapter
	Members   MemberWriter
	Generator *captcha.Generator
	Pending   *PendingSet
	Bus       eventbus.Bus
	Log       logx.Logger
	Now       func() time.Time
}

type Gate struct {
	ad      kit.Adapter
	members MemberWriter
	gen     *captcha.Generator
	pending *PendingSet
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	cfg atomic.Pointer[Config]
}

func New(cfg Config, d Deps) *Gate {
	g := &Gate{
		ad:      d.Adapter,
		members: d.Members,
		gen:     d.Generator,
		pending: d.Pending,
		bus:     d.Bus,
		log:     d.Log,
		now:     d.Now,
	}
	if g.gen == nil {
		g.gen = captcha.NewGenerator()
	}
	if g.pending == nil {
		g.pending = NewPendingSet()
	}
	if g.bus == nil {
		g.bus = eventbus.Nop()
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	g.log = g.log.With(logx.String("comp", "gate"))
	if g.now == nil {
		g.now = time.Now
	}
	g.SetConfig(cfg)
	return g
}

// SetConfig swaps the configuration. In-flight challenges keep their expiry.
func (g *Gate) SetConfig(cfg Config) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	cfg.Texts = cfg.Texts.withDefaults()
	g.cfg.Store(&cfg)
}

func (g *Gate) config() Config { return *g.cfg.Load() }

func (g *Gate) Pending() *PendingSet { return g.pending }

// OnJoinIntent sends a challenge to the user. Requests for any chat other
// than the configured group are ignored.
func (g *Gate) OnJoinIntent(ctx context.Context, ji JoinIntent) error {
	cfg := g.config()
	if ji.ChatID != cfg.GroupChatID || ji.User.ID == 0 {
		return nil
	}

	ch := g.gen.Generate()
	p := Pending{
		UserID:    ji.User.ID,
		Answer:    ch.Answer,
		ExpiresAt: g.now().Add(cfg.TTL),
		ChatID:    ji.ChatID,
	}
	// Stored before sending so an instant click always finds it.
	if g.pending.Issue(p) {
		g.log.Debug("challenge replaced", logx.Int64("user_id", p.UserID))
	}

	b := tgui.New().
		Line(cfg.Texts.ChallengeTitle).
		Blank().
		HTML(tgui.B(ch.Prompt())).
		Blank().
		Line(fmt.Sprintf(cfg.Texts.ChallengeFooter, formatTTL(cfg.TTL)))
	for _, v := range ch.Options {
		b.Row(kit.Button{
			Text: strconv.Itoa(v),
			Data: captcha.Payload{Value: v, UserID: p.UserID}.String(),
		})
	}
	if _, err := b.Build().Send(ctx, g.ad, kit.ChatTarget{ChatID: p.UserID}); err != nil {
		return fmt.Errorf("send challenge to %d: %w", p.UserID, err)
	}

	g.bus.Publish(eventbus.Event{Type: eventbus.ChallengeIssued, Data: p})
	g.log.Info("challenge issued",
		logx.Int64("user_id", p.UserID),
		logx.Int64("chat_id", p.ChatID),
		logx.Time("expires_at", p.ExpiresAt),
	)
	return nil
}

// OnAnswer resolves a button press.
//
// The returned error is non-nil only when the store or the transport failed;
// rejections are reported through the Outcome (see Outcome.Err).
func (g *Gate) OnAnswer(ctx context.Context, a Answer) (Outcome, error) {
	cfg := g.config()
	if err := g.ad.AnswerCallback(ctx, a.CallbackID, ""); err != nil {
		g.log.Debug("answer callback failed", logx.Err(err))
	}

	pl, err := captcha.ParsePayload(a.Data)
	if err != nil {
		g.finish(OutcomeMalformed, a.From.ID)
		return OutcomeMalformed, g.reply(ctx, a.Message, cfg.Texts.ButtonError)
	}

	p, out := g.pending.Resolve(a.From.ID, pl, g.now())
	g.finish(out, pl.UserID)

	switch out {
	case OutcomeUnauthorized:
		return out, g.reply(ctx, a.Message, cfg.Texts.NotYours)
	case OutcomeExpired:
		return out, g.reply(ctx, a.Message, cfg.Texts.Expired)
	case OutcomeWrong:
		return out, g.reply(ctx, a.Message, cfg.Texts.Wrong)
	}

	err = g.members.UpsertMember(ctx, storage.Member{
		UserID:      a.From.ID,
		DisplayName: a.From.DisplayName(),
		Handle:      a.From.Username,
		JoinedAt:    g.now(),
	})
	if err != nil {
		_ = g.reply(ctx, a.Message, cfg.Texts.Failure)
		return out, fmt.Errorf("upsert member %d: %w", a.From.ID, err)
	}

	g.welcome(ctx, cfg, a.From.ID)
	if cfg.ApproveOnSuccess {
		g.approve(ctx, p)
	}
	return out, g.reply(ctx, a.Message, cfg.Texts.Done)
}

func (g *Gate) finish(out Outcome, userID int64) {
	g.bus.Publish(eventbus.Event{Type: eventbus.ChallengeResolved, Data: Resolution{UserID: userID, Outcome: out}})
	g.log.Info("challenge resolved", logx.Int64("user_id", userID), logx.String("outcome", out.String()))
}

// welcome sends the photo with caption, or the caption alone when no photo
// is configured or the photo upload fails.
func (g *Gate) welcome(ctx context.Context, cfg Config, userID int64) {
	to := kit.ChatTarget{ChatID: userID}
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if cfg.WelcomePhotoURL != "" {
		_, err := g.ad.SendPhoto(ctx, to, cfg.WelcomePhotoURL, cfg.Texts.Welcome, opt)
		if err == nil {
			return
		}
		g.log.Warn("welcome photo failed, sending text", logx.Int64("user_id", userID), logx.Err(err))
	}
	if _, err := g.ad.SendText(ctx, to, cfg.Texts.Welcome, opt); err != nil {
		g.log.Warn("welcome failed", logx.Int64("user_id", userID), logx.Err(err))
	}
}

func (g *Gate) approve(ctx context.Context, p Pending) {
	ap, ok := g.ad.(kit.JoinRequestApprover)
	if !ok {
		return
	}
	if err := ap.ApproveJoinRequest(ctx, p.ChatID, p.UserID); err != nil {
		g.log.Warn("approve join request failed", logx.Int64("user_id", p.UserID), logx.Int64("chat_id", p.ChatID), logx.Err(err))
	}
}

func (g *Gate) reply(ctx context.Context, ref kit.MessageRef, text string) error {
	if err := g.ad.EditText(ctx, ref, text, &kit.SendOptions{}); err != nil {
		return fmt.Errorf("edit challenge message: %w", err)
	}
	return nil
}

func formatTTL(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		if m := int(d / time.Minute); m != 1 {
			return strconv.Itoa(m) + " minutes"
		}
		return "1 minute"
	case d%time.Second == 0:
		return strconv.Itoa(int(d/time.Second)) + " seconds"
	default:
		return d.String()
	}
}
