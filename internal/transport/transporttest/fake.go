// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"errors"
	"sync"

	kit "gatebot/internal/transport"
)

var ErrSendFailed = errors.New("transporttest: send failed")

// Sent is one outbound call recorded by Fake.
type Sent struct {
	Kind     string // "text", "photo", "edit", "answer", "approve"
	To       kit.ChatTarget
	Ref      kit.MessageRef
	Text     string
	PhotoURL string
	Callback string
	Opt      kit.SendOptions
}

// Fake records outbound calls. Sends to chat ids in FailFor return
// ErrSendFailed; FailPhoto makes every SendPhoto fail.
type Fake struct {
	mu      sync.Mutex
	sent    []Sent
	nextID  int
	FailFor map[int64]bool
	FailAll bool

	FailPhoto bool
	FailEdit  bool

	out chan<- kit.Update
}

func New() *Fake { return &Fake{FailFor: map[int64]bool{}} }

var (
	_ kit.Adapter             = (*Fake)(nil)
	_ kit.JoinRequestApprover = (*Fake)(nil)
)

// Start records out for Push and returns immediately.
func (f *Fake) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *Fake) Stop(context.Context) error {
	f.mu.Lock()
	f.out = nil
	f.mu.Unlock()
	return nil
}

// Push delivers up as if it came from the platform. It reports false when
// the fake is not started.
func (f *Fake) Push(ctx context.Context, up kit.Update) bool {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	if out == nil {
		return false
	}
	select {
	case out <- up:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Fake) failing(chatID int64) bool {
	return f.FailAll || f.FailFor[chatID]
}

func opts(opt *kit.SendOptions) kit.SendOptions {
	if opt == nil {
		return kit.SendOptions{}
	}
	return *opt
}

func (f *Fake) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Kind: "text", To: to, Text: text, Opt: opts(opt)})
	if f.failing(to.ChatID) {
		return kit.MessageRef{}, ErrSendFailed
	}
	f.nextID++
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *Fake) SendPhoto(_ context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Kind: "photo", To: to, Text: caption, PhotoURL: photoURL, Opt: opts(opt)})
	if f.FailPhoto || f.failing(to.ChatID) {
		return kit.MessageRef{}, ErrSendFailed
	}
	f.nextID++
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *Fake) EditText(_ context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Kind: "edit", Ref: ref, Text: text, Opt: opts(opt)})
	if f.FailEdit {
		return ErrSendFailed
	}
	return nil
}

func (f *Fake) AnswerCallback(_ context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Kind: "answer", Callback: callbackID, Text: text})
	return nil
}

func (f *Fake) ApproveJoinRequest(_ context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Sent{Kind: "approve", To: kit.ChatTarget{ChatID: chatID}, Ref: kit.MessageRef{ChatID: userID}})
	return nil
}

// Sent returns a copy of every recorded call.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Of returns the recorded calls of one kind.
func (f *Fake) Of(kind string) []Sent {
	var out []Sent
	for _, s := range f.Sent() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the most recent call of kind.
func (f *Fake) Last(kind string) (Sent, bool) {
	all := f.Of(kind)
	if len(all) == 0 {
		return Sent{}, false
	}
	return all[len(all)-1], true
}

func (f *Fake) Reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}
