package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"gatebot/internal/broadcast"
	"gatebot/internal/storage"
	kit "gatebot/internal/transport"
)

const (
	startText = "Hi! Request to join the group and I will send you a captcha."
)

func (r *Router) builtinCommands() []Command {
	return []Command{
		{
			Name:        "start",
			Description: "register and get instructions",
			Access:      AccessEveryone,
			Handle:      r.handleStart,
		},
		{
			Name:        "stats",
			Description: "member count",
			Access:      AccessAdminOnly,
			Handle:      r.handleStats,
		},
		{
			Name:        "broadcast",
			Description: "send a message to every member",
			Access:      AccessAdminOnly,
			// A run lasts members x interval: no handler timeout, and off
			// the worker pool so joins and answers keep flowing.
			Timeout:  -1,
			Detached: true,
			Handle:   r.handleBroadcast,
		},
	}
}

func (r *Router) reply(ctx context.Context, req *Request, text string) error {
	_, err := r.ad.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// handleStart registers the sender as a member.
func (r *Router) handleStart(ctx context.Context, req *Request) error {
	if req.From.ID == 0 {
		return nil
	}
	err := r.members.UpsertMember(ctx, storage.Member{
		UserID:      req.From.ID,
		DisplayName: req.From.DisplayName(),
		Handle:      req.From.Username,
		JoinedAt:    r.now(),
	})
	if err != nil {
		return fmt.Errorf("register member: %w", err)
	}
	return r.reply(ctx, req, startText)
}

func (r *Router) handleStats(ctx context.Context, req *Request) error {
	n, err := r.members.CountMembers(ctx)
	if err != nil {
		_ = r.reply(ctx, req, "Could not count members.")
		return fmt.Errorf("count members: %w", err)
	}
	return r.reply(ctx, req, "Members: "+strconv.Itoa(n))
}

func (r *Router) handleBroadcast(ctx context.Context, req *Request) error {
	_, err := r.broadcaster.Broadcast(ctx, broadcast.Request{
		OperatorID:       req.From.ID,
		OperatorUsername: req.From.Username,
		ReplyTo:          req.Chat,
		Text:             req.Args,
	})
	// Usage hint and busy notice were already sent to the operator.
	if errors.Is(err, broadcast.ErrEmptyMessage) || errors.Is(err, broadcast.ErrBusy) {
		return nil
	}
	return err
}

func sortBotCommands(cmds []kit.BotCommand) {
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Command < cmds[j].Command })
}
