// Package bot runs the live event loop: it keeps the sync long poll
// going, gates and answers room invitations, and turns recognized chat
// commands into queued jobs.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/msrd0/tg2mx-bot/internal/matrix"
	"github.com/msrd0/tg2mx-bot/internal/queue"
)

const reactionQueued = "⏱️" // stopwatch

// Client is the slice of the protocol client the event loop needs.
type Client interface {
	UserID() string
	Sync(ctx context.Context, since string, timeout time.Duration) (*matrix.SyncResponse, error)
	SendMessage(ctx context.Context, roomID string, content matrix.MessageContent) (string, error)
	SendReaction(ctx context.Context, roomID, eventID, key string) error
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
}

// Bot dispatches inbound protocol events.
type Bot struct {
	client      Client
	store       *queue.Store
	gate        Gate
	syncTimeout time.Duration
	logger      *slog.Logger
}

func New(client Client, store *queue.Store, gate Gate, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		client:      client,
		store:       store,
		gate:        gate,
		syncTimeout: 30 * time.Second,
		logger:      logger,
	}
}

// Run performs the initial sync, then long-polls and dispatches events
// until ctx is cancelled. The initial sync response is discarded so old
// messages never get replies. Sync failures are fatal; the caller is
// expected to terminate the process.
func (b *Bot) Run(ctx context.Context) error {
	resp, err := b.client.Sync(ctx, "", 0)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	since := resp.NextBatch
	b.logger.Info("event_loop_started", "user_id", b.client.UserID())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := b.client.Sync(ctx, since, b.syncTimeout)
		if err != nil {
			return fmt.Errorf("event loop: %w", err)
		}
		since = resp.NextBatch
		b.HandleSync(ctx, resp)
	}
}

// HandleSync dispatches the rooms of one sync response.
func (b *Bot) HandleSync(ctx context.Context, resp *matrix.SyncResponse) {
	for roomID, invite := range resp.Rooms.Invite {
		b.handleInvite(ctx, roomID, invite)
	}
	for roomID, room := range resp.Rooms.Join {
		for _, ev := range room.Timeline.Events {
			if ev.Type == matrix.EventTypeMessage {
				b.HandleMessage(ctx, roomID, ev)
			}
		}
	}
}

// handleInvite accepts invitations from admins and declines the rest.
// Declining is terminal; there is no retry.
func (b *Bot) handleInvite(ctx context.Context, roomID string, invite matrix.InvitedRoomSync) {
	for _, ev := range invite.InviteState.Events {
		if ev.Type != matrix.EventTypeMember || ev.StateKey == nil || *ev.StateKey != b.client.UserID() {
			continue
		}
		var member matrix.MemberContent
		if err := json.Unmarshal(ev.Content, &member); err != nil || member.Membership != matrix.MembershipInvite {
			continue
		}

		if !b.gate.IsAdmin(ev.Sender) {
			b.logger.Warn("invite_rejected", "room_id", roomID, "sender", ev.Sender)
			if err := b.client.LeaveRoom(ctx, roomID); err != nil {
				b.logger.Warn("invite_reject_failed", "room_id", roomID, "error", err.Error())
			}
			return
		}
		if err := b.client.JoinRoom(ctx, roomID); err != nil {
			b.logger.Error("room_join_failed", "room_id", roomID, "error", err.Error())
			return
		}
		b.logger.Info("room_joined", "room_id", roomID)
		return
	}
}

// HandleMessage parses one inbound message into zero or one command.
// Exactly one side effect happens per message: a reply, a reaction, or an
// account data write.
func (b *Bot) HandleMessage(ctx context.Context, roomID string, ev matrix.Event) {
	// never reply to our own messages
	if ev.Sender == b.client.UserID() {
		return
	}
	var content matrix.MessageContent
	if err := json.Unmarshal(ev.Content, &content); err != nil || content.MsgType != "m.text" {
		return
	}

	body := strings.TrimRight(content.Body, " \t\r\n")
	if !strings.HasPrefix(body, "!") {
		return
	}

	msg := matrix.MessageEvent{
		Type:           matrix.EventTypeMessage,
		Sender:         ev.Sender,
		EventID:        ev.EventID,
		RoomID:         roomID,
		OriginServerTS: ev.OriginServerTS,
		Content:        content,
	}

	switch {
	case body == "!help":
		b.reply(ctx, &msg, matrix.NewHTML(helpPlain, helpHTML))

	case strings.HasPrefix(body, "!import "):
		b.enqueue(ctx, &msg, queue.ImportJob(strings.TrimPrefix(body, "!import ")))

	case strings.HasPrefix(body, "!migrate "):
		b.enqueue(ctx, &msg, queue.MigrateJob(strings.TrimPrefix(body, "!migrate ")))

	case body == "!clear queue":
		if !b.gate.IsAdmin(ev.Sender) {
			b.logger.Warn("clear_queue_denied", "sender", ev.Sender, "room_id", roomID)
			return
		}
		key := queue.ReactionSuccess
		if err := b.store.Clear(ctx); err != nil {
			b.logger.Error("queue_clear_failed", "error", err.Error())
			key = queue.ReactionFailure
		}
		b.react(ctx, &msg, key)

	default:
		b.reply(ctx, &msg, matrix.NewText(unknownCommandReply))
	}
}

// enqueue persists a job and acknowledges with a reaction. Enqueue
// failures are logged and swallowed; the worker never saw the job, so
// there is nothing to clean up.
func (b *Bot) enqueue(ctx context.Context, msg *matrix.MessageEvent, job queue.Job) {
	if err := b.store.Enqueue(ctx, queue.QueuedJob{Event: *msg, Job: job}); err != nil {
		b.logger.Error("job_enqueue_failed",
			"kind", string(job.Kind),
			"pack", job.Pack,
			"error", err.Error(),
		)
		return
	}
	b.logger.Info("job_enqueued", "kind", string(job.Kind), "pack", job.Pack)
	b.react(ctx, msg, reactionQueued)
}

func (b *Bot) reply(ctx context.Context, msg *matrix.MessageEvent, content matrix.MessageContent) {
	content = matrix.AsReplyTo(msg, content)
	if _, err := b.client.SendMessage(ctx, msg.RoomID, content); err != nil {
		b.logger.Error("reply_send_failed", "room_id", msg.RoomID, "error", err.Error())
	}
}

func (b *Bot) react(ctx context.Context, msg *matrix.MessageEvent, key string) {
	if err := b.client.SendReaction(ctx, msg.RoomID, msg.EventID, key); err != nil {
		b.logger.Warn("reaction_send_failed", "room_id", msg.RoomID, "error", err.Error())
	}
}
