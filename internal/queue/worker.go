package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/msrd0/tg2mx-bot/internal/errfmt"
	"github.com/msrd0/tg2mx-bot/internal/matrix"
)

// Outcome reactions posted on the originating message.
const (
	ReactionSuccess = "✅"     // white heavy check mark
	ReactionFailure = "\U0001F7E5" // red square
)

// Messenger is the slice of the protocol client the worker needs to
// report outcomes and resolve rooms.
type Messenger interface {
	SendMessage(ctx context.Context, roomID string, content matrix.MessageContent) (string, error)
	SendReaction(ctx context.Context, roomID, eventID, key string) error
	InRoom(ctx context.Context, roomID string) (bool, error)
}

// Runner executes one job against its backend, returning a terminal
// success or failure.
type Runner interface {
	Run(ctx context.Context, job QueuedJob) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, job QueuedJob) error

func (f RunnerFunc) Run(ctx context.Context, job QueuedJob) error {
	return f(ctx, job)
}

const defaultPollInterval = time.Second

// Worker drains the persisted queue on a fixed interval, one job at a
// time, concurrently with the live event loop.
type Worker struct {
	store    *Store
	client   Messenger
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
}

func NewWorker(store *Store, client Messenger, runner Runner, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		client:   client,
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. Iterations that fail at the store
// stage are logged and the loop keeps going; the affected job has either
// never left the persisted queue or has been re-appended to its tail.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("worker_iteration_failed", "error", errfmt.RenderFlat(err))
			}
		}
	}
}

// Tick runs one worker iteration: read the queue, commit the dequeue of
// the front job, then execute it.
func (w *Worker) Tick(ctx context.Context) error {
	q, err := w.store.Read(ctx)
	if err != nil {
		return err
	}
	job, ok := q.Pop()
	if !ok {
		return nil
	}

	// Commit the dequeue before any execution side effect. A crash from
	// here on cannot duplicate-run the job.
	if err := w.store.Write(ctx, q); err != nil {
		return fmt.Errorf("commit dequeue: %w", err)
	}

	if err := w.execute(ctx, job); err != nil {
		w.requeue(ctx, job)
		return err
	}
	return nil
}

// execute resolves the job's room and runs it. A non-nil return means the
// store stage failed and the job must be retried; backend failures are
// terminal and reported here.
func (w *Worker) execute(ctx context.Context, job QueuedJob) error {
	roomID := job.Event.RoomID
	inRoom, err := w.client.InRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("resolve room %s: %w", roomID, err)
	}
	if !inRoom {
		// The bot left the room; there is nowhere to deliver the outcome.
		w.logger.Error("job_room_unresolvable",
			"room_id", roomID,
			"kind", string(job.Job.Kind),
			"pack", job.Job.Pack,
		)
		return nil
	}

	w.logger.Info("job_start", "kind", string(job.Job.Kind), "pack", job.Job.Pack, "room_id", roomID)
	runErr := w.runner.Run(ctx, job)
	if runErr == nil {
		w.logger.Info("job_done", "kind", string(job.Job.Kind), "pack", job.Job.Pack)
		w.react(ctx, job, ReactionSuccess)
		return nil
	}

	// Terminal failure: report with the full cause chain and discard.
	w.logger.Error("job_failed",
		"kind", string(job.Job.Kind),
		"pack", job.Job.Pack,
		"error", errfmt.RenderFlat(runErr),
	)
	w.react(ctx, job, ReactionFailure)
	w.reply(ctx, job, failureReply(runErr))
	return nil
}

// requeue re-appends a job to the tail of a freshly re-read queue. Jobs
// are never silently dropped on a store failure, though their order
// relative to later enqueues is not preserved.
func (w *Worker) requeue(ctx context.Context, job QueuedJob) {
	q, err := w.store.Read(ctx)
	if err == nil {
		q.Push(job)
		err = w.store.Write(ctx, q)
	}
	if err != nil {
		w.logger.Error("job_requeue_failed",
			"kind", string(job.Job.Kind),
			"pack", job.Job.Pack,
			"error", err.Error(),
		)
	}
}

// react posts a reaction fire-and-forget; a failed acknowledgement never
// blocks job execution.
func (w *Worker) react(ctx context.Context, job QueuedJob, key string) {
	if err := w.client.SendReaction(ctx, job.Event.RoomID, job.Event.EventID, key); err != nil {
		w.logger.Warn("reaction_send_failed", "room_id", job.Event.RoomID, "error", err.Error())
	}
}

func (w *Worker) reply(ctx context.Context, job QueuedJob, content matrix.MessageContent) {
	content = matrix.AsReplyTo(&job.Event, content)
	if _, err := w.client.SendMessage(ctx, job.Event.RoomID, content); err != nil {
		w.logger.Warn("reply_send_failed", "room_id", job.Event.RoomID, "error", err.Error())
	}
}

func failureReply(err error) matrix.MessageContent {
	plain := "Failed to execute your job.\n\n" + errfmt.RenderFlat(err)
	formatted := "Failed to execute your job.\n\n" +
		"<details><summary>Click to see details</summary>\n\n" +
		errfmt.RenderHTML(err) +
		"</details>\n"
	return matrix.NewHTML(plain, formatted)
}
