// Package queue persists the bot's pending jobs in account data and
// drains them with a polling worker. The persisted queue is the only
// source of truth; nothing survives in memory across restarts.
package queue

import (
	"fmt"

	"github.com/msrd0/tg2mx-bot/internal/matrix"
)

// Kind discriminates the closed set of job variants. Adding a kind means
// touching this file, the dispatcher's command table and the worker's
// dispatch switch.
type Kind string

const (
	KindImport  Kind = "Import"
	KindMigrate Kind = "Migrate"
)

// Job is one unit of deferred work. Immutable once created.
type Job struct {
	Kind Kind   `json:"type"`
	Pack string `json:"pack"`
}

func ImportJob(pack string) Job {
	return Job{Kind: KindImport, Pack: pack}
}

func MigrateJob(pack string) Job {
	return Job{Kind: KindMigrate, Pack: pack}
}

func (j Job) Validate() error {
	switch j.Kind {
	case KindImport, KindMigrate:
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	if j.Pack == "" {
		return fmt.Errorf("job without a pack")
	}
	return nil
}

// QueuedJob pairs a job with the full originating message event so the
// outcome can be routed back to the exact message after a restart.
type QueuedJob struct {
	Event matrix.MessageEvent `json:"ev"`
	Job   Job                 `json:"job"`
}

// Queue is the FIFO of pending jobs as persisted in account data.
type Queue struct {
	Jobs []QueuedJob `json:"q"`
}

func (q *Queue) Len() int {
	return len(q.Jobs)
}

// Push appends a job to the tail.
func (q *Queue) Push(j QueuedJob) {
	q.Jobs = append(q.Jobs, j)
}

// Pop removes and returns the front job. The second return is false on an
// empty queue.
func (q *Queue) Pop() (QueuedJob, bool) {
	if len(q.Jobs) == 0 {
		return QueuedJob{}, false
	}
	front := q.Jobs[0]
	q.Jobs = q.Jobs[1:]
	return front, true
}
