package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// AccountDataKey is the account data key the queue is persisted under.
const AccountDataKey = "de.msrd0.tg2mx_bot.queue"

// AccountDataStore is the slice of the protocol client the store needs:
// whole-value reads and writes of per-account JSON blobs. There is no
// partial update and no compare-and-swap; every mutation is read-modify-
// write and assumes a single running bot instance per account.
type AccountDataStore interface {
	GetAccountData(ctx context.Context, key string, out any) (bool, error)
	SetAccountData(ctx context.Context, key string, value any) error
}

// Store serializes the job queue to and from one account data key.
type Store struct {
	store  AccountDataStore
	logger *slog.Logger
}

func NewStore(store AccountDataStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{store: store, logger: logger}
}

// Read loads the persisted queue. A missing key or a queue that no longer
// decodes yields an empty queue; corrupted state is logged, never allowed
// to halt the bot.
func (s *Store) Read(ctx context.Context) (Queue, error) {
	var raw json.RawMessage
	found, err := s.store.GetAccountData(ctx, AccountDataKey, &raw)
	if err != nil {
		return Queue{}, fmt.Errorf("read queue: %w", err)
	}
	if !found {
		return Queue{}, nil
	}

	var q Queue
	if err := json.Unmarshal(raw, &q); err != nil {
		s.logger.Error("queue_decode_failed", "error", err.Error())
		return Queue{}, nil
	}
	s.logger.Debug("queue_read", "jobs", q.Len())
	return q, nil
}

// Write overwrites the persisted queue wholesale.
func (s *Store) Write(ctx context.Context, q Queue) error {
	s.logger.Debug("queue_write", "jobs", q.Len())
	if err := s.store.SetAccountData(ctx, AccountDataKey, &q); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

// Enqueue appends a job to the tail of the persisted queue.
func (s *Store) Enqueue(ctx context.Context, j QueuedJob) error {
	if err := j.Job.Validate(); err != nil {
		return err
	}
	q, err := s.Read(ctx)
	if err != nil {
		return err
	}
	q.Push(j)
	return s.Write(ctx, q)
}

// Clear overwrites the persisted queue with an empty one.
func (s *Store) Clear(ctx context.Context) error {
	return s.Write(ctx, Queue{})
}
