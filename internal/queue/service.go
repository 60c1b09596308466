// Package queue implements a durable Postgres-backed job queue with
// at-least-once delivery and per-key ordering, used to carry bot
// interaction events from the HTTP layer to the delivery workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusClaimed = "claimed"
	StatusFailed  = "failed"
)

// Topics used by the server.
const (
	// TopicBotInteraction carries interaction events to delivery workers,
	// keyed by bot ID so each bot sees its interactions in enqueue order.
	TopicBotInteraction = "bot_interaction"
)

// Job is one queued unit of work.
type Job struct {
	ID       int64
	Topic    string
	Key      string
	Payload  json.RawMessage
	Attempts int
}

// Service provides enqueue and worker-side claim/complete/fail operations.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a queue service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "queue")),
	}
}

// Enqueue appends a job for the topic. Jobs with the same key are delivered
// in enqueue order.
func (s *Service) Enqueue(ctx context.Context, topic, key string, payload any) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO queue_jobs (topic, key, payload) VALUES ($1, $2, $3) RETURNING id`,
		topic, key, raw,
	).Scan(&id)
	return id, err
}

// Claim picks the oldest deliverable pending job for the topic and marks it
// claimed until the deadline. A key with an in-flight job, or whose oldest
// pending job is not this one, is skipped to preserve per-key ordering.
// Returns nil when no job is ready.
func (s *Service) Claim(ctx context.Context, topic string, claimTTL time.Duration) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT j.id FROM queue_jobs j
			WHERE j.topic = $1
			  AND j.status = 'pending'
			  AND j.scheduled_at <= now()
			  AND NOT EXISTS (
				SELECT 1 FROM queue_jobs c
				WHERE c.topic = j.topic AND c.key = j.key AND c.status = 'claimed'
			  )
			  AND NOT EXISTS (
				SELECT 1 FROM queue_jobs o
				WHERE o.topic = j.topic AND o.key = j.key AND o.status = 'pending' AND o.id < j.id
			  )
			ORDER BY j.id
			LIMIT 1
			FOR UPDATE OF j SKIP LOCKED
		)
		UPDATE queue_jobs SET
			status = 'claimed',
			attempts = attempts + 1,
			claimed_until = now() + make_interval(secs => $2),
			updated_at = now()
		WHERE id IN (SELECT id FROM next)
		RETURNING id, topic, key, payload, attempts`,
		topic, claimTTL.Seconds(),
	)
	var job Job
	err := row.Scan(&job.ID, &job.Topic, &job.Key, &job.Payload, &job.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// Complete removes a delivered job.
func (s *Service) Complete(ctx context.Context, jobID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM queue_jobs WHERE id = $1`, jobID)
	return err
}

// Fail dead-letters a job: it stays in the table with status failed for
// inspection but is never delivered again.
func (s *Service) Fail(ctx context.Context, jobID int64, deliveryErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1`,
		jobID, deliveryErr)
	return err
}

// ReleaseExpired returns claims whose deadline passed (crashed worker) to
// pending so another worker redelivers them.
func (s *Service) ReleaseExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs SET status = 'pending', claimed_until = NULL, updated_at = now()
		WHERE status = 'claimed' AND claimed_until < now()`)
	if err != nil {
		return 0, err
	}
	released := tag.RowsAffected()
	if released > 0 {
		s.logger.Warn("released expired queue claims", slog.Int64("count", released))
	}
	return released, nil
}
