package outbox

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Enqueue writes a pending event inside the caller's transaction.
func Enqueue(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte) error {
	_, err := tx.Exec(ctx, `
INSERT INTO outbox (aggregate_id, type, payload, status)
VALUES ($1, $2, $3, 'pending')
`, aggregateID, eventType, payload)
	return err
}

type postgresStore struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *log.Logger) Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresStore{pool: pool, logger: logger}
}

// LockBatch claims pending events, and in-progress events whose lease ran out.
func (s *postgresStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
SELECT id, aggregate_id, type, payload, status, attempts, last_error, created_at
FROM outbox
WHERE status = 'pending'
   OR (status = 'in_progress' AND locked_until < now())
ORDER BY id
FOR UPDATE SKIP LOCKED
LIMIT $1
`, batchSize)
	if err != nil {
		return nil, err
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		err := row.Scan(&e.ID, &e.AggregateID, &e.Type, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	_, err = tx.Exec(ctx, `
UPDATE outbox
SET status = 'in_progress', locked_by = $1, locked_until = now() + $2 * interval '1 millisecond'
WHERE id = ANY($3)
`, relayID, lease.Milliseconds(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *postgresStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', locked_by = NULL, locked_until = NULL WHERE id = ANY($1)`, ids)
	return err
}

func (s *postgresStore) MarkFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) error {
	_, err := s.pool.Exec(ctx, `
UPDATE outbox
SET attempts = attempts + 1,
    last_error = $2,
    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
    locked_by = NULL,
    locked_until = NULL
WHERE id = $1
`, id, errMsg, maxAttempts)
	if err != nil {
		s.logger.Printf("outbox: mark failed id=%d error=%v", id, err)
	}
	return err
}
