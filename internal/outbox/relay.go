package outbox

import (
	"context"
	"io"
	"log"
	"time"
)

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed returns the event to pending, or parks it as failed once
	// maxAttempts is reached.
	MarkFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) error
}

type Relay struct {
	logger      *log.Logger
	store       Store
	dispatch    *Dispatcher
	relayID     string
	batchSize   int
	interval    time.Duration
	lease       time.Duration
	maxAttempts int
}

func NewRelay(logger *log.Logger, store Store, dispatch *Dispatcher, relayID string) *Relay {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Relay{
		logger:      logger,
		store:       store,
		dispatch:    dispatch,
		relayID:     relayID,
		batchSize:   100,
		interval:    500 * time.Millisecond,
		lease:       30 * time.Second,
		maxAttempts: 10,
	}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("outbox: relay stopping relay_id=%s", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.ProcessOnce(ctx); err != nil {
				r.logger.Printf("outbox: relay batch error=%v", err)
			}
		}
	}
}

// ProcessOnce dispatches one batch and reports how many events were sent.
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			if markErr := r.store.MarkFailed(ctx, e.ID, err.Error(), r.maxAttempts); markErr != nil {
				r.logger.Printf("outbox: mark failed event_id=%d error=%v", e.ID, markErr)
			}
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
