package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/domain"
)

const (
	sessionKeyPrefix = "cart:session:"
	maxWatchRetries  = 8
)

// redisBacking stores each session cart as one JSON document under one key
// with a sliding TTL. Mutations run under WATCH so concurrent tabs never lose
// updates, and each write stamps a new revision.
type redisBacking struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

type sessionDoc struct {
	Revision string            `json:"revision"`
	Lines    []domain.CartLine `json:"lines"`
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *log.Logger) SessionBacking {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &redisBacking{client: client, ttl: ttl, logger: logger}
}

func (r *redisBacking) key(owner string) string {
	return sessionKeyPrefix + owner
}

func (r *redisBacking) Read(ctx context.Context, owner string) ([]domain.CartLine, error) {
	snap, err := r.load(ctx, r.client, r.key(owner))
	if err != nil {
		return nil, err
	}
	return snap.Lines, nil
}

func (r *redisBacking) Snapshot(ctx context.Context, owner string) (domain.CartSnapshot, error) {
	return r.load(ctx, r.client, r.key(owner))
}

func (r *redisBacking) load(ctx context.Context, c getter, key string) (domain.CartSnapshot, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CartSnapshot{Lines: []domain.CartLine{}}, nil
	}
	if err != nil {
		return domain.CartSnapshot{}, err
	}
	var doc sessionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("decode session cart %s: %w", key, err)
	}
	if doc.Lines == nil {
		doc.Lines = []domain.CartLine{}
	}
	return domain.CartSnapshot{Lines: doc.Lines, Revision: doc.Revision}, nil
}

func (r *redisBacking) update(ctx context.Context, owner string, fn mutation) ([]domain.CartLine, bool, error) {
	key := r.key(owner)
	var (
		result  []domain.CartLine
		changed bool
	)
	txf := func(tx *redis.Tx) error {
		snap, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		next, ok, err := fn(snap.Lines)
		if err != nil {
			return err
		}
		result, changed = next, ok
		if !ok {
			return nil
		}
		data, err := json.Marshal(sessionDoc{Revision: newRevision(), Lines: next})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, key)
			} else {
				pipe.Set(ctx, key, data, r.ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, changed, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, false, err
		}
		r.logger.Printf("session cart: watch conflict key=%s attempt=%d", key, attempt)
	}
	return nil, false, fmt.Errorf("session cart %s: %w", owner, domain.ErrUnavailable)
}

func (r *redisBacking) AddLine(ctx context.Context, owner string, line domain.CartLine) ([]domain.CartLine, error) {
	lines, _, err := r.update(ctx, owner, addMutation(line))
	return lines, err
}

func (r *redisBacking) RemoveLine(ctx context.Context, owner, productID, variant string) ([]domain.CartLine, bool, error) {
	return r.update(ctx, owner, removeMutation(productID, variant))
}

func (r *redisBacking) SetQuantity(ctx context.Context, owner, productID, variant string, quantity int) ([]domain.CartLine, bool, error) {
	return r.update(ctx, owner, setQuantityMutation(productID, variant, quantity))
}

func (r *redisBacking) Subtract(ctx context.Context, owner string, lines []domain.CartLine) ([]domain.CartLine, error) {
	left, _, err := r.update(ctx, owner, subtractMutation(lines))
	return left, err
}

func (r *redisBacking) Clear(ctx context.Context, owner string) error {
	_, _, err := r.update(ctx, owner, clearMutation)
	return err
}
