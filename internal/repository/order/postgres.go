package order

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
	"storefront/internal/outbox"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Append(ctx context.Context, o domain.Order) error {
	shipJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return err
	}
	payJSON, err := json.Marshal(o.Payment)
	if err != nil {
		return err
	}
	event, err := json.Marshal(o)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO orders (id, owner_id, total_cents, shipping, payment, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
`, o.ID, o.OwnerID, o.TotalCents, shipJSON, payJSON, o.IdempotencyKey, o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		r.logger.Printf("order repo: append id=%s error=%v", o.ID, err)
		return err
	}

	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`
INSERT INTO order_lines (order_id, position, product_id, variant, name, quantity, unit_price_cents, line_total_cents)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, o.ID, i, l.ProductID, l.Variant, l.Name, l.Quantity, l.UnitPriceCents, l.LineTotalCents)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		r.logger.Printf("order repo: append lines id=%s error=%v", o.ID, err)
		return err
	}

	if err := outbox.Enqueue(ctx, tx, o.ID, outbox.TypeOrderPlaced, event); err != nil {
		r.logger.Printf("order repo: enqueue event id=%s error=%v", o.ID, err)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.Printf("order repo: commit id=%s error=%v", o.ID, err)
		return err
	}
	r.logger.Printf("order repo: appended id=%s lines=%d total_cents=%d guest=%t", o.ID, len(o.Lines), o.TotalCents, o.IsGuest())
	return nil
}

const orderColumns = `id::text, owner_id::text, total_cents, shipping, payment, COALESCE(idempotency_key, ''), created_at`

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *postgresRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE idempotency_key = $1`, key)
}

func (r *postgresRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []domain.Order{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		r.logger.Printf("order repo: list owner_id=%s error=%v", ownerID, err)
		return nil, err
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return domain.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Lines, err = r.lines(ctx, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *postgresRepo) getOne(ctx context.Context, q string, arg string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, q, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("order repo: get error=%v", err)
		return nil, err
	}
	if o.Lines, err = r.lines(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                 domain.Order
		shipJSON, payJSON []byte
	)
	if err := row.Scan(&o.ID, &o.OwnerID, &o.TotalCents, &shipJSON, &payJSON, &o.IdempotencyKey, &o.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shipJSON, &o.Shipping); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payJSON, &o.Payment); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepo) lines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
SELECT product_id::text, variant, name, quantity, unit_price_cents, line_total_cents
FROM order_lines
WHERE order_id = $1
ORDER BY position
`, orderID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderLine, error) {
		var l domain.OrderLine
		err := row.Scan(&l.ProductID, &l.Variant, &l.Name, &l.Quantity, &l.UnitPriceCents, &l.LineTotalCents)
		return l, err
	})
}
