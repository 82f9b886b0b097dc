package entitlement

import (
	"context"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
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

func (r *postgresRepo) Grant(ctx context.Context, e domain.Entitlement) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
INSERT INTO entitlements (user_id, product_id, order_id)
VALUES ($1, $2, NULLIF($3, '')::uuid)
ON CONFLICT (user_id, product_id) DO NOTHING
`, e.UserID, e.ProductID, e.OrderID)
	if err != nil {
		r.logger.Printf("entitlement repo: grant user_id=%s product_id=%s error=%v", e.UserID, e.ProductID, err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepo) Has(ctx context.Context, userID, productID string) (bool, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return false, nil
	}
	var ok bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM entitlements WHERE user_id = $1 AND product_id = $2)
`, userID, productID).Scan(&ok)
	return ok, err
}

func (r *postgresRepo) ListProductIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
SELECT product_id::text
FROM entitlements
WHERE user_id = $1
ORDER BY granted_at, product_id
`, userID)
	if err != nil {
		r.logger.Printf("entitlement repo: list user_id=%s error=%v", userID, err)
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
