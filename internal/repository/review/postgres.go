package review

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

func (r *postgresRepo) Create(ctx context.Context, rv domain.Review) (*domain.Review, error) {
	out := rv
	err := r.pool.QueryRow(ctx, `
INSERT INTO reviews (user_id, product_id, rating, comment)
VALUES ($1, $2, $3, $4)
RETURNING id::text, created_at
`, rv.UserID, rv.ProductID, rv.Rating, rv.Comment).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("review repo: create product_id=%s error=%v", rv.ProductID, err)
		return nil, err
	}
	return &out, nil
}

func (r *postgresRepo) ListByProduct(ctx context.Context, productID string) ([]domain.Review, error) {
	if _, err := uuid.Parse(productID); err != nil {
		return []domain.Review{}, nil
	}
	rows, err := r.pool.Query(ctx, `
SELECT r.id::text, r.user_id::text, c.username, r.product_id::text, r.rating, r.comment, r.created_at
FROM reviews r
JOIN customers c ON c.id = r.user_id
WHERE r.product_id = $1
ORDER BY r.created_at, r.id
`, productID)
	if err != nil {
		r.logger.Printf("review repo: list product_id=%s error=%v", productID, err)
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Review, error) {
		var rv domain.Review
		err := row.Scan(&rv.ID, &rv.UserID, &rv.Username, &rv.ProductID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
		return rv, err
	})
}
