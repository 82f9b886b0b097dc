package cart

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/domain"
)

// postgresRepo is the account-persisted backing. Every mutation locks the
// owner's carts row first, so writers for one user are applied one at a time
// and readers only ever see committed states.
type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) AccountBacking {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Read(ctx context.Context, owner string) ([]domain.CartLine, error) {
	lines, err := readLines(ctx, r.pool, owner)
	return lines, mapPgErr(err)
}

func (r *postgresRepo) AddLine(ctx context.Context, owner string, line domain.CartLine) ([]domain.CartLine, error) {
	if !domain.ValidQuantity(line.Quantity) {
		return nil, domain.ErrInvalidQuantity
	}
	var lines []domain.CartLine
	err := r.inLockedCart(ctx, owner, func(tx pgx.Tx) (bool, error) {
		qty, err := upsertLine(ctx, tx, owner, line)
		if err != nil {
			return false, err
		}
		if qty > domain.MaxLineQuantity {
			return false, domain.ErrInvalidQuantity
		}
		lines, err = readLines(ctx, tx, owner)
		return true, err
	})
	if errors.Is(err, domain.ErrInvalidQuantity) {
		return nil, err
	}
	if err != nil {
		r.logger.Printf("cart repo: add user_id=%s product_id=%s error=%v", owner, line.ProductID, err)
		return nil, err
	}
	return lines, nil
}

func (r *postgresRepo) RemoveLine(ctx context.Context, owner, productID, variant string) ([]domain.CartLine, bool, error) {
	var (
		lines   []domain.CartLine
		removed bool
	)
	err := r.inLockedCart(ctx, owner, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx, `
DELETE FROM cart_lines
WHERE user_id = $1 AND product_id::text = $2 AND variant = $3
`, owner, productID, variant)
		if err != nil {
			return false, err
		}
		removed = tag.RowsAffected() > 0
		lines, err = readLines(ctx, tx, owner)
		return removed, err
	})
	if err != nil {
		r.logger.Printf("cart repo: remove user_id=%s product_id=%s error=%v", owner, productID, err)
		return nil, false, err
	}
	return lines, removed, nil
}

func (r *postgresRepo) SetQuantity(ctx context.Context, owner, productID, variant string, quantity int) ([]domain.CartLine, bool, error) {
	if quantity < 1 {
		return r.RemoveLine(ctx, owner, productID, variant)
	}
	if quantity > domain.MaxLineQuantity {
		return nil, false, domain.ErrInvalidQuantity
	}
	var (
		lines []domain.CartLine
		found bool
	)
	err := r.inLockedCart(ctx, owner, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = $4
WHERE user_id = $1 AND product_id::text = $2 AND variant = $3
`, owner, productID, variant, quantity)
		if err != nil {
			return false, err
		}
		found = tag.RowsAffected() > 0
		lines, err = readLines(ctx, tx, owner)
		return found, err
	})
	if err != nil {
		r.logger.Printf("cart repo: set quantity user_id=%s product_id=%s error=%v", owner, productID, err)
		return nil, false, err
	}
	return lines, found, nil
}

func (r *postgresRepo) Subtract(ctx context.Context, owner string, taken []domain.CartLine) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	err := r.inLockedCart(ctx, owner, func(tx pgx.Tx) (bool, error) {
		changed := false
		for _, t := range taken {
			if t.Quantity <= 0 {
				continue
			}
			del, err := tx.Exec(ctx, `
DELETE FROM cart_lines
WHERE user_id = $1 AND product_id::text = $2 AND variant = $3 AND quantity <= $4
`, owner, t.ProductID, t.Variant, t.Quantity)
			if err != nil {
				return false, err
			}
			upd, err := tx.Exec(ctx, `
UPDATE cart_lines
SET quantity = quantity - $4
WHERE user_id = $1 AND product_id::text = $2 AND variant = $3 AND quantity > $4
`, owner, t.ProductID, t.Variant, t.Quantity)
			if err != nil {
				return false, err
			}
			changed = changed || del.RowsAffected() > 0 || upd.RowsAffected() > 0
		}
		var err error
		lines, err = readLines(ctx, tx, owner)
		return changed, err
	})
	if err != nil {
		r.logger.Printf("cart repo: subtract user_id=%s error=%v", owner, err)
		return nil, err
	}
	return lines, nil
}

func (r *postgresRepo) Clear(ctx context.Context, owner string) error {
	err := r.inLockedCart(ctx, owner, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, owner)
		return tag.RowsAffected() > 0, err
	})
	if err != nil {
		r.logger.Printf("cart repo: clear user_id=%s error=%v", owner, err)
	}
	return err
}

func (r *postgresRepo) MergeLines(ctx context.Context, userID, mergeKey string, lines []domain.CartLine) ([]domain.CartLine, domain.MergeOutcome, error) {
	var (
		result  []domain.CartLine
		outcome domain.MergeOutcome
	)
	err := r.inLockedCart(ctx, userID, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx, `
INSERT INTO cart_merges (merge_key, user_id)
VALUES ($1, $2)
ON CONFLICT (merge_key) DO NOTHING
`, mergeKey, userID)
		if err != nil {
			return false, err
		}
		if tag.RowsAffected() > 0 {
			outcome = domain.MergeApplied
			for _, line := range lines {
				if line.Quantity <= 0 {
					continue
				}
				if err := mergeLine(ctx, tx, userID, line); err != nil {
					return false, err
				}
			}
		} else {
			var sameUser bool
			if err := tx.QueryRow(ctx, `SELECT user_id = $2::uuid FROM cart_merges WHERE merge_key = $1`, mergeKey, userID).Scan(&sameUser); err != nil {
				return false, err
			}
			outcome = domain.MergeClaimed
			if sameUser {
				outcome = domain.MergeReplayed
			}
		}
		result, err = readLines(ctx, tx, userID)
		return outcome == domain.MergeApplied, err
	})
	if err != nil {
		r.logger.Printf("cart repo: merge user_id=%s key=%s error=%v", userID, mergeKey, err)
		return nil, 0, err
	}
	r.logger.Printf("cart repo: merge user_id=%s key=%s lines=%d outcome=%s", userID, mergeKey, len(lines), outcome)
	return result, outcome, nil
}

// inLockedCart runs fn in a transaction holding the owner's cart row lock and
// bumps the cart version when fn reports a change.
func (r *postgresRepo) inLockedCart(ctx context.Context, owner string, fn func(tx pgx.Tx) (bool, error)) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, owner); err != nil {
		return mapPgErr(err)
	}
	var version int64
	if err := tx.QueryRow(ctx, `SELECT version FROM carts WHERE user_id = $1 FOR UPDATE`, owner).Scan(&version); err != nil {
		return mapPgErr(err)
	}

	changed, err := fn(tx)
	if err != nil {
		return mapPgErr(err)
	}
	if changed {
		if _, err := tx.Exec(ctx, `UPDATE carts SET version = $2 + 1, updated_at = now() WHERE user_id = $1`, owner, version); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readLines(ctx context.Context, q querier, owner string) ([]domain.CartLine, error) {
	rows, err := q.Query(ctx, `
SELECT product_id::text, variant, quantity
FROM cart_lines
WHERE user_id = $1
ORDER BY id
`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var l domain.CartLine
		if err := rows.Scan(&l.ProductID, &l.Variant, &l.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// upsertLine adds line to the cart and returns the resulting quantity.
func upsertLine(ctx context.Context, tx pgx.Tx, owner string, line domain.CartLine) (int, error) {
	var qty int
	err := tx.QueryRow(ctx, `
INSERT INTO cart_lines (user_id, product_id, variant, quantity)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, product_id, variant) DO UPDATE
SET quantity = cart_lines.quantity + EXCLUDED.quantity
RETURNING quantity
`, owner, line.ProductID, line.Variant, line.Quantity).Scan(&qty)
	return qty, err
}

// mergeLine is upsertLine capped at MaxLineQuantity.
func mergeLine(ctx context.Context, tx pgx.Tx, owner string, line domain.CartLine) error {
	_, err := tx.Exec(ctx, `
INSERT INTO cart_lines (user_id, product_id, variant, quantity)
VALUES ($1, $2, $3, LEAST($4::int, $5::int))
ON CONFLICT (user_id, product_id, variant) DO UPDATE
SET quantity = LEAST(cart_lines.quantity + EXCLUDED.quantity, $5::int)
`, owner, line.ProductID, line.Variant, line.Quantity, domain.MaxLineQuantity)
	return err
}

// mapPgErr turns an unknown user (foreign key) or a malformed uuid into ErrNotFound.
func mapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503", "22P02":
			return domain.ErrNotFound
		}
	}
	return err
}
