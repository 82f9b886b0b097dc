package customer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"

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

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const customerColumns = `id::text, username, email, password_hash, is_admin, saved_shipping, saved_payment, created_at`

func (r *postgresRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	shipJSON, err := marshalNullable(c.SavedShipping)
	if err != nil {
		return nil, err
	}
	payJSON, err := marshalNullable(c.SavedPayment)
	if err != nil {
		return nil, err
	}

	q := `
INSERT INTO customers (username, email, password_hash, is_admin, saved_shipping, saved_payment)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + customerColumns
	return r.scanCustomer(r.pool.QueryRow(
		ctx,
		q,
		c.Username,
		strings.ToLower(c.Email),
		c.PasswordHash,
		c.IsAdmin,
		shipJSON,
		payJSON,
	))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = lower($1) LIMIT 1`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, email))
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	q := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 LIMIT 1`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) UpdateProfile(ctx context.Context, id string, profile domain.SavedProfile) (*domain.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	shipJSON, err := marshalNullable(profile.Shipping)
	if err != nil {
		return nil, err
	}
	payJSON, err := marshalNullable(profile.Payment)
	if err != nil {
		return nil, err
	}
	q := `
UPDATE customers
SET saved_shipping = COALESCE($2, saved_shipping),
    saved_payment = COALESCE($3, saved_payment)
WHERE id = $1
RETURNING ` + customerColumns
	c, err := r.scanCustomer(r.pool.QueryRow(ctx, q, id, shipJSON, payJSON))
	if err != nil {
		return nil, err
	}
	r.logger.Printf("customer repo: updated profile id=%s shipping=%t payment=%t", id, profile.Shipping != nil, profile.Payment != nil)
	return c, nil
}

func (r *postgresRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	var shipJSON, payJSON []byte
	err := row.Scan(
		&c.ID,
		&c.Username,
		&c.Email,
		&c.PasswordHash,
		&c.IsAdmin,
		&shipJSON,
		&payJSON,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Printf("customer repo: scan error=%v", err)
		return nil, err
	}
	if len(shipJSON) > 0 {
		if err := json.Unmarshal(shipJSON, &c.SavedShipping); err != nil {
			r.logger.Printf("customer repo: decode shipping id=%s err=%v", c.ID, err)
			return nil, err
		}
	}
	if len(payJSON) > 0 {
		if err := json.Unmarshal(payJSON, &c.SavedPayment); err != nil {
			r.logger.Printf("customer repo: decode payment id=%s err=%v", c.ID, err)
			return nil, err
		}
	}
	return &c, nil
}

// marshalNullable encodes v as JSON, or returns nil for a nil pointer so the
// column is written as SQL NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
