// Package testutil provides database fixtures for integration tests.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"storefront/internal/migrate"
)

const testLockKey int64 = 727401

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// Pool connects to TEST_DB_DSN, or to a throwaway Postgres container when
// the variable is unset, applies migrations and truncates every table. The
// test is skipped when no database can be reached.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		containerOnce.Do(func() {
			containerDSN, containerErr = startContainer(ctx)
		})
		if containerErr != nil {
			t.Skipf("postgres not available: %v", containerErr)
		}
		dsn = containerDSN
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)

	// Packages sharing TEST_DB_DSN run as separate processes; hold a session
	// lock for the whole test so they take turns.
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock connection: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testLockKey); err != nil {
		conn.Release()
		t.Fatalf("take test lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testLockKey)
		conn.Release()
	})

	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	Reset(t, pool)
	return pool
}

// Reset truncates all application tables.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	const q = `TRUNCATE outbox, reviews, entitlements, order_lines, orders, cart_merges, cart_lines, carts, products, tokens, customers RESTART IDENTITY CASCADE`
	if _, err := pool.Exec(context.Background(), q); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// InsertCustomer creates a bare customer row and returns its id.
func InsertCustomer(t *testing.T, pool *pgxpool.Pool, username string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(), `
INSERT INTO customers (username, email, password_hash)
VALUES ($1, $1 || '@example.com', 'x')
RETURNING id::text
`, username).Scan(&id)
	if err != nil {
		t.Fatalf("insert customer: %v", err)
	}
	return id
}

// InsertProduct creates a product row and returns its id.
func InsertProduct(t *testing.T, pool *pgxpool.Pool, name string, priceCents int64, tags ...string) string {
	t.Helper()
	if tags == nil {
		tags = []string{}
	}
	var id string
	err := pool.QueryRow(context.Background(), `
INSERT INTO products (name, description, price_cents, tags, image_url)
VALUES ($1, 'desc', $2, $3, 'https://example.com/p.jpg')
RETURNING id::text
`, name, priceCents, tags).Scan(&id)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	return id
}

func startContainer(ctx context.Context) (string, error) {
	startCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	c, err := postgres.Run(startCtx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront_test"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return "", err
	}
	return c.ConnectionString(startCtx, "sslmode=disable")
}
