package seed

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type productSeed struct {
	Name        string
	Description string
	PriceCents  int64
	Category    string
	Tags        []string
}

type customerSeed struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
}

var products = []productSeed{
	{Name: "Demo T-Shirt", Description: "Soft cotton tee", PriceCents: 1999, Category: "apparel", Tags: []string{"cotton", "summer"}},
	{Name: "Demo Hoodie", Description: "Heavy fleece hoodie", PriceCents: 4999, Category: "apparel", Tags: []string{"cotton", "winter"}},
	{Name: "Demo Mug", Description: "Ceramic mug with demo logo", PriceCents: 1299, Category: "kitchen", Tags: []string{"ceramic", "coffee"}},
	{Name: "Demo Pour-Over", Description: "Glass pour-over coffee maker", PriceCents: 3499, Category: "kitchen", Tags: []string{"coffee", "glass"}},
	{Name: "Demo Lamp", Description: "Warm desk lamp", PriceCents: 2899, Category: "home", Tags: []string{"lighting"}},
}

var customers = []customerSeed{
	{Username: "demo", Email: "demo@example.com", Password: "demo123"},
	{Username: "admin", Email: "admin@example.com", Password: "admin123", IsAdmin: true},
}

// Apply inserts basic seed data for manual testing. It is idempotent via ON CONFLICT.
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range products {
		if err := upsertProduct(ctx, pool, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Name, err)
		}
	}
	for _, c := range customers {
		if err := ensureCustomer(ctx, pool, c); err != nil {
			return fmt.Errorf("ensure customer %s: %w", c.Username, err)
		}
	}
	return nil
}

func upsertProduct(ctx context.Context, pool *pgxpool.Pool, p productSeed) error {
	const q = `
INSERT INTO products (name, description, price_cents, category, tags)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE
SET description = EXCLUDED.description,
    price_cents = EXCLUDED.price_cents,
    category = EXCLUDED.category,
    tags = EXCLUDED.tags
`
	_, err := pool.Exec(ctx, q, p.Name, p.Description, p.PriceCents, p.Category, p.Tags)
	return err
}

// ensureCustomer leaves an existing account, including its password, alone.
func ensureCustomer(ctx context.Context, pool *pgxpool.Pool, c customerSeed) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO customers (username, email, password_hash, is_admin)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING
`
	_, err = pool.Exec(ctx, q, c.Username, c.Email, string(hash), c.IsAdmin)
	return err
}
