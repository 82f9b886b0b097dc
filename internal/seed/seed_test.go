package seed

import (
	"context"
	"testing"

	"storefront/internal/testutil"
)

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	pool := testutil.Pool(t)

	for i := 0; i < 2; i++ {
		if err := Apply(ctx, pool); err != nil {
			t.Fatalf("apply #%d: %v", i+1, err)
		}
	}

	var productCount, adminCount int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&productCount); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM customers WHERE is_admin`).Scan(&adminCount); err != nil {
		t.Fatalf("count admins: %v", err)
	}
	if productCount != len(products) || adminCount != 1 {
		t.Fatalf("expected %d products and 1 admin, got %d and %d", len(products), productCount, adminCount)
	}
}
