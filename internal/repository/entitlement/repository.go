package entitlement

import (
	"context"

	"storefront/internal/domain"
)

// Repository records permanent (user, product) purchase grants.
type Repository interface {
	// Grant reports false when the user already held the product.
	Grant(ctx context.Context, e domain.Entitlement) (bool, error)
	Has(ctx context.Context, userID, productID string) (bool, error)
	ListProductIDs(ctx context.Context, userID string) ([]string, error)
}
