package product

import (
	"context"

	"storefront/internal/domain"
)

// Repository is the product catalog store.
type Repository interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	Delete(ctx context.Context, id string) error
	ListTagsByIDs(ctx context.Context, ids []string) ([]string, error)
}
