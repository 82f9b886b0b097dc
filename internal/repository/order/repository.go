package order

import (
	"context"

	"storefront/internal/domain"
)

// Repository is the append-only order ledger.
type Repository interface {
	// Append durably writes the order with its lines and an order.placed
	// event. A reused idempotency key yields ErrAlreadyExists.
	Append(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Order, error)
}
