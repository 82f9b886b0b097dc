package customer

import (
	"context"

	"storefront/internal/domain"
)

// Repository persists and fetches customers.
type Repository interface {
	Create(ctx context.Context, c domain.Customer) (*domain.Customer, error)
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
	// UpdateProfile replaces the non-nil parts of the saved profile.
	UpdateProfile(ctx context.Context, id string, profile domain.SavedProfile) (*domain.Customer, error)
}
