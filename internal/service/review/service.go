package review

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain"
	reviewrepo "storefront/internal/repository/review"
)

var (
	// ErrNotEntitled is returned when the author never bought the product.
	ErrNotEntitled = errors.New("only verified purchasers may review this product")
	// ErrInvalidRating is returned for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

type entitlementChecker interface {
	Has(ctx context.Context, userID, productID string) (bool, error)
}

type productLookup interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type Service struct {
	repo         reviewrepo.Repository
	products     productLookup
	entitlements entitlementChecker
}

func New(repo reviewrepo.Repository, products productLookup, entitlements entitlementChecker) *Service {
	return &Service{repo: repo, products: products, entitlements: entitlements}
}

func (s *Service) Create(ctx context.Context, userID, productID string, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	ok, err := s.entitlements.Has(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEntitled
	}
	return s.repo.Create(ctx, domain.Review{
		UserID:    userID,
		ProductID: productID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
	})
}

func (s *Service) List(ctx context.Context, productID string) ([]domain.Review, error) {
	return s.repo.ListByProduct(ctx, productID)
}
