package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

// ErrInvalidProduct is returned by Save for a product without a name or with a
// negative price.
var ErrInvalidProduct = errors.New("invalid product")

type entitlementSource interface {
	ListProductIDs(ctx context.Context, userID string) ([]string, error)
}

// Service is the product catalog facing the API and the pricing engine.
type Service struct {
	repo         productrepo.Repository
	entitlements entitlementSource
	logger       *log.Logger
}

func New(repo productrepo.Repository, entitlements entitlementSource, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{repo: repo, entitlements: entitlements, logger: logger}
}

// Get returns ErrProductNotFound for unknown or deleted products.
func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProductNotFound
	}
	return p, err
}

// NewResolver returns a lookup cache scoped to one cart computation.
func (s *Service) NewResolver() *Resolver {
	return newResolver(s)
}

// Filter narrows a catalog listing. Zero values match everything.
type Filter struct {
	Keyword       string
	Category      string
	MinPriceCents *int64
	MaxPriceCents *int64
}

func (f Filter) matches(p domain.Product) bool {
	if f.Keyword != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Keyword)) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.MinPriceCents != nil && p.PriceCents < *f.MinPriceCents {
		return false
	}
	if f.MaxPriceCents != nil && p.PriceCents > *f.MaxPriceCents {
		return false
	}
	return true
}

// List returns filtered products. For a signed-in viewer, products sharing a
// tag with anything the viewer is entitled to come first.
func (s *Service) List(ctx context.Context, filter Filter, viewerID string) ([]domain.Product, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if filter.matches(p) {
			products = append(products, p)
		}
	}
	if viewerID == "" || s.entitlements == nil {
		return products, nil
	}

	ids, err := s.entitlements.ListProductIDs(ctx, viewerID)
	if err != nil {
		// Recommendations are best effort; the plain listing still serves.
		s.logger.Printf("catalog: entitlements user_id=%s error=%v", viewerID, err)
		return products, nil
	}
	tags, err := s.repo.ListTagsByIDs(ctx, ids)
	if err != nil {
		s.logger.Printf("catalog: entitled tags user_id=%s error=%v", viewerID, err)
		return products, nil
	}
	return RankByTags(products, tags), nil
}

// RankByTags moves products carrying any of tags to the front, keeping the
// relative order inside both groups.
func RankByTags(products []domain.Product, tags []string) []domain.Product {
	if len(tags) == 0 {
		return products
	}
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}
	recommended := make([]domain.Product, 0, len(products))
	rest := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if hasAnyTag(p, want) {
			recommended = append(recommended, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(recommended, rest...)
}

func hasAnyTag(p domain.Product, want map[string]struct{}) bool {
	for _, t := range p.Tags {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}

// Save creates or updates a product by name.
func (s *Service) Save(ctx context.Context, p domain.Product) (*domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidProduct)
	}
	if p.PriceCents < 0 {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return s.repo.Upsert(ctx, p)
}

// Delete removes a product. Cart lines pointing at it are left alone.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrProductNotFound
	}
	return err
}
