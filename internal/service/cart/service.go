package cart

import (
	"context"
	"strings"

	"storefront/internal/domain"
)

type cartStore interface {
	Read(ctx context.Context, ref domain.CartRef) ([]domain.CartLine, error)
	AddLine(ctx context.Context, ref domain.CartRef, line domain.CartLine) ([]domain.CartLine, error)
	RemoveLine(ctx context.Context, ref domain.CartRef, productID, variant string) ([]domain.CartLine, bool, error)
	SetQuantity(ctx context.Context, ref domain.CartRef, productID, variant string, quantity int) ([]domain.CartLine, bool, error)
	Clear(ctx context.Context, ref domain.CartRef) error
}

type pricer interface {
	Price(ctx context.Context, lines []domain.CartLine) (domain.PricedCart, error)
}

type productLookup interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
}

// Service applies cart operations and answers each with the repriced cart.
type Service struct {
	store    cartStore
	pricer   pricer
	products productLookup
}

func New(store cartStore, pricer pricer, products productLookup) *Service {
	return &Service{store: store, pricer: pricer, products: products}
}

func (s *Service) Read(ctx context.Context, ref domain.CartRef) (*domain.PricedCart, error) {
	lines, err := s.store.Read(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.price(ctx, lines)
}

// Add rejects quantities below 1 and products the catalog cannot resolve.
func (s *Service) Add(ctx context.Context, ref domain.CartRef, productID, variant string, quantity int) (*domain.PricedCart, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, domain.ErrProductNotFound
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	lines, err := s.store.AddLine(ctx, ref, domain.CartLine{
		ProductID: productID,
		Variant:   strings.TrimSpace(variant),
		Quantity:  quantity,
	})
	if err != nil {
		return nil, err
	}
	return s.price(ctx, lines)
}

// Remove returns the unchanged cart together with ErrLineNotFound when no
// line matched.
func (s *Service) Remove(ctx context.Context, ref domain.CartRef, productID, variant string) (*domain.PricedCart, error) {
	lines, found, err := s.store.RemoveLine(ctx, ref, strings.TrimSpace(productID), strings.TrimSpace(variant))
	if err != nil {
		return nil, err
	}
	return s.priceFound(ctx, lines, found)
}

// SetQuantity removes the line for quantity < 1. Like Remove it reports
// ErrLineNotFound alongside the cart.
func (s *Service) SetQuantity(ctx context.Context, ref domain.CartRef, productID, variant string, quantity int) (*domain.PricedCart, error) {
	lines, found, err := s.store.SetQuantity(ctx, ref, strings.TrimSpace(productID), strings.TrimSpace(variant), quantity)
	if err != nil {
		return nil, err
	}
	return s.priceFound(ctx, lines, found)
}

func (s *Service) Clear(ctx context.Context, ref domain.CartRef) (*domain.PricedCart, error) {
	if err := s.store.Clear(ctx, ref); err != nil {
		return nil, err
	}
	return &domain.PricedCart{Lines: []domain.PricedLine{}}, nil
}

func (s *Service) priceFound(ctx context.Context, lines []domain.CartLine, found bool) (*domain.PricedCart, error) {
	cart, err := s.price(ctx, lines)
	if err != nil {
		return nil, err
	}
	if !found {
		return cart, domain.ErrLineNotFound
	}
	return cart, nil
}

func (s *Service) price(ctx context.Context, lines []domain.CartLine) (*domain.PricedCart, error) {
	cart, err := s.pricer.Price(ctx, lines)
	if err != nil {
		return nil, err
	}
	return &cart, nil
}
