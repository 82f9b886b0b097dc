// Package pricing projects cart lines onto live catalog prices.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"golang.org/x/sync/errgroup"

	"storefront/internal/domain"
)

// ErrTotalOverflow reports a cart whose total does not fit in int64 cents.
var ErrTotalOverflow = errors.New("cart total overflows")

// Resolver looks up one product, returning domain.ErrProductNotFound when it
// is absent from the catalog.
type Resolver interface {
	Resolve(ctx context.Context, productID string) (*domain.Product, error)
}

// Engine prices carts. Each call gets a fresh Resolver so lookups are cached
// for that computation only.
type Engine struct {
	newResolver func() Resolver
	concurrency int
	logger      *log.Logger
}

func New(newResolver func() Resolver, concurrency int, logger *log.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{newResolver: newResolver, concurrency: concurrency, logger: logger}
}

// Price resolves every line concurrently and returns the lines in input
// order. Lines whose product no longer resolves are left out of the lines and
// the total and listed in Dropped.
func (e *Engine) Price(ctx context.Context, lines []domain.CartLine) (domain.PricedCart, error) {
	products, err := e.resolveAll(ctx, lines)
	if err != nil {
		return domain.PricedCart{}, err
	}

	cart := domain.PricedCart{Lines: make([]domain.PricedLine, 0, len(lines))}
	for i, line := range lines {
		p := products[i]
		if p == nil {
			cart.Dropped = append(cart.Dropped, line.ProductID)
			continue
		}
		if !domain.ValidQuantity(line.Quantity) {
			return domain.PricedCart{}, fmt.Errorf("price product %s quantity %d: %w", line.ProductID, line.Quantity, domain.ErrInvalidQuantity)
		}
		if p.PriceCents > math.MaxInt64/int64(line.Quantity) {
			return domain.PricedCart{}, fmt.Errorf("price product %s: %w", line.ProductID, ErrTotalOverflow)
		}
		total := p.PriceCents * int64(line.Quantity)
		if cart.TotalCents > math.MaxInt64-total {
			return domain.PricedCart{}, fmt.Errorf("price cart: %w", ErrTotalOverflow)
		}
		cart.Lines = append(cart.Lines, domain.PricedLine{
			CartLine:       line,
			Name:           p.Name,
			ImageURL:       p.ImageURL,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: total,
		})
		cart.TotalCents += total
	}
	if len(cart.Dropped) > 0 {
		e.logger.Printf("pricing: dropped unresolved products=%v", cart.Dropped)
	}
	return cart, nil
}

func (e *Engine) resolveAll(ctx context.Context, lines []domain.CartLine) ([]*domain.Product, error) {
	products := make([]*domain.Product, len(lines))
	resolver := e.newResolver()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, line := range lines {
		g.Go(func() error {
			p, err := resolver.Resolve(gctx, line.ProductID)
			if errors.Is(err, domain.ErrProductNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("resolve product %s: %w", line.ProductID, err)
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}
