package cart

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
	"storefront/internal/service/pricing"
)

type stubCatalog struct {
	prices map[string]int64
}

func (c *stubCatalog) Get(_ context.Context, id string) (*domain.Product, error) {
	price, ok := c.prices[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &domain.Product{ID: id, Name: id, PriceCents: price}, nil
}

func (c *stubCatalog) Resolve(ctx context.Context, id string) (*domain.Product, error) {
	return c.Get(ctx, id)
}

func newService(c *stubCatalog) *Service {
	store := cartrepo.NewStore(cartrepo.NewMemory(0), cartrepo.NewMemoryAccount())
	engine := pricing.New(func() pricing.Resolver { return c }, 2, nil)
	return New(store, engine, c)
}

func TestAdd_SumsDuplicateLines(t *testing.T) {
	svc := newService(&stubCatalog{prices: map[string]int64{"P": 1000}})
	ctx := context.Background()
	ref := domain.AnonymousCart("s1")

	if _, err := svc.Add(ctx, ref, "P", "", 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	cart, err := svc.Add(ctx, ref, "P", "", 3)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 5 || cart.TotalCents != 5000 {
		t.Fatalf("expected one line qty=5 total=5000, got %+v", cart)
	}
}

func TestAdd_Errors(t *testing.T) {
	svc := newService(&stubCatalog{prices: map[string]int64{"P": 1000}})
	ctx := context.Background()
	ref := domain.AccountCart("u1")

	if _, err := svc.Add(ctx, ref, "P", "", 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.Add(ctx, ref, "missing", "", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	cart, err := svc.Read(ctx, ref)
	if err != nil || len(cart.Lines) != 0 {
		t.Fatalf("expected untouched empty cart, got %+v err=%v", cart, err)
	}
}

func TestRemove_ReportsMissingLineWithCart(t *testing.T) {
	svc := newService(&stubCatalog{prices: map[string]int64{"P": 1000}})
	ctx := context.Background()
	ref := domain.AnonymousCart("s1")
	svc.Add(ctx, ref, "P", "M", 1)

	cart, err := svc.Remove(ctx, ref, "P", "L")
	if !errors.Is(err, domain.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
	if cart == nil || len(cart.Lines) != 1 {
		t.Fatalf("expected unchanged cart alongside error, got %+v", cart)
	}

	cart, err = svc.Remove(ctx, ref, "P", "M")
	if err != nil || len(cart.Lines) != 0 {
		t.Fatalf("Remove: %v %+v", err, cart)
	}
}

func TestSetQuantity(t *testing.T) {
	svc := newService(&stubCatalog{prices: map[string]int64{"P": 250}})
	ctx := context.Background()
	ref := domain.AccountCart("u1")
	svc.Add(ctx, ref, "P", "", 1)

	cart, err := svc.SetQuantity(ctx, ref, "P", "", 4)
	if err != nil || cart.TotalCents != 1000 {
		t.Fatalf("SetQuantity: %v %+v", err, cart)
	}
	cart, err = svc.SetQuantity(ctx, ref, "P", "", 0)
	if err != nil || len(cart.Lines) != 0 {
		t.Fatalf("SetQuantity 0 should remove: %v %+v", err, cart)
	}
	if _, err := svc.SetQuantity(ctx, ref, "P", "", 2); !errors.Is(err, domain.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
}

func TestRead_DropsDeletedProduct(t *testing.T) {
	catalog := &stubCatalog{prices: map[string]int64{"A": 100, "B": 200}}
	svc := newService(catalog)
	ctx := context.Background()
	ref := domain.AnonymousCart("s1")
	svc.Add(ctx, ref, "A", "", 1)
	svc.Add(ctx, ref, "B", "", 1)

	delete(catalog.prices, "B")
	cart, err := svc.Read(ctx, ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(cart.Lines) != 1 || cart.TotalCents != 100 || len(cart.Dropped) != 1 {
		t.Fatalf("expected B dropped, got %+v", cart)
	}
}

func TestClear(t *testing.T) {
	svc := newService(&stubCatalog{prices: map[string]int64{"A": 100}})
	ctx := context.Background()
	ref := domain.AnonymousCart("s1")
	svc.Add(ctx, ref, "A", "", 3)

	cart, err := svc.Clear(ctx, ref)
	if err != nil || len(cart.Lines) != 0 || cart.TotalCents != 0 {
		t.Fatalf("Clear: %v %+v", err, cart)
	}
	cart, _ = svc.Read(ctx, ref)
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty after clear, got %+v", cart)
	}
}
