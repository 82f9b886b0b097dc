package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/domain"
)

type stubRepo struct {
	products map[string]domain.Product
	order    []string
	tags     []string
	getCalls atomic.Int32
	lastIDs  []string
	failGet  error
}

func newStubRepo(ps ...domain.Product) *stubRepo {
	r := &stubRepo{products: make(map[string]domain.Product)}
	for _, p := range ps {
		r.products[p.ID] = p
		r.order = append(r.order, p.ID)
	}
	return r
}

func (r *stubRepo) List(context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.products[id])
	}
	return out, nil
}

func (r *stubRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.getCalls.Add(1)
	if r.failGet != nil {
		return nil, r.failGet
	}
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *stubRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	return &p, nil
}

func (r *stubRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.products[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *stubRepo) ListTagsByIDs(_ context.Context, ids []string) ([]string, error) {
	r.lastIDs = ids
	return r.tags, nil
}

type stubEntitlements struct {
	ids []string
}

func (s stubEntitlements) ListProductIDs(context.Context, string) ([]string, error) {
	return s.ids, nil
}

func TestGet_MapsNotFound(t *testing.T) {
	svc := New(newStubRepo(), nil, nil)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestResolver_CachesFoundAndMissing(t *testing.T) {
	repo := newStubRepo(domain.Product{ID: "p1", PriceCents: 100})
	r := New(repo, nil, nil).NewResolver()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(ctx, "p1"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	wg.Wait()
	r.Resolve(ctx, "gone")
	r.Resolve(ctx, "gone")

	if got := repo.getCalls.Load(); got != 2 {
		t.Fatalf("expected 2 catalog calls, got %d", got)
	}
}

func TestResolver_DoesNotCacheFailures(t *testing.T) {
	repo := newStubRepo(domain.Product{ID: "p1"})
	repo.failGet = errors.New("db down")
	r := New(repo, nil, nil).NewResolver()
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "p1"); err == nil {
		t.Fatalf("expected error")
	}
	repo.failGet = nil
	if _, err := r.Resolve(ctx, "p1"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
}

func TestList_FiltersAndRecommends(t *testing.T) {
	repo := newStubRepo(
		domain.Product{ID: "a", Name: "Tent", Category: "outdoor", PriceCents: 5000, Tags: []string{"camping"}},
		domain.Product{ID: "b", Name: "Mug", Category: "kitchen", PriceCents: 800, Tags: []string{"coffee"}},
		domain.Product{ID: "c", Name: "Stove", Category: "outdoor", PriceCents: 3000, Tags: []string{"camping", "cooking"}},
		domain.Product{ID: "d", Name: "Kettle", Category: "kitchen", PriceCents: 2000, Tags: []string{"coffee"}},
	)
	repo.tags = []string{"coffee"}
	svc := New(repo, stubEntitlements{ids: []string{"b"}}, nil)
	ctx := context.Background()

	got, err := svc.List(ctx, Filter{}, "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	ids := productIDs(got)
	if ids != "b,d,a,c" {
		t.Fatalf("expected coffee products first, got %s", ids)
	}
	if len(repo.lastIDs) != 1 || repo.lastIDs[0] != "b" {
		t.Fatalf("unexpected tag lookup ids %v", repo.lastIDs)
	}

	got, _ = svc.List(ctx, Filter{}, "")
	if ids := productIDs(got); ids != "a,b,c,d" {
		t.Fatalf("expected catalog order for guests, got %s", ids)
	}

	maxPrice := int64(3000)
	got, _ = svc.List(ctx, Filter{Category: "OUTDOOR", MaxPriceCents: &maxPrice}, "")
	if ids := productIDs(got); ids != "c" {
		t.Fatalf("unexpected filtered ids %s", ids)
	}
	got, _ = svc.List(ctx, Filter{Keyword: "ket"}, "")
	if ids := productIDs(got); ids != "d" {
		t.Fatalf("unexpected keyword ids %s", ids)
	}
}

func productIDs(ps []domain.Product) string {
	out := ""
	for i, p := range ps {
		if i > 0 {
			out += ","
		}
		out += p.ID
	}
	return out
}

func TestSaveAndDelete(t *testing.T) {
	svc := New(newStubRepo(domain.Product{ID: "a", Name: "A"}), nil, nil)
	ctx := context.Background()

	if _, err := svc.Save(ctx, domain.Product{Name: "  "}); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct for blank name, got %v", err)
	}
	if _, err := svc.Save(ctx, domain.Product{Name: "B", PriceCents: -1}); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct for negative price, got %v", err)
	}
	p, err := svc.Save(ctx, domain.Product{Name: " B ", PriceCents: 100})
	if err != nil || p.Name != "B" {
		t.Fatalf("Save: %+v %v", p, err)
	}

	if err := svc.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "a"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}
