package catalog

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
)

type productGetter interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type resolved struct {
	product *domain.Product
	err     error
}

// Resolver caches lookups for the duration of one cart computation.
// Concurrent lookups of one id share a single catalog call. Only found and
// not-found outcomes are cached; transient failures are retried on the next
// call.
type Resolver struct {
	catalog productGetter
	group   singleflight.Group

	mu    sync.Mutex
	cache map[string]resolved
}

func newResolver(catalog productGetter) *Resolver {
	return &Resolver{catalog: catalog, cache: make(map[string]resolved)}
}

// Resolve returns the product or ErrProductNotFound.
func (r *Resolver) Resolve(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	hit, ok := r.cache[id]
	r.mu.Unlock()
	if ok {
		return hit.product, hit.err
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.Lock()
		hit, ok := r.cache[id]
		r.mu.Unlock()
		if ok {
			return hit.product, hit.err
		}
		p, err := r.catalog.Get(ctx, id)
		if err == nil || errors.Is(err, domain.ErrProductNotFound) {
			r.mu.Lock()
			r.cache[id] = resolved{product: p, err: err}
			r.mu.Unlock()
		}
		return p, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}
