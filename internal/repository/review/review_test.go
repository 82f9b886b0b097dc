package review

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"storefront/internal/domain"
	"storefront/internal/testutil"
)

func TestPostgres_CreateAndList(t *testing.T) {
	ctx := context.Background()
	pool := testutil.Pool(t)
	userID := testutil.InsertCustomer(t, pool, "alice")
	pid := testutil.InsertProduct(t, pool, "P1", 1000)
	repo := NewPostgres(pool, nil)

	created, err := repo.Create(ctx, domain.Review{UserID: userID, ProductID: pid, Rating: 4, Comment: "solid"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", created)
	}

	reviews, err := repo.ListByProduct(ctx, pid)
	if err != nil {
		t.Fatalf("ListByProduct: %v", err)
	}
	if len(reviews) != 1 || reviews[0].Username != "alice" || reviews[0].Rating != 4 {
		t.Fatalf("unexpected reviews %+v", reviews)
	}

	if _, err := repo.Create(ctx, domain.Review{UserID: userID, ProductID: uuid.NewString(), Rating: 3}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown product, got %v", err)
	}
	if got, err := repo.ListByProduct(ctx, "not-a-uuid"); err != nil || len(got) != 0 {
		t.Fatalf("expected empty list for malformed id, got %v %v", got, err)
	}
}
