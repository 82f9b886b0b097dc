package entitlement

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"storefront/internal/domain"
	entrepo "storefront/internal/repository/entitlement"
)

// Recorder grants permanent (user, product) entitlements. A repeat purchase
// of a held product is absorbed, never rejected.
type Recorder struct {
	repo   entrepo.Repository
	logger *log.Logger
}

func NewRecorder(repo entrepo.Repository, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Grant(ctx context.Context, userID, productID, orderID string) error {
	userID, productID = strings.TrimSpace(userID), strings.TrimSpace(productID)
	if userID == "" || productID == "" {
		return errors.New("entitlement requires user and product")
	}
	granted, err := r.repo.Grant(ctx, domain.Entitlement{UserID: userID, ProductID: productID, OrderID: orderID})
	if err != nil {
		return err
	}
	if !granted {
		r.logger.Printf("entitlement: already held user_id=%s product_id=%s", userID, productID)
	}
	return nil
}

func (r *Recorder) Has(ctx context.Context, userID, productID string) (bool, error) {
	return r.repo.Has(ctx, userID, productID)
}

func (r *Recorder) ListProductIDs(ctx context.Context, userID string) ([]string, error) {
	return r.repo.ListProductIDs(ctx, userID)
}
