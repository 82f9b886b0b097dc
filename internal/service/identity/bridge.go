// Package identity reconciles anonymous and account carts across login and
// logout.
package identity

import (
	"context"
	"fmt"
	"io"
	"log"

	"storefront/internal/domain"
)

type cartStore interface {
	Read(ctx context.Context, ref domain.CartRef) ([]domain.CartLine, error)
	Snapshot(ctx context.Context, anon domain.CartRef) (domain.CartSnapshot, error)
	Subtract(ctx context.Context, ref domain.CartRef, lines []domain.CartLine) ([]domain.CartLine, error)
	Merge(ctx context.Context, anon, account domain.CartRef, snap domain.CartSnapshot) ([]domain.CartLine, domain.MergeOutcome, error)
}

type pricer interface {
	Price(ctx context.Context, lines []domain.CartLine) (domain.PricedCart, error)
}

type Bridge struct {
	store  cartStore
	pricer pricer
	logger *log.Logger
}

func NewBridge(store cartStore, pricer pricer, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bridge{store: store, pricer: pricer, logger: logger}
}

// Login moves sess from Anonymous to Authenticated, merging the anonymous
// cart into the account cart on the way. On failure sess returns to
// Anonymous still owning its cart.
func (b *Bridge) Login(ctx context.Context, sess *Session, userID string) (*domain.PricedCart, error) {
	if err := sess.beginAuth(); err != nil {
		return nil, err
	}
	cart, err := b.MergeOnLogin(ctx, sess.Cart(), userID)
	if err != nil {
		sess.abortAuth()
		return nil, err
	}
	sess.completeAuth(userID)
	return cart, nil
}

// Logout switches sess to a fresh anonymous session. The account cart is not
// copied; the new anonymous cart starts empty.
func (b *Bridge) Logout(sess *Session, newSessionID string) error {
	return sess.logout(newSessionID)
}

// MergeOnLogin sum-merges every line of the anonymous cart into userID's
// account cart, then takes the merged lines out of the anonymous cart.
// Merges are keyed by cart revision: retrying after a failure never applies
// the same snapshot twice, and anything added to the session later merges on
// the next login. Any failure before the merge commits leaves the anonymous
// cart untouched and returns ErrMergeConflict.
func (b *Bridge) MergeOnLogin(ctx context.Context, anon domain.CartRef, userID string) (*domain.PricedCart, error) {
	if anon.Kind != domain.CartAnonymous {
		return nil, domain.ErrInvalidCartRef
	}
	account := domain.AccountCart(userID)
	if err := account.Validate(); err != nil {
		return nil, err
	}

	snap, err := b.store.Snapshot(ctx, anon)
	if err != nil {
		b.logger.Printf("identity: read anonymous cart=%s error=%v", anon, err)
		return nil, fmt.Errorf("%w: %w", domain.ErrMergeConflict, err)
	}

	var (
		merged  []domain.CartLine
		outcome domain.MergeOutcome
	)
	if len(snap.Lines) == 0 {
		merged, err = b.store.Read(ctx, account)
	} else {
		merged, outcome, err = b.store.Merge(ctx, anon, account, snap)
	}
	if err != nil {
		b.logger.Printf("identity: merge cart=%s user_id=%s error=%v", anon, userID, err)
		return nil, fmt.Errorf("%w: %w", domain.ErrMergeConflict, err)
	}

	switch outcome {
	case domain.MergeApplied, domain.MergeReplayed:
		if outcome == domain.MergeReplayed {
			b.logger.Printf("identity: session cart=%s revision=%s already merged into user_id=%s", anon, snap.Revision, userID)
		}
		if _, err := b.store.Subtract(ctx, anon, snap.Lines); err != nil {
			// The merge is recorded under this revision, so the leftover
			// lines are taken out on the next login instead of re-applied.
			b.logger.Printf("identity: take merged lines from cart=%s error=%v", anon, err)
		}
	case domain.MergeClaimed:
		// Another account took this exact revision; leave the guest cart as is.
		b.logger.Printf("identity: session cart=%s revision=%s merged by another user, kept for user_id=%s", anon, snap.Revision, userID)
	}

	cart, err := b.pricer.Price(ctx, merged)
	if err != nil {
		return nil, err
	}
	b.logger.Printf("identity: merged cart=%s into user_id=%s lines=%d outcome=%s", anon, userID, len(snap.Lines), outcome)
	return &cart, nil
}
