package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"storefront/internal/domain"
)

// Backing stores the lines of carts of one kind, keyed by owner. Every
// mutation is an atomic read-modify-write and returns the resulting lines.
type Backing interface {
	Read(ctx context.Context, owner string) ([]domain.CartLine, error)
	AddLine(ctx context.Context, owner string, line domain.CartLine) ([]domain.CartLine, error)
	// RemoveLine reports false when no line matched; the lines are still returned.
	RemoveLine(ctx context.Context, owner, productID, variant string) ([]domain.CartLine, bool, error)
	// SetQuantity treats quantity < 1 as RemoveLine.
	SetQuantity(ctx context.Context, owner, productID, variant string, quantity int) ([]domain.CartLine, bool, error)
	// Subtract takes the given quantities out of the cart. Anything written
	// since those lines were read stays.
	Subtract(ctx context.Context, owner string, lines []domain.CartLine) ([]domain.CartLine, error)
	Clear(ctx context.Context, owner string) error
}

// SessionBacking holds anonymous carts. Snapshot returns the lines together
// with a revision that changes on every write.
type SessionBacking interface {
	Backing
	Snapshot(ctx context.Context, owner string) (domain.CartSnapshot, error)
}

// AccountBacking is the durable backing. MergeLines sum-merges lines into
// userID's cart in one atomic step, at most once per mergeKey. The outcome
// tells a fresh merge from a repeat into the same user or into another user.
type AccountBacking interface {
	Backing
	MergeLines(ctx context.Context, userID, mergeKey string, lines []domain.CartLine) ([]domain.CartLine, domain.MergeOutcome, error)
}

// Store routes cart operations to the backing selected by the CartRef kind.
type Store struct {
	session SessionBacking
	account AccountBacking
}

func NewStore(session SessionBacking, account AccountBacking) *Store {
	return &Store{session: session, account: account}
}

func (s *Store) backing(ref domain.CartRef) (Backing, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Kind {
	case domain.CartAnonymous:
		return s.session, nil
	case domain.CartAccount:
		return s.account, nil
	default:
		return nil, domain.ErrInvalidCartRef
	}
}

func (s *Store) Read(ctx context.Context, ref domain.CartRef) ([]domain.CartLine, error) {
	b, err := s.backing(ref)
	if err != nil {
		return nil, err
	}
	lines, err := b.Read(ctx, ref.Owner())
	return lines, storeErr("read", ref, err)
}

// Snapshot reads an anonymous cart with its revision.
func (s *Store) Snapshot(ctx context.Context, anon domain.CartRef) (domain.CartSnapshot, error) {
	if anon.Kind != domain.CartAnonymous || anon.Validate() != nil {
		return domain.CartSnapshot{}, domain.ErrInvalidCartRef
	}
	snap, err := s.session.Snapshot(ctx, anon.Owner())
	return snap, storeErr("snapshot", anon, err)
}

func (s *Store) AddLine(ctx context.Context, ref domain.CartRef, line domain.CartLine) ([]domain.CartLine, error) {
	if !domain.ValidQuantity(line.Quantity) {
		return nil, domain.ErrInvalidQuantity
	}
	b, err := s.backing(ref)
	if err != nil {
		return nil, err
	}
	lines, err := b.AddLine(ctx, ref.Owner(), line)
	return lines, storeErr("add line", ref, err)
}

func (s *Store) RemoveLine(ctx context.Context, ref domain.CartRef, productID, variant string) ([]domain.CartLine, bool, error) {
	b, err := s.backing(ref)
	if err != nil {
		return nil, false, err
	}
	lines, found, err := b.RemoveLine(ctx, ref.Owner(), productID, variant)
	return lines, found, storeErr("remove line", ref, err)
}

func (s *Store) SetQuantity(ctx context.Context, ref domain.CartRef, productID, variant string, quantity int) ([]domain.CartLine, bool, error) {
	if quantity > domain.MaxLineQuantity {
		return nil, false, domain.ErrInvalidQuantity
	}
	b, err := s.backing(ref)
	if err != nil {
		return nil, false, err
	}
	lines, found, err := b.SetQuantity(ctx, ref.Owner(), productID, variant, quantity)
	return lines, found, storeErr("set quantity", ref, err)
}

func (s *Store) Subtract(ctx context.Context, ref domain.CartRef, lines []domain.CartLine) ([]domain.CartLine, error) {
	b, err := s.backing(ref)
	if err != nil {
		return nil, err
	}
	left, err := b.Subtract(ctx, ref.Owner(), lines)
	return left, storeErr("subtract", ref, err)
}

func (s *Store) Clear(ctx context.Context, ref domain.CartRef) error {
	b, err := s.backing(ref)
	if err != nil {
		return err
	}
	return storeErr("clear", ref, b.Clear(ctx, ref.Owner()))
}

// Merge folds a snapshot of the anonymous cart into the account cart. The
// merge is keyed by the session and the snapshot revision: replaying one
// snapshot is a no-op, while anything written to the session afterwards,
// even the same lines again, merges as new.
func (s *Store) Merge(ctx context.Context, anon, account domain.CartRef, snap domain.CartSnapshot) ([]domain.CartLine, domain.MergeOutcome, error) {
	if anon.Kind != domain.CartAnonymous || anon.Validate() != nil {
		return nil, 0, domain.ErrInvalidCartRef
	}
	if account.Kind != domain.CartAccount || account.Validate() != nil {
		return nil, 0, domain.ErrInvalidCartRef
	}
	if snap.Revision == "" {
		return nil, 0, fmt.Errorf("merge %s: snapshot has no revision: %w", anon, domain.ErrInvalidCartRef)
	}
	result, outcome, err := s.account.MergeLines(ctx, account.UserID, MergeKey(anon.SessionID, snap.Revision), snap.Lines)
	return result, outcome, storeErr("merge", account, err)
}

// MergeKey identifies the merge of one revision of a session cart.
func MergeKey(sessionID, revision string) string {
	return sessionID + ":" + revision
}

// newRevision returns a revision id that is never reused, even after a cart
// expires and its owner key starts over.
func newRevision() string {
	return uuid.NewString()
}

// storeErr marks backend failures as ErrUnavailable and passes domain errors through.
func storeErr(op string, ref domain.CartRef, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{domain.ErrInvalidQuantity, domain.ErrNotFound, domain.ErrUnavailable, domain.ErrInvalidCartRef} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("cart %s %s: %w: %v", op, ref, domain.ErrUnavailable, err)
}

// mutation transforms a cart's lines; changed reports whether anything needs writing.
type mutation func(lines []domain.CartLine) (next []domain.CartLine, changed bool, err error)

func addMutation(line domain.CartLine) mutation {
	return func(lines []domain.CartLine) ([]domain.CartLine, bool, error) {
		next, err := domain.AddLine(lines, line)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	}
}

func removeMutation(productID, variant string) mutation {
	return func(lines []domain.CartLine) ([]domain.CartLine, bool, error) {
		next, removed := domain.RemoveLine(lines, productID, variant)
		return next, removed, nil
	}
}

func setQuantityMutation(productID, variant string, quantity int) mutation {
	return func(lines []domain.CartLine) ([]domain.CartLine, bool, error) {
		if quantity > domain.MaxLineQuantity {
			return nil, false, domain.ErrInvalidQuantity
		}
		next, found := domain.SetQuantity(lines, productID, variant, quantity)
		return next, found, nil
	}
}

func subtractMutation(taken []domain.CartLine) mutation {
	return func(lines []domain.CartLine) ([]domain.CartLine, bool, error) {
		next, changed := domain.SubtractLines(lines, taken)
		return next, changed, nil
	}
}

func clearMutation(lines []domain.CartLine) ([]domain.CartLine, bool, error) {
	return []domain.CartLine{}, len(lines) > 0, nil
}
