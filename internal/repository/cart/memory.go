package cart

import (
	"context"
	"sync"
	"time"

	"storefront/internal/domain"
)

const memorySweepEvery = 256

type memoryCart struct {
	lines    []domain.CartLine
	revision string
	touched  time.Time
}

// memoryBacking keeps carts in process. It serves single-instance
// deployments without Redis and tests. With a ttl, a cart idle for longer
// than ttl is gone, matching the Redis backing.
type memoryBacking struct {
	mu     sync.Mutex
	carts  map[string]*memoryCart
	ttl    time.Duration
	now    func() time.Time
	writes int
}

// NewMemory returns an in-process session backing. Zero ttl keeps carts
// until they are cleared.
func NewMemory(ttl time.Duration) SessionBacking {
	return newMemoryBacking(ttl)
}

func newMemoryBacking(ttl time.Duration) *memoryBacking {
	return &memoryBacking{carts: make(map[string]*memoryCart), ttl: ttl, now: time.Now}
}

// liveLocked returns owner's cart unless it has expired.
func (m *memoryBacking) liveLocked(owner string) *memoryCart {
	c, ok := m.carts[owner]
	if !ok {
		return nil
	}
	if m.expired(c, m.now()) {
		delete(m.carts, owner)
		return nil
	}
	return c
}

func (m *memoryBacking) expired(c *memoryCart, now time.Time) bool {
	return m.ttl > 0 && now.Sub(c.touched) > m.ttl
}

func (m *memoryBacking) sweepLocked() {
	now := m.now()
	for owner, c := range m.carts {
		if m.expired(c, now) {
			delete(m.carts, owner)
		}
	}
}

func (m *memoryBacking) Read(_ context.Context, owner string) ([]domain.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.liveLocked(owner); c != nil {
		return cloneLines(c.lines), nil
	}
	return []domain.CartLine{}, nil
}

func (m *memoryBacking) Snapshot(_ context.Context, owner string) (domain.CartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.liveLocked(owner); c != nil {
		return domain.CartSnapshot{Lines: cloneLines(c.lines), Revision: c.revision}, nil
	}
	return domain.CartSnapshot{Lines: []domain.CartLine{}}, nil
}

func (m *memoryBacking) update(owner string, fn mutation) ([]domain.CartLine, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, changed, err := m.applyLocked(owner, fn)
	return cloneLines(next), changed, err
}

func (m *memoryBacking) applyLocked(owner string, fn mutation) ([]domain.CartLine, bool, error) {
	var current []domain.CartLine
	if c := m.liveLocked(owner); c != nil {
		current = c.lines
	}
	next, changed, err := fn(current)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return next, false, nil
	}
	if len(next) == 0 {
		delete(m.carts, owner)
	} else {
		m.carts[owner] = &memoryCart{lines: next, revision: newRevision(), touched: m.now()}
	}
	m.writes++
	if m.ttl > 0 && m.writes%memorySweepEvery == 0 {
		m.sweepLocked()
	}
	return next, true, nil
}

func (m *memoryBacking) AddLine(_ context.Context, owner string, line domain.CartLine) ([]domain.CartLine, error) {
	lines, _, err := m.update(owner, addMutation(line))
	return lines, err
}

func (m *memoryBacking) RemoveLine(_ context.Context, owner, productID, variant string) ([]domain.CartLine, bool, error) {
	return m.update(owner, removeMutation(productID, variant))
}

func (m *memoryBacking) SetQuantity(_ context.Context, owner, productID, variant string, quantity int) ([]domain.CartLine, bool, error) {
	return m.update(owner, setQuantityMutation(productID, variant, quantity))
}

func (m *memoryBacking) Subtract(_ context.Context, owner string, lines []domain.CartLine) ([]domain.CartLine, error) {
	left, _, err := m.update(owner, subtractMutation(lines))
	return left, err
}

func (m *memoryBacking) Clear(_ context.Context, owner string) error {
	_, _, err := m.update(owner, clearMutation)
	return err
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}

// memoryAccount is an in-process AccountBacking with the same merge-once
// semantics as the Postgres backing.
type memoryAccount struct {
	*memoryBacking
	// merged maps a merge key to the user it was applied to.
	merged map[string]string
}

func NewMemoryAccount() AccountBacking {
	return &memoryAccount{
		memoryBacking: newMemoryBacking(0),
		merged:        make(map[string]string),
	}
}

func (m *memoryAccount) MergeLines(_ context.Context, userID, mergeKey string, lines []domain.CartLine) ([]domain.CartLine, domain.MergeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, done := m.merged[mergeKey]; done {
		outcome := domain.MergeReplayed
		if owner != userID {
			outcome = domain.MergeClaimed
		}
		var current []domain.CartLine
		if c := m.liveLocked(userID); c != nil {
			current = c.lines
		}
		return cloneLines(current), outcome, nil
	}
	next, _, err := m.applyLocked(userID, func(current []domain.CartLine) ([]domain.CartLine, bool, error) {
		for _, l := range lines {
			current = domain.MergeLine(current, l)
		}
		return current, true, nil
	})
	if err != nil {
		return nil, 0, err
	}
	m.merged[mergeKey] = userID
	return cloneLines(next), domain.MergeApplied, nil
}
