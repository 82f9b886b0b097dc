package domain

import (
	"strings"
)

// CartKind tags which backing owns a cart.
type CartKind int

const (
	// CartAnonymous carts are keyed by a client-held session id and are ephemeral.
	CartAnonymous CartKind = iota + 1
	// CartAccount carts are keyed by user id and persisted on the server.
	CartAccount
)

func (k CartKind) String() string {
	switch k {
	case CartAnonymous:
		return "anonymous"
	case CartAccount:
		return "account"
	default:
		return "unknown"
	}
}

// CartRef identifies exactly one cart. Use AnonymousCart or AccountCart to build one.
type CartRef struct {
	Kind      CartKind
	SessionID string
	UserID    string
}

func AnonymousCart(sessionID string) CartRef {
	return CartRef{Kind: CartAnonymous, SessionID: strings.TrimSpace(sessionID)}
}

func AccountCart(userID string) CartRef {
	return CartRef{Kind: CartAccount, UserID: strings.TrimSpace(userID)}
}

// Owner returns the key of the backing store for this ref.
func (r CartRef) Owner() string {
	switch r.Kind {
	case CartAnonymous:
		return r.SessionID
	case CartAccount:
		return r.UserID
	default:
		return ""
	}
}

// Validate reports ErrInvalidCartRef unless the ref has a known kind and a
// non-empty owner for that kind only.
func (r CartRef) Validate() error {
	switch r.Kind {
	case CartAnonymous:
		if r.SessionID == "" || r.UserID != "" {
			return ErrInvalidCartRef
		}
	case CartAccount:
		if r.UserID == "" || r.SessionID != "" {
			return ErrInvalidCartRef
		}
	default:
		return ErrInvalidCartRef
	}
	return nil
}

func (r CartRef) String() string {
	return r.Kind.String() + ":" + r.Owner()
}

// CartLine is one product/variant/quantity entry. A cart holds at most one
// line per (ProductID, Variant).
type CartLine struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Matches reports whether the line is keyed by productID and variant.
func (l CartLine) Matches(productID, variant string) bool {
	return l.ProductID == productID && l.Variant == variant
}

// MaxLineQuantity caps the quantity of a single cart line.
const MaxLineQuantity = 9999

// ValidQuantity reports whether q can be stored on a cart line.
func ValidQuantity(q int) bool {
	return q >= 1 && q <= MaxLineQuantity
}

// AddLine merges line into lines: quantities are summed for an existing
// (product, variant) pair, otherwise the line is appended. A sum above
// MaxLineQuantity is rejected with ErrInvalidQuantity. The input slice is
// not modified.
func AddLine(lines []CartLine, line CartLine) ([]CartLine, error) {
	if !ValidQuantity(line.Quantity) {
		return nil, ErrInvalidQuantity
	}
	out := make([]CartLine, 0, len(lines)+1)
	merged := false
	for _, l := range lines {
		if !merged && l.Matches(line.ProductID, line.Variant) {
			if l.Quantity > MaxLineQuantity-line.Quantity {
				return nil, ErrInvalidQuantity
			}
			l.Quantity += line.Quantity
			merged = true
		}
		out = append(out, l)
	}
	if !merged {
		out = append(out, line)
	}
	return out, nil
}

// MergeLine is AddLine for login merges: a sum above MaxLineQuantity is
// capped instead of rejected, so a merge always applies.
func MergeLine(lines []CartLine, line CartLine) []CartLine {
	if line.Quantity <= 0 {
		return lines
	}
	if line.Quantity > MaxLineQuantity {
		line.Quantity = MaxLineQuantity
	}
	out := make([]CartLine, 0, len(lines)+1)
	merged := false
	for _, l := range lines {
		if !merged && l.Matches(line.ProductID, line.Variant) {
			l.Quantity = min(l.Quantity+line.Quantity, MaxLineQuantity)
			merged = true
		}
		out = append(out, l)
	}
	if !merged {
		out = append(out, line)
	}
	return out
}

// SubtractLines takes the quantities in taken out of lines, dropping lines
// that reach zero. Lines or quantities not in taken are kept. The bool
// reports whether anything changed.
func SubtractLines(lines, taken []CartLine) ([]CartLine, bool) {
	out := make([]CartLine, 0, len(lines))
	changed := false
	for _, l := range lines {
		for _, t := range taken {
			if t.Quantity > 0 && l.Matches(t.ProductID, t.Variant) {
				l.Quantity -= t.Quantity
				changed = true
				break
			}
		}
		if l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out, changed
}

// RemoveLine drops the matching line. The bool reports whether a line was removed.
func RemoveLine(lines []CartLine, productID, variant string) ([]CartLine, bool) {
	out := make([]CartLine, 0, len(lines))
	removed := false
	for _, l := range lines {
		if l.Matches(productID, variant) {
			removed = true
			continue
		}
		out = append(out, l)
	}
	return out, removed
}

// SetQuantity overwrites the quantity of the matching line; a quantity below 1
// removes it. The bool reports whether a matching line existed.
func SetQuantity(lines []CartLine, productID, variant string, quantity int) ([]CartLine, bool) {
	if quantity < 1 {
		return RemoveLine(lines, productID, variant)
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	for i := range out {
		if out[i].Matches(productID, variant) {
			out[i].Quantity = quantity
			return out, true
		}
	}
	return out, false
}

// CartSnapshot is a cart's lines as of one revision. Revision changes on
// every write, so two snapshots with the same non-empty revision hold the
// same lines.
type CartSnapshot struct {
	Lines    []CartLine
	Revision string
}

// MergeOutcome reports what a login merge did with a snapshot.
type MergeOutcome int

const (
	// MergeApplied: the lines were added to the account cart now.
	MergeApplied MergeOutcome = iota + 1
	// MergeReplayed: this snapshot was already merged into the same account.
	MergeReplayed
	// MergeClaimed: this snapshot was already merged into another account.
	MergeClaimed
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeApplied:
		return "applied"
	case MergeReplayed:
		return "replayed"
	case MergeClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// PricedLine is a cart line with its live unit price.
type PricedLine struct {
	CartLine
	Name           string `json:"name"`
	ImageURL       string `json:"imageUrl,omitempty"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

// PricedCart is a read-only projection computed on demand, never stored.
type PricedCart struct {
	Lines      []PricedLine `json:"lines"`
	TotalCents int64        `json:"totalCents"`
	// Dropped lists product ids whose lines were excluded because the product
	// no longer resolves.
	Dropped []string `json:"droppedProductIds,omitempty"`
}

// ItemCount sums quantities across priced lines.
func (c PricedCart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}
