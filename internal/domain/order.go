package domain

import "time"

// PaymentSummary is what an order keeps of the payment instrument.
type PaymentSummary struct {
	CardHolderName string `json:"cardHolderName"`
	Last4          string `json:"last4"`
	ExpiryDate     string `json:"expiryDate"`
}

// OrderLine is a priced line frozen at checkout time.
type OrderLine struct {
	ProductID      string `json:"productId"`
	Variant        string `json:"variant,omitempty"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	LineTotalCents int64  `json:"lineTotalCents"`
}

// Order is immutable once appended to the ledger. OwnerID is nil for guest orders.
type Order struct {
	ID             string          `json:"id"`
	OwnerID        *string         `json:"ownerId"`
	Lines          []OrderLine     `json:"lines"`
	TotalCents     int64           `json:"totalCents"`
	Shipping       ShippingProfile `json:"shippingInfo"`
	Payment        PaymentSummary  `json:"payment"`
	IdempotencyKey string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.OwnerID == nil
}

// ProductIDs returns the distinct product ids in line order.
func (o Order) ProductIDs() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	out := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}
