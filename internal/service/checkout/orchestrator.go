// Package checkout turns a cart into an immutable order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/service/pricing"
)

type cartStore interface {
	Read(ctx context.Context, ref domain.CartRef) ([]domain.CartLine, error)
	Subtract(ctx context.Context, ref domain.CartRef, lines []domain.CartLine) ([]domain.CartLine, error)
}

type pricer interface {
	Price(ctx context.Context, lines []domain.CartLine) (domain.PricedCart, error)
}

type profileSource interface {
	SavedProfile(ctx context.Context, userID string) (*domain.SavedProfile, error)
}

type ledger interface {
	Append(ctx context.Context, order domain.Order) error
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
}

type granter interface {
	Grant(ctx context.Context, userID, productID, orderID string) error
}

// SubmitInput is one checkout attempt. Shipping and Payment are required for
// guests; members fall back to their saved profile for whichever is nil.
type SubmitInput struct {
	Cart           domain.CartRef
	Shipping       *domain.ShippingProfile
	Payment        *domain.PaymentInstrument
	IdempotencyKey string
}

// Result is a confirmed order. Replayed is set when the idempotency key
// matched an earlier order from the same cart and nothing new was written.
type Result struct {
	Order    domain.Order
	Replayed bool
}

type Orchestrator struct {
	carts         cartStore
	pricer        pricer
	profiles      profileSource
	orders        ledger
	entitlements  granter
	logger        *log.Logger
	grantAttempts int
	grantBackoff  time.Duration
	now           func() time.Time
	newID         func() string
}

func New(carts cartStore, pricer pricer, profiles profileSource, orders ledger, entitlements granter, grantAttempts int, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if grantAttempts <= 0 {
		grantAttempts = 1
	}
	return &Orchestrator{
		carts:         carts,
		pricer:        pricer,
		profiles:      profiles,
		orders:        orders,
		entitlements:  entitlements,
		logger:        logger,
		grantAttempts: grantAttempts,
		grantBackoff:  50 * time.Millisecond,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Submit runs Reviewing, Validating, Confirming and Completed in order. Any
// failure before Confirming leaves no trace. Once the order write starts the
// caller's cancellation is ignored. Only after the ledger acknowledges the
// order are the purchased lines taken out of the cart; lines added meanwhile
// stay.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	if err := in.Cart.Validate(); err != nil {
		return nil, failure(StageReviewing, ErrValidationFailed, []domain.FieldError{{Field: "cart", Message: "Unknown cart."}}, err)
	}
	var ownerID *string
	if in.Cart.Kind == domain.CartAccount {
		id := in.Cart.UserID
		ownerID = &id
	}
	key := scopedKey(in.Cart, in.IdempotencyKey)

	if key != "" {
		res, err := o.replay(ctx, key, ownerID)
		if res != nil || err != nil {
			return res, err
		}
	}

	// Reviewing
	lines, err := o.carts.Read(ctx, in.Cart)
	if err != nil {
		return nil, failure(StageReviewing, ErrPersistence, nil, err)
	}
	if len(lines) == 0 {
		return nil, failure(StageReviewing, ErrValidationFailed, []domain.FieldError{{Field: "cart", Message: "Cart is empty."}}, nil)
	}
	shipping, instrument, err := o.resolveProfile(ctx, ownerID, in)
	if err != nil {
		return nil, err
	}

	// Validating
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("checkout abandoned: %w", err)
	}
	priced, err := o.pricer.Price(ctx, lines)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("checkout abandoned: %w", ctxErr)
		}
		if errors.Is(err, pricing.ErrTotalOverflow) || errors.Is(err, domain.ErrInvalidQuantity) {
			return nil, failure(StageValidating, ErrValidationFailed, []domain.FieldError{{Field: "cart", Message: "Cart total is too large."}}, err)
		}
		return nil, failure(StageValidating, ErrPersistence, nil, err)
	}
	if err := o.validate(priced, shipping, instrument); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("checkout abandoned: %w", err)
	}

	// Confirming
	commitCtx := context.WithoutCancel(ctx)
	order := o.buildOrder(ownerID, priced, shipping, instrument, key)
	if err := o.orders.Append(commitCtx, order); err != nil {
		if key != "" && errors.Is(err, domain.ErrAlreadyExists) {
			res, rerr := o.replay(commitCtx, key, ownerID)
			if res != nil || rerr != nil {
				return res, rerr
			}
		}
		o.logger.Printf("checkout: order write failed cart=%s err=%v", in.Cart, err)
		return nil, failure(StageConfirming, ErrPersistence, nil, err)
	}
	o.logger.Printf("checkout: order confirmed order_id=%s cart=%s total_cents=%d", order.ID, in.Cart, order.TotalCents)

	// Completed
	if _, err := o.carts.Subtract(commitCtx, in.Cart, lines); err != nil {
		o.logger.Printf("checkout: cart cleanup failed order_id=%s cart=%s err=%v", order.ID, in.Cart, err)
	}
	o.grantAll(commitCtx, order)
	return &Result{Order: order}, nil
}

// replay returns the order already written under key. Keys are scoped to
// the cart, so a match from another owner means corrupt data and fails
// validation. Grants are re-run so a crash after the order write cannot lose
// them; the cart is not touched.
func (o *Orchestrator) replay(ctx context.Context, key string, ownerID *string) (*Result, error) {
	existing, err := o.orders.GetByIdempotencyKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, failure(StageReviewing, ErrPersistence, nil, err)
	}
	if !sameOwner(existing.OwnerID, ownerID) {
		return nil, failure(StageReviewing, ErrValidationFailed, []domain.FieldError{{Field: "idempotencyKey", Message: "Idempotency key already used."}}, nil)
	}
	o.logger.Printf("checkout: replayed order_id=%s", existing.ID)
	o.grantAll(context.WithoutCancel(ctx), *existing)
	return &Result{Order: *existing, Replayed: true}, nil
}

// scopedKey namespaces a client idempotency key by cart, so two guests or
// two members picking the same key never see each other's orders.
func scopedKey(ref domain.CartRef, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return ref.String() + ":" + key
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// resolveProfile picks the shipping and payment for this attempt. Members
// fall back to the saved profile; an absent part is a validation failure.
func (o *Orchestrator) resolveProfile(ctx context.Context, ownerID *string, in SubmitInput) (*domain.ShippingProfile, *domain.PaymentInstrument, error) {
	shipping, instrument := in.Shipping, in.Payment
	if ownerID != nil && (shipping == nil || instrument == nil) {
		saved, err := o.profiles.SavedProfile(ctx, *ownerID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, nil, failure(StageReviewing, ErrPersistence, nil, err)
		}
		if saved != nil {
			if shipping == nil {
				shipping = saved.Shipping
			}
			if instrument == nil {
				instrument = saved.Payment
			}
		}
	}

	var fields []domain.FieldError
	if shipping == nil {
		fields = append(fields, domain.FieldError{Field: "shippingInfo", Message: "Shipping information is required."})
	}
	if instrument == nil {
		fields = append(fields, domain.FieldError{Field: "paymentInfo", Message: "Payment information is required."})
	}
	if len(fields) > 0 {
		return nil, nil, failure(StageReviewing, ErrValidationFailed, fields, nil)
	}
	return shipping, instrument, nil
}

// validate reports every problem at once. The kind follows the most specific
// failure: a vanished product, then shipping, then payment.
func (o *Orchestrator) validate(priced domain.PricedCart, shipping *domain.ShippingProfile, instrument *domain.PaymentInstrument) error {
	var fields []domain.FieldError
	for _, id := range priced.Dropped {
		fields = append(fields, domain.FieldError{Field: "cart." + id, Message: "Product is no longer available."})
	}
	shipErrs := domain.PrefixFields("shippingInfo", shipping.Validate())
	payErrs := domain.PrefixFields("paymentInfo", payment.ValidateInstrument(*instrument, o.now()))
	fields = append(fields, shipErrs...)
	fields = append(fields, payErrs...)

	switch {
	case len(priced.Dropped) > 0:
		return failure(StageValidating, ErrProductUnavailable, fields, nil)
	case len(priced.Lines) == 0:
		return failure(StageValidating, ErrValidationFailed, []domain.FieldError{{Field: "cart", Message: "Cart is empty."}}, nil)
	case len(shipErrs) > 0:
		return failure(StageValidating, ErrValidationFailed, fields, nil)
	case len(payErrs) > 0:
		return failure(StageValidating, ErrPaymentInvalid, fields, nil)
	}
	return nil
}

func (o *Orchestrator) buildOrder(ownerID *string, priced domain.PricedCart, shipping *domain.ShippingProfile, instrument *domain.PaymentInstrument, key string) domain.Order {
	lines := make([]domain.OrderLine, len(priced.Lines))
	for i, l := range priced.Lines {
		lines[i] = domain.OrderLine{
			ProductID:      l.ProductID,
			Variant:        l.Variant,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			LineTotalCents: l.LineTotalCents,
		}
	}
	ship := *shipping
	ship.Address = strings.TrimSpace(ship.Address)
	ship.City = strings.TrimSpace(ship.City)
	ship.State = strings.TrimSpace(ship.State)
	ship.Zipcode = strings.TrimSpace(ship.Zipcode)
	return domain.Order{
		ID:             o.newID(),
		OwnerID:        ownerID,
		Lines:          lines,
		TotalCents:     priced.TotalCents,
		Shipping:       ship,
		Payment:        payment.Summarize(*instrument),
		IdempotencyKey: key,
		CreatedAt:      o.now().UTC(),
	}
}

// grantAll records one entitlement per distinct product for member orders.
// A grant that keeps failing is logged; the order stands.
func (o *Orchestrator) grantAll(ctx context.Context, order domain.Order) {
	if order.IsGuest() {
		return
	}
	userID := *order.OwnerID
	for _, productID := range order.ProductIDs() {
		var err error
		for attempt := 1; attempt <= o.grantAttempts; attempt++ {
			if err = o.entitlements.Grant(ctx, userID, productID, order.ID); err == nil {
				break
			}
			if attempt < o.grantAttempts && o.grantBackoff > 0 {
				time.Sleep(time.Duration(attempt) * o.grantBackoff)
			}
		}
		if err != nil {
			o.logger.Printf("checkout: entitlement grant failed order_id=%s user_id=%s product_id=%s attempts=%d err=%v",
				order.ID, userID, productID, o.grantAttempts, err)
		}
	}
}
