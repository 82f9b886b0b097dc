package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	cartrepo "storefront/internal/repository/cart"
	"storefront/internal/service/identity"
	"storefront/internal/service/pricing"
)

type catalog struct {
	mu     sync.Mutex
	prices map[string]int64
}

func (c *catalog) Resolve(_ context.Context, id string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.prices[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &domain.Product{ID: id, Name: "product " + id, PriceCents: price}, nil
}

func (c *catalog) set(id string, price int64) {
	c.mu.Lock()
	c.prices[id] = price
	c.mu.Unlock()
}

func (c *catalog) remove(id string) {
	c.mu.Lock()
	delete(c.prices, id)
	c.mu.Unlock()
}

type memLedger struct {
	mu          sync.Mutex
	orders      []domain.Order
	appendErr   error
	onAppend    func()
	appendCtxOK bool
}

func (l *memLedger) Append(ctx context.Context, order domain.Order) error {
	if l.onAppend != nil {
		l.onAppend()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendCtxOK = ctx.Err() == nil
	if l.appendErr != nil {
		return l.appendErr
	}
	for _, o := range l.orders {
		if order.IdempotencyKey != "" && o.IdempotencyKey == order.IdempotencyKey {
			return domain.ErrAlreadyExists
		}
	}
	l.orders = append(l.orders, order)
	return nil
}

func (l *memLedger) GetByIdempotencyKey(_ context.Context, key string) (*domain.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range l.orders {
		if o.IdempotencyKey == key {
			clone := o
			return &clone, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.orders)
}

type memGrants struct {
	mu       sync.Mutex
	held     map[string]int
	calls    int
	failures int
}

func (g *memGrants) Grant(_ context.Context, userID, productID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failures > 0 {
		g.failures--
		return errors.New("entitlement store down")
	}
	if g.held == nil {
		g.held = make(map[string]int)
	}
	g.held[userID+"/"+productID]++
	return nil
}

func (g *memGrants) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

type profiles map[string]*domain.SavedProfile

func (p profiles) SavedProfile(_ context.Context, userID string) (*domain.SavedProfile, error) {
	if sp, ok := p[userID]; ok {
		return sp, nil
	}
	return nil, domain.ErrNotFound
}

type cleanupFailStore struct {
	*cartrepo.Store
	subtractErr error
	// afterRead runs once after the next Read, as another tab would.
	afterRead func()
}

func (s *cleanupFailStore) Read(ctx context.Context, ref domain.CartRef) ([]domain.CartLine, error) {
	lines, err := s.Store.Read(ctx, ref)
	if fn := s.afterRead; fn != nil {
		s.afterRead = nil
		fn()
	}
	return lines, err
}

func (s *cleanupFailStore) Subtract(ctx context.Context, ref domain.CartRef, lines []domain.CartLine) ([]domain.CartLine, error) {
	if s.subtractErr != nil {
		return nil, s.subtractErr
	}
	return s.Store.Subtract(ctx, ref, lines)
}

type fixture struct {
	store    *cleanupFailStore
	catalog  *catalog
	engine   *pricing.Engine
	ledger   *memLedger
	grants   *memGrants
	profiles profiles
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    &cleanupFailStore{Store: cartrepo.NewStore(cartrepo.NewMemory(0), cartrepo.NewMemoryAccount())},
		catalog:  &catalog{prices: map[string]int64{"p1": 1500, "p2": 800}},
		ledger:   &memLedger{},
		grants:   &memGrants{},
		profiles: profiles{},
	}
	f.engine = pricing.New(func() pricing.Resolver { return f.catalog }, 4, nil)
	f.orch = New(f.store, f.engine, f.profiles, f.ledger, f.grants, 3, nil)
	f.orch.now = func() time.Time { return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC) }
	f.orch.grantBackoff = 0
	ids := 0
	f.orch.newID = func() string {
		ids++
		return "order-" + string(rune('0'+ids))
	}
	return f
}

func (f *fixture) add(t *testing.T, ref domain.CartRef, productID string, qty int) {
	t.Helper()
	if _, err := f.store.AddLine(context.Background(), ref, domain.CartLine{ProductID: productID, Quantity: qty}); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
}

func (f *fixture) lines(t *testing.T, ref domain.CartRef) []domain.CartLine {
	t.Helper()
	lines, err := f.store.Read(context.Background(), ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return lines
}

func card() *domain.PaymentInstrument {
	return &domain.PaymentInstrument{CardNumber: "4532 0151 1283 0366", CardHolderName: "Ann Lee", ExpiryDate: "12/30", CVV: "123"}
}

func address() *domain.ShippingProfile {
	return &domain.ShippingProfile{Address: "1 Main St", City: "Springfield", State: "IL", Zipcode: "62701"}
}

func asCheckoutError(t *testing.T, err error) *Error {
	t.Helper()
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *checkout.Error, got %T %v", err, err)
	}
	return cerr
}

func hasField(fields []domain.FieldError, name string) bool {
	for _, f := range fields {
		if f.Field == name {
			return true
		}
	}
	return false
}

func TestSubmit_GuestCreatesOrderWithoutEntitlement(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 2)
	f.add(t, guest, "p2", 1)

	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	order := res.Order
	if !order.IsGuest() {
		t.Fatalf("expected guest order, got owner %v", *order.OwnerID)
	}
	if order.TotalCents != 2*1500+800 || len(order.Lines) != 2 {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.Payment.Last4 != "0366" || order.Payment.CardHolderName != "Ann Lee" {
		t.Fatalf("unexpected payment summary %+v", order.Payment)
	}
	if got := f.lines(t, guest); len(got) != 0 {
		t.Fatalf("expected cart cleared, got %+v", got)
	}
	if f.grants.calls != 0 {
		t.Fatalf("guest checkout must not grant entitlements, got %d calls", f.grants.calls)
	}
}

func TestSubmit_GuestRequiresShippingAndPayment(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)

	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address()})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	cerr := asCheckoutError(t, err)
	if cerr.Stage != StageReviewing || !hasField(cerr.Fields, "paymentInfo") {
		t.Fatalf("unexpected error %+v", cerr)
	}
	if f.ledger.count() != 0 || len(f.lines(t, guest)) != 1 {
		t.Fatalf("failed checkout must leave no order and keep the cart")
	}
}

func TestSubmit_EmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: domain.AnonymousCart("sess-1"), Shipping: address(), Payment: card()})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if !hasField(asCheckoutError(t, err).Fields, "cart") {
		t.Fatalf("expected cart field error")
	}
}

func TestSubmit_InvalidPayment(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)

	bad := card()
	bad.CardNumber = "4532015112830367"
	bad.ExpiryDate = "03/26"
	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: bad})
	if !errors.Is(err, ErrPaymentInvalid) {
		t.Fatalf("expected ErrPaymentInvalid, got %v", err)
	}
	cerr := asCheckoutError(t, err)
	if cerr.Stage != StageValidating || !hasField(cerr.Fields, "paymentInfo.cardNumber") || !hasField(cerr.Fields, "paymentInfo.expiryDate") {
		t.Fatalf("unexpected error %+v", cerr)
	}
	if f.ledger.count() != 0 || len(f.lines(t, guest)) != 1 {
		t.Fatalf("failed checkout must leave no order and keep the cart")
	}
}

func TestSubmit_InvalidShipping(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)

	ship := address()
	ship.Zipcode = "ABCDE"
	ship.City = " "
	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: ship, Payment: card()})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	cerr := asCheckoutError(t, err)
	if !hasField(cerr.Fields, "shippingInfo.zipcode") || !hasField(cerr.Fields, "shippingInfo.city") {
		t.Fatalf("unexpected fields %+v", cerr.Fields)
	}
}

func TestSubmit_VanishedProductIsFatal(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)
	f.add(t, guest, "p2", 1)
	f.catalog.remove("p2")

	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected ErrProductUnavailable, got %v", err)
	}
	if !hasField(asCheckoutError(t, err).Fields, "cart.p2") {
		t.Fatalf("expected cart.p2 field error")
	}
	if f.ledger.count() != 0 || len(f.lines(t, guest)) != 2 {
		t.Fatalf("failed checkout must leave no order and keep the cart")
	}
}

func TestSubmit_UsesPriceAtSubmission(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 2)
	f.catalog.set("p1", 1700)

	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Order.TotalCents != 3400 || res.Order.Lines[0].UnitPriceCents != 1700 {
		t.Fatalf("expected repriced order, got %+v", res.Order)
	}
}

func TestSubmit_LedgerFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)
	f.ledger.appendErr = errors.New("disk full")

	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if asCheckoutError(t, err).Stage != StageConfirming {
		t.Fatalf("expected failure at confirming")
	}
	got := f.lines(t, guest)
	if len(got) != 1 || got[0].ProductID != "p1" || got[0].Quantity != 1 {
		t.Fatalf("cart must survive a failed order write, got %+v", got)
	}
}

func TestSubmit_MemberUsesSavedProfile(t *testing.T) {
	f := newFixture(t)
	member := domain.AccountCart("u1")
	f.add(t, member, "p1", 1)
	f.profiles["u1"] = &domain.SavedProfile{Shipping: address(), Payment: card()}

	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: member})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Order.OwnerID == nil || *res.Order.OwnerID != "u1" {
		t.Fatalf("expected member order, got %+v", res.Order)
	}
	if res.Order.Shipping.Zipcode != "62701" {
		t.Fatalf("expected saved shipping, got %+v", res.Order.Shipping)
	}
	if f.grants.held["u1/p1"] != 1 {
		t.Fatalf("expected one entitlement, got %+v", f.grants.held)
	}
}

func TestSubmit_MemberWithoutSavedProfile(t *testing.T) {
	f := newFixture(t)
	member := domain.AccountCart("u1")
	f.add(t, member, "p1", 1)

	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: member})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	cerr := asCheckoutError(t, err)
	if !hasField(cerr.Fields, "shippingInfo") || !hasField(cerr.Fields, "paymentInfo") {
		t.Fatalf("unexpected fields %+v", cerr.Fields)
	}

	// Supplying what the profile lacks suffices.
	f.profiles["u1"] = &domain.SavedProfile{Shipping: address()}
	if _, err := f.orch.Submit(context.Background(), SubmitInput{Cart: member, Payment: card()}); err != nil {
		t.Fatalf("Submit with supplied payment: %v", err)
	}
}

func TestSubmit_IdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)
	in := SubmitInput{Cart: guest, Shipping: address(), Payment: card(), IdempotencyKey: "key-1"}

	first, err := f.orch.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := f.orch.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed || second.Order.ID != first.Order.ID || f.ledger.count() != 1 {
		t.Fatalf("expected replay of %s, got %+v (orders=%d)", first.Order.ID, second, f.ledger.count())
	}

	member := domain.AccountCart("u1")
	f.add(t, member, "p1", 1)
	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: member, Shipping: address(), Payment: card(), IdempotencyKey: "key-1"})
	if err != nil || res.Replayed || res.Order.ID == first.Order.ID {
		t.Fatalf("a member reusing a guest's key must get its own order, got %+v err=%v", res, err)
	}
}

func TestSubmit_IdempotencyKeyIsScopedPerGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	annCart := domain.AnonymousCart("sess-ann")
	bobCart := domain.AnonymousCart("sess-bob")
	f.add(t, annCart, "p1", 1)
	f.add(t, bobCart, "p2", 3)

	ann, err := f.orch.Submit(ctx, SubmitInput{Cart: annCart, Shipping: address(), Payment: card(), IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("ann: %v", err)
	}

	bobShip := address()
	bobShip.Address = "9 Elm St"
	bobPay := card()
	bobPay.CardHolderName = "Bob Roe"
	bob, err := f.orch.Submit(ctx, SubmitInput{Cart: bobCart, Shipping: bobShip, Payment: bobPay, IdempotencyKey: "k1"})
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	if bob.Replayed || bob.Order.ID == ann.Order.ID {
		t.Fatalf("bob must not see ann's order, got %+v", bob)
	}
	if bob.Order.Shipping.Address != "9 Elm St" || bob.Order.Payment.CardHolderName != "Bob Roe" || bob.Order.TotalCents != 3*800 {
		t.Fatalf("unexpected order for bob %+v", bob.Order)
	}
	if got := f.lines(t, bobCart); len(got) != 0 {
		t.Fatalf("expected bob's cart checked out, got %+v", got)
	}
	if f.ledger.count() != 2 {
		t.Fatalf("expected two orders, got %d", f.ledger.count())
	}
}

func TestSubmit_KeepsLinesAddedDuringCheckout(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 2)
	f.store.afterRead = func() {
		f.add(t, guest, "p1", 1)
		f.add(t, guest, "p2", 1)
	}

	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Order.TotalCents != 2*1500 {
		t.Fatalf("expected only the read lines purchased, got %+v", res.Order)
	}
	got := f.lines(t, guest)
	if len(got) != 2 || got[0].ProductID != "p1" || got[0].Quantity != 1 || got[1].ProductID != "p2" {
		t.Fatalf("expected lines added during checkout kept, got %+v", got)
	}
}

func TestSubmit_CancelledBeforeConfirmingHasNoEffect(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.orch.Submit(ctx, SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.ledger.count() != 0 || len(f.lines(t, guest)) != 1 {
		t.Fatalf("abandoned checkout must leave no trace")
	}
}

func TestSubmit_CancelDuringConfirmingStillCompletes(t *testing.T) {
	f := newFixture(t)
	member := domain.AccountCart("u1")
	f.add(t, member, "p1", 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.ledger.onAppend = cancel

	res, err := f.orch.Submit(ctx, SubmitInput{Cart: member, Shipping: address(), Payment: card()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !f.ledger.appendCtxOK {
		t.Fatalf("order write saw a cancelled context")
	}
	if len(f.lines(t, member)) != 0 || f.grants.held["u1/p1"] != 1 {
		t.Fatalf("completion must run after the order is confirmed, order %s", res.Order.ID)
	}
}

func TestSubmit_GrantRetriesAndFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	member := domain.AccountCart("u1")
	f.add(t, member, "p1", 1)
	f.grants.failures = 2

	if _, err := f.orch.Submit(context.Background(), SubmitInput{Cart: member, Shipping: address(), Payment: card()}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if f.grants.calls != 3 || f.grants.held["u1/p1"] != 1 {
		t.Fatalf("expected grant after retries, calls=%d held=%v", f.grants.calls, f.grants.held)
	}

	f.add(t, member, "p2", 1)
	f.grants.failures = 10
	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: member, Shipping: address(), Payment: card()})
	if err != nil || res == nil {
		t.Fatalf("grant failure must not fail the order: %v", err)
	}
	if f.ledger.count() != 2 {
		t.Fatalf("expected two orders, got %d", f.ledger.count())
	}
}

func TestSubmit_CleanupFailureStillReturnsOrder(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.add(t, guest, "p1", 1)
	f.store.subtractErr = errors.New("redis down")

	res, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if err != nil || res.Order.ID == "" {
		t.Fatalf("expected confirmed order, got %v", err)
	}
}

func TestSubmit_LoginMergeThenCheckout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anon := domain.AnonymousCart("sess-1")
	account := domain.AccountCart("u1")
	f.add(t, anon, "p1", 1)
	f.add(t, account, "p1", 2)

	bridge := identity.NewBridge(f.store.Store, f.engine, nil)
	sess := identity.NewAnonymousSession("sess-1")
	if _, err := bridge.Login(ctx, sess, "u1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := f.lines(t, account); len(got) != 1 || got[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %+v", got)
	}
	if got := f.lines(t, anon); len(got) != 0 {
		t.Fatalf("expected anonymous cart emptied, got %+v", got)
	}

	res, err := f.orch.Submit(ctx, SubmitInput{Cart: sess.Cart(), Shipping: address(), Payment: card()})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Order.TotalCents != 3*1500 {
		t.Fatalf("expected total %d, got %d", 3*1500, res.Order.TotalCents)
	}
	if f.grants.total() != 1 || f.grants.held["u1/p1"] != 1 {
		t.Fatalf("expected exactly one entitlement, got %+v", f.grants.held)
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("boom")
	err := failure(StageConfirming, ErrPersistence, []domain.FieldError{{Field: "a"}}, cause)
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, cause) {
		t.Fatalf("expected both kind and cause to match")
	}
	want := "checkout confirming: checkout persistence failed [a]: boom"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestSubmit_OverflowingTotalIsValidationFailure(t *testing.T) {
	f := newFixture(t)
	guest := domain.AnonymousCart("sess-1")
	f.catalog.set("p1", 1<<62)
	f.add(t, guest, "p1", 4)

	_, err := f.orch.Submit(context.Background(), SubmitInput{Cart: guest, Shipping: address(), Payment: card()})
	if !errors.Is(err, ErrValidationFailed) || !hasField(asCheckoutError(t, err).Fields, "cart") {
		t.Fatalf("expected cart validation failure, got %v", err)
	}
	if f.ledger.count() != 0 {
		t.Fatalf("no order may be written")
	}
}
