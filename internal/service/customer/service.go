package customer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
	"storefront/internal/payment"
	custrepo "storefront/internal/repository/customer"
	tokenrepo "storefront/internal/repository/token"
)

var (
	// ErrInvalidCredentials is returned when email/password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates the provided token could not be validated.
	ErrInvalidToken = errors.New("invalid token")
)

// ValidationError lists every rejected input field.
type ValidationError struct {
	Fields []domain.FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return "invalid fields: " + strings.Join(names, ", ")
}

// Service is the auth directory: accounts, access tokens and saved
// checkout profiles.
type Service struct {
	repo        custrepo.Repository
	tokens      *tokenManager
	accessTTL   time.Duration
	passwordMin int
	usernameMin int
	now         func() time.Time
}

// New creates a Service with sane defaults.
func New(repo custrepo.Repository, tokens tokenrepo.Repository) *Service {
	return &Service{
		repo:        repo,
		tokens:      newTokenManager(tokens),
		accessTTL:   48 * time.Hour,
		passwordMin: 6,
		usernameMin: 3,
		now:         time.Now,
	}
}

// SignupInput captures fields expected by the registration endpoint.
type SignupInput struct {
	Username         string                    `json:"username"`
	Email            string                    `json:"email"`
	Password         string                    `json:"password"`
	SavedPaymentInfo *domain.PaymentInstrument `json:"savedPaymentInfo"`
	ShippingInfo     *domain.ShippingProfile   `json:"shippingInfo"`
}

// Signup registers a customer. Saved payment and shipping are optional but
// must be valid when present.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*domain.Customer, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(strings.ToLower(in.Email))
	password := strings.TrimSpace(in.Password)

	var fields []domain.FieldError
	if len(username) < s.usernameMin {
		fields = append(fields, domain.FieldError{Field: "username", Message: fmt.Sprintf("Username must be at least %d characters long.", s.usernameMin)})
	}
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		fields = append(fields, domain.FieldError{Field: "email", Message: "Invalid email address."})
	}
	if len(password) < s.passwordMin {
		fields = append(fields, domain.FieldError{Field: "password", Message: fmt.Sprintf("Password must be at least %d characters long.", s.passwordMin)})
	}
	fields = append(fields, s.validateProfile(domain.SavedProfile{Shipping: in.ShippingInfo, Payment: in.SavedPaymentInfo})...)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, domain.Customer{
		Username:      username,
		Email:         email,
		PasswordHash:  string(hashed),
		SavedShipping: in.ShippingInfo,
		SavedPayment:  in.SavedPaymentInfo,
	})
}

// validateProfile applies the same payment rules as guest checkout.
func (s *Service) validateProfile(p domain.SavedProfile) []domain.FieldError {
	var fields []domain.FieldError
	if p.Shipping != nil {
		fields = append(fields, domain.PrefixFields("shippingInfo", p.Shipping.Validate())...)
	}
	if p.Payment != nil {
		fields = append(fields, domain.PrefixFields("savedPaymentInfo", payment.ValidateInstrument(*p.Payment, s.now()))...)
	}
	return fields
}

// Login validates credentials and returns an access token plus the customer.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.Customer, string, error) {
	password = strings.TrimSpace(password)
	c, err := s.repo.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(ctx, c.ID, "access", s.accessTTL)
	if err != nil {
		return nil, "", err
	}
	return c, access, nil
}

// Verify resolves an access token to the caller's identity.
func (s *Service) Verify(ctx context.Context, token string) (domain.Identity, error) {
	meta, ok := s.tokens.Validate(ctx, token)
	if !ok {
		return domain.Identity{}, ErrInvalidToken
	}
	c, err := s.repo.GetByID(ctx, meta.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, ErrInvalidToken
		}
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: c.ID, IsAdmin: c.IsAdmin}, nil
}

// Logout revokes the token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.tokens.Revoke(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (s *Service) Get(ctx context.Context, userID string) (*domain.Customer, error) {
	return s.repo.GetByID(ctx, userID)
}

// SavedProfile returns the checkout defaults stored for the user. Either part
// may be nil.
func (s *Service) SavedProfile(ctx context.Context, userID string) (*domain.SavedProfile, error) {
	c, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.SavedProfile{Shipping: c.SavedShipping, Payment: c.SavedPayment}, nil
}

// UpdateProfile replaces the supplied parts of the saved profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, profile domain.SavedProfile) (*domain.Customer, error) {
	if profile.Shipping == nil && profile.Payment == nil {
		return nil, &ValidationError{Fields: []domain.FieldError{{Field: "profile", Message: "Nothing to update."}}}
	}
	if fields := s.validateProfile(profile); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return s.repo.UpdateProfile(ctx, userID, profile)
}

// AccessTTLSeconds exposes the access token lifetime in seconds.
func (s *Service) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}
