package domain

import (
	"regexp"
	"strings"
	"time"
)

// ShippingProfile is a delivery address, either saved on an account or
// supplied once by a guest at checkout.
type ShippingProfile struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zipcode string `json:"zipcode"`
}

// PaymentInstrument carries raw card data. It is never written into an order.
type PaymentInstrument struct {
	CardNumber     string `json:"cardNumber"`
	CardHolderName string `json:"cardHolderName"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
}

// SavedProfile is the checkout default stored on an account.
type SavedProfile struct {
	Shipping *ShippingProfile
	Payment  *PaymentInstrument
}

// Customer represents a registered user.
type Customer struct {
	ID            string             `json:"id"`
	Username      string             `json:"username"`
	Email         string             `json:"email"`
	PasswordHash  string             `json:"-"`
	IsAdmin       bool               `json:"isAdmin"`
	SavedShipping *ShippingProfile   `json:"shippingInfo,omitempty"`
	SavedPayment  *PaymentInstrument `json:"-"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// Identity is the verified caller behind an access token.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// FieldError names one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PrefixFields returns errs with prefix + "." prepended to every field name.
func PrefixFields(prefix string, errs []FieldError) []FieldError {
	out := make([]FieldError, len(errs))
	for i, e := range errs {
		out[i] = FieldError{Field: prefix + "." + e.Field, Message: e.Message}
	}
	return out
}

var zipcodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// Validate checks that every shipping field is present and the zipcode is
// five digits with an optional four digit extension.
func (s ShippingProfile) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(s.Address) == "" {
		errs = append(errs, FieldError{Field: "address", Message: "Address is required."})
	}
	if strings.TrimSpace(s.City) == "" {
		errs = append(errs, FieldError{Field: "city", Message: "City is required."})
	}
	if strings.TrimSpace(s.State) == "" {
		errs = append(errs, FieldError{Field: "state", Message: "State is required."})
	}
	if !zipcodePattern.MatchString(strings.TrimSpace(s.Zipcode)) {
		errs = append(errs, FieldError{Field: "zipcode", Message: "Invalid zipcode."})
	}
	return errs
}
