// Package payment validates payment instruments syntactically. Nothing here
// talks to a gateway; the same rules run when an account saves a card and
// when a guest checks out.
package payment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain"
)

var (
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/([0-9]{2})$`)
	cvvPattern    = regexp.MustCompile(`^\d{3,4}$`)
)

// ValidateCardNumber strips non-digits and accepts 13 to 19 digits that pass
// the Luhn checksum.
func ValidateCardNumber(number string) bool {
	digits := digitsOnly(number)
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return luhn(digits)
}

// ValidateExpiry accepts MM/YY whose month is strictly after now's month.
// A card expiring in the current month is rejected.
func ValidateExpiry(date string, now time.Time) bool {
	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(date))
	if m == nil {
		return false
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	now = now.UTC()
	expiry := (2000+year)*12 + month
	current := now.Year()*12 + int(now.Month())
	return expiry > current
}

// ValidateCVV accepts three or four digits.
func ValidateCVV(cvv string) bool {
	return cvvPattern.MatchString(strings.TrimSpace(cvv))
}

// ValidateInstrument runs every check and reports one FieldError per failing field.
func ValidateInstrument(p domain.PaymentInstrument, now time.Time) []domain.FieldError {
	var errs []domain.FieldError
	if !ValidateCardNumber(p.CardNumber) {
		errs = append(errs, domain.FieldError{Field: "cardNumber", Message: "Invalid credit card number."})
	}
	if strings.TrimSpace(p.CardHolderName) == "" {
		errs = append(errs, domain.FieldError{Field: "cardHolderName", Message: "Card holder name is required."})
	}
	if !ValidateExpiry(p.ExpiryDate, now) {
		errs = append(errs, domain.FieldError{Field: "expiryDate", Message: "Invalid expiry date. Format: MM/YY"})
	}
	if !ValidateCVV(p.CVV) {
		errs = append(errs, domain.FieldError{Field: "cvv", Message: "Invalid CVV."})
	}
	return errs
}

// Summarize keeps only what an order may retain of a card.
func Summarize(p domain.PaymentInstrument) domain.PaymentSummary {
	digits := digitsOnly(p.CardNumber)
	last4 := digits
	if len(digits) > 4 {
		last4 = digits[len(digits)-4:]
	}
	return domain.PaymentSummary{
		CardHolderName: strings.TrimSpace(p.CardHolderName),
		Last4:          last4,
		ExpiryDate:     strings.TrimSpace(p.ExpiryDate),
	}
}

func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
