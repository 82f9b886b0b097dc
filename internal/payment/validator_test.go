package payment

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain"
)

func TestValidateCardNumber(t *testing.T) {
	cases := []struct {
		number string
		want   bool
	}{
		{"4532015112830366", true},
		{"4532015112830367", false},
		{"4532 0151 1283 0366", true},
		{"4532-0151-1283-0366", true},
		{"4111111111111111", true},
		{"378282246310005", true},
		{"0000000000000000", true},
		{"79927398713", false}, // valid checksum but too short
		{"42424242424242424242", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidateCardNumber(tc.number); got != tc.want {
			t.Fatalf("ValidateCardNumber(%q) = %v, want %v", tc.number, got, tc.want)
		}
	}
}

// Every length in range must agree with an independent weighted-sum computation.
func TestValidateCardNumber_MatchesWeightedSum(t *testing.T) {
	base := "4532015112830366000"
	for n := 13; n <= 19; n++ {
		prefix := base[:n-1]
		for check := 0; check <= 9; check++ {
			number := prefix + strconv.Itoa(check)
			want := weightedSum(number)%10 == 0
			if got := ValidateCardNumber(number); got != want {
				t.Fatalf("%s: got %v want %v", number, got, want)
			}
		}
	}
}

func weightedSum(number string) int {
	sum := 0
	for i := 0; i < len(number); i++ {
		d := int(number[len(number)-1-i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		date string
		want bool
	}{
		{"11/26", true},
		{"10/26", false},
		{"09/26", false},
		{"01/27", true},
		{"1127", false},
		{"11-27", false},
		{"13/27", false},
		{"00/27", false},
		{"1/27", false},
		{"11/2026", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidateExpiry(tc.date, now); got != tc.want {
			t.Fatalf("ValidateExpiry(%q) = %v, want %v", tc.date, got, tc.want)
		}
	}
}

func TestValidateCVV(t *testing.T) {
	for _, ok := range []string{"123", "1234"} {
		if !ValidateCVV(ok) {
			t.Fatalf("expected %q valid", ok)
		}
	}
	for _, bad := range []string{"12", "12345", "12a", ""} {
		if ValidateCVV(bad) {
			t.Fatalf("expected %q invalid", bad)
		}
	}
}

func TestValidateInstrument_ReportsEveryField(t *testing.T) {
	now := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	errs := ValidateInstrument(domain.PaymentInstrument{CardNumber: "1234", ExpiryDate: "10/26", CVV: "x"}, now)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	if strings.Join(fields, ",") != "cardNumber,cardHolderName,expiryDate,cvv" {
		t.Fatalf("unexpected fields %v", fields)
	}

	ok := ValidateInstrument(domain.PaymentInstrument{
		CardNumber:     "4532015112830366",
		CardHolderName: "Ada",
		ExpiryDate:     "12/30",
		CVV:            "123",
	}, now)
	if len(ok) != 0 {
		t.Fatalf("expected valid instrument, got %+v", ok)
	}
}

func TestSummarize_KeepsLastFour(t *testing.T) {
	s := Summarize(domain.PaymentInstrument{CardNumber: "4532 0151 1283 0366", CardHolderName: " Ada ", ExpiryDate: "12/30", CVV: "123"})
	if s.Last4 != "0366" || s.CardHolderName != "Ada" || s.ExpiryDate != "12/30" {
		t.Fatalf("unexpected summary %+v", s)
	}
}
