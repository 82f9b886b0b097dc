package checkout

import (
	"errors"
	"strings"

	"storefront/internal/domain"
)

// Stage names a step of a checkout attempt.
type Stage string

const (
	StageReviewing  Stage = "reviewing"
	StageValidating Stage = "validating"
	StageConfirming Stage = "confirming"
	StageCompleted  Stage = "completed"
)

var (
	// ErrValidationFailed covers missing or malformed shipping input and an
	// empty cart.
	ErrValidationFailed = errors.New("checkout validation failed")
	// ErrPaymentInvalid is returned when the payment instrument fails the
	// checksum, expiry or CVV checks.
	ErrPaymentInvalid = errors.New("payment instrument invalid")
	// ErrProductUnavailable is returned when a cart line no longer resolves.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrPersistence is returned when a store could not be read or written.
	// Resubmitting the same input may succeed.
	ErrPersistence = errors.New("checkout persistence failed")
)

// Error reports which step of a checkout failed. Kind is one of the sentinels
// above; Fields carries field-level detail for validation failures.
type Error struct {
	Stage  Stage
	Kind   error
	Fields []domain.FieldError
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("checkout ")
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if len(e.Fields) > 0 {
		names := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			names[i] = f.Field
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func failure(stage Stage, kind error, fields []domain.FieldError, err error) *Error {
	return &Error{Stage: stage, Kind: kind, Fields: fields, Err: err}
}
