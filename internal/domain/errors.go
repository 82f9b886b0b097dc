package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidQuantity is returned when a cart line quantity is not positive.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrProductNotFound is returned when a product cannot be resolved from the catalog.
	ErrProductNotFound = errors.New("product not found")
	// ErrLineNotFound is returned when a cart has no line for the given product and variant.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrInvalidCartRef is returned for a cart reference with an unknown kind or empty owner.
	ErrInvalidCartRef = errors.New("invalid cart reference")
	// ErrMergeConflict is returned when an anonymous cart could not be merged into an
	// account cart. The anonymous cart is left untouched.
	ErrMergeConflict = errors.New("cart merge failed")
	// ErrUnavailable indicates a backing store could not serve the request; the
	// operation may be retried.
	ErrUnavailable = errors.New("store unavailable")
)
