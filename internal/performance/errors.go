package performance

import "errors"

// Sentinel errors returned by the engine. Handlers translate these into
// HTTP status codes; everything else is treated as an internal error.
var (
	// ErrVendorNotFound is returned when the referenced vendor does not exist
	ErrVendorNotFound = errors.New("vendor not found")

	// ErrOrderNotFound is returned when the referenced purchase order does not exist
	ErrOrderNotFound = errors.New("purchase order not found")

	// ErrInvalidTransition is returned for an illegal purchase order status change
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidState is returned when an operation requires an order status
	// precondition that is not met, e.g. rating an order that is not completed
	ErrInvalidState = errors.New("order status does not allow this operation")

	// ErrValidation is returned for malformed input, e.g. a rating outside
	// the allowed range
	ErrValidation = errors.New("validation failed")
)
