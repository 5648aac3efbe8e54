package billing

import "errors"

// Error taxonomy for the billing subsystem. Handlers map these onto HTTP
// statuses; everything else is an internal failure.
var (
	// ErrUnauthenticated covers bad or missing bearer credentials and
	// webhook signature failures.
	ErrUnauthenticated = errors.New("billing: unauthenticated")

	// ErrInvalidArgument covers unknown plans and malformed payload shapes.
	ErrInvalidArgument = errors.New("billing: invalid argument")

	// ErrNotFound covers events and requests with no resolvable user or
	// customer.
	ErrNotFound = errors.New("billing: not found")

	// ErrUnavailable covers upstream object fetches and store writes that
	// failed but are safe to retry. The payment provider's redelivery is
	// the retry mechanism; no local queue exists.
	ErrUnavailable = errors.New("billing: unavailable")
)
