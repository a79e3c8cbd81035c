package errs

import "errors"

// Common sentinel errors for cross-layer signaling. Services wrap these via
// fmt.Errorf("...: %w", err); the HTTP layer maps them to status codes and
// never echoes storage error text verbatim.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrUnauthorized signals missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden signals a principal without admin rights on an admin operation.
	ErrForbidden = errors.New("forbidden")
	// ErrStorage signals a transient persistence failure that survived the
	// single in-operation retry.
	ErrStorage = errors.New("storage")
	// ErrCanceled signals caller-initiated cancellation observed before the
	// atomic commit point.
	ErrCanceled = errors.New("canceled")
)
