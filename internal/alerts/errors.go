package alerts

import "errors"

var (
	// ErrNotAuthenticated means no user identity was attached to the request.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrStoreUnavailable wraps every failed store read or write.
	ErrStoreUnavailable = errors.New("alert store unavailable")
	// ErrInvalidRequest wraps submission payloads rejected by validation.
	ErrInvalidRequest = errors.New("invalid alert request")
)
