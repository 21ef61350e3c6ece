package twitter

import "errors"

// Error kinds surfaced by target resolution and the fetch backends. Callers
// match these with errors.Is and map them to distinct exit conditions.
var (
	// ErrUnsupportedURL means the input URL is not a recognized timeline URL.
	ErrUnsupportedURL = errors.New("unsupported timeline url")

	// ErrUserNotFound means a handle did not resolve to an account.
	ErrUserNotFound = errors.New("user not found")

	// ErrLoginRequired means the authenticated session is missing or expired.
	// Fatal to the current call; the user must re-authenticate.
	ErrLoginRequired = errors.New("login required")

	// ErrMalformedResponse means a payload matched no known response shape.
	// Contained per-item: logged and skipped, never fatal to a stream.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrTimeout means no matching response arrived within the wait window.
	ErrTimeout = errors.New("timed out waiting for timeline response")
)
