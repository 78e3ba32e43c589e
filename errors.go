package kick

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the authentication layer. All of them can be
// matched with errors.Is even when wrapped.
var (
	// ErrPKCEGeneration indicates the secure random source was unavailable.
	// Authentication cannot proceed without it.
	ErrPKCEGeneration = errors.New("pkce generation failed")

	// ErrStateMismatch indicates the redirect carried a state parameter that
	// does not belong to the in-flight authorization request.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrAuthorizationTimeout indicates no redirect arrived within the
	// configured authorization window.
	ErrAuthorizationTimeout = errors.New("authorization timed out")

	// ErrAuthenticationFailed indicates a 401 persisted through one forced
	// re-authorization and retry.
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// AuthorizationError is returned when the authorization server reports an
// error on the redirect (the user or server declined the request).
type AuthorizationError struct {
	Code        string // the "error" query parameter
	Description string // the "error_description" query parameter, may be empty
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization denied: %s", e.Code)
	}
	return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
}

// ExchangeError is returned when the token endpoint rejects a code or
// refresh exchange. It carries the server's status and body for diagnostics.
type ExchangeError struct {
	GrantType  string
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s exchange failed with status %d: %s", e.GrantType, e.StatusCode, e.Body)
}

// APIError is returned when a domain API call fails with a non-2xx status
// that is not an authentication problem.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, e.Body)
}
