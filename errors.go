package sentinel

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation reports malformed input such as a bad email or empty password.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail is returned when registering an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrRateLimited is returned when an admission window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for tokens that fail signature, type, or claim checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenReuse reports a refresh token presented after it was already
	// rotated or revoked. The whole lineage is revoked as a side effect.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrInsufficientRole is returned when an access token lacks a required role.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrLastAdmin is returned when a role mutation would leave zero admins.
	ErrLastAdmin = errors.New("cannot remove the last admin")
	// ErrAccountInactive is returned when a deactivated account attempts to authenticate.
	ErrAccountInactive = errors.New("account inactive")
	// ErrUserNotFound is returned by credential lookups for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotFound is returned by session lookups for unknown lineage roots.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable reports an unreachable durable or cache store. In
	// strict mode it surfaces to the caller; in relaxed mode selected paths
	// degrade instead.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrEngineNotReady is returned when a required dependency was not wired.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// RetryAfterError wraps ErrRateLimited with the duration after which the
// caller may retry.
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold.
func (e *RetryAfterError) Unwrap() error { return ErrRateLimited }

// RetryAfter extracts the retry hint from a rate-limit error. Returns zero
// when err carries no hint.
func RetryAfter(err error) time.Duration {
	var ra *RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter
	}
	return 0
}
