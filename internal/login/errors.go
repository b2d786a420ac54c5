package login

import "errors"

// Errors returned by Service. Provider messages are appended with %w wrapping,
// so callers should match with errors.Is.
var (
	ErrAttemptInProgress = errors.New("login already in progress")
	ErrNoSuchAttempt     = errors.New("session expired, restart login")
	ErrInvalidCode       = errors.New("wrong code")
	ErrInvalidPassword   = errors.New("wrong password")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrRateLimited       = errors.New("too many attempts, try again later")
	ErrConnection        = errors.New("provider unreachable")
	ErrRemote            = errors.New("provider error")

	// ErrAlreadyExists is returned by Registry.Register when the phone already has an attempt
	ErrAlreadyExists = errors.New("attempt already registered")
)
