// Package provider abstracts the remote messaging service that performs the
// phone/code/password handshake and exports a session string.
//
// Every call is a remote, failable operation. Failures are reported as *Error
// values carrying a Kind so that callers can switch on the outcome instead of
// parsing messages. Nothing in this package retries.
package provider

import (
	"context"
	"errors"
)

// Kind classifies a provider failure
type Kind int

const (
	// KindRemote is an opaque provider failure; also the kind of any unclassified error
	KindRemote Kind = iota
	KindConnection
	KindInvalidPhone
	KindRateLimited
	KindInvalidCode
	KindPasswordRequired
	KindInvalidPassword
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindInvalidPhone:
		return "invalid_phone"
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidCode:
		return "invalid_code"
	case KindPasswordRequired:
		return "password_required"
	case KindInvalidPassword:
		return "invalid_password"
	default:
		return "remote"
	}
}

// Error is a classified provider failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err. Errors that are not *Error are KindRemote.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindRemote
}

// Gateway opens connections to the provider
type Gateway interface {
	// Open establishes a fresh remote session context. Fails with KindConnection when
	// the provider is unreachable.
	Open(ctx context.Context) (Conn, error)
}

// Conn is one live remote session context. A Conn is owned by a single login
// attempt and must be closed on every path after Open succeeded.
type Conn interface {
	RequestCode(ctx context.Context, phone string) error
	// SignIn completes the handshake. password is empty on the first submission.
	SignIn(ctx context.Context, phone, code, password string) error
	// ExportSession returns the durable session string; valid only after SignIn succeeded.
	ExportSession(ctx context.Context) (string, error)
	// Close releases the connection. Safe to call more than once.
	Close(ctx context.Context) error
}
