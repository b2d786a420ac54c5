package login

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/loginbroker/internal/provider"
)

// State is the position of an attempt in the login handshake
type State int

const (
	// StateRequestingCode holds the phone while Start talks to the provider
	StateRequestingCode State = iota
	StateCodeSent
	StateAwaitingPassword
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRequestingCode:
		return "requesting_code"
	case StateCodeSent:
		return "code_sent"
	case StateAwaitingPassword:
		return "awaiting_password"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attempt is one in-flight login for a phone number. It exclusively owns its
// provider connection. State and busy are guarded by the owning Registry's lock.
type Attempt struct {
	ID        uuid.UUID
	Phone     string
	CreatedAt time.Time

	state State
	busy  bool

	conn      provider.Conn
	closeOnce sync.Once
}

// AttemptInfo is a read-only snapshot of an attempt
type AttemptInfo struct {
	ID        uuid.UUID
	Phone     string
	State     State
	CreatedAt time.Time
}

func newAttempt(phone string, now time.Time) *Attempt {
	return &Attempt{
		ID:        uuid.New(),
		Phone:     phone,
		CreatedAt: now,
		state:     StateRequestingCode,
		busy:      true,
	}
}

// closeConn closes the provider connection at most once. Errors are returned
// only to the first caller.
func (a *Attempt) closeConn(ctx context.Context) error {
	var err error
	a.closeOnce.Do(func() {
		if a.conn != nil {
			err = a.conn.Close(ctx)
		}
	})
	return err
}
