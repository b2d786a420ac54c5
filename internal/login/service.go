package login

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/signalix/loginbroker/internal/model"
	"github.com/signalix/loginbroker/internal/provider"
)

const (
	// DefaultMaxAttemptAge bounds how long an unfinished attempt may hold its phone
	DefaultMaxAttemptAge = 10 * time.Minute

	closeTimeout = 5 * time.Second
)

// SessionStore is the part of the session repository the login flow writes to
type SessionStore interface {
	Put(ctx context.Context, phone, token string) (model.SessionRecord, error)
	Delete(ctx context.Context, phone string) error
}

// VerifyResult is the outcome of a successful Verify call: either the exported
// session token, or a request for the two-factor password.
type VerifyResult struct {
	Token         string
	NeedsPassword bool
}

// Service drives the per-phone login handshake:
//
//	Start:  (none) -> CodeSent
//	Verify: CodeSent -> Completed | AwaitingPassword | CodeSent (wrong code) | Failed
//	        AwaitingPassword -> Completed | AwaitingPassword (wrong code) | Failed
//
// Completed and Failed attempts are closed and removed from the registry
// immediately. It's safe to use concurrently from multiple goroutines.
type Service struct {
	gateway  provider.Gateway
	store    SessionStore
	registry *Registry
	maxAge   time.Duration
	now      func() time.Time
}

// NewService creates a login service. maxAttemptAge <= 0 selects DefaultMaxAttemptAge.
func NewService(gateway provider.Gateway, store SessionStore, registry *Registry, maxAttemptAge time.Duration) *Service {
	if maxAttemptAge <= 0 {
		maxAttemptAge = DefaultMaxAttemptAge
	}
	return &Service{
		gateway:  gateway,
		store:    store,
		registry: registry,
		maxAge:   maxAttemptAge,
		now:      time.Now,
	}
}

// Start begins a login for phone: it reserves the phone, deletes any stored
// session for it, opens a provider connection and requests a code. On any
// failure the connection is closed and nothing stays registered.
func (s *Service) Start(ctx context.Context, phone string) error {
	a := newAttempt(phone, s.now())
	if err := s.registry.Register(a); err != nil {
		return ErrAttemptInProgress
	}

	if err := s.store.Delete(ctx, phone); err != nil {
		s.registry.removeAttempt(a)
		return fmt.Errorf("failed to clear stored session: %w", err)
	}

	conn, err := s.gateway.Open(ctx)
	if err != nil {
		s.registry.removeAttempt(a)
		logAttempt(a, "Failed to open provider connection", err)
		return fmt.Errorf("%w: %s", ErrConnection, err.Error())
	}
	a.conn = conn

	if err := conn.RequestCode(ctx, phone); err != nil {
		s.fail(ctx, a, err)
		return providerError(err)
	}

	s.registry.release(a, StateCodeSent)
	logAttempt(a, "Code sent")
	return nil
}

// Verify submits the code (and, once requested, the two-factor password) for
// the attempt registered under phone.
func (s *Service) Verify(ctx context.Context, phone, code, password string) (VerifyResult, error) {
	a, state, err := s.registry.acquire(phone)
	if err != nil {
		return VerifyResult{}, err
	}

	if state == StateAwaitingPassword && password == "" {
		s.registry.release(a, state)
		return VerifyResult{NeedsPassword: true}, nil
	}

	err = a.conn.SignIn(ctx, phone, code, password)
	if err == nil {
		return s.complete(ctx, a)
	}

	switch provider.KindOf(err) {
	case provider.KindPasswordRequired:
		s.registry.release(a, StateAwaitingPassword)
		logAttempt(a, "Two-factor password required")
		return VerifyResult{NeedsPassword: true}, nil
	case provider.KindInvalidCode:
		s.registry.release(a, state)
		logAttempt(a, "Invalid code submitted")
		return VerifyResult{}, fmt.Errorf("%w: %s", ErrInvalidCode, err.Error())
	default:
		s.fail(ctx, a, err)
		return VerifyResult{}, providerError(err)
	}
}

// Cancel abandons the attempt registered under phone, closing its connection.
// Cancelling a phone without an attempt is a no-op.
func (s *Service) Cancel(ctx context.Context, phone string) error {
	a, _, err := s.registry.acquire(phone)
	if errors.Is(err, ErrNoSuchAttempt) {
		return nil
	}
	if err != nil {
		return err
	}
	s.discard(ctx, a)
	logAttempt(a, "Attempt cancelled")
	return nil
}

// Attempts returns a snapshot of in-flight attempts, oldest first
func (s *Service) Attempts() []AttemptInfo {
	return s.registry.Snapshot()
}

// Sweep closes and removes idle attempts older than the configured maximum age.
// It returns the number of attempts removed.
func (s *Service) Sweep(now time.Time) int {
	return s.evict(s.registry.expired(now.Add(-s.maxAge)), "Stale attempt evicted")
}

// CloseAll closes and removes every idle attempt regardless of age. Used on
// shutdown, after the HTTP server has drained.
func (s *Service) CloseAll() int {
	return s.evict(s.registry.expired(time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)), "Attempt closed on shutdown")
}

func (s *Service) evict(attempts []*Attempt, msg string) int {
	for _, a := range attempts {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := a.closeConn(ctx); err != nil {
			logAttempt(a, "Failed to close provider connection", err)
		}
		cancel()
		logAttempt(a, msg)
	}
	return len(attempts)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				log.Printf("Sweeper evicted %d stale login attempts", n)
			}
		}
	}
}

// complete exports the session, persists it and retires the attempt.
func (s *Service) complete(ctx context.Context, a *Attempt) (VerifyResult, error) {
	token, err := a.conn.ExportSession(ctx)
	if err != nil {
		s.fail(ctx, a, err)
		return VerifyResult{}, providerError(err)
	}

	if _, err := s.store.Put(ctx, a.Phone, token); err != nil {
		s.fail(ctx, a, err)
		return VerifyResult{}, fmt.Errorf("failed to save session: %w", err)
	}

	s.registry.retire(a, StateCompleted)
	s.discard(ctx, a)
	logAttempt(a, "Login completed, session saved")
	return VerifyResult{Token: token}, nil
}

func (s *Service) fail(ctx context.Context, a *Attempt, cause error) {
	s.registry.retire(a, StateFailed)
	s.discard(ctx, a)
	logAttempt(a, "Login failed", cause)
}

// discard closes the attempt's connection and drops it from the registry. The
// close runs even if ctx was already cancelled.
func (s *Service) discard(ctx context.Context, a *Attempt) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := a.closeConn(closeCtx); err != nil {
		logAttempt(a, "Failed to close provider connection", err)
	}
	s.registry.removeAttempt(a)
}

// providerError converts a provider failure to the matching service error,
// keeping the provider's message.
func providerError(err error) error {
	var kind error
	switch provider.KindOf(err) {
	case provider.KindConnection:
		kind = ErrConnection
	case provider.KindInvalidPhone:
		kind = ErrInvalidPhone
	case provider.KindRateLimited:
		kind = ErrRateLimited
	case provider.KindInvalidCode:
		kind = ErrInvalidCode
	case provider.KindInvalidPassword:
		kind = ErrInvalidPassword
	default:
		kind = ErrRemote
	}
	return fmt.Errorf("%w: %s", kind, err.Error())
}

func logAttempt(a *Attempt, msg string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("Phone %s: attempt %s: %s: %v", model.MaskPhone(a.Phone), a.ID, msg, args[0])
		return
	}
	log.Printf("Phone %s: attempt %s: %s", model.MaskPhone(a.Phone), a.ID, msg)
}
