package provider

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"sync/atomic"
)

// DefaultStubCode is the verification code the stub accepts unless configured otherwise
const DefaultStubCode = "12345"

// Stub implements Gateway in-process for development and tests: every phone gets
// the same code, selected phones additionally require a two-factor password, and
// exported sessions are random strings.
type Stub struct {
	code string

	mu        sync.RWMutex
	passwords map[string]string

	open atomic.Int64
}

// NewStub creates a stub provider accepting code (DefaultStubCode when empty)
func NewStub(code string) *Stub {
	if code == "" {
		code = DefaultStubCode
	}
	return &Stub{
		code:      code,
		passwords: make(map[string]string),
	}
}

// SetPassword makes sign-in for phone require the given two-factor password
func (s *Stub) SetPassword(phone, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[phone] = password
}

// OpenConns reports how many stub connections are currently open
func (s *Stub) OpenConns() int {
	return int(s.open.Load())
}

func (s *Stub) passwordFor(phone string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passwords[phone]
}

// Open returns a new stub connection
func (s *Stub) Open(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindConnection, Message: "open connection: " + err.Error(), Err: err}
	}
	s.open.Add(1)
	return &stubConn{stub: s}, nil
}

type stubConn struct {
	stub *Stub

	mu       sync.Mutex
	codeSent string
	signedIn bool
	closed   bool
}

func (c *stubConn) RequestCode(ctx context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &Error{Kind: KindRemote, Message: "connection closed"}
	}
	if len(phone) < 5 || phone[0] != '+' {
		return &Error{Kind: KindInvalidPhone, Message: "The phone number is invalid"}
	}
	c.codeSent = phone
	return nil
}

func (c *stubConn) SignIn(ctx context.Context, phone, code, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &Error{Kind: KindRemote, Message: "connection closed"}
	}
	if c.codeSent == "" || c.codeSent != phone {
		return &Error{Kind: KindRemote, Message: "no code was requested for this phone"}
	}
	if code != c.stub.code {
		return &Error{Kind: KindInvalidCode, Message: "The phone code entered was invalid"}
	}
	if want := c.stub.passwordFor(phone); want != "" {
		if password == "" {
			return &Error{Kind: KindPasswordRequired, Message: "Two-steps verification is enabled and a password is required"}
		}
		if password != want {
			return &Error{Kind: KindInvalidPassword, Message: "The password (and thus its hash value) you entered is invalid"}
		}
	}
	c.signedIn = true
	return nil
}

func (c *stubConn) ExportSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.signedIn {
		return "", &Error{Kind: KindRemote, Message: "not signed in"}
	}
	return GenerateSessionString()
}

func (c *stubConn) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.stub.open.Add(-1)
	return nil
}

// GenerateSessionString returns a random Base64URL session string (64 bytes)
func GenerateSessionString() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
