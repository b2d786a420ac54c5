package auth

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminToken_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	token, err := svc.SignAdminToken()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := svc.VerifyAdminToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "admin" {
		t.Errorf("subject = %q, want admin", claims.Subject)
	}
	if svc.TTL() != time.Hour {
		t.Errorf("ttl = %v, want 1h", svc.TTL())
	}
}

func TestAdminToken_WrongSecretRejected(t *testing.T) {
	token, err := NewJWTService("secret-a", time.Hour).SignAdminToken()
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTService("secret-b", time.Hour).VerifyAdminToken(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestAdminToken_ExpiredRejected(t *testing.T) {
	claims := &AdminClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   adminSubject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTService("s", time.Hour).VerifyAdminToken(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestAdminToken_WrongSubjectRejected(t *testing.T) {
	claims := &AdminClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "someone",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewJWTService("s", time.Hour).VerifyAdminToken(token); err == nil {
		t.Error("token for another subject must be rejected")
	}
}

func TestRandomSecret(t *testing.T) {
	a, err := RandomSecret()
	if err != nil {
		t.Fatalf("random secret: %v", err)
	}
	decoded, err := hex.DecodeString(a)
	if err != nil {
		t.Fatalf("secret should be valid hex: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("secret should be 32 bytes, got %d", len(decoded))
	}
	b, _ := RandomSecret()
	if a == b {
		t.Error("secrets should differ")
	}
}

func TestPasswordChecker(t *testing.T) {
	p, err := NewPasswordChecker("admin123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	if !p.Check("admin123") {
		t.Error("correct password should match")
	}
	if p.Check("admin124") || p.Check("") {
		t.Error("wrong password should not match")
	}
	if _, err := NewPasswordChecker("", bcrypt.MinCost); err == nil {
		t.Error("empty password should be rejected")
	}
}
