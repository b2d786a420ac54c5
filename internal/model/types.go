package model

import (
	"strings"
	"time"
)

// SessionRecord is an exported provider session persisted for a phone number
type SessionRecord struct {
	PhoneNumber string
	Token       string
	SavedAt     time.Time
}

// NormalizePhone trims surrounding whitespace from a caller-supplied phone number
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// MaskPhone masks a phone number for logging (e.g., +4*******89)
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}

	// Keep first 2 and last 2 characters, mask the rest
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}
