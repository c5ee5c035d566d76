package domain

import (
	"fmt"
	"strings"
	"time"
)

// SuppressionType distinguishes exact-address entries from domain-level entries.
type SuppressionType string

const (
	SuppressionExact  SuppressionType = "EXACT"
	SuppressionDomain SuppressionType = "DOMAIN"
)

func (t SuppressionType) String() string { return string(t) }

func (t SuppressionType) IsValid() bool {
	switch t {
	case SuppressionExact, SuppressionDomain:
		return true
	}
	return false
}

func ParseSuppressionTypeFromString(s string) (SuppressionType, error) {
	t := SuppressionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid suppression type %q", ErrValidation, s)
	}
	return t, nil
}

// SuppressionEntry is one internal suppression list record.
type SuppressionEntry struct {
	ID        string
	Value     string
	Type      SuppressionType
	Reason    string
	Active    bool
	CreatedAt time.Time
}

func (e *SuppressionEntry) Validate() error {
	if strings.TrimSpace(e.Value) == "" {
		return fmt.Errorf("%w: suppression value is required", ErrValidation)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: invalid suppression type %q", ErrValidation, e.Type)
	}
	return nil
}

// EmailDomain extracts the domain part of an address, lowercased.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
