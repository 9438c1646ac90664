package domain

import (
	"strconv"
	"strings"
)

func ParseKind(s string) (RecordKind, error) {
	k := RecordKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", NewValidationError("type", "unsupported record type %q", s)
	}
	return k, nil
}

// ParseTTL reads a ttl field from text input. Empty input yields DefaultTTL.
func ParseTTL(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultTTL, nil
	}
	ttl, err := strconv.Atoi(s)
	if err != nil {
		return 0, NewValidationError("ttl", "invalid ttl %q", s)
	}
	if ttl <= 0 {
		return 0, NewValidationError("ttl", "ttl must be positive, got %d", ttl)
	}
	return ttl, nil
}

// NewRecord builds and validates a record for owner from raw field values.
func NewRecord(owner, domainName, kind, value, ttl string) (Record, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return Record{}, err
	}
	t, err := ParseTTL(ttl)
	if err != nil {
		return Record{}, err
	}
	r := Record{
		Domain: strings.TrimSpace(domainName),
		Type:   k,
		Value:  strings.TrimSpace(value),
		TTL:    t,
		Owner:  owner,
	}
	if err := ValidateRecord(r); err != nil {
		return Record{}, err
	}
	return r, nil
}
