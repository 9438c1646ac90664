package domain

import (
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// Normalize trims whitespace, upper-cases the type and fills in the default ttl.
func Normalize(r Record) Record {
	r.Domain = strings.TrimSpace(r.Domain)
	r.Value = strings.TrimSpace(r.Value)
	r.Type = RecordKind(strings.ToUpper(strings.TrimSpace(string(r.Type))))
	if r.TTL == 0 {
		r.TTL = DefaultTTL
	}
	return r
}

// ValidateRecord checks the record invariants:
//  1. owner, domain and value are non-empty.
//  2. type is one of the supported kinds.
//  3. ttl is positive.
//  4. domain is a syntactically valid DNS name.
//  5. address, alias and service values are well formed for their type.
func ValidateRecord(r Record) error {
	if r.Owner == "" {
		return NewValidationError("owner", "record has no owner")
	}
	if r.Domain == "" {
		return NewValidationError("domain", "domain is required")
	}
	if r.Value == "" {
		return NewValidationError("value", "value is required")
	}
	if !r.Type.IsValid() {
		return NewValidationError("type", "unsupported record type %q", r.Type)
	}
	if r.TTL <= 0 {
		return NewValidationError("ttl", "ttl must be positive, got %d", r.TTL)
	}
	if _, ok := dns.IsDomainName(r.Domain); !ok {
		return NewValidationError("domain", "%q is not a valid domain name", r.Domain)
	}
	return validateValue(r)
}

func validateValue(r Record) error {
	switch r.Type {
	case RecordA:
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() == nil {
			return NewValidationError("value", "invalid IPv4 address %q", r.Value)
		}
	case RecordAAAA:
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() != nil {
			return NewValidationError("value", "invalid IPv6 address %q", r.Value)
		}
	case RecordCNAME, RecordNS, RecordPTR:
		if _, ok := dns.IsDomainName(r.Value); !ok {
			return NewValidationError("value", "%s target %q is not a valid domain name", r.Type, r.Value)
		}
	case RecordMX:
		// "<preference> <exchange>"
		fields := strings.Fields(r.Value)
		if len(fields) != 2 || !isUint16(fields[0]) {
			return NewValidationError("value", "MX value must be \"<preference> <host>\", got %q", r.Value)
		}
		if _, ok := dns.IsDomainName(fields[1]); !ok {
			return NewValidationError("value", "MX exchange %q is not a valid domain name", fields[1])
		}
	case RecordSRV:
		// "<priority> <weight> <port> <target>"
		fields := strings.Fields(r.Value)
		if len(fields) != 4 || !isUint16(fields[0]) || !isUint16(fields[1]) || !isUint16(fields[2]) {
			return NewValidationError("value", "SRV value must be \"<priority> <weight> <port> <target>\", got %q", r.Value)
		}
	}
	return nil
}

func isUint16(s string) bool {
	_, err := strconv.ParseUint(s, 10, 16)
	return err == nil
}
