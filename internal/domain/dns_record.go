package domain

import (
	"fmt"
	"time"
)

type RecordKind string

const (
	RecordA      RecordKind = "A"
	RecordAAAA   RecordKind = "AAAA"
	RecordCNAME  RecordKind = "CNAME"
	RecordMX     RecordKind = "MX"
	RecordNS     RecordKind = "NS"
	RecordPTR    RecordKind = "PTR"
	RecordSOA    RecordKind = "SOA"
	RecordSRV    RecordKind = "SRV"
	RecordTXT    RecordKind = "TXT"
	RecordDNSSEC RecordKind = "DNSSEC"
)

// DefaultTTL is applied when a record is submitted without a ttl.
const DefaultTTL = 3600

// Kinds lists every record type the system accepts, in display order.
var Kinds = []RecordKind{
	RecordA, RecordAAAA, RecordCNAME, RecordMX, RecordNS,
	RecordPTR, RecordSOA, RecordSRV, RecordTXT, RecordDNSSEC,
}

func (k RecordKind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Record is a DNS record as held by the local store. Owner scopes every
// store operation; a record owned by someone else is indistinguishable
// from a missing one.
type Record struct {
	ID      string     `json:"id"`
	Domain  string     `json:"domain"`
	Type    RecordKind `json:"type"`
	Value   string     `json:"value"`
	TTL     int        `json:"ttl"`
	Owner   string     `json:"owner"`
	Created time.Time  `json:"created"`
	Updated time.Time  `json:"updated"`
}

// RecordPatch carries the mutable fields of an update. Nil fields are left untouched.
type RecordPatch struct {
	Domain *string     `json:"domain,omitempty"`
	Type   *RecordKind `json:"type,omitempty"`
	Value  *string     `json:"value,omitempty"`
	TTL    *int        `json:"ttl,omitempty"`
}

// Apply returns a copy of r with the patch applied.
func (p RecordPatch) Apply(r Record) Record {
	if p.Domain != nil {
		r.Domain = *p.Domain
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Value != nil {
		r.Value = *p.Value
	}
	if p.TTL != nil {
		r.TTL = *p.TTL
	}
	return r
}

// PatchFrom builds a patch that overwrites every mutable field with the values from r.
func PatchFrom(r Record) RecordPatch {
	return RecordPatch{Domain: &r.Domain, Type: &r.Type, Value: &r.Value, TTL: &r.TTL}
}

func (r Record) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d", r.Domain, r.Type, r.Value, r.TTL)
}

func (r Record) Render() string {
	if r.Value == "" {
		return fmt.Sprintf("[%s] %s -> <no value>", r.Type, r.Domain)
	}
	return fmt.Sprintf("[%s] %s -> %s (ttl=%d)", r.Type, r.Domain, r.Value, r.TTL)
}

// Equal compares the DNS content of two records, ignoring identity and timestamps.
func (r Record) Equal(o Record) bool {
	return r.Domain == o.Domain && r.Type == o.Type && r.Value == o.Value && r.TTL == o.TTL
}

// SameRRSet reports whether both records address the same provider record set.
func (r Record) SameRRSet(o Record) bool {
	return r.Domain == o.Domain && r.Type == o.Type
}

func (r Record) IsA() bool       { return r.Type == RecordA }
func (r Record) IsAAAA() bool    { return r.Type == RecordAAAA }
func (r Record) IsCNAME() bool   { return r.Type == RecordCNAME }
func (r Record) IsAddress() bool { return r.Type == RecordA || r.Type == RecordAAAA }
