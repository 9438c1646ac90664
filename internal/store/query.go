package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/util"
	"github.com/google/uuid"
)

// prepare assigns identity and timestamps to a record about to be inserted.
func prepare(rec domain.Record, now time.Time) domain.Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Created = now
	rec.Updated = now
	return rec
}

func matches(f Filter, rec domain.Record) bool {
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.Domain != "" && !strings.Contains(strings.ToLower(rec.Domain), strings.ToLower(f.Domain)) {
		return false
	}
	return true
}

func applyFilter(f Filter, recs []domain.Record) []domain.Record {
	out := util.Filter(recs, func(r domain.Record) bool { return matches(f, r) })
	if out == nil {
		out = []domain.Record{}
	}
	sortRecords(f, out)
	return out
}

// sortRecords orders recs in place; recs must already be in insertion order.
func sortRecords(f Filter, recs []domain.Record) {
	var less func(a, b domain.Record) bool
	switch f.OrderBy {
	case OrderDomain:
		less = func(a, b domain.Record) bool { return a.Domain < b.Domain }
	case OrderType:
		less = func(a, b domain.Record) bool { return a.Type < b.Type }
	case OrderTTL:
		less = func(a, b domain.Record) bool { return a.TTL < b.TTL }
	default:
		if f.Desc {
			for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if f.Desc {
			return less(recs[j], recs[i])
		}
		return less(recs[i], recs[j])
	})
}

// DomainSuffix returns the last label of name prefixed with a dot, e.g. ".com".
func DomainSuffix(name string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(name), ".")
	if idx := strings.LastIndex(trimmed, "."); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return "." + strings.ToLower(trimmed)
}

func fieldValue(field string, rec domain.Record) (string, error) {
	switch field {
	case FieldType:
		return string(rec.Type), nil
	case FieldDomain:
		return rec.Domain, nil
	case FieldDomainSuffix:
		return DomainSuffix(rec.Domain), nil
	default:
		return "", fmt.Errorf("unsupported aggregation field %q", field)
	}
}

func aggregate(field string, recs []domain.Record) (map[string]int, error) {
	if _, err := fieldValue(field, domain.Record{}); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, rec := range recs {
		v, _ := fieldValue(field, rec)
		counts[v]++
	}
	return counts, nil
}

func validOrder(f Filter) error {
	switch f.OrderBy {
	case OrderInsertion, OrderDomain, OrderType, OrderTTL:
		return nil
	}
	return fmt.Errorf("unsupported ordering %q", f.OrderBy)
}
