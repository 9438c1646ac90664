package store

import (
	"context"
	"errors"

	"github.com/auto-dns/dns-record-sync/internal/domain"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// Aggregation fields accepted by AggregateByField.
const (
	FieldType         = "type"
	FieldDomain       = "domain"
	FieldDomainSuffix = "domain_suffix"
)

// Ordering values accepted in Filter.OrderBy. The zero value keeps insertion order.
const (
	OrderInsertion = ""
	OrderDomain    = "domain"
	OrderType      = "type"
	OrderTTL       = "ttl"
)

// Filter narrows List results. Domain is a case-insensitive substring match,
// Type an exact match. Empty fields match everything.
type Filter struct {
	Domain  string
	Type    domain.RecordKind
	OrderBy string
	Desc    bool
}

// Store is the durable, owner-scoped record store. A record owned by another
// owner behaves exactly like a missing one.
type Store interface {
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)
	// CreateMany inserts all records or none of them.
	CreateMany(ctx context.Context, recs []domain.Record) ([]domain.Record, error)
	Get(ctx context.Context, id, owner string) (domain.Record, error)
	Update(ctx context.Context, id, owner string, patch domain.RecordPatch) (domain.Record, error)
	Delete(ctx context.Context, id, owner string) error
	List(ctx context.Context, owner string, filter Filter) ([]domain.Record, error)
	AggregateByField(ctx context.Context, owner, field string) (map[string]int, error)
	Close() error
}
