package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/auto-dns/dns-record-sync/internal/domain"
)

// ErrRecordAbsent is returned when a delete targets a record the provider
// does not hold. Callers treat it as confirmation that the record is gone.
var ErrRecordAbsent = errors.New("record absent at provider")

// Change is one {action, name, type, ttl, value} tuple submitted to a provider.
type Change struct {
	Action domain.ChangeAction
	Name   string
	Type   domain.RecordKind
	TTL    int
	Value  string
}

func ChangeFor(action domain.ChangeAction, rec domain.Record) Change {
	return Change{
		Action: action,
		Name:   rec.Domain,
		Type:   rec.Type,
		TTL:    rec.TTL,
		Value:  rec.Value,
	}
}

func (c Change) Render() string {
	return fmt.Sprintf("%s [%s] %s -> %s (ttl=%d)", c.Action, c.Type, c.Name, c.Value, c.TTL)
}

// Client submits change batches to the authoritative provider for the zone
// it was constructed with. A batch is accepted or rejected as a whole, and
// resubmitting identical content is safe.
type Client interface {
	Name() string
	Zone() string
	Apply(ctx context.Context, changes []Change) error
}
