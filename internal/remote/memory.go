package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/rs/zerolog"
)

func init() {
	Register("memory", func(cfg config.ProviderConfig, logger zerolog.Logger) (Client, error) {
		return NewMemoryProvider(cfg.ZoneID, logger), nil
	})
}

type rrKey struct {
	name string
	kind domain.RecordKind
}

type rrSet struct {
	ttl   int
	value string
}

// MemoryProvider is an in-process provider with route53-like record set
// semantics: one value per name and type, atomic batches. It backs dry runs
// and tests, and can be told to fail or stall.
type MemoryProvider struct {
	mu          sync.Mutex
	zone        string
	sets        map[rrKey]rrSet
	submissions [][]Change
	logger      zerolog.Logger

	// FailWhen, if set, is consulted for every change of a batch; a non-nil
	// result rejects the whole batch.
	FailWhen func(Change) error
	// Latency delays every submission, honoring context cancellation.
	Latency time.Duration
}

func NewMemoryProvider(zone string, logger zerolog.Logger) *MemoryProvider {
	if zone == "" {
		zone = "memory"
	}
	return &MemoryProvider{
		zone:   zone,
		sets:   make(map[rrKey]rrSet),
		logger: logger,
	}
}

func (p *MemoryProvider) Name() string { return "memory" }
func (p *MemoryProvider) Zone() string { return p.zone }

func (p *MemoryProvider) Apply(ctx context.Context, changes []Change) error {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.submissions = append(p.submissions, append([]Change(nil), changes...))

	if p.FailWhen != nil {
		for _, c := range changes {
			if err := p.FailWhen(c); err != nil {
				return err
			}
		}
	}

	next := make(map[rrKey]rrSet, len(p.sets))
	for k, v := range p.sets {
		next[k] = v
	}
	for _, c := range changes {
		key := rrKey{name: canonicalName(c.Name), kind: c.Type}
		switch c.Action {
		case domain.ActionCreate, domain.ActionUpsert:
			next[key] = rrSet{ttl: c.TTL, value: c.Value}
		case domain.ActionDelete:
			current, ok := next[key]
			if !ok {
				return ErrRecordAbsent
			}
			if current.value != c.Value {
				return fmt.Errorf("delete %s: value mismatch, provider holds %q", c.Render(), current.value)
			}
			delete(next, key)
		default:
			return fmt.Errorf("unsupported change action %q", c.Action)
		}
	}
	p.sets = next
	p.logger.Debug().Int("changes", len(changes)).Msg("Applied change batch")
	return nil
}

// Lookup returns the value and ttl the provider holds for name and kind.
func (p *MemoryProvider) Lookup(name string, kind domain.RecordKind) (value string, ttl int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.sets[rrKey{name: canonicalName(name), kind: kind}]
	return set.value, set.ttl, ok
}

// Len returns the number of record sets held.
func (p *MemoryProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sets)
}

// Submissions returns a copy of every batch received, in order.
func (p *MemoryProvider) Submissions() [][]Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]Change, len(p.submissions))
	copy(out, p.submissions)
	return out
}

func canonicalName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
