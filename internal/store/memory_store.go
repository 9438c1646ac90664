package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/util"
)

type memoryEntry struct {
	seq    uint64
	record domain.Record
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     uint64
	records map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	out, err := s.CreateMany(ctx, []domain.Record{rec})
	if err != nil {
		return domain.Record{}, err
	}
	return out[0], nil
}

func (s *MemoryStore) CreateMany(_ context.Context, recs []domain.Record) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	prepared := make([]domain.Record, len(recs))
	seen := make(map[string]struct{}, len(recs))
	for i, rec := range recs {
		rec = prepare(rec, now)
		if _, exists := s.records[rec.ID]; exists {
			return nil, ErrAlreadyExists
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, ErrAlreadyExists
		}
		seen[rec.ID] = struct{}{}
		prepared[i] = rec
	}
	for _, rec := range prepared {
		s.seq++
		s.records[rec.ID] = &memoryEntry{seq: s.seq, record: rec}
	}
	return prepared, nil
}

func (s *MemoryStore) Get(_ context.Context, id, owner string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.records[id]
	if !ok || entry.record.Owner != owner {
		return domain.Record{}, ErrNotFound
	}
	return entry.record, nil
}

func (s *MemoryStore) Update(_ context.Context, id, owner string, patch domain.RecordPatch) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[id]
	if !ok || entry.record.Owner != owner {
		return domain.Record{}, ErrNotFound
	}
	updated := patch.Apply(entry.record)
	updated.Updated = s.now()
	entry.record = updated
	return updated, nil
}

func (s *MemoryStore) Delete(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[id]
	if !ok || entry.record.Owner != owner {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, owner string, filter Filter) ([]domain.Record, error) {
	if err := validOrder(filter); err != nil {
		return nil, err
	}
	return applyFilter(filter, s.ownedInOrder(owner)), nil
}

func (s *MemoryStore) AggregateByField(_ context.Context, owner, field string) (map[string]int, error) {
	return aggregate(field, s.ownedInOrder(owner))
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) ownedInOrder(owner string) []domain.Record {
	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.records))
	for _, e := range s.records {
		if e.record.Owner == owner {
			entries = append(entries, *e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return util.Map(entries, func(e memoryEntry) domain.Record { return e.record })
}
