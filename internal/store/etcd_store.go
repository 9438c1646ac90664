package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/domain"
	"github.com/auto-dns/dns-record-sync/internal/util"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	maxUpdateAttempts = 5
	rollbackTimeout   = 5 * time.Second
)

type etcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Txn(ctx context.Context) clientv3.Txn
}

// EtcdStore persists records as JSON documents under <prefix>/<owner>/<id>.
type EtcdStore struct {
	client etcdClient
	cfg    *config.EtcdConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewEtcdStore(client etcdClient, cfg *config.EtcdConfig, logger zerolog.Logger) *EtcdStore {
	return &EtcdStore{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "etcd_store").Logger(),
		now:    time.Now,
	}
}

func (es *EtcdStore) Create(ctx context.Context, rec domain.Record) (domain.Record, error) {
	out, err := es.CreateMany(ctx, []domain.Record{rec})
	if err != nil {
		return domain.Record{}, err
	}
	return out[0], nil
}

// CreateMany writes records in transactions of at most MaxTxnOps keys. If a
// later transaction fails, keys written by earlier ones are deleted again so
// the call stays all-or-nothing.
func (es *EtcdStore) CreateMany(ctx context.Context, recs []domain.Record) ([]domain.Record, error) {
	now := es.now()
	prepared := util.Map(recs, func(r domain.Record) domain.Record { return prepare(r, now) })

	var written []string
	for chunkIdx, chunk := range util.Chunk(prepared, es.cfg.MaxTxnOps) {
		cmps := make([]clientv3.Cmp, 0, len(chunk))
		puts := make([]clientv3.Op, 0, len(chunk))
		keys := make([]string, 0, len(chunk))
		for i, rec := range chunk {
			key := recordKey(es.cfg.PathPrefix, rec.Owner, rec.ID)
			value, err := marshalEtcdValue(rec, chunkIdx*es.cfg.MaxTxnOps+i)
			if err != nil {
				es.rollback(ctx, written)
				return nil, err
			}
			cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(key), "=", 0))
			puts = append(puts, clientv3.OpPut(key, value))
			keys = append(keys, key)
		}
		resp, err := es.client.Txn(ctx).If(cmps...).Then(puts...).Commit()
		if err != nil {
			es.rollback(ctx, written)
			return nil, fmt.Errorf("etcd insert: %w", err)
		}
		if !resp.Succeeded {
			es.rollback(ctx, written)
			return nil, ErrAlreadyExists
		}
		written = append(written, keys...)
	}
	return prepared, nil
}

// rollback removes keys written by an aborted CreateMany. It runs even when
// ctx is already cancelled.
func (es *EtcdStore) rollback(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	for _, key := range keys {
		if _, err := es.client.Delete(ctx, key); err != nil {
			es.logger.Error().Err(err).Str("key", key).Msg("Failed to roll back partially inserted record")
		}
	}
}

func (es *EtcdStore) Get(ctx context.Context, id, owner string) (domain.Record, error) {
	rec, _, err := es.get(ctx, id, owner)
	return rec, err
}

func (es *EtcdStore) get(ctx context.Context, id, owner string) (domain.Record, int64, error) {
	key := recordKey(es.cfg.PathPrefix, owner, id)
	resp, err := es.client.Get(ctx, key)
	if err != nil {
		return domain.Record{}, 0, err
	}
	if len(resp.Kvs) == 0 {
		return domain.Record{}, 0, ErrNotFound
	}
	kv := resp.Kvs[0]
	rec, _, err := unmarshalEtcdValue(string(kv.Key), kv.Value)
	if err != nil {
		return domain.Record{}, 0, err
	}
	if rec.Owner != owner {
		return domain.Record{}, 0, ErrNotFound
	}
	return rec, kv.ModRevision, nil
}

// Update applies patch with an optimistic compare-and-swap on the key's mod revision.
func (es *EtcdStore) Update(ctx context.Context, id, owner string, patch domain.RecordPatch) (domain.Record, error) {
	key := recordKey(es.cfg.PathPrefix, owner, id)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, rev, err := es.get(ctx, id, owner)
		if err != nil {
			return domain.Record{}, err
		}
		updated := patch.Apply(current)
		updated.Updated = es.now()
		value, err := marshalEtcdValue(updated, 0)
		if err != nil {
			return domain.Record{}, err
		}
		resp, err := es.client.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", rev)).
			Then(clientv3.OpPut(key, value)).
			Commit()
		if err != nil {
			return domain.Record{}, err
		}
		if resp.Succeeded {
			return updated, nil
		}
		es.logger.Debug().Str("key", key).Int("attempt", attempt+1).Msg("Concurrent modification, retrying update")
	}
	return domain.Record{}, fmt.Errorf("update %s: too many concurrent modifications", id)
}

func (es *EtcdStore) Delete(ctx context.Context, id, owner string) error {
	resp, err := es.client.Delete(ctx, recordKey(es.cfg.PathPrefix, owner, id))
	if err != nil {
		return err
	}
	if resp.Deleted == 0 {
		return ErrNotFound
	}
	es.logger.Debug().Str("id", id).Msg("Deleted record")
	return nil
}

func (es *EtcdStore) List(ctx context.Context, owner string, filter Filter) ([]domain.Record, error) {
	if err := validOrder(filter); err != nil {
		return nil, err
	}
	recs, err := es.listOwned(ctx, owner)
	if err != nil {
		return nil, err
	}
	return applyFilter(filter, recs), nil
}

func (es *EtcdStore) AggregateByField(ctx context.Context, owner, field string) (map[string]int, error) {
	recs, err := es.listOwned(ctx, owner)
	if err != nil {
		return nil, err
	}
	return aggregate(field, recs)
}

func (es *EtcdStore) Close() error {
	return nil
}

type orderedRecord struct {
	rev    int64
	seq    int
	record domain.Record
}

// listOwned returns the owner's records in insertion order.
func (es *EtcdStore) listOwned(ctx context.Context, owner string) ([]domain.Record, error) {
	resp, err := es.client.Get(ctx, ownerPrefix(es.cfg.PathPrefix, owner), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	ordered := make([]orderedRecord, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keyStr := string(kv.Key)
		rec, seq, err := unmarshalEtcdValue(keyStr, kv.Value)
		if err != nil {
			es.logger.Error().Err(err).Msgf("Failed to parse key: %s", keyStr)
			continue
		}
		ordered = append(ordered, orderedRecord{rev: kv.CreateRevision, seq: seq, record: rec})
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].rev != ordered[j].rev {
			return ordered[i].rev < ordered[j].rev
		}
		return ordered[i].seq < ordered[j].seq
	})
	return util.Map(ordered, func(o orderedRecord) domain.Record { return o.record }), nil
}
