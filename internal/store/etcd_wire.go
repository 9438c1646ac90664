package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/domain"
)

type etcdRecord struct {
	Domain  string            `json:"domain"`
	Type    domain.RecordKind `json:"type"`
	Value   string            `json:"value"`
	TTL     int               `json:"ttl"`
	Owner   string            `json:"owner"`
	Created time.Time         `json:"created"`
	Updated time.Time         `json:"updated"`
	// Seq orders records written by the same transaction.
	Seq int `json:"seq"`
}

func marshalEtcdValue(rec domain.Record, seq int) (string, error) {
	wire := etcdRecord{
		Domain:  rec.Domain,
		Type:    rec.Type,
		Value:   rec.Value,
		TTL:     rec.TTL,
		Owner:   rec.Owner,
		Created: rec.Created,
		Updated: rec.Updated,
		Seq:     seq,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalEtcdValue(key string, raw []byte) (domain.Record, int, error) {
	id, err := idFromKey(key)
	if err != nil {
		return domain.Record{}, 0, err
	}

	var wire etcdRecord
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.Record{}, 0, fmt.Errorf("decode etcd value: %w", err)
	}

	return domain.Record{
		ID:      id,
		Domain:  wire.Domain,
		Type:    wire.Type,
		Value:   wire.Value,
		TTL:     wire.TTL,
		Owner:   wire.Owner,
		Created: wire.Created,
		Updated: wire.Updated,
	}, wire.Seq, nil
}
