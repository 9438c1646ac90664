// Package etcdtest provides an in-memory stand-in for the subset of the etcd
// client used by the store and lock packages.
package etcdtest

import (
	"bytes"
	"context"
	"sort"
	"sync"

	pb "go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type entry struct {
	value   []byte
	create  int64
	mod     int64
	version int64
}

// KV is a single-node, revisioned key space. Failure fields, when set, are
// returned by the matching call instead of touching the data.
type KV struct {
	mu        sync.Mutex
	rev       int64
	data      map[string]*entry
	nextLease int64

	FailGet    error
	FailDelete error
	FailTxn    error
	// FailTxnAfter lets that many transactions commit before FailTxn applies.
	FailTxnAfter int
	txnCount     int
}

func New() *KV {
	return &KV{data: make(map[string]*entry)}
}

func (kv *KV) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.FailGet != nil {
		return nil, kv.FailGet
	}
	op := clientv3.OpGet(key, opts...)
	resp := &clientv3.GetResponse{}
	for _, k := range kv.keysInRange(op.KeyBytes(), op.RangeBytes()) {
		e := kv.data[k]
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{
			Key:            []byte(k),
			Value:          append([]byte(nil), e.value...),
			CreateRevision: e.create,
			ModRevision:    e.mod,
			Version:        e.version,
		})
	}
	resp.Count = int64(len(resp.Kvs))
	return resp, nil
}

func (kv *KV) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.rev++
	kv.put(key, []byte(val))
	return &clientv3.PutResponse{}, nil
}

func (kv *KV) Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.FailDelete != nil {
		return nil, kv.FailDelete
	}
	op := clientv3.OpDelete(key, opts...)
	kv.rev++
	deleted := kv.delete(op.KeyBytes(), op.RangeBytes())
	return &clientv3.DeleteResponse{Deleted: deleted}, nil
}

func (kv *KV) Txn(_ context.Context) clientv3.Txn {
	return &txn{kv: kv}
}

func (kv *KV) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.nextLease++
	return &clientv3.LeaseGrantResponse{ID: clientv3.LeaseID(kv.nextLease), TTL: ttl}, nil
}

func (kv *KV) Revoke(_ context.Context, _ clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (kv *KV) Close() error {
	return nil
}

// Keys returns every stored key in order.
func (kv *KV) Keys() []string {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.keysInRange(nil, []byte{0})
}

func (kv *KV) put(key string, val []byte) {
	e, ok := kv.data[key]
	if !ok {
		e = &entry{create: kv.rev}
		kv.data[key] = e
	}
	e.value = append([]byte(nil), val...)
	e.mod = kv.rev
	e.version++
}

func (kv *KV) delete(key, end []byte) int64 {
	var deleted int64
	for _, k := range kv.keysInRange(key, end) {
		delete(kv.data, k)
		deleted++
	}
	return deleted
}

// keysInRange mirrors etcd range semantics: a nil end selects key alone, the
// single zero byte selects everything from key onwards.
func (kv *KV) keysInRange(key, end []byte) []string {
	var keys []string
	for k := range kv.data {
		kb := []byte(k)
		switch {
		case len(end) == 0:
			if bytes.Equal(kb, key) {
				keys = append(keys, k)
			}
		case len(end) == 1 && end[0] == 0:
			if bytes.Compare(kb, key) >= 0 {
				keys = append(keys, k)
			}
		default:
			if bytes.Compare(kb, key) >= 0 && bytes.Compare(kb, end) < 0 {
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func (kv *KV) compare(c clientv3.Cmp) bool {
	e := kv.data[string(c.Key)]
	var actual, expected int64
	switch c.Target {
	case pb.Compare_CREATE:
		expected = c.TargetUnion.(*pb.Compare_CreateRevision).CreateRevision
		if e != nil {
			actual = e.create
		}
	case pb.Compare_MOD:
		expected = c.TargetUnion.(*pb.Compare_ModRevision).ModRevision
		if e != nil {
			actual = e.mod
		}
	case pb.Compare_VERSION:
		expected = c.TargetUnion.(*pb.Compare_Version).Version
		if e != nil {
			actual = e.version
		}
	case pb.Compare_VALUE:
		var current []byte
		if e != nil {
			current = e.value
		}
		want := c.TargetUnion.(*pb.Compare_Value).Value
		return compareResult(c.Result, int64(bytes.Compare(current, want)), 0)
	default:
		return false
	}
	return compareResult(c.Result, actual, expected)
}

func compareResult(result pb.Compare_CompareResult, actual, expected int64) bool {
	switch result {
	case pb.Compare_EQUAL:
		return actual == expected
	case pb.Compare_NOT_EQUAL:
		return actual != expected
	case pb.Compare_GREATER:
		return actual > expected
	case pb.Compare_LESS:
		return actual < expected
	}
	return false
}

type txn struct {
	kv    *KV
	cmps  []clientv3.Cmp
	thens []clientv3.Op
	elses []clientv3.Op
}

func (t *txn) If(cs ...clientv3.Cmp) clientv3.Txn {
	t.cmps = append(t.cmps, cs...)
	return t
}

func (t *txn) Then(ops ...clientv3.Op) clientv3.Txn {
	t.thens = append(t.thens, ops...)
	return t
}

func (t *txn) Else(ops ...clientv3.Op) clientv3.Txn {
	t.elses = append(t.elses, ops...)
	return t
}

func (t *txn) Commit() (*clientv3.TxnResponse, error) {
	kv := t.kv
	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.txnCount++
	if kv.FailTxn != nil && kv.txnCount > kv.FailTxnAfter {
		return nil, kv.FailTxn
	}

	succeeded := true
	for _, c := range t.cmps {
		if !kv.compare(c) {
			succeeded = false
			break
		}
	}
	ops := t.elses
	if succeeded {
		ops = t.thens
	}

	kv.rev++
	for _, op := range ops {
		switch {
		case op.IsPut():
			kv.put(string(op.KeyBytes()), op.ValueBytes())
		case op.IsDelete():
			kv.delete(op.KeyBytes(), op.RangeBytes())
		}
	}
	return &clientv3.TxnResponse{Succeeded: succeeded}, nil
}
