package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/rs/zerolog"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type etcdClient interface {
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Txn(ctx context.Context) clientv3.Txn
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
}

type heldLease struct {
	lockKey string
	lease   clientv3.LeaseID
}

// EtcdLocker holds locks as lease-bound keys, so that several processes
// sharing one store serialize on the same record. A crashed holder's keys
// expire with its lease.
type EtcdLocker struct {
	client etcdClient
	cfg    *config.EtcdConfig
	holder string
	logger zerolog.Logger
}

func NewEtcdLocker(client etcdClient, cfg *config.EtcdConfig, holder string, logger zerolog.Logger) *EtcdLocker {
	return &EtcdLocker{
		client: client,
		cfg:    cfg,
		holder: holder,
		logger: logger,
	}
}

func (el *EtcdLocker) lockKey(key string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(el.cfg.LockPrefix, "/"), key)
}

func (el *EtcdLocker) LockTransaction(ctx context.Context, keys []string, fn func() error) error {
	var leases []heldLease
	for _, key := range normalize(keys) {
		held, err := el.acquire(ctx, key)
		if err != nil {
			el.release(leases)
			return err
		}
		leases = append(leases, held)
	}

	defer el.release(leases)
	return fn()
}

func (el *EtcdLocker) acquire(ctx context.Context, key string) (heldLease, error) {
	lockKey := el.lockKey(key)
	leaseResp, err := el.client.Grant(ctx, int64(el.cfg.LockTTL))
	if err != nil {
		return heldLease{}, fmt.Errorf("failed to create lease: %w", err)
	}

	timeout := time.Duration(el.cfg.LockTimeout * float64(time.Second))
	retry := time.Duration(el.cfg.LockRetryInterval * float64(time.Second))
	deadline := time.Now().Add(timeout)
	for {
		txnResp, err := el.client.Txn(ctx).
			If(clientv3.Compare(clientv3.CreateRevision(lockKey), "=", 0)).
			Then(clientv3.OpPut(lockKey, el.holder, clientv3.WithLease(leaseResp.ID))).
			Commit()
		if err != nil {
			el.revoke(leaseResp.ID, lockKey)
			return heldLease{}, err
		}
		if txnResp.Succeeded {
			return heldLease{lockKey: lockKey, lease: leaseResp.ID}, nil
		}
		if !time.Now().Before(deadline) {
			el.revoke(leaseResp.ID, lockKey)
			return heldLease{}, fmt.Errorf("failed to acquire lock on %s", key)
		}
		select {
		case <-time.After(retry):
		case <-ctx.Done():
			el.revoke(leaseResp.ID, lockKey)
			return heldLease{}, ctx.Err()
		}
	}
}

// release drops locks in reverse order of acquisition. It runs on a fresh
// context so that a cancelled caller still frees its keys.
func (el *EtcdLocker) release(leases []heldLease) {
	for i := len(leases) - 1; i >= 0; i-- {
		l := leases[i]
		if _, err := el.client.Delete(context.Background(), l.lockKey); err != nil {
			el.logger.Warn().Err(err).Msgf("failed to delete lock key %s", l.lockKey)
		}
		el.revoke(l.lease, l.lockKey)
	}
}

func (el *EtcdLocker) revoke(id clientv3.LeaseID, lockKey string) {
	if _, err := el.client.Revoke(context.Background(), id); err != nil {
		el.logger.Warn().Err(err).Msgf("failed to revoke lease for %s", lockKey)
	}
}
