package lock

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/auto-dns/dns-record-sync/internal/config"
	"github.com/auto-dns/dns-record-sync/internal/etcdtest"
	"github.com/rs/zerolog"
)

func lockers() map[string]func() Locker {
	return map[string]func() Locker{
		"keyed_mutex": func() Locker { return NewKeyedMutex() },
		"etcd": func() Locker {
			cfg := &config.EtcdConfig{LockPrefix: "/test/locks", LockTTL: 10, LockTimeout: 5, LockRetryInterval: 0.001}
			return NewEtcdLocker(etcdtest.New(), cfg, "host-1", zerolog.New(io.Discard))
		},
	}
}

func TestLocker_SerializesSameKey(t *testing.T) {
	for name, open := range lockers() {
		t.Run(name, func(t *testing.T) {
			l := open()
			var inside, maxInside atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := l.LockTransaction(context.Background(), []string{"alice/r1"}, func() error {
						n := inside.Add(1)
						if n > maxInside.Load() {
							maxInside.Store(n)
						}
						time.Sleep(time.Millisecond)
						inside.Add(-1)
						return nil
					})
					if err != nil {
						t.Errorf("LockTransaction: %v", err)
					}
				}()
			}
			wg.Wait()
			if maxInside.Load() != 1 {
				t.Errorf("max concurrent holders = %d, want 1", maxInside.Load())
			}
		})
	}
}

func TestLocker_ReturnsFnError(t *testing.T) {
	for name, open := range lockers() {
		t.Run(name, func(t *testing.T) {
			l := open()
			boom := errors.New("boom")
			err := l.LockTransaction(context.Background(), []string{"k"}, func() error { return boom })
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want %v", err, boom)
			}
			// The key must be free again.
			if err := l.LockTransaction(context.Background(), []string{"k"}, func() error { return nil }); err != nil {
				t.Errorf("relock: %v", err)
			}
		})
	}
}

func TestKeyedMutex_ContextCancelWhileWaiting(t *testing.T) {
	m := NewKeyedMutex()
	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = m.LockTransaction(context.Background(), []string{"k"}, func() error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	err := m.LockTransaction(ctx, []string{"k"}, func() error { called = true; return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if called {
		t.Error("fn ran without the lock")
	}
	close(done)

	deadline := time.Now().Add(time.Second)
	for m.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0 once every holder is gone", m.Len())
	}
}

func TestKeyedMutex_CancelledContextOnFreeKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		called := false
		err := m.LockTransaction(ctx, []string{"a", "b"}, func() error { called = true; return nil })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want canceled", err)
		}
		if called {
			t.Fatal("fn ran under a cancelled context")
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
	if err := m.LockTransaction(context.Background(), []string{"a", "b"}, func() error { return nil }); err != nil {
		t.Errorf("keys left held: %v", err)
	}
}

func TestEtcdLocker_KeysAndTimeout(t *testing.T) {
	kv := etcdtest.New()
	cfg := &config.EtcdConfig{LockPrefix: "/test/locks/", LockTTL: 10, LockTimeout: 0.02, LockRetryInterval: 0.005}
	l := NewEtcdLocker(kv, cfg, "host-1", zerolog.New(io.Discard))

	err := l.LockTransaction(context.Background(), []string{"b", "a", "b"}, func() error {
		keys := kv.Keys()
		if strings.Join(keys, ",") != "/test/locks/a,/test/locks/b" {
			t.Errorf("held keys = %v", keys)
		}
		inner := l.LockTransaction(context.Background(), []string{"a"}, func() error { return nil })
		if inner == nil {
			t.Error("expected a held key to time out")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("LockTransaction: %v", err)
	}
	if keys := kv.Keys(); len(keys) != 0 {
		t.Errorf("keys left after release: %v", keys)
	}
}

func TestEtcdLocker_TxnFailure(t *testing.T) {
	kv := etcdtest.New()
	kv.FailTxn = errors.New("etcd unavailable")
	cfg := &config.EtcdConfig{LockPrefix: "/locks", LockTTL: 10, LockTimeout: 1, LockRetryInterval: 0.01}
	l := NewEtcdLocker(kv, cfg, "host-1", zerolog.New(io.Discard))

	called := false
	err := l.LockTransaction(context.Background(), []string{"k"}, func() error { called = true; return nil })
	if err == nil || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}
