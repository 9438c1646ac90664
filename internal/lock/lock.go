package lock

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes work on a set of keys. fn runs only while every key is
// held; keys are released once fn returns.
type Locker interface {
	LockTransaction(ctx context.Context, keys []string, fn func() error) error
}

// normalize dedupes and sorts keys so that concurrent holders of overlapping
// sets always acquire in the same order.
func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker. Entries are dropped once no goroutine
// holds or waits on them.
type KeyedMutex struct {
	mu   sync.Mutex
	held map[string]*keyLock
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{held: make(map[string]*keyLock)}
}

func (m *KeyedMutex) LockTransaction(ctx context.Context, keys []string, fn func() error) error {
	keys = normalize(keys)
	acquired := make([]string, 0, len(keys))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			m.unlock(acquired[i])
		}
	}()
	for _, k := range keys {
		if err := m.lock(ctx, k); err != nil {
			return err
		}
		acquired = append(acquired, k)
	}
	return fn()
}

func (m *KeyedMutex) lock(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.held[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.held[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		// select picks at random when both cases are ready.
		if err := ctx.Err(); err != nil {
			<-l.ch
			m.release(key, l)
			return err
		}
		return nil
	case <-ctx.Done():
		m.release(key, l)
		return ctx.Err()
	}
}

func (m *KeyedMutex) unlock(key string) {
	m.mu.Lock()
	l := m.held[key]
	m.mu.Unlock()
	<-l.ch
	m.release(key, l)
}

func (m *KeyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.held, key)
	}
}

// Len reports how many keys are held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
