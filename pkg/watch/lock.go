package watch

import (
	"context"
	"sync"

	"github.com/weftdb/weft/pkg/errs"
)

// KeyLockManager serialises mutations of the same key without blocking
// unrelated keys (spec §4.5, §5: "a commit that advances a branch takes
// the branch-name lock via the lock manager for the duration of the
// test_and_set"). Entries are reference-counted and removed once idle so
// the map does not grow with every key ever touched.
type KeyLockManager struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLockManager returns an empty lock manager.
func NewKeyLockManager() *KeyLockManager {
	return &KeyLockManager{entries: map[string]*keyEntry{}}
}

// Lock acquires the exclusive lock for key, blocking until it is
// available or ctx is cancelled. The returned func unlocks it; callers
// must call it exactly once iff err is nil (spec §5: on cancellation an
// operation releases any locks it holds and returns an aborted error).
func (m *KeyLockManager) Lock(ctx context.Context, key string) (func(), error) {
	e := m.acquireEntry(key)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return func() {
			e.mu.Unlock()
			m.release(key, e)
		}, nil
	case <-ctx.Done():
		go func() {
			<-done
			e.mu.Unlock()
			m.release(key, e)
		}()
		return nil, errs.WrapAborted(ctx.Err())
	}
}

func (m *KeyLockManager) acquireEntry(key string) *keyEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyEntry{}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *KeyLockManager) release(key string, e *keyEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
