package kernel

import (
	"bytes"
	"context"
	"sync"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// MemStore is the in-memory backend: a single guarded map implementing
// RO, AO, LINK, and RW at once. It is the default backend for tests and
// for ephemeral, non-persisted repositories.
type MemStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	hasher   objects.Hasher
	notifier Watcher
}

// NewMemStore constructs an empty MemStore keyed under the given Hasher.
func NewMemStore(hasher objects.Hasher) *MemStore {
	if hasher == nil {
		hasher = objects.SHA256
	}
	return &MemStore{data: map[string][]byte{}, hasher: hasher}
}

// SetNotifier attaches the Watcher whose Notify is invoked on every
// state transition (spec §4.5). Must be called before concurrent use.
func (m *MemStore) SetNotifier(w Watcher) { m.notifier = w }

func (m *MemStore) Mem(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *MemStore) Find(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Add computes the content hash and inserts it idempotently (spec §4.1:
// "add(v); add(v) yields the same K and does not duplicate storage").
func (m *MemStore) Add(_ context.Context, value []byte) (objects.Hash, error) {
	h := m.hasher.Sum(value)
	key := h.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; !exists {
		cp := make([]byte, len(value))
		copy(cp, value)
		m.data[key] = cp
	}
	return h, nil
}

// AddLink certifies src resolves to dst (spec §4.1 LINK).
func (m *MemStore) AddLink(_ context.Context, src string, dst []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(dst))
	copy(cp, dst)
	m.data[src] = cp
	return nil
}

func (m *MemStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return errs.Invalid("kernel: empty key rejected")
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	m.mu.Lock()
	m.data[key] = cp
	notifier := m.notifier
	m.mu.Unlock()

	if notifier != nil {
		notifier.Notify(key, cp, true)
	}
	return nil
}

func (m *MemStore) TestAndSet(_ context.Context, key string, test, set []byte, testPresent, setPresent bool) (bool, error) {
	if key == "" {
		return false, errs.Invalid("kernel: empty key rejected")
	}

	m.mu.Lock()
	cur, exists := m.data[key]
	matches := false
	switch {
	case !testPresent && !exists:
		matches = true
	case testPresent && exists && bytes.Equal(cur, test):
		matches = true
	}
	if !matches {
		m.mu.Unlock()
		return false, nil
	}

	var notified []byte
	if setPresent {
		cp := make([]byte, len(set))
		copy(cp, set)
		m.data[key] = cp
		notified = cp
	} else {
		delete(m.data, key)
	}
	notifier := m.notifier
	m.mu.Unlock()

	if notifier != nil {
		notifier.Notify(key, notified, setPresent)
	}
	return true, nil
}

func (m *MemStore) Remove(_ context.Context, key string) error {
	if key == "" {
		return errs.Invalid("kernel: empty key rejected")
	}
	m.mu.Lock()
	delete(m.data, key)
	notifier := m.notifier
	m.mu.Unlock()

	if notifier != nil {
		notifier.Notify(key, nil, false)
	}
	return nil
}

func (m *MemStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out, nil
}
