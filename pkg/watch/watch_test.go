package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
)

func newWatchedStore(t *testing.T) (*kernel.MemStore, *State) {
	t.Helper()
	store := kernel.NewMemStore(objects.SHA256)
	state := NewState(store, context.Background())
	return store, state
}

// recorder collects delivered diffs in arrival order and detects whether
// any two invocations ever overlapped.
type recorder struct {
	mu       sync.Mutex
	diffs    []Diff
	active   bool
	overlap  bool
	delay    time.Duration
}

func (r *recorder) handler(_ context.Context, d Diff) {
	r.mu.Lock()
	if r.active {
		r.overlap = true
	}
	r.active = true
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.diffs = append(r.diffs, d)
	r.active = false
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Diff {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diff, len(r.diffs))
	copy(out, r.diffs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestWatch_AddedThenUpdated(t *testing.T) {
	store, state := newWatchedStore(t)
	rec := &recorder{}

	_, err := state.Watch(context.Background(), map[string][]byte{}, rec.handler)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "p", []byte("v1")))
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	require.NoError(t, store.Set(context.Background(), "p", []byte("v2")))
	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })

	diffs := rec.snapshot()
	require.Equal(t, Added, diffs[0].Kind)
	require.Equal(t, []byte("v1"), diffs[0].New)
	require.Equal(t, Updated, diffs[1].Kind)
	require.Equal(t, []byte("v1"), diffs[1].Old)
	require.Equal(t, []byte("v2"), diffs[1].New)
	require.False(t, rec.overlap, "handler invocations overlapped")
}

func TestWatchKey_OnlyReceivesItsOwnKey(t *testing.T) {
	store, state := newWatchedStore(t)
	rec := &recorder{}

	_, err := state.WatchKey(context.Background(), "a", nil, false, rec.handler)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "b", []byte("ignored")))
	require.NoError(t, store.Set(context.Background(), "a", []byte("v")))

	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
	diffs := rec.snapshot()
	require.Equal(t, "a", diffs[0].Key)
	require.Equal(t, Added, diffs[0].Kind)
}

func TestWatch_InitDiffersFromCurrent(t *testing.T) {
	store, state := newWatchedStore(t)
	require.NoError(t, store.Set(context.Background(), "x", []byte("current")))
	require.NoError(t, store.Set(context.Background(), "y", []byte("same")))

	rec := &recorder{}
	init := map[string][]byte{
		"x": []byte("stale"),
		"y": []byte("same"),
		"z": []byte("gone"),
	}
	_, err := state.Watch(context.Background(), init, rec.handler)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })
	byKey := map[string]Diff{}
	for _, d := range rec.snapshot() {
		byKey[d.Key] = d
	}
	require.Equal(t, Updated, byKey["x"].Kind)
	require.Equal(t, []byte("stale"), byKey["x"].Old)
	require.Equal(t, []byte("current"), byKey["x"].New)
	require.Equal(t, Removed, byKey["z"].Kind)
	require.Equal(t, []byte("gone"), byKey["z"].Old)
	_, sawY := byKey["y"]
	require.False(t, sawY, "identical init binding should not be delivered")
}

func TestUnwatch_StopsFurtherDeliveries(t *testing.T) {
	store, state := newWatchedStore(t)
	rec := &recorder{}

	h, err := state.Watch(context.Background(), map[string][]byte{}, rec.handler)
	require.NoError(t, err)

	require.NoError(t, store.Set(context.Background(), "p", []byte("v1")))
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	state.Unwatch(h)

	require.NoError(t, store.Set(context.Background(), "p", []byte("v2")))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, rec.snapshot(), 1, "no delivery should arrive after Unwatch returns")
}

func TestWatch_RemovedDiff(t *testing.T) {
	store, state := newWatchedStore(t)
	require.NoError(t, store.Set(context.Background(), "p", []byte("v1")))

	rec := &recorder{}
	_, err := state.WatchKey(context.Background(), "p", nil, false, rec.handler)
	require.NoError(t, err)

	require.NoError(t, store.Remove(context.Background(), "p"))
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })

	d := rec.snapshot()[0]
	require.Equal(t, Removed, d.Kind)
	require.Equal(t, []byte("v1"), d.Old)
}

func TestKeyLockManager_SerialisesSameKey(t *testing.T) {
	m := NewKeyLockManager()
	var counter int
	var wg sync.WaitGroup
	results := make(chan int, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(context.Background(), "k")
			require.NoError(t, err)
			defer unlock()
			counter++
			results <- counter
		}()
	}
	wg.Wait()
	close(results)

	seen := map[int]bool{}
	for r := range results {
		require.False(t, seen[r], "duplicate counter value observed: locking did not serialise")
		seen[r] = true
	}
	require.Equal(t, 50, counter)
}

func TestKeyLockManager_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyLockManager()
	unlockA, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := m.Lock(context.Background(), "b")
		require.NoError(t, err)
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

func TestKeyLockManager_CancellationAborts(t *testing.T) {
	m := NewKeyLockManager()
	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, "k")
	require.Error(t, err)
}
