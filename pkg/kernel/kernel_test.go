package kernel

import (
	"context"
	"testing"

	"github.com/weftdb/weft/pkg/objects"
)

// backend bundles a constructed store and a cleanup func so the conformance
// suite below runs unmodified against every RO/AO/LINK/RW implementation
// spec §4.1 requires to share one contract.
type backend struct {
	name string
	store interface {
		RO
		AO
		LINK
		RW
	}
	cleanup func()
}

func backends(t *testing.T) []backend {
	t.Helper()
	mem := NewMemStore(nil)

	dir := t.TempDir()
	file, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	return []backend{
		{name: "mem", store: mem, cleanup: func() {}},
		{name: "file", store: file, cleanup: func() {}},
	}
}

func TestConformance_AddIsIdempotentAndContentAddressed(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			h1, err := b.store.Add(ctx, []byte("hello"))
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			h2, err := b.store.Add(ctx, []byte("hello"))
			if err != nil {
				t.Fatalf("add again: %v", err)
			}
			if h1 != h2 {
				t.Fatalf("same value produced different hashes: %s != %s", h1, h2)
			}
			got, ok, err := b.store.Find(ctx, h1.String())
			if err != nil || !ok {
				t.Fatalf("find: ok=%v err=%v", ok, err)
			}
			if string(got) != "hello" {
				t.Fatalf("find returned %q, want %q", got, "hello")
			}
		})
	}
}

func TestConformance_AddOfDistinctValuesDiffers(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			h1, err := b.store.Add(ctx, []byte("a"))
			if err != nil {
				t.Fatalf("add a: %v", err)
			}
			h2, err := b.store.Add(ctx, []byte("b"))
			if err != nil {
				t.Fatalf("add b: %v", err)
			}
			if h1 == h2 {
				t.Fatalf("distinct values hashed to the same key")
			}
		})
	}
}

func TestConformance_FindAbsentIsNotAnError(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			_, ok, err := b.store.Find(ctx, objects.SHA256.Sum([]byte("nope")).String())
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if ok {
				t.Fatalf("find reported a value that was never added")
			}
		})
	}
}

func TestConformance_SetThenFind(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			if err := b.store.Set(ctx, "branches/main", []byte("commit-1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			v, ok, err := b.store.Find(ctx, "branches/main")
			if err != nil || !ok {
				t.Fatalf("find: ok=%v err=%v", ok, err)
			}
			if string(v) != "commit-1" {
				t.Fatalf("find returned %q, want %q", v, "commit-1")
			}
			mem, err := b.store.Mem(ctx, "branches/main")
			if err != nil || !mem {
				t.Fatalf("mem: %v, err=%v", mem, err)
			}
		})
	}
}

func TestConformance_SetRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			if err := b.store.Set(ctx, "", []byte("x")); err == nil {
				t.Fatalf("expected an error setting the empty key")
			}
		})
	}
}

func TestConformance_TestAndSetCreateRequiresAbsence(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			ok, err := b.store.TestAndSet(ctx, "k", nil, []byte("v1"), false, true)
			if err != nil || !ok {
				t.Fatalf("first create: ok=%v err=%v", ok, err)
			}
			ok, err = b.store.TestAndSet(ctx, "k", nil, []byte("v2"), false, true)
			if err != nil {
				t.Fatalf("second create: %v", err)
			}
			if ok {
				t.Fatalf("second create-if-absent should have lost the race")
			}
			v, _, err := b.store.Find(ctx, "k")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if string(v) != "v1" {
				t.Fatalf("key was overwritten by a lost race: got %q", v)
			}
		})
	}
}

func TestConformance_TestAndSetCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			if err := b.store.Set(ctx, "k", []byte("v1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			ok, err := b.store.TestAndSet(ctx, "k", []byte("stale"), []byte("v2"), true, true)
			if err != nil {
				t.Fatalf("cas: %v", err)
			}
			if ok {
				t.Fatalf("cas against a stale value should fail")
			}
			ok, err = b.store.TestAndSet(ctx, "k", []byte("v1"), []byte("v2"), true, true)
			if err != nil || !ok {
				t.Fatalf("cas against current value should succeed: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestConformance_TestAndSetDelete(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			if err := b.store.Set(ctx, "k", []byte("v1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			ok, err := b.store.TestAndSet(ctx, "k", []byte("v1"), nil, true, false)
			if err != nil || !ok {
				t.Fatalf("delete: ok=%v err=%v", ok, err)
			}
			mem, err := b.store.Mem(ctx, "k")
			if err != nil || mem {
				t.Fatalf("key should be gone: mem=%v err=%v", mem, err)
			}
		})
	}
}

func TestConformance_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			if err := b.store.Remove(ctx, "never-existed"); err != nil {
				t.Fatalf("remove absent key: %v", err)
			}
			if err := b.store.Set(ctx, "k", []byte("v")); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := b.store.Remove(ctx, "k"); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if err := b.store.Remove(ctx, "k"); err != nil {
				t.Fatalf("second remove of the same key: %v", err)
			}
		})
	}
}

func TestConformance_ListReflectsCurrentKeys(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			for _, k := range []string{"a", "b", "c"} {
				if err := b.store.Set(ctx, k, []byte(k)); err != nil {
					t.Fatalf("set %s: %v", k, err)
				}
			}
			if err := b.store.Remove(ctx, "b"); err != nil {
				t.Fatalf("remove b: %v", err)
			}
			keys, err := b.store.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			seen := map[string]bool{}
			for _, k := range keys {
				seen[k] = true
			}
			if !seen["a"] || seen["b"] || !seen["c"] {
				t.Fatalf("list = %v, want a and c present, b absent", keys)
			}
		})
	}
}

func TestConformance_AddLinkResolvesThroughFind(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			if err := b.store.AddLink(ctx, "alt-digest", []byte("payload")); err != nil {
				t.Fatalf("add link: %v", err)
			}
			v, ok, err := b.store.Find(ctx, "alt-digest")
			if err != nil || !ok {
				t.Fatalf("find link: ok=%v err=%v", ok, err)
			}
			if string(v) != "payload" {
				t.Fatalf("find link returned %q, want %q", v, "payload")
			}
		})
	}
}

// recordingNotifier captures every Notify call in order for SetNotifier
// conformance assertions.
type recordingNotifier struct {
	calls []notifyCall
}

type notifyCall struct {
	key     string
	value   []byte
	present bool
}

func (n *recordingNotifier) Notify(key string, value []byte, present bool) {
	n.calls = append(n.calls, notifyCall{key: key, value: value, present: present})
}

func TestConformance_NotifierSeesSetAndRemove(t *testing.T) {
	ctx := context.Background()
	type notifiable interface {
		SetNotifier(w Watcher)
	}
	for _, b := range backends(t) {
		b := b
		t.Run(b.name, func(t *testing.T) {
			defer b.cleanup()
			n := &recordingNotifier{}
			b.store.(notifiable).SetNotifier(n)

			if err := b.store.Set(ctx, "k", []byte("v1")); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := b.store.Remove(ctx, "k"); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if len(n.calls) != 2 {
				t.Fatalf("expected 2 notifications, got %d: %+v", len(n.calls), n.calls)
			}
			if !n.calls[0].present || string(n.calls[0].value) != "v1" {
				t.Fatalf("first notification wrong: %+v", n.calls[0])
			}
			if n.calls[1].present {
				t.Fatalf("second notification should report absence: %+v", n.calls[1])
			}
		})
	}
}
