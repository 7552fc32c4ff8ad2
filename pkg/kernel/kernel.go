// Package kernel implements the L1 backend primitives spec §4.1
// describes: a read-only lookup interface, an append-only
// content-addressed store, a link store for alternative hashings, and a
// mutable keyed store with watch support. Three backends are provided —
// in-memory, file-based (adapted from the teacher's atomic-write
// pkg/cas), and Badger-backed — so higher layers can be built against the
// interfaces alone (spec §4.1: "deliberately minimal so that many
// physical backends ... can implement them").
package kernel

import (
	"context"

	"github.com/weftdb/weft/pkg/objects"
)

// RO is the read-only store capability (spec §4.1). Absence is not an
// error: Find returns ok=false.
type RO interface {
	Mem(ctx context.Context, key string) (bool, error)
	Find(ctx context.Context, key string) (value []byte, ok bool, err error)
}

// AO is the append-only, content-addressed store capability (spec §4.1).
// Add computes key = Hasher.Sum(serialise(v)) and is idempotent.
type AO interface {
	RO
	Add(ctx context.Context, value []byte) (key objects.Hash, err error)
}

// LINK certifies that an additional key resolves to a pre-existing value,
// used to record alternative hashings of the same logical object
// (spec §4.1).
type LINK interface {
	RO
	AddLink(ctx context.Context, src string, dst []byte) error
}

// Watcher is the subset of the watch/notification contract (spec §4.5)
// an RW store must expose; the full API lives in pkg/watch, built on top
// of whatever backend implements this.
type Watcher interface {
	Notify(key string, newValue []byte, present bool)
}

// RW is the mutable keyed store capability (spec §4.1). The empty key is
// rejected by every implementation. Writes are linearisable against
// concurrent writers to the same key.
type RW interface {
	RO
	Set(ctx context.Context, key string, value []byte) error
	// TestAndSet performs an atomic compare-and-swap. testPresent=false
	// means "key must not currently exist" (test is then ignored);
	// setPresent=false means "remove the key" (set is then ignored). Returns
	// ok=false (not an error) on a lost race, matching spec §7's
	// "Concurrent update ... not an exception".
	TestAndSet(ctx context.Context, key string, test, set []byte, testPresent, setPresent bool) (ok bool, err error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}
