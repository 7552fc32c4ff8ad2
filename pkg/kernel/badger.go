package kernel

import (
	"bytes"
	"context"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v2"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// BadgerStore is the persisted, LSM-backed kernel implementation, the
// spec §4.1 "on-disk backend" alternative to FileStore. Grounded on
// iotaledger-trie.go's indirect dependency on github.com/dgraph-io/badger/v2
// (used there via hive.go/core/kvstore/badger). Content-addressed objects
// and mutable refs share one Badger instance under disjoint key prefixes.
type BadgerStore struct {
	mu       sync.Mutex
	db       *badger.DB
	hasher   objects.Hasher
	notifier Watcher
}

const (
	objPrefix = "obj:"
	refPrefix = "ref:"
	metaKey   = "meta:layout-version"

	currentLayoutVersion = "1"
)

// OpenBadgerStore opens (creating if absent) a Badger database at dir.
func OpenBadgerStore(dir string, hasher objects.Hasher) (*BadgerStore, error) {
	if hasher == nil {
		hasher = objects.SHA256
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.WrapBackend(err, "kernel: open badger")
	}
	return &BadgerStore{db: db, hasher: hasher}, nil
}

func (b *BadgerStore) SetNotifier(w Watcher) { b.notifier = w }

// Close releases the underlying Badger handles.
func (b *BadgerStore) Close() error {
	return errs.WrapBackend(b.db.Close(), "kernel: close badger")
}

// Migrate stamps the database with the current on-disk layout version if
// absent, and is a no-op on every call after the first (spec §8:
// "migrate(config); migrate(config) is a no-op beyond the first
// application"). It is the only backend with persisted structure that
// could need forward migration; Mem and File have none.
func (b *BadgerStore) Migrate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, exists, err := b.get(metaKey)
	if err != nil {
		return err
	}
	if exists && string(cur) == currentLayoutVersion {
		return nil
	}
	if exists {
		return errs.Invalid("kernel: badger layout version %q unsupported, expected %q", cur, currentLayoutVersion)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaKey), []byte(currentLayoutVersion))
	})
	return errs.WrapBackend(err, "kernel: badger migrate")
}

// get returns the value, whether the key exists, and any backend error
// in one transaction, so presence and an empty-but-present value are
// never confused.
func (b *BadgerStore) get(key string) ([]byte, bool, error) {
	var out []byte
	exists := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, errs.WrapBackend(err, "kernel: badger get")
	}
	return out, exists, nil
}

func (b *BadgerStore) Mem(ctx context.Context, key string) (bool, error) {
	_, exists, err := b.Find(ctx, key)
	return exists, err
}

// Find looks key up as a ref first, then as an object or link key.
func (b *BadgerStore) Find(_ context.Context, key string) ([]byte, bool, error) {
	v, ok, err := b.get(refPrefix + key)
	if err != nil || ok {
		return v, ok, err
	}
	return b.get(objPrefix + key)
}

func (b *BadgerStore) Add(_ context.Context, value []byte) (objects.Hash, error) {
	h := b.hasher.Sum(value)
	key := objPrefix + h.String()

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists, err := b.get(key); err != nil {
		return objects.Hash{}, err
	} else if exists {
		return h, nil
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return objects.Hash{}, errs.WrapBackend(err, "kernel: badger add")
	}
	return h, nil
}

func (b *BadgerStore) AddLink(_ context.Context, src string, dst []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(objPrefix+src), dst)
	})
	return errs.WrapBackend(err, "kernel: badger link")
}

func (b *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return errs.Invalid("kernel: empty key rejected")
	}
	b.mu.Lock()
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(refPrefix+key), value)
	})
	notifier := b.notifier
	b.mu.Unlock()

	if err != nil {
		return errs.WrapBackend(err, "kernel: badger set")
	}
	if notifier != nil {
		notifier.Notify(key, value, true)
	}
	return nil
}

func (b *BadgerStore) TestAndSet(_ context.Context, key string, test, set []byte, testPresent, setPresent bool) (bool, error) {
	if key == "" {
		return false, errs.Invalid("kernel: empty key rejected")
	}
	full := refPrefix + key

	b.mu.Lock()
	defer b.mu.Unlock()

	cur, exists, err := b.get(full)
	if err != nil {
		return false, err
	}
	matches := (!testPresent && !exists) || (testPresent && exists && bytes.Equal(cur, test))
	if !matches {
		return false, nil
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		if setPresent {
			return txn.Set([]byte(full), set)
		}
		err := txn.Delete([]byte(full))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return false, errs.WrapBackend(err, "kernel: badger cas")
	}
	if b.notifier != nil {
		b.notifier.Notify(key, set, setPresent)
	}
	return true, nil
}

func (b *BadgerStore) Remove(_ context.Context, key string) error {
	if key == "" {
		return errs.Invalid("kernel: empty key rejected")
	}
	b.mu.Lock()
	err := b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(refPrefix + key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	notifier := b.notifier
	b.mu.Unlock()

	if err != nil {
		return errs.WrapBackend(err, "kernel: badger remove")
	}
	if notifier != nil {
		notifier.Notify(key, nil, false)
	}
	return nil
}

func (b *BadgerStore) List(_ context.Context) ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(refPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			out = append(out, strings.TrimPrefix(k, refPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, errs.WrapBackend(err, "kernel: badger list")
	}
	return out, nil
}
