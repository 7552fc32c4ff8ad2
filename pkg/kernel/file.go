package kernel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// FileStore is the file-system backend, adapted from the teacher's
// pkg/cas.FileCAS: content-addressed blobs live under objects/<hh>/<rest>
// in a two-level fan-out, and mutable keys (refs, i.e. branches) live as
// one file per key under refs/, both written with the same
// temp-file-then-rename atomicity discipline. A process-local mutex
// additionally serialises writers within this instance, since the
// teacher's original relied on the OS alone.
type FileStore struct {
	mu       sync.Mutex
	baseDir  string
	hasher   objects.Hasher
	notifier Watcher
}

// NewFileStore creates (if absent) objects/ and refs/ under baseDir.
func NewFileStore(baseDir string, hasher objects.Hasher) (*FileStore, error) {
	if hasher == nil {
		hasher = objects.SHA256
	}
	for _, sub := range []string{"objects", "refs"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, errs.WrapBackend(err, "kernel: create "+sub+" dir")
		}
	}
	return &FileStore{baseDir: baseDir, hasher: hasher}, nil
}

func (f *FileStore) SetNotifier(w Watcher) { f.notifier = w }

func (f *FileStore) objectPath(h objects.Hash) string {
	hex := h.String()
	return filepath.Join(f.baseDir, "objects", hex[:2], hex[2:])
}

func (f *FileStore) refPath(key string) string {
	return filepath.Join(f.baseDir, "refs", key)
}

// atomicWrite writes data to path via a temp file in dir, fsync, then
// rename — the teacher's exact durability idiom (pkg/cas.FileCAS.Write,
// pkg/branch.BranchManager.writeBranchRef).
func atomicWrite(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (f *FileStore) Mem(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Find(ctx, key)
	return ok, err
}

// Find looks key up under refs/ first, then under objects/: a hex hash
// key names its object file directly, any other key is a link source.
func (f *FileStore) Find(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.refPath(key))
	if os.IsNotExist(err) {
		h, herr := objects.HashFromHex(key)
		if herr != nil {
			h = f.hasher.Sum([]byte(key))
		}
		data, err = os.ReadFile(f.objectPath(h))
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errs.WrapBackend(err, "kernel: read")
	}
	return data, true, nil
}

// Add is the content-addressed write path (spec §4.1 AO), reusing the
// teacher's dedup-by-Exists-check-before-write shortcut.
func (f *FileStore) Add(_ context.Context, value []byte) (objects.Hash, error) {
	h := f.hasher.Sum(value)
	objPath := f.objectPath(h)
	if _, err := os.Stat(objPath); err == nil {
		return h, nil
	} else if !os.IsNotExist(err) {
		return objects.Hash{}, errs.WrapBackend(err, "kernel: stat object")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := atomicWrite(filepath.Dir(objPath), objPath, value); err != nil {
		return objects.Hash{}, errs.WrapBackend(err, "kernel: write object")
	}
	return h, nil
}

func (f *FileStore) AddLink(_ context.Context, src string, dst []byte) error {
	h, err := objects.HashFromHex(src)
	if err != nil {
		h = f.hasher.Sum([]byte(src))
	}
	path := f.objectPath(h)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := atomicWrite(filepath.Dir(path), path, dst); err != nil {
		return errs.WrapBackend(err, "kernel: write link")
	}
	return nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return errs.Invalid("kernel: empty key rejected")
	}
	path := f.refPath(key)

	f.mu.Lock()
	err := atomicWrite(filepath.Dir(path), path, value)
	notifier := f.notifier
	f.mu.Unlock()

	if err != nil {
		return errs.WrapBackend(err, "kernel: set ref")
	}
	if notifier != nil {
		notifier.Notify(key, value, true)
	}
	return nil
}

func (f *FileStore) TestAndSet(_ context.Context, key string, test, set []byte, testPresent, setPresent bool) (bool, error) {
	if key == "" {
		return false, errs.Invalid("kernel: empty key rejected")
	}
	path := f.refPath(key)

	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := os.ReadFile(path)
	exists := true
	if err != nil {
		if !os.IsNotExist(err) {
			return false, errs.WrapBackend(err, "kernel: read ref")
		}
		exists = false
	}

	matches := (!testPresent && !exists) || (testPresent && exists && bytes.Equal(cur, test))
	if !matches {
		return false, nil
	}

	if setPresent {
		if err := atomicWrite(filepath.Dir(path), path, set); err != nil {
			return false, errs.WrapBackend(err, "kernel: set ref")
		}
	} else {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return false, errs.WrapBackend(err, "kernel: remove ref")
		}
	}

	if f.notifier != nil {
		f.notifier.Notify(key, set, setPresent)
	}
	return true, nil
}

func (f *FileStore) Remove(_ context.Context, key string) error {
	if key == "" {
		return errs.Invalid("kernel: empty key rejected")
	}
	path := f.refPath(key)
	f.mu.Lock()
	err := os.Remove(path)
	notifier := f.notifier
	f.mu.Unlock()

	if err != nil && !os.IsNotExist(err) {
		return errs.WrapBackend(err, "kernel: remove ref")
	}
	if notifier != nil {
		notifier.Notify(key, nil, false)
	}
	return nil
}

func (f *FileStore) List(_ context.Context) ([]string, error) {
	refsDir := filepath.Join(f.baseDir, "refs")
	var out []string
	err := filepath.Walk(refsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(refsDir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.WrapBackend(err, "kernel: list refs")
	}
	return out, nil
}
