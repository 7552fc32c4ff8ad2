package repo

import (
	"path/filepath"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
)

// backendSet is the four independent key-spaces a Repository needs: one
// content-addressed store per object tier, plus the mutable branch
// store. Keeping them as four separate backend instances (four separate
// Badger databases, four subdirectories, four Mem maps) means a commit
// hash and a node hash never collide even though both are 32-byte
// digests under the same Hasher.
type backendSet struct {
	contents kernel.AO
	node     kernel.AO
	commit   kernel.AO
	branch   kernel.RW
	closers  []func() error
}

// openBackends constructs the four backends for kind ("mem", "file", or
// "badger"), rooted under dir for the backends that need a filesystem.
func openBackends(kind, dir string, hasher objects.Hasher) (*backendSet, error) {
	switch kind {
	case "", "mem":
		return openMemBackends(hasher), nil
	case "file":
		return openFileBackends(dir, hasher)
	case "badger":
		return openBadgerBackends(dir, hasher)
	default:
		return nil, errs.Invalid("repo: unknown backend kind %q", kind)
	}
}

func openMemBackends(hasher objects.Hasher) *backendSet {
	return &backendSet{
		contents: kernel.NewMemStore(hasher),
		node:     kernel.NewMemStore(hasher),
		commit:   kernel.NewMemStore(hasher),
		branch:   kernel.NewMemStore(hasher),
	}
}

func openFileBackends(dir string, hasher objects.Hasher) (*backendSet, error) {
	if dir == "" {
		return nil, errs.Invalid("repo: backend.dir is required for the file backend")
	}
	contents, err := kernel.NewFileStore(filepath.Join(dir, "contents"), hasher)
	if err != nil {
		return nil, err
	}
	node, err := kernel.NewFileStore(filepath.Join(dir, "node"), hasher)
	if err != nil {
		return nil, err
	}
	commit, err := kernel.NewFileStore(filepath.Join(dir, "commit"), hasher)
	if err != nil {
		return nil, err
	}
	branch, err := kernel.NewFileStore(filepath.Join(dir, "refs"), hasher)
	if err != nil {
		return nil, err
	}
	return &backendSet{contents: contents, node: node, commit: commit, branch: branch}, nil
}

func openBadgerBackends(dir string, hasher objects.Hasher) (*backendSet, error) {
	if dir == "" {
		return nil, errs.Invalid("repo: backend.dir is required for the badger backend")
	}

	open := func(sub string) (*kernel.BadgerStore, error) {
		b, err := kernel.OpenBadgerStore(filepath.Join(dir, sub), hasher)
		if err != nil {
			return nil, err
		}
		if err := b.Migrate(); err != nil {
			b.Close()
			return nil, err
		}
		return b, nil
	}

	contents, err := open("contents")
	if err != nil {
		return nil, err
	}
	node, err := open("node")
	if err != nil {
		contents.Close()
		return nil, err
	}
	commit, err := open("commit")
	if err != nil {
		contents.Close()
		node.Close()
		return nil, err
	}
	branch, err := open("refs")
	if err != nil {
		contents.Close()
		node.Close()
		commit.Close()
		return nil, err
	}

	return &backendSet{
		contents: contents,
		node:     node,
		commit:   commit,
		branch:   branch,
		closers:  []func() error{contents.Close, node.Close, commit.Close, branch.Close},
	}, nil
}
