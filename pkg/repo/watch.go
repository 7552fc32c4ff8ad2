package repo

import (
	"context"

	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/watch"
)

// BranchDiff is a single branch-head transition, decoded from the raw
// hex bytes the branch store persists into typed commit hashes.
type BranchDiff struct {
	Branch string
	Kind   watch.DiffKind
	Old    objects.Hash
	HadOld bool
	New    objects.Hash
	HasNew bool
}

// BranchHandler is invoked at most once at a time per registration
// (spec §4.5's ordering contract, carried through to the handle/repo
// watch API).
type BranchHandler func(ctx context.Context, d BranchDiff)

func decodeBranchDiff(d watch.Diff) BranchDiff {
	bd := BranchDiff{Branch: d.Key, Kind: d.Kind}
	if d.Old != nil {
		if h, err := objects.HashFromHex(string(d.Old)); err == nil {
			bd.Old, bd.HadOld = h, true
		}
	}
	if d.New != nil {
		if h, err := objects.HashFromHex(string(d.New)); err == nil {
			bd.New, bd.HasNew = h, true
		}
	}
	return bd
}

// Watch installs a handler invoked for every branch's head transitions
// (spec §6 `watch`, repository-scoped global form).
func (r *Repository) Watch(ctx context.Context, handler BranchHandler) (watch.Handle, error) {
	return r.watch.Watch(ctx, nil, func(ctx context.Context, d watch.Diff) {
		handler(ctx, decodeBranchDiff(d))
	})
}

// WatchBranch installs a handler scoped to one branch name (spec §6
// `watch_key`).
func (r *Repository) WatchBranch(ctx context.Context, name string, handler BranchHandler) (watch.Handle, error) {
	return r.watch.WatchKey(ctx, name, nil, false, func(ctx context.Context, d watch.Diff) {
		handler(ctx, decodeBranchDiff(d))
	})
}

// Unwatch cancels a handle previously returned by Watch or WatchBranch
// (spec §6 `unwatch`).
func (r *Repository) Unwatch(h watch.Handle) {
	r.watch.Unwatch(h)
}
