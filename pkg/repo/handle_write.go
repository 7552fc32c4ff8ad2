package repo

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/history"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stage"
	"github.com/weftdb/weft/pkg/watch"
)

// commitTree flushes t, builds a commit over it with the given parents
// and task, inserts it, and advances h's branch to the new commit under
// the branch's lock — the shared tail of Set, Remove, and SetTree.
func (h *StoreHandle) commitTree(ctx context.Context, t *stage.Tree, task objects.Task, from objects.Hash, fromOK bool) (objects.Hash, error) {
	if err := h.requireBranch(); err != nil {
		return objects.Hash{}, err
	}

	unlock, err := h.repo.watch.Locks().Lock(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	defer unlock()

	head, hasHead, err := h.repo.branches.Get(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	if hasHead != fromOK || (fromOK && head != from) {
		return objects.Hash{}, errs.ConcurrentUpdateErr("repo: branch %q moved since the base tree was read", h.branch)
	}

	nodeHash, err := h.repo.stage.Flush(ctx, t)
	if err != nil {
		return objects.Hash{}, err
	}

	var parents []objects.Hash
	if hasHead {
		parents = []objects.Hash{head}
	}
	commit := objects.Commit{NodeHash: nodeHash, Parents: parents, Task: task}
	newHash, err := h.repo.commits.Add(ctx, commit)
	if err != nil {
		return objects.Hash{}, err
	}

	ok, err := h.repo.branches.TestAndSet(ctx, h.branch, head, hasHead, newHash, true)
	if err != nil {
		return objects.Hash{}, err
	}
	if !ok {
		return objects.Hash{}, errs.ConcurrentUpdateErr("repo: branch %q moved during commit", h.branch)
	}
	return newHash, nil
}

// Set writes value/metadata at path and commits the result to h's
// branch with task (spec §6 `set(h, task, parents?, path, metadata?,
// value)`). The parents? argument of the spec's general form is only
// meaningful for merge commits; a plain set always produces a single-
// parent (or root) commit from the branch's current head.
func (h *StoreHandle) Set(ctx context.Context, task objects.Task, path objects.Path, metadata objects.Metadata, value objects.Contents) (objects.Hash, error) {
	if err := h.requireBranch(); err != nil {
		return objects.Hash{}, err
	}
	from, fromOK, err := h.repo.branches.Get(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	t, err := h.treeFrom(ctx, from, fromOK)
	if err != nil {
		return objects.Hash{}, err
	}
	if err := h.repo.stage.Set(ctx, t, path, value, metadata); err != nil {
		return objects.Hash{}, err
	}
	return h.commitTree(ctx, t, task, from, fromOK)
}

// Remove deletes path and commits the result to h's branch with task
// (spec §6 `remove`).
func (h *StoreHandle) Remove(ctx context.Context, task objects.Task, path objects.Path) (objects.Hash, error) {
	if err := h.requireBranch(); err != nil {
		return objects.Hash{}, err
	}
	from, fromOK, err := h.repo.branches.Get(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	t, err := h.treeFrom(ctx, from, fromOK)
	if err != nil {
		return objects.Hash{}, err
	}
	if err := h.repo.stage.Remove(ctx, t, path); err != nil {
		return objects.Hash{}, err
	}
	return h.commitTree(ctx, t, task, from, fromOK)
}

// SetTree replaces h's entire tree with concrete and commits the result
// to h's branch with task (spec §6 `set_tree`).
func (h *StoreHandle) SetTree(ctx context.Context, task objects.Task, concrete stage.Concrete) (objects.Hash, error) {
	if err := h.requireBranch(); err != nil {
		return objects.Hash{}, err
	}
	from, fromOK, err := h.repo.branches.Get(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	t := stage.OfConcrete(concrete)
	return h.commitTree(ctx, t, task, from, fromOK)
}

func (h *StoreHandle) treeFrom(ctx context.Context, commit objects.Hash, ok bool) (*stage.Tree, error) {
	if !ok {
		return stage.Empty(), nil
	}
	c, err := h.repo.commits.Get(ctx, commit)
	if err != nil {
		return nil, err
	}
	return stage.OfNodeHash(c.NodeHash), nil
}

// mergeCommit reconciles theirs into h's branch, fast-forwarding when
// possible and otherwise delegating the full three-way merge to
// history.Engine.ThreeWayMerge.
func (h *StoreHandle) mergeCommit(ctx context.Context, task objects.Task, theirs objects.Hash, contentsMerge mergealg.Combinator) (objects.Hash, error) {
	if err := h.requireBranch(); err != nil {
		return objects.Hash{}, err
	}

	unlock, err := h.repo.watch.Locks().Lock(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	defer unlock()

	head, hasHead, err := h.repo.branches.Get(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	if !hasHead {
		ok, err := h.repo.branches.TestAndSet(ctx, h.branch, objects.Hash{}, false, theirs, true)
		if err != nil {
			return objects.Hash{}, err
		}
		if !ok {
			return objects.Hash{}, errs.ConcurrentUpdateErr("repo: branch %q moved during merge", h.branch)
		}
		return theirs, nil
	}
	if head == theirs {
		return head, nil
	}

	ff, err := h.repo.history.FastForward(ctx, head, theirs)
	if err != nil {
		return objects.Hash{}, err
	}
	if ff {
		ok, err := h.repo.branches.TestAndSet(ctx, h.branch, head, true, theirs, true)
		if err != nil {
			return objects.Hash{}, err
		}
		if !ok {
			return objects.Hash{}, errs.ConcurrentUpdateErr("repo: branch %q moved during fast-forward", h.branch)
		}
		return theirs, nil
	}
	if already, err := h.repo.history.FastForward(ctx, theirs, head); err != nil {
		return objects.Hash{}, err
	} else if already {
		return head, nil
	}

	nodeMerge := h.repo.nodes.Merge(contentsMerge, h.repo.metaCodec)
	merged, err := h.repo.history.ThreeWayMerge(ctx, head, theirs, task, nodeMerge, h.repo.maxLCADepth, h.repo.maxLCACount)
	if err != nil {
		return objects.Hash{}, err
	}

	ok, err := h.repo.branches.TestAndSet(ctx, h.branch, head, true, merged, true)
	if err != nil {
		return objects.Hash{}, err
	}
	if !ok {
		return objects.Hash{}, errs.ConcurrentUpdateErr("repo: branch %q moved during merge", h.branch)
	}
	return merged, nil
}

// MergeWithCommit merges theirs into h's branch (spec §6
// `merge_with_commit`).
func (h *StoreHandle) MergeWithCommit(ctx context.Context, task objects.Task, theirs objects.Hash, contentsMerge mergealg.Combinator) (objects.Hash, error) {
	return h.mergeCommit(ctx, task, theirs, contentsMerge)
}

// MergeWithBranch merges other's current head into h's branch (spec §6
// `merge_with_branch`).
func (h *StoreHandle) MergeWithBranch(ctx context.Context, task objects.Task, other string, contentsMerge mergealg.Combinator) (objects.Hash, error) {
	theirs, ok, err := h.repo.branches.Get(ctx, other)
	if err != nil {
		return objects.Hash{}, err
	}
	if !ok {
		return objects.Hash{}, errs.Invalid("repo: branch %q has no commits", other)
	}
	return h.mergeCommit(ctx, task, theirs, contentsMerge)
}

// MergeInto merges h's branch into target (spec §6 `merge_into`): the
// reverse direction of MergeWithBranch, named from the source handle's
// point of view.
func (h *StoreHandle) MergeInto(ctx context.Context, task objects.Task, target string, contentsMerge mergealg.Combinator) (objects.Hash, error) {
	if err := h.requireBranch(); err != nil {
		return objects.Hash{}, err
	}
	ours, ok, err := h.repo.branches.Get(ctx, h.branch)
	if err != nil {
		return objects.Hash{}, err
	}
	if !ok {
		return objects.Hash{}, errs.Invalid("repo: branch %q has no commits", h.branch)
	}
	into := OfBranch(h.repo, target)
	return into.mergeCommit(ctx, task, ours, contentsMerge)
}

// LCAs computes the lowest common ancestors of h's current commit and
// other (spec §6 `lcas*`).
func (h *StoreHandle) LCAs(ctx context.Context, other objects.Hash) (history.LCAResult, error) {
	head, ok, err := h.resolve(ctx)
	if err != nil {
		return history.LCAResult{}, err
	}
	if !ok {
		return history.LCAResult{}, errs.Invalid("repo: lcas requires a committed handle")
	}
	return h.repo.history.LCAs(ctx, head, other, h.repo.maxLCADepth, h.repo.maxLCACount)
}

// LCAsWithBranch is LCAs against other's current head.
func (h *StoreHandle) LCAsWithBranch(ctx context.Context, other string) (history.LCAResult, error) {
	theirs, ok, err := h.repo.branches.Get(ctx, other)
	if err != nil {
		return history.LCAResult{}, err
	}
	if !ok {
		return history.LCAResult{}, errs.Invalid("repo: branch %q has no commits", other)
	}
	return h.LCAs(ctx, theirs)
}

// History returns the commit-DAG reachable from h's current commit,
// truncated at depth and at any commit in min (spec §6 `history`).
func (h *StoreHandle) History(ctx context.Context, depth int, min []objects.Hash) ([]objects.Hash, error) {
	head, ok, err := h.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return h.repo.history.History(ctx, []objects.Hash{head}, min, depth)
}

// Watch installs a handler invoked on every change to h's branch's head
// (spec §6 `watch`/`watch_key`, scoped to a single handle's branch).
func (h *StoreHandle) Watch(ctx context.Context, handler BranchHandler) (watch.Handle, error) {
	if err := h.requireBranch(); err != nil {
		return watch.Handle{}, err
	}
	return h.repo.WatchBranch(ctx, h.branch, handler)
}

// Unwatch cancels a handle previously returned by Watch (spec §6
// `unwatch`).
func (h *StoreHandle) Unwatch(handle watch.Handle) {
	h.repo.Unwatch(handle)
}
