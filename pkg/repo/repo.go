// Package repo assembles the four layers below it into the two public
// entry points spec §6 describes: Repository (process-wide config,
// stores, and history/staging engines) and StoreHandle (a cursor over
// one branch, commit, or the empty tree). Everything a caller touches
// from outside this module goes through one of these two types.
package repo

import (
	"context"
	"sort"

	"github.com/weftdb/weft/pkg/chunk"
	"github.com/weftdb/weft/pkg/config"
	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/graph"
	"github.com/weftdb/weft/pkg/history"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stage"
	"github.com/weftdb/weft/pkg/stores"
	"github.com/weftdb/weft/pkg/watch"
)

// Repository bundles the opened backends and the layered engines built
// over them (spec §6 `open(config)`).
type Repository struct {
	hasher        objects.Hasher
	contentsCodec objects.ContentsCodec
	metaCodec     objects.MetadataCodec

	contentsAO kernel.AO
	nodeAO     kernel.AO
	commitAO   kernel.AO

	contents *stores.ContentsStore
	nodes    *graph.Graph
	commits  *stores.CommitStore
	branches *stores.BranchStore

	history *history.Engine
	stage   *stage.Staging
	watch   *watch.State

	maxLCADepth int
	maxLCACount int

	closers []func() error
}

// Open builds a Repository from cfg (spec §6 `open(config)`), wiring a
// watch.State over the branch backend so every TestAndSet/Set is
// observable, and stamping a fresh master branch the first time a repo
// is opened against empty storage is deliberately NOT done here: master
// only springs into existence once something is committed to it
// (spec §3: branches are "created implicitly by the first commit").
func Open(ctx context.Context, cfg *config.Config, contentsCodec objects.ContentsCodec, metaCodec objects.MetadataCodec) (*Repository, error) {
	if contentsCodec == nil {
		return nil, errs.Invalid("repo: a contents codec is required")
	}
	if metaCodec == nil {
		metaCodec = objects.RawMetadataCodec
	}

	hasherName, err := config.Get(cfg, config.HashAlgo)
	if err != nil {
		return nil, err
	}
	hasher, err := resolveHasher(hasherName)
	if err != nil {
		return nil, err
	}

	kind, err := config.Get(cfg, config.BackendKind)
	if err != nil {
		return nil, err
	}
	dir, err := config.Get(cfg, config.BackendDir)
	if err != nil {
		return nil, err
	}
	backends, err := openBackends(kind, dir, hasher)
	if err != nil {
		return nil, err
	}

	maxDepth, err := config.Get(cfg, config.MaxLCADepth)
	if err != nil {
		return nil, err
	}
	maxCount, err := config.Get(cfg, config.MaxLCACount)
	if err != nil {
		return nil, err
	}
	chunkThreshold, err := config.Get(cfg, config.ChunkThreshold)
	if err != nil {
		return nil, err
	}

	contentsStore := stores.NewContentsStore(backends.contents, hasher, contentsCodec)
	if chunkThreshold > 0 {
		policy := chunk.DefaultPolicy()
		policy.Threshold = uint32(chunkThreshold)
		contentsStore = contentsStore.WithPolicy(policy)
	}
	nodeStore := stores.NewNodeStore(backends.node, hasher)
	commitStore := stores.NewCommitStore(backends.commit, hasher)
	branchStore := stores.NewBranchStore(backends.branch)

	nodeGraph := graph.New(nodeStore)

	r := &Repository{
		hasher:        hasher,
		contentsCodec: contentsCodec,
		metaCodec:     metaCodec,
		contentsAO:    backends.contents,
		nodeAO:        backends.node,
		commitAO:      backends.commit,
		contents:      contentsStore,
		nodes:         nodeGraph,
		commits:       commitStore,
		branches:      branchStore,
		history:       history.New(commitStore),
		stage:         stage.New(nodeGraph, contentsStore, metaCodec),
		watch:         watch.NewState(backends.branch, ctx),
		maxLCADepth:   maxDepth,
		maxLCACount:   maxCount,
		closers:       backends.closers,
	}
	return r, nil
}

func resolveHasher(name string) (objects.Hasher, error) {
	switch name {
	case "", "sha256":
		return objects.SHA256, nil
	case "blake2b":
		return objects.Blake2b256, nil
	default:
		return nil, errs.Invalid("repo: unknown hash algorithm %q", name)
	}
}

// Close releases every backend opened by Open (spec §6 `close(repo)`).
func (r *Repository) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Heads returns the commit every branch currently points at, one per
// branch, deduplicated and in canonical hash order (spec §6 `heads(repo)`).
func (r *Repository) Heads(ctx context.Context) ([]objects.Hash, error) {
	names, err := r.branches.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[objects.Hash]bool{}
	var out []objects.Hash
	for _, name := range names {
		h, ok, err := r.branches.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// BranchRef pairs a branch name with the commit it currently points at.
type BranchRef struct {
	Name string
	Head objects.Hash
}

// Branches lists every existing branch and its head, sorted by name
// (spec §6 `branches(repo)`).
func (r *Repository) Branches(ctx context.Context) ([]BranchRef, error) {
	names, err := r.branches.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]BranchRef, 0, len(names))
	for _, name := range names {
		h, ok, err := r.branches.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, BranchRef{Name: name, Head: h})
	}
	return out, nil
}

// TaskOfCommit returns the task recorded on commit, or ok=false if no
// such commit exists (spec §6 `task_of_commit(commit) -> option<task>`).
func (r *Repository) TaskOfCommit(ctx context.Context, commit objects.Hash) (objects.Task, bool, error) {
	c, err := r.commits.Get(ctx, commit)
	if err != nil {
		if errs.IsNotFound(err) {
			return objects.Task{}, false, nil
		}
		return objects.Task{}, false, err
	}
	return c.Task, true, nil
}

// Clone points dst at src's current head (spec §6 `clone(src, dst)`).
// It fails if src has no commits or dst already exists: clone creates a
// new branch, it does not reset an existing one.
func (r *Repository) Clone(ctx context.Context, src, dst string) (objects.Hash, error) {
	head, ok, err := r.branches.Get(ctx, src)
	if err != nil {
		return objects.Hash{}, err
	}
	if !ok {
		return objects.Hash{}, errs.Invalid("repo: clone: source branch %q has no commits", src)
	}

	unlock, err := r.watch.Locks().Lock(ctx, dst)
	if err != nil {
		return objects.Hash{}, err
	}
	defer unlock()

	ok, err = r.branches.TestAndSet(ctx, dst, objects.Hash{}, false, head, true)
	if err != nil {
		return objects.Hash{}, err
	}
	if !ok {
		return objects.Hash{}, errs.ConcurrentUpdateErr("repo: clone: destination branch %q already exists", dst)
	}
	return head, nil
}
