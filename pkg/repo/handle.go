package repo

import (
	"context"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stage"
)

// StoreHandle is a cursor over one position in the commit graph: a
// branch (read-write), a fixed commit (detached, read-only), or the
// uncommitted empty tree (spec §6's `empty`/`master`/`of_branch`/
// `of_commit`). Every read operation works from any of the three; write
// operations (set/remove/set_tree/merge*) require a branch, enforced by
// requireBranch in handle_write.go.
type StoreHandle struct {
	repo   *Repository
	branch string // "" unless this handle is branch-backed
	commit objects.Hash
	fixed  bool // true for of_commit: commit is exact, not "current head of branch"
	empty  bool // true for the bare uncommitted handle
}

// Empty returns a handle over the uncommitted empty tree (spec §6
// `empty(repo)`).
func Empty(r *Repository) *StoreHandle {
	return &StoreHandle{repo: r, empty: true}
}

// Master returns a handle over the distinguished default branch
// (spec §6 `master(repo)`, spec §3 `DefaultBranch`).
func Master(r *Repository) *StoreHandle {
	return OfBranch(r, objects.DefaultBranch)
}

// OfBranch returns a handle that always tracks name's current head
// (spec §6 `of_branch(repo, name)`).
func OfBranch(r *Repository, name string) *StoreHandle {
	return &StoreHandle{repo: r, branch: name}
}

// OfCommit returns a detached, read-only handle fixed at commit
// (spec §6 `of_commit(repo, commit)`).
func OfCommit(r *Repository, commit objects.Hash) *StoreHandle {
	return &StoreHandle{repo: r, commit: commit, fixed: true}
}

// resolve returns the commit h currently addresses, or ok=false for the
// empty handle or a branch with no commits yet.
func (h *StoreHandle) resolve(ctx context.Context) (objects.Hash, bool, error) {
	if h.empty {
		return objects.Hash{}, false, nil
	}
	if h.fixed {
		return h.commit, true, nil
	}
	return h.repo.branches.Get(ctx, h.branch)
}

func (h *StoreHandle) requireBranch() error {
	if h.branch == "" {
		return errs.Invalid("repo: write operations require a branch-backed handle")
	}
	return nil
}

// Tree returns the staged tree at h's current position: the empty tree
// for an uncommitted or unborn-branch handle, or the commit's root node
// otherwise (spec §6 `tree(h)`).
func (h *StoreHandle) Tree(ctx context.Context) (*stage.Tree, error) {
	return h.baseTree(ctx)
}

func (h *StoreHandle) baseTree(ctx context.Context) (*stage.Tree, error) {
	commit, ok, err := h.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return stage.Empty(), nil
	}
	c, err := h.repo.commits.Get(ctx, commit)
	if err != nil {
		return nil, err
	}
	return stage.OfNodeHash(c.NodeHash), nil
}

// Status is the human-facing summary spec §6 `status(h)` returns.
type Status struct {
	Branch    string // "" for a detached or uncommitted handle
	Commit    objects.Hash
	HasCommit bool
	Task      objects.Task
	Age       string // humanize.Time rendering of Task.Date, "" if HasCommit is false
}

// Status reports h's current position in human-readable form (spec §6
// `status(h)`), grounded on the teacher's branch.HeadInfo summaries.
func (h *StoreHandle) Status(ctx context.Context) (Status, error) {
	commit, ok, err := h.resolve(ctx)
	if err != nil {
		return Status{}, err
	}
	s := Status{Branch: h.branch, Commit: commit, HasCommit: ok}
	if !ok {
		return s, nil
	}
	c, err := h.repo.commits.Get(ctx, commit)
	if err != nil {
		return Status{}, err
	}
	s.Task = c.Task
	s.Age = humanize.Time(time.Unix(c.Task.Date, 0))
	return s, nil
}

// Kind discriminates what lives at path: absent, a node, or a contents
// leaf (spec §6 `kind(h, path)`).
type Kind int

const (
	KindAbsent Kind = iota
	KindNode
	KindContents
)

func (h *StoreHandle) findTree(ctx context.Context, path objects.Path) (*stage.Tree, bool, error) {
	base, err := h.baseTree(ctx)
	if err != nil {
		return nil, false, err
	}
	return h.repo.stage.Find(ctx, base, path)
}

// Kind reports the shape at path (spec §6 `kind(h, path)`).
func (h *StoreHandle) Kind(ctx context.Context, path objects.Path) (Kind, error) {
	t, ok, err := h.findTree(ctx, path)
	if err != nil {
		return KindAbsent, err
	}
	if !ok {
		return KindAbsent, nil
	}
	switch {
	case t.IsNode():
		return KindNode, nil
	case t.IsContents():
		return KindContents, nil
	default:
		return KindAbsent, nil
	}
}

// Mem reports whether anything (node or contents) exists at path
// (spec §6 `mem(h, path)`).
func (h *StoreHandle) Mem(ctx context.Context, path objects.Path) (bool, error) {
	k, err := h.Kind(ctx, path)
	return k != KindAbsent, err
}

// ListEntry is one (step, kind) pair returned by List.
type ListEntry struct {
	Step objects.Step
	Kind Kind
}

// List enumerates path's immediate children in canonical byte-lex order
// (spec §6 `list(h, path)`); path must address a node, or the empty list
// with no error is returned for a contents leaf or absent path.
func (h *StoreHandle) List(ctx context.Context, path objects.Path) ([]ListEntry, error) {
	t, ok, err := h.findTree(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok || !t.IsNode() {
		return nil, nil
	}
	children, err := h.repo.stage.List(ctx, t)
	if err != nil {
		return nil, err
	}
	out := make([]ListEntry, len(children))
	for i, c := range children {
		k := KindAbsent
		switch {
		case c.Tree.IsNode():
			k = KindNode
		case c.Tree.IsContents():
			k = KindContents
		}
		out[i] = ListEntry{Step: c.Step, Kind: k}
	}
	return out, nil
}

// Diff reports every path whose contents or metadata differ between h
// and other's current trees (spec §4.4 `diff(a, b)`), short-circuiting
// on identical sub-hashes.
func (h *StoreHandle) Diff(ctx context.Context, other *StoreHandle) ([]stage.DiffEntry, error) {
	a, err := h.baseTree(ctx)
	if err != nil {
		return nil, err
	}
	b, err := other.baseTree(ctx)
	if err != nil {
		return nil, err
	}
	return h.repo.stage.Diff(ctx, a, b)
}

// Find returns path's contents and metadata, or ok=false if path is
// absent or addresses a node (spec §6 `find(h, path)`).
func (h *StoreHandle) Find(ctx context.Context, path objects.Path) (objects.Contents, objects.Metadata, bool, error) {
	t, ok, err := h.findTree(ctx, path)
	if err != nil {
		return nil, nil, false, err
	}
	if !ok {
		return nil, nil, false, nil
	}
	v, m, present, err := h.repo.stage.Contents(ctx, t)
	if err != nil {
		return nil, nil, false, err
	}
	return v, m, present, nil
}

// Get returns path's contents, converting an absent value into an
// invalid-argument error rather than reporting it as a value (spec §7's
// `get` convention).
func (h *StoreHandle) Get(ctx context.Context, path objects.Path) (objects.Contents, error) {
	v, _, ok, err := h.Find(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.InvalidGetErr("path " + path.String())
	}
	return v, nil
}

// GetV returns path's contents together with its metadata, with the
// same not-found-is-an-error convention as Get (spec §6 `getv(h, path)`).
func (h *StoreHandle) GetV(ctx context.Context, path objects.Path) (objects.Contents, objects.Metadata, error) {
	v, m, ok, err := h.Find(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errs.InvalidGetErr("path " + path.String())
	}
	return v, m, nil
}
