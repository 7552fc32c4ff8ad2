package stores

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

// CommitStore is the typed store for Commit objects.
type CommitStore struct {
	ao     kernel.AO
	hasher objects.Hasher
}

// NewCommitStore builds a CommitStore over ao, addressed with hasher.
func NewCommitStore(ao kernel.AO, hasher objects.Hasher) *CommitStore {
	return &CommitStore{ao: ao, hasher: hasher}
}

// Add inserts c, returning its content-addressed key.
func (s *CommitStore) Add(ctx context.Context, c objects.Commit) (objects.Hash, error) {
	b, err := c.Encode()
	if err != nil {
		return objects.Hash{}, errs.Invalid("commit store: encode: %v", err)
	}
	h, err := s.ao.Add(ctx, b)
	if err != nil {
		return objects.Hash{}, errs.WrapBackend(err, "commit store: add")
	}
	return h, nil
}

// Get retrieves and decodes a Commit by hash, or a NotFound-marked error.
func (s *CommitStore) Get(ctx context.Context, h objects.Hash) (objects.Commit, error) {
	b, ok, err := s.ao.Find(ctx, h.String())
	if err != nil {
		return objects.Commit{}, errs.WrapBackend(err, "commit store: find")
	}
	if !ok {
		return objects.Commit{}, errs.NotFoundErr("commit " + h.String())
	}
	return objects.DecodeCommit(b)
}

// Merge lifts a node-level Combinator to commit level (spec §4.2): given
// explicit old/a/b commit keys, it reads each commit's tree, runs
// nodeMerge over the trees, and wraps a successful result in a new
// commit whose parents are [a; b] (the "into" branch first, per spec §9's
// open-question resolution) and whose task is the caller-supplied task
// verbatim — never a blend of the two parent tasks (spec §9).
func (s *CommitStore) Merge(task objects.Task, nodeMerge mergealg.Combinator) mergealg.Combinator {
	return func(ctx context.Context, old, a, b mergealg.Option) (mergealg.Option, error) {
		if !a.Present || !b.Present {
			return mergealg.Option{}, errs.Invalid("commit store: merge requires both sides present")
		}

		oldNode := mergealg.None()
		if old.Present {
			oc, err := s.Get(ctx, old.Hash)
			if err != nil {
				return mergealg.Option{}, errs.WrapConflict("commit store: ancestor read failed: %v", err)
			}
			oldNode = mergealg.Some(oc.NodeHash)
		}

		ac, err := s.Get(ctx, a.Hash)
		if err != nil {
			return mergealg.Option{}, errs.WrapConflict("commit store: ours read failed: %v", err)
		}
		bc, err := s.Get(ctx, b.Hash)
		if err != nil {
			return mergealg.Option{}, errs.WrapConflict("commit store: theirs read failed: %v", err)
		}

		resultTree, err := nodeMerge(ctx, oldNode, mergealg.Some(ac.NodeHash), mergealg.Some(bc.NodeHash))
		if err != nil {
			return mergealg.Option{}, err
		}
		if !resultTree.Present {
			return mergealg.Option{}, errs.WrapConflict("commit store: merge produced an empty tree")
		}

		merged := objects.Commit{
			NodeHash: resultTree.Hash,
			Parents:  []objects.Hash{a.Hash, b.Hash},
			Task:     task,
		}
		h, err := s.Add(ctx, merged)
		if err != nil {
			return mergealg.Option{}, err
		}
		return mergealg.Some(h), nil
	}
}
