// Package stores implements the L2 typed object stores spec §4.2
// describes: Contents, Node, Commit stores layered over an L1 AO, plus
// the Branch store which is L1's RW directly.
package stores

import (
	"context"

	"github.com/weftdb/weft/pkg/chunk"
	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

// ContentsStore is the typed store for user Contents values. Large
// values are transparently split into content-defined chunks by pkg/chunk
// (SPEC_FULL's chunked-large-contents feature) according to policy.
type ContentsStore struct {
	ao     kernel.AO
	hasher objects.Hasher
	codec  objects.ContentsCodec
	policy chunk.Policy
}

// NewContentsStore builds a ContentsStore over ao, addressed with hasher
// and decoded/merged via codec, chunking under chunk.DefaultPolicy until
// WithPolicy overrides it.
func NewContentsStore(ao kernel.AO, hasher objects.Hasher, codec objects.ContentsCodec) *ContentsStore {
	return &ContentsStore{ao: ao, hasher: hasher, codec: codec, policy: chunk.DefaultPolicy()}
}

// WithPolicy overrides the chunking policy and returns s for chaining.
func (s *ContentsStore) WithPolicy(p chunk.Policy) *ContentsStore {
	s.policy = p
	return s
}

// Add inserts c, returning its content-addressed key (idempotent: spec
// invariant 1 and the lifecycle rule "re-insertion ... returns the
// existing hash").
func (s *ContentsStore) Add(ctx context.Context, c objects.Contents) (objects.Hash, error) {
	b, err := c.Encode()
	if err != nil {
		return objects.Hash{}, errs.Invalid("contents store: encode: %v", err)
	}
	return chunk.Put(ctx, s.ao, s.policy, b)
}

// Get retrieves and decodes contents by hash, reassembling any chunked
// value first, or a NotFound-marked error.
func (s *ContentsStore) Get(ctx context.Context, h objects.Hash) (objects.Contents, error) {
	b, ok, err := chunk.Get(ctx, s.ao, h)
	if err != nil {
		return nil, errs.WrapBackend(err, "contents store: find")
	}
	if !ok {
		return nil, errs.NotFoundErr("contents " + h.String())
	}
	return s.codec.Decode(b)
}

// Merge is the per-spec lift of the key level: "The combinator reads
// contents for old, a, b from the store, invokes the user's value-level
// merge, and writes the result back. If any read fails or the value
// merge returns a conflict, the key-level merge surfaces a conflict"
// (spec §4.2).
func (s *ContentsStore) Merge() mergealg.Combinator {
	return func(ctx context.Context, old, a, b mergealg.Option) (mergealg.Option, error) {
		ancestor := objects.MemoizeAncestor(func() (objects.Contents, error) {
			if !old.Present {
				return nil, nil
			}
			v, err := s.Get(ctx, old.Hash)
			if err != nil {
				return nil, errs.WrapConflict("contents store: ancestor read failed: %v", err)
			}
			return v, nil
		})

		var av, bv objects.Contents
		var err error
		if a.Present {
			if av, err = s.Get(ctx, a.Hash); err != nil {
				return mergealg.Option{}, errs.WrapConflict("contents store: ours read failed: %v", err)
			}
		}
		if b.Present {
			if bv, err = s.Get(ctx, b.Hash); err != nil {
				return mergealg.Option{}, errs.WrapConflict("contents store: theirs read failed: %v", err)
			}
		}

		result, err := s.codec.Merge(ancestor, av, bv)
		if err != nil {
			if errs.IsConflict(err) {
				return mergealg.Option{}, err
			}
			return mergealg.Option{}, errs.WrapConflict("contents store: value merge failed: %v", err)
		}
		if result == nil {
			return mergealg.None(), nil
		}
		h, err := s.Add(ctx, result)
		if err != nil {
			return mergealg.Option{}, err
		}
		return mergealg.Some(h), nil
	}
}
