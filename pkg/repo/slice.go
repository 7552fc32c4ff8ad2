package repo

import (
	"context"

	"github.com/weftdb/weft/pkg/chunk"
	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// Slice is a self-contained, codec-independent bundle of raw encoded
// objects (spec §6 `export`/`import`): enough bytes to reconstruct every
// commit, node, and contents value it names in any repository that
// shares the same Hasher, without round-tripping through this
// repository's ContentsCodec.
type Slice struct {
	Contents map[objects.Hash][]byte
	Nodes    map[objects.Hash][]byte
	Commits  map[objects.Hash][]byte
}

func newSlice() Slice {
	return Slice{
		Contents: map[objects.Hash][]byte{},
		Nodes:    map[objects.Hash][]byte{},
		Commits:  map[objects.Hash][]byte{},
	}
}

// Export bundles the commit-DAG reachable from max, truncated at depth
// and at any commit in min (spec §6 `export(depth?, min?, max?, full?)`).
// When full is true, every node and contents value each included commit's
// tree reaches is bundled too; when false, only the commit objects
// themselves are (a lightweight history-only transfer).
func (r *Repository) Export(ctx context.Context, depth int, min, max []objects.Hash, full bool) (Slice, error) {
	sl := newSlice()

	commitHashes, err := r.history.History(ctx, max, min, depth)
	if err != nil {
		return Slice{}, err
	}

	var roots []objects.Hash
	for _, ch := range commitHashes {
		raw, ok, err := r.commitAO.Find(ctx, ch.String())
		if err != nil {
			return Slice{}, errs.WrapBackend(err, "repo: export: read commit")
		}
		if !ok {
			return Slice{}, errs.NotFoundErr("commit " + ch.String())
		}
		sl.Commits[ch] = raw

		if full {
			c, err := r.commits.Get(ctx, ch)
			if err != nil {
				return Slice{}, err
			}
			roots = append(roots, c.NodeHash)
		}
	}

	if !full {
		return sl, nil
	}

	nodes, err := r.nodes.Closure(ctx, nil, roots)
	if err != nil {
		return Slice{}, err
	}
	for nh, n := range nodes {
		raw, err := n.Encode()
		if err != nil {
			return Slice{}, err
		}
		sl.Nodes[nh] = raw
		for _, e := range n.Entries {
			if e.Kind != objects.KindContents {
				continue
			}
			if _, already := sl.Contents[e.Hash]; already {
				continue
			}
			cb, ok, err := r.contentsAO.Find(ctx, e.Hash.String())
			if err != nil {
				return Slice{}, errs.WrapBackend(err, "repo: export: read contents")
			}
			if !ok {
				return Slice{}, errs.NotFoundErr("contents " + e.Hash.String())
			}
			sl.Contents[e.Hash] = cb

			if chunkHashes, isManifest, err := chunk.ManifestChunks(cb); err != nil {
				return Slice{}, err
			} else if isManifest {
				for _, ch := range chunkHashes {
					if _, already := sl.Contents[ch]; already {
						continue
					}
					chb, ok, err := r.contentsAO.Find(ctx, ch.String())
					if err != nil {
						return Slice{}, errs.WrapBackend(err, "repo: export: read chunk")
					}
					if !ok {
						return Slice{}, errs.NotFoundErr("chunk " + ch.String())
					}
					sl.Contents[ch] = chb
				}
			}
		}
	}
	return sl, nil
}

// Import inserts every object in sl into the repository's stores
// (spec §6 `import(slice) -> ok|error`). Content-addressing makes
// insertion order irrelevant: Add recomputes each key from its bytes, so
// a node can be written before the commit that references it exists, or
// after; nothing checks referential integrity at write time.
func (r *Repository) Import(ctx context.Context, sl Slice) error {
	for _, raw := range sl.Contents {
		if _, err := r.contentsAO.Add(ctx, raw); err != nil {
			return errs.WrapBackend(err, "repo: import: contents")
		}
	}
	for _, raw := range sl.Nodes {
		if _, err := r.nodeAO.Add(ctx, raw); err != nil {
			return errs.WrapBackend(err, "repo: import: node")
		}
	}
	for _, raw := range sl.Commits {
		if _, err := r.commitAO.Add(ctx, raw); err != nil {
			return errs.WrapBackend(err, "repo: import: commit")
		}
	}
	return nil
}
