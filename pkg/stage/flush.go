package stage

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

// Flush performs the bottom-up post-order traversal spec §4.4 describes:
// for each buffered node, each pending child is flushed recursively,
// contents are written to the contents store first (so node entries can
// reference their hashes), the resulting concrete node is serialised and
// inserted into the node store, and the buffer is replaced by the
// resulting hash. A second Flush of an already-flushed tree is a pure
// read (`flush(flush(t)) = flush(t)`, spec §8).
func (s *Staging) Flush(ctx context.Context, t *Tree) (objects.Hash, error) {
	switch t.kind {
	case kindEmpty:
		return s.nodes.Empty(ctx)
	case kindNodeHash:
		return t.nodeHash, nil
	case kindContentsRef, kindContentsValue:
		return objects.Hash{}, errs.Invalid("stage: flush must start at a node, not a contents leaf")
	case kindNodeBuffer:
		entries := make(map[objects.Step]objects.Entry, len(t.buffer))
		for step, child := range t.buffer {
			entry, err := s.flushChild(ctx, child)
			if err != nil {
				return objects.Hash{}, err
			}
			entries[step] = entry
		}
		h, err := s.nodes.V(ctx, entries)
		if err != nil {
			return objects.Hash{}, err
		}
		t.kind = kindNodeHash
		t.nodeHash = h
		t.buffer = nil
		return h, nil
	}
	return objects.Hash{}, errs.Invalid("stage: unknown tree kind")
}

func (s *Staging) flushChild(ctx context.Context, child *Tree) (objects.Entry, error) {
	switch child.kind {
	case kindNodeHash:
		return objects.Entry{Kind: objects.KindNode, Hash: child.nodeHash}, nil
	case kindNodeBuffer, kindEmpty:
		h, err := s.Flush(ctx, child)
		if err != nil {
			return objects.Entry{}, err
		}
		return objects.Entry{Kind: objects.KindNode, Hash: h}, nil
	case kindContentsRef:
		return objects.Entry{Kind: objects.KindContents, Hash: child.contentsHash, Metadata: child.metaBytes}, nil
	case kindContentsValue:
		h, err := s.contents.Add(ctx, child.contents)
		if err != nil {
			return objects.Entry{}, err
		}
		meta := child.metadata
		if meta == nil {
			meta = s.metaCodec.Default()
		}
		metaBytes, err := meta.Encode()
		if err != nil {
			return objects.Entry{}, err
		}
		child.kind = kindContentsRef
		child.contentsHash = h
		child.metaBytes = metaBytes
		child.contents, child.metadata = nil, nil
		return objects.Entry{Kind: objects.KindContents, Hash: h, Metadata: metaBytes}, nil
	}
	return objects.Entry{}, errs.Invalid("stage: unknown tree kind")
}

// Merge is the tree-level lift of node merge with the same per-step
// discipline; empty on either side is treated as an absent sub-node
// (spec §4.4). It flushes old, a, and b (a merge needs their persisted
// shape to run the node-level combinator) and wraps a present result
// back up as an unmaterialised tree.
func (s *Staging) Merge(ctx context.Context, old, a, b *Tree, contentsMerge mergealg.Combinator, metaCodec objects.MetadataCodec) (*Tree, error) {
	oldOpt, err := s.flushOption(ctx, old)
	if err != nil {
		return nil, err
	}
	aOpt, err := s.flushOption(ctx, a)
	if err != nil {
		return nil, err
	}
	bOpt, err := s.flushOption(ctx, b)
	if err != nil {
		return nil, err
	}

	nodeMerge := s.nodes.Merge(contentsMerge, metaCodec)
	result, err := nodeMerge(ctx, oldOpt, aOpt, bOpt)
	if err != nil {
		return nil, err
	}
	if !result.Present {
		return Empty(), nil
	}
	return OfNodeHash(result.Hash), nil
}

func (s *Staging) flushOption(ctx context.Context, t *Tree) (mergealg.Option, error) {
	if t == nil || t.kind == kindEmpty {
		return mergealg.None(), nil
	}
	h, err := s.Flush(ctx, t)
	if err != nil {
		return mergealg.Option{}, err
	}
	return mergealg.Some(h), nil
}
