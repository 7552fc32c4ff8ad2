package stage

import (
	"bytes"
	"context"
	"sort"

	"github.com/weftdb/weft/pkg/objects"
)

// DiffKind discriminates one path's change between two trees.
type DiffKind int

const (
	DiffAdded DiffKind = iota
	DiffRemoved
	DiffUpdated
)

// LeafValue is a resolved (contents, metadata) pair, as surfaced by Diff.
type LeafValue struct {
	Contents objects.Contents
	Metadata objects.Metadata
}

// DiffEntry is one (path, diff) pair (spec §4.4 `diff(a, b)`).
type DiffEntry struct {
	Path objects.Path
	Kind DiffKind
	Old  *LeafValue
	New  *LeafValue
}

// Diff pairwise-walks a and b, short-circuiting on identical sub-hashes
// (structural equality by hash implies value equality, spec §4.4).
func (s *Staging) Diff(ctx context.Context, a, b *Tree) ([]DiffEntry, error) {
	var out []DiffEntry
	if err := s.diffAt(ctx, objects.Root, a, b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Staging) diffAt(ctx context.Context, path objects.Path, a, b *Tree, out *[]DiffEntry) error {
	if treesIdentical(a, b) {
		return nil
	}

	switch {
	case a.kind == kindEmpty && b.kind == kindEmpty:
		return nil
	case a.kind == kindEmpty:
		return s.collectLeaves(ctx, path, b, true, out)
	case b.kind == kindEmpty:
		return s.collectLeaves(ctx, path, a, false, out)
	case isNodeShaped(a) && isNodeShaped(b):
		return s.diffNodes(ctx, path, a, b, out)
	case !isNodeShaped(a) && !isNodeShaped(b):
		return s.diffLeaves(ctx, path, a, b, out)
	default:
		if err := s.collectLeaves(ctx, path, a, false, out); err != nil {
			return err
		}
		return s.collectLeaves(ctx, path, b, true, out)
	}
}

func isNodeShaped(t *Tree) bool {
	return t.kind == kindNodeHash || t.kind == kindNodeBuffer
}

func treesIdentical(a, b *Tree) bool {
	if a.kind == kindNodeHash && b.kind == kindNodeHash {
		return a.nodeHash == b.nodeHash
	}
	if a.kind == kindContentsRef && b.kind == kindContentsRef {
		return a.contentsHash == b.contentsHash && bytes.Equal(a.metaBytes, b.metaBytes)
	}
	return false
}

func (s *Staging) diffNodes(ctx context.Context, path objects.Path, a, b *Tree, out *[]DiffEntry) error {
	if err := s.ensureBuffer(ctx, a); err != nil {
		return err
	}
	if err := s.ensureBuffer(ctx, b); err != nil {
		return err
	}

	seen := map[objects.Step]bool{}
	var steps []objects.Step
	for step := range a.buffer {
		seen[step] = true
		steps = append(steps, step)
	}
	for step := range b.buffer {
		if !seen[step] {
			steps = append(steps, step)
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })

	for _, step := range steps {
		childA, ok := a.buffer[step]
		if !ok {
			childA = Empty()
		}
		childB, ok := b.buffer[step]
		if !ok {
			childB = Empty()
		}
		if err := s.diffAt(ctx, appendStep(path, step), childA, childB, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Staging) diffLeaves(ctx context.Context, path objects.Path, a, b *Tree, out *[]DiffEntry) error {
	av, am, err := s.leafValue(ctx, a)
	if err != nil {
		return err
	}
	bv, bm, err := s.leafValue(ctx, b)
	if err != nil {
		return err
	}

	aBytes, err := av.Encode()
	if err != nil {
		return err
	}
	bBytes, err := bv.Encode()
	if err != nil {
		return err
	}
	aMetaBytes, err := am.Encode()
	if err != nil {
		return err
	}
	bMetaBytes, err := bm.Encode()
	if err != nil {
		return err
	}
	if bytes.Equal(aBytes, bBytes) && bytes.Equal(aMetaBytes, bMetaBytes) {
		return nil
	}

	*out = append(*out, DiffEntry{
		Path: copyPath(path),
		Kind: DiffUpdated,
		Old:  &LeafValue{Contents: av, Metadata: am},
		New:  &LeafValue{Contents: bv, Metadata: bm},
	})
	return nil
}

func (s *Staging) collectLeaves(ctx context.Context, path objects.Path, t *Tree, added bool, out *[]DiffEntry) error {
	switch t.kind {
	case kindEmpty:
		return nil
	case kindContentsRef, kindContentsValue:
		v, m, err := s.leafValue(ctx, t)
		if err != nil {
			return err
		}
		entry := DiffEntry{Path: copyPath(path)}
		if added {
			entry.Kind = DiffAdded
			entry.New = &LeafValue{Contents: v, Metadata: m}
		} else {
			entry.Kind = DiffRemoved
			entry.Old = &LeafValue{Contents: v, Metadata: m}
		}
		*out = append(*out, entry)
		return nil
	case kindNodeHash, kindNodeBuffer:
		if err := s.ensureBuffer(ctx, t); err != nil {
			return err
		}
		for _, child := range sortedChildren(t.buffer) {
			if err := s.collectLeaves(ctx, appendStep(path, child.Step), child.Tree, added, out); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func copyPath(path objects.Path) objects.Path {
	out := make(objects.Path, len(path))
	copy(out, path)
	return out
}
