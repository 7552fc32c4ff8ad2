// Package stage implements the L4 tree staging layer spec §4.4
// describes: an in-memory, lazily-materialised partial mirror of a
// commit's tree that coalesces reads and writes before a bottom-up
// flush persists them through L2's node and contents stores.
package stage

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/graph"
	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stores"
)

type kind int

const (
	kindEmpty kind = iota
	kindNodeHash
	kindNodeBuffer
	kindContentsRef
	kindContentsValue
)

// Tree is spec §4.4's variant: empty, node(hash|buffer), or
// contents(value, metadata). A node with a hash has not been touched
// since it was read or last flushed; a node with a buffer holds pending
// edits (or a cached expansion of one on-disk level). A contents leaf
// read from the store but not yet dereferenced stays a ref (hash plus
// raw metadata bytes) until something asks for its value.
type Tree struct {
	kind kind

	nodeHash objects.Hash
	buffer   map[objects.Step]*Tree

	contentsHash objects.Hash
	metaBytes    []byte

	contents objects.Contents
	metadata objects.Metadata
}

// Empty returns a fresh empty tree.
func Empty() *Tree { return &Tree{kind: kindEmpty} }

// OfNodeHash wraps an already-persisted node as an unmaterialised tree.
func OfNodeHash(h objects.Hash) *Tree { return &Tree{kind: kindNodeHash, nodeHash: h} }

// OfContentsValue wraps an in-memory value not yet written to a store.
func OfContentsValue(v objects.Contents, m objects.Metadata) *Tree {
	return &Tree{kind: kindContentsValue, contents: v, metadata: m}
}

// IsEmpty reports whether t is the empty variant.
func (t *Tree) IsEmpty() bool { return t.kind == kindEmpty }

// IsNode reports whether t is currently node-shaped (hash-only or
// buffered), without forcing any IO.
func (t *Tree) IsNode() bool { return t.kind == kindNodeHash || t.kind == kindNodeBuffer }

// IsContents reports whether t is a contents leaf, resolved or not,
// without forcing any IO.
func (t *Tree) IsContents() bool { return t.kind == kindContentsRef || t.kind == kindContentsValue }

// IsContentsShaped is IsContents under the name callers reaching for a
// shape, rather than a resolution state, read more naturally.
func (t *Tree) IsContentsShaped() bool { return t.IsContents() }

// Contents returns t's value and metadata, resolving an unread ref
// against the contents store first if needed. ok is false when t is not
// a contents leaf (kindEmpty or a node).
func (s *Staging) Contents(ctx context.Context, t *Tree) (objects.Contents, objects.Metadata, bool, error) {
	if !t.IsContents() {
		return nil, nil, false, nil
	}
	v, m, err := s.leafValue(ctx, t)
	if err != nil {
		return nil, nil, false, err
	}
	return v, m, true, nil
}

// Staging is a repository-scoped handle that knows how to read pending
// trees against, and flush them into, the node and contents stores.
type Staging struct {
	nodes     *graph.Graph
	contents  *stores.ContentsStore
	metaCodec objects.MetadataCodec
}

// New builds a Staging handle over the given node graph and contents
// store, decoding entry metadata with metaCodec.
func New(nodes *graph.Graph, contents *stores.ContentsStore, metaCodec objects.MetadataCodec) *Staging {
	return &Staging{nodes: nodes, contents: contents, metaCodec: metaCodec}
}

// ensureBuffer converts t in place into a kindNodeBuffer: a hash-only
// node is expanded one level (its children stay hash-only or ref-only,
// lazily, per spec §4.4); empty or contents trees become a fresh,
// initially-empty buffer, mirroring the node graph's own permissive
// copy-on-write policy of silently replacing whatever was at a step
// that a write needs to descend through.
func (s *Staging) ensureBuffer(ctx context.Context, t *Tree) error {
	switch t.kind {
	case kindNodeBuffer:
		return nil
	case kindEmpty, kindContentsRef, kindContentsValue:
		t.kind = kindNodeBuffer
		t.buffer = map[objects.Step]*Tree{}
		t.contents, t.metadata = nil, nil
		t.contentsHash, t.metaBytes = objects.Hash{}, nil
		return nil
	case kindNodeHash:
		entries, err := s.nodes.List(ctx, t.nodeHash)
		if err != nil {
			return err
		}
		buf := make(map[objects.Step]*Tree, len(entries))
		for _, e := range entries {
			if e.Entry.Kind == objects.KindNode {
				buf[e.Step] = OfNodeHash(e.Entry.Hash)
			} else {
				buf[e.Step] = &Tree{kind: kindContentsRef, contentsHash: e.Entry.Hash, metaBytes: e.Entry.Metadata}
			}
		}
		t.kind = kindNodeBuffer
		t.buffer = buf
		t.nodeHash = objects.Hash{}
		return nil
	}
	return nil
}

// resolveContents fetches a contents ref's value, turning it into a
// resolved contents leaf in place.
func (s *Staging) resolveContents(ctx context.Context, t *Tree) error {
	if t.kind != kindContentsRef {
		return nil
	}
	v, err := s.contents.Get(ctx, t.contentsHash)
	if err != nil {
		return err
	}
	m, err := s.metaCodec.Decode(t.metaBytes)
	if err != nil {
		return err
	}
	t.kind = kindContentsValue
	t.contents = v
	t.metadata = m
	t.contentsHash = objects.Hash{}
	t.metaBytes = nil
	return nil
}

func (s *Staging) leafValue(ctx context.Context, t *Tree) (objects.Contents, objects.Metadata, error) {
	if t.kind == kindContentsRef {
		if err := s.resolveContents(ctx, t); err != nil {
			return nil, nil, err
		}
	}
	meta := t.metadata
	if meta == nil {
		meta = s.metaCodec.Default()
	}
	return t.contents, meta, nil
}

// Find walks path from t, lazily materialising any hash-only node it
// passes through. The empty path returns t itself (spec §4.3's node
// rule, carried unchanged to the staging layer). A contents leaf found
// before the path is exhausted yields not-found.
func (s *Staging) Find(ctx context.Context, t *Tree, path objects.Path) (*Tree, bool, error) {
	if path.IsRoot() {
		return t, true, nil
	}
	switch t.kind {
	case kindNodeHash:
		if err := s.ensureBuffer(ctx, t); err != nil {
			return nil, false, err
		}
	case kindNodeBuffer:
	default:
		return nil, false, nil
	}

	step := path[0]
	child, ok := t.buffer[step]
	if !ok {
		return nil, false, nil
	}
	if len(path) == 1 {
		if child.kind == kindContentsRef {
			if err := s.resolveContents(ctx, child); err != nil {
				return nil, false, err
			}
		}
		return child, true, nil
	}
	return s.Find(ctx, child, path[1:])
}

// Child is one (step, subtree) pair returned by List.
type Child struct {
	Step objects.Step
	Tree *Tree
}

// List reads one node level, in canonical byte-lex step order.
func (s *Staging) List(ctx context.Context, t *Tree) ([]Child, error) {
	if t.kind == kindNodeHash {
		if err := s.ensureBuffer(ctx, t); err != nil {
			return nil, err
		}
	}
	if t.kind != kindNodeBuffer {
		return nil, nil
	}
	return sortedChildren(t.buffer), nil
}

// Set writes value/metadata at path, copy-on-write through t's buffer
// chain; the empty path is rejected (spec invariant 5).
func (s *Staging) Set(ctx context.Context, t *Tree, path objects.Path, value objects.Contents, metadata objects.Metadata) error {
	if path.IsRoot() {
		return errs.Invalid("stage: set requires a non-empty path")
	}
	return s.setAt(ctx, t, path, value, metadata)
}

func (s *Staging) setAt(ctx context.Context, t *Tree, path objects.Path, value objects.Contents, metadata objects.Metadata) error {
	if err := s.ensureBuffer(ctx, t); err != nil {
		return err
	}
	step := path[0]
	if len(path) == 1 {
		t.buffer[step] = OfContentsValue(value, metadata)
		return nil
	}
	child, ok := t.buffer[step]
	if !ok {
		child = Empty()
		t.buffer[step] = child
	}
	return s.setAt(ctx, child, path[1:], value, metadata)
}

// Remove deletes path from t's buffer chain; removing an absent path
// (or one that passes through a non-node) is a no-op.
func (s *Staging) Remove(ctx context.Context, t *Tree, path objects.Path) error {
	if path.IsRoot() {
		return errs.Invalid("stage: remove requires a non-empty path")
	}
	return s.removeAt(ctx, t, path)
}

func (s *Staging) removeAt(ctx context.Context, t *Tree, path objects.Path) error {
	switch t.kind {
	case kindNodeHash:
		if err := s.ensureBuffer(ctx, t); err != nil {
			return err
		}
	case kindNodeBuffer:
	default:
		return nil
	}

	step := path[0]
	child, ok := t.buffer[step]
	if !ok {
		return nil
	}
	if len(path) == 1 {
		delete(t.buffer, step)
		return nil
	}
	return s.removeAt(ctx, child, path[1:])
}
