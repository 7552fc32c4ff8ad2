package stage

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// ConcreteKind discriminates a Concrete tree literal's variant.
type ConcreteKind int

const (
	ConcreteEmpty ConcreteKind = iota
	ConcreteNode
	ConcreteContents
)

// Concrete is a fully-materialised tree literal: no lazy hash-only
// references remain anywhere in it (spec §4.4 `to_concrete`/`of_concrete`).
type Concrete struct {
	Kind     ConcreteKind
	Children map[objects.Step]Concrete
	Contents objects.Contents
	Metadata objects.Metadata
}

// ToConcrete fully expands t, resolving every hash-only node and
// contents ref along the way (spec §4.4 "total materialisation").
func (s *Staging) ToConcrete(ctx context.Context, t *Tree) (Concrete, error) {
	switch t.kind {
	case kindEmpty:
		return Concrete{Kind: ConcreteEmpty}, nil
	case kindContentsRef:
		if err := s.resolveContents(ctx, t); err != nil {
			return Concrete{}, err
		}
		fallthrough
	case kindContentsValue:
		return Concrete{Kind: ConcreteContents, Contents: t.contents, Metadata: t.metadata}, nil
	case kindNodeHash, kindNodeBuffer:
		if err := s.ensureBuffer(ctx, t); err != nil {
			return Concrete{}, err
		}
		children := make(map[objects.Step]Concrete, len(t.buffer))
		for step, child := range t.buffer {
			c, err := s.ToConcrete(ctx, child)
			if err != nil {
				return Concrete{}, err
			}
			children[step] = c
		}
		return Concrete{Kind: ConcreteNode, Children: children}, nil
	}
	return Concrete{}, errs.Invalid("stage: unknown tree kind")
}

// OfConcrete is the pure, I/O-free inverse of ToConcrete: it builds a
// buffer-backed Tree that has not yet been flushed to any store.
func OfConcrete(c Concrete) *Tree {
	switch c.Kind {
	case ConcreteContents:
		return OfContentsValue(c.Contents, c.Metadata)
	case ConcreteNode:
		buf := make(map[objects.Step]*Tree, len(c.Children))
		for step, child := range c.Children {
			buf[step] = OfConcrete(child)
		}
		return &Tree{kind: kindNodeBuffer, buffer: buf}
	default:
		return Empty()
	}
}
