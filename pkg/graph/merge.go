package graph

import (
	"bytes"
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

// Merge builds the node-level merge Combinator: the per-step lift spec
// §4.3 describes. For each step present in old, a, or b, it classifies
// the step as unchanged, changed-on-one-side (kept or deleted without
// ever invoking a child merge), or changed-on-both-sides (reconciled by
// recursing into contentsMerge or this same combinator, depending on the
// entry's kind). Conflicts from a child merge propagate upward verbatim.
func (g *Graph) Merge(contentsMerge mergealg.Combinator, metaCodec objects.MetadataCodec) mergealg.Combinator {
	var self mergealg.Combinator
	self = func(ctx context.Context, old, a, b mergealg.Option) (mergealg.Option, error) {
		if a.Present == b.Present && a.Hash == b.Hash {
			return a, nil
		}

		oldNode, err := g.nodeOrEmpty(ctx, old)
		if err != nil {
			return mergealg.Option{}, errs.WrapConflict("graph: ancestor node read failed: %v", err)
		}
		aNode, err := g.nodeOrEmpty(ctx, a)
		if err != nil {
			return mergealg.Option{}, errs.WrapConflict("graph: ours node read failed: %v", err)
		}
		bNode, err := g.nodeOrEmpty(ctx, b)
		if err != nil {
			return mergealg.Option{}, errs.WrapConflict("graph: theirs node read failed: %v", err)
		}

		result := objects.EmptyNode()
		for _, step := range unionSteps(oldNode, aNode, bNode) {
			oldEntry, oldOK := oldNode.Entries[step]
			aEntry, aOK := aNode.Entries[step]
			bEntry, bOK := bNode.Entries[step]

			changedA := aOK != oldOK || (aOK && oldOK && !entryEqual(aEntry, oldEntry))
			changedB := bOK != oldOK || (bOK && oldOK && !entryEqual(bEntry, oldEntry))

			switch {
			case !changedA && !changedB:
				if oldOK {
					result.Entries[step] = oldEntry
				}
			case changedA && !changedB:
				if aOK {
					result.Entries[step] = aEntry
				}
			case !changedA && changedB:
				if bOK {
					result.Entries[step] = bEntry
				}
			default:
				merged, err := g.mergeStep(ctx, step, contentsMerge, self, metaCodec, oldEntry, oldOK, aEntry, aOK, bEntry, bOK)
				if err != nil {
					return mergealg.Option{}, err
				}
				if merged != nil {
					result.Entries[step] = *merged
				}
			}
		}

		h, err := g.store.Add(ctx, result)
		if err != nil {
			return mergealg.Option{}, err
		}
		return mergealg.Some(h), nil
	}
	return self
}

// mergeStep reconciles a single step that changed on both sides: a
// recursive node merge or a contents merge, according to kind, plus an
// independent metadata merge. Returns a nil *Entry when the merge
// deletes the step.
func (g *Graph) mergeStep(
	ctx context.Context,
	step objects.Step,
	contentsMerge, nodeMerge mergealg.Combinator,
	metaCodec objects.MetadataCodec,
	oldEntry objects.Entry, oldOK bool,
	aEntry objects.Entry, aOK bool,
	bEntry objects.Entry, bOK bool,
) (*objects.Entry, error) {
	if aOK && bOK && aEntry.Kind != bEntry.Kind {
		return nil, errs.WrapConflict("graph: %q: %v", step, objects.ErrMismatchedKind)
	}

	kind := objects.KindNode
	switch {
	case aOK:
		kind = aEntry.Kind
	case bOK:
		kind = bEntry.Kind
	case oldOK:
		kind = oldEntry.Kind
	}

	childOld := entryOption(oldEntry, oldOK)
	childA := entryOption(aEntry, aOK)
	childB := entryOption(bEntry, bOK)

	var merged mergealg.Option
	var err error
	if kind == objects.KindContents {
		merged, err = contentsMerge(ctx, childOld, childA, childB)
	} else {
		merged, err = nodeMerge(ctx, childOld, childA, childB)
	}
	if err != nil {
		return nil, errs.WrapStep(err, string(step))
	}
	if !merged.Present {
		return nil, nil
	}

	metaBytes, err := mergeMetadata(metaCodec, oldEntry.Metadata, oldOK, aEntry.Metadata, aOK, bEntry.Metadata, bOK)
	if err != nil {
		return nil, errs.WrapConflict("graph: %q: metadata merge failed: %v", step, err)
	}
	return &objects.Entry{Kind: kind, Hash: merged.Hash, Metadata: metaBytes}, nil
}

func (g *Graph) nodeOrEmpty(ctx context.Context, o mergealg.Option) (objects.Node, error) {
	if !o.Present {
		return objects.EmptyNode(), nil
	}
	return g.store.Get(ctx, o.Hash)
}

func entryOption(e objects.Entry, ok bool) mergealg.Option {
	if !ok {
		return mergealg.None()
	}
	return mergealg.Some(e.Hash)
}

func entryEqual(x, y objects.Entry) bool {
	return x.Kind == y.Kind && x.Hash == y.Hash && bytes.Equal(x.Metadata, y.Metadata)
}

func mergeMetadata(codec objects.MetadataCodec, oldB []byte, oldOK bool, aB []byte, aOK bool, bB []byte, bOK bool) ([]byte, error) {
	var oldM, aM, bM objects.Metadata
	var err error
	if oldOK {
		if oldM, err = codec.Decode(oldB); err != nil {
			return nil, err
		}
	}
	if aOK {
		if aM, err = codec.Decode(aB); err != nil {
			return nil, err
		}
	}
	if bOK {
		if bM, err = codec.Decode(bB); err != nil {
			return nil, err
		}
	}
	merged, err := codec.Merge(oldM, aM, bM)
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return nil, nil
	}
	return merged.Encode()
}
