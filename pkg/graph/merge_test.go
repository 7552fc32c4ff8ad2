package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

func failIfCalled(t *testing.T) mergealg.Combinator {
	return func(_ context.Context, _, _, _ mergealg.Option) (mergealg.Option, error) {
		t.Fatalf("contents merge should not be invoked for an independent, single-sided change")
		return mergealg.Option{}, nil
	}
}

func TestMerge_IndependentChangesCommute(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)

	base, _ := g.Empty(ctx)
	base, _ = g.Update(ctx, base, objects.ParsePath("shared"), contentsEntry(t, g, "s"))

	ours, err := g.Update(ctx, base, objects.ParsePath("ours-only"), contentsEntry(t, g, "o"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	theirs, err := g.Update(ctx, base, objects.ParsePath("theirs-only"), contentsEntry(t, g, "t"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	merge := g.Merge(failIfCalled(t), objects.RawMetadataCodec)
	result, err := merge(ctx, mergealg.Some(base), mergealg.Some(ours), mergealg.Some(theirs))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !result.Present {
		t.Fatalf("Merge: expected a present result")
	}

	for _, path := range []string{"shared", "ours-only", "theirs-only"} {
		if _, ok, err := g.Find(ctx, result.Hash, objects.ParsePath(path)); err != nil || !ok {
			t.Fatalf("Find(%q): ok=%v err=%v", path, ok, err)
		}
	}
}

func TestMerge_DeletedUnchangedIsDeleted(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)

	base, _ := g.Empty(ctx)
	base, _ = g.Update(ctx, base, objects.ParsePath("x"), contentsEntry(t, g, "v"))

	ours, err := g.Remove(ctx, base, objects.ParsePath("x"))
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}

	merge := g.Merge(failIfCalled(t), objects.RawMetadataCodec)
	result, err := merge(ctx, mergealg.Some(base), mergealg.Some(ours), mergealg.Some(base))
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, ok, err := g.Find(ctx, result.Hash, objects.ParsePath("x")); err != nil || ok {
		t.Fatalf("Find(x): expected deletion to survive merge, ok=%v err=%v", ok, err)
	}
}

func TestMerge_ConflictPropagatesUpward(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)

	base, _ := g.Empty(ctx)
	base, _ = g.Update(ctx, base, objects.ParsePath("x"), contentsEntry(t, g, "v0"))
	ours, _ := g.Update(ctx, base, objects.ParsePath("x"), contentsEntry(t, g, "v1"))
	theirs, _ := g.Update(ctx, base, objects.ParsePath("x"), contentsEntry(t, g, "v2"))

	merge := g.Merge(mergealg.AlwaysConflict("graph_test: irreconcilable"), objects.RawMetadataCodec)
	_, err := merge(ctx, mergealg.Some(base), mergealg.Some(ours), mergealg.Some(theirs))
	if err == nil {
		t.Fatalf("Merge: expected a conflict error")
	}
	if !errs.IsConflict(err) {
		t.Fatalf("Merge: expected a Conflict-marked error, got %v", err)
	}
	if !strings.Contains(err.Error(), "/x") {
		t.Fatalf("Merge: expected the conflict message to contain the path /x, got %v", err)
	}
}

func TestMerge_MismatchedKindConflict(t *testing.T) {
	ctx := context.Background()
	g := newGraph(t)

	base, _ := g.Empty(ctx)
	base, _ = g.Update(ctx, base, objects.ParsePath("x"), contentsEntry(t, g, "v0"))

	ours, _ := g.Update(ctx, base, objects.ParsePath("x"), contentsEntry(t, g, "v1"))

	subtree, _ := g.Empty(ctx)
	subtree, _ = g.Update(ctx, subtree, objects.ParsePath("nested"), contentsEntry(t, g, "n"))
	theirsNode, err := g.store.Add(ctx, mustGetNode(ctx, t, g, base).With("x", objects.Entry{Kind: objects.KindNode, Hash: subtree}))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	merge := g.Merge(mergealg.TakeOurs, objects.RawMetadataCodec)
	_, err = merge(ctx, mergealg.Some(base), mergealg.Some(ours), mergealg.Some(theirsNode))
	if err == nil {
		t.Fatalf("Merge: expected a kind-mismatch conflict")
	}
	if !errs.IsConflict(err) {
		t.Fatalf("Merge: expected a Conflict-marked error, got %v", err)
	}
}

func mustGetNode(ctx context.Context, t *testing.T, g *Graph, h objects.Hash) objects.Node {
	t.Helper()
	n, err := g.store.Get(ctx, h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return n
}
