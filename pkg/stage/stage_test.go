package stage

import (
	"context"
	"testing"

	"github.com/weftdb/weft/pkg/graph"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stores"
)

type stringContents string

func (s stringContents) Encode() ([]byte, error) { return []byte(s), nil }
func (s stringContents) String() string          { return string(s) }

type stringCodec struct{}

func (stringCodec) Decode(b []byte) (objects.Contents, error) { return stringContents(b), nil }
func (stringCodec) Parse(s string) (objects.Contents, error)  { return stringContents(s), nil }
func (stringCodec) Merge(old objects.Ancestor, a, b objects.Contents) (objects.Contents, error) {
	return b, nil
}

func newStaging(t *testing.T) *Staging {
	t.Helper()
	nodeAO := kernel.NewMemStore(objects.SHA256)
	contentsAO := kernel.NewMemStore(objects.SHA256)
	ns := stores.NewNodeStore(nodeAO, objects.SHA256)
	cs := stores.NewContentsStore(contentsAO, objects.SHA256, stringCodec{})
	return New(graph.New(ns), cs, objects.RawMetadataCodec)
}

func TestStaging_SetFindFlushRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)

	tree := Empty()
	if err := s.Set(ctx, tree, objects.ParsePath("a/b"), stringContents("hi"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	found, ok, err := s.Find(ctx, tree, objects.ParsePath("a/b"))
	if err != nil || !ok {
		t.Fatalf("Find: ok=%v err=%v", ok, err)
	}
	if found.contents.(stringContents) != "hi" {
		t.Fatalf("Find: got %v, want hi", found.contents)
	}

	h, err := s.Flush(ctx, tree)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reopened := OfNodeHash(h)
	found, ok, err = s.Find(ctx, reopened, objects.ParsePath("a/b"))
	if err != nil || !ok {
		t.Fatalf("Find after reopen: ok=%v err=%v", ok, err)
	}
	if found.contents.(stringContents) != "hi" {
		t.Fatalf("Find after reopen: got %v, want hi", found.contents)
	}
}

func TestStaging_FlushIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)
	tree := Empty()
	if err := s.Set(ctx, tree, objects.ParsePath("x"), stringContents("v"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	h1, err := s.Flush(ctx, tree)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	h2, err := s.Flush(ctx, tree)
	if err != nil {
		t.Fatalf("Flush (second): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("flush(flush(t)) != flush(t): %v vs %v", h1, h2)
	}
}

func TestStaging_ConcreteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)
	tree := Empty()
	if err := s.Set(ctx, tree, objects.ParsePath("a"), stringContents("1"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, tree, objects.ParsePath("b/c"), stringContents("2"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	concrete, err := s.ToConcrete(ctx, tree)
	if err != nil {
		t.Fatalf("ToConcrete: %v", err)
	}
	back := OfConcrete(concrete)
	again, err := s.ToConcrete(ctx, back)
	if err != nil {
		t.Fatalf("ToConcrete (second): %v", err)
	}
	if !concreteEqual(concrete, again) {
		t.Fatalf("to_concrete(of_concrete(c)) != c")
	}
}

func concreteEqual(a, b Concrete) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ConcreteContents:
		ab, _ := a.Contents.Encode()
		bb, _ := b.Contents.Encode()
		return string(ab) == string(bb)
	case ConcreteNode:
		if len(a.Children) != len(b.Children) {
			return false
		}
		for step, ac := range a.Children {
			bc, ok := b.Children[step]
			if !ok || !concreteEqual(ac, bc) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func TestStaging_DiffAddedRemovedUpdated(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)

	a := Empty()
	if err := s.Set(ctx, a, objects.ParsePath("shared"), stringContents("v0"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, a, objects.ParsePath("only-a"), stringContents("gone"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	b := Empty()
	if err := s.Set(ctx, b, objects.ParsePath("shared"), stringContents("v1"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, b, objects.ParsePath("only-b"), stringContents("new"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	diffs, err := s.Diff(ctx, a, b)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	kinds := map[string]DiffKind{}
	for _, d := range diffs {
		kinds[d.Path.String()] = d.Kind
	}
	if kinds["/shared"] != DiffUpdated {
		t.Fatalf("expected /shared to be updated, got %v", kinds["/shared"])
	}
	if kinds["/only-a"] != DiffRemoved {
		t.Fatalf("expected /only-a to be removed, got %v", kinds["/only-a"])
	}
	if kinds["/only-b"] != DiffAdded {
		t.Fatalf("expected /only-b to be added, got %v", kinds["/only-b"])
	}
}

func TestStaging_DiffIdenticalTreesIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)
	a := Empty()
	if err := s.Set(ctx, a, objects.ParsePath("x"), stringContents("v"), objects.RawBytesMetadata(nil)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	h, err := s.Flush(ctx, a)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	diffs, err := s.Diff(ctx, OfNodeHash(h), OfNodeHash(h))
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(diffs) != 0 {
		t.Fatalf("Diff(same hash): expected no diffs, got %v", diffs)
	}
}

func TestStaging_RemoveIsNoopWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := newStaging(t)
	tree := Empty()
	if err := s.Remove(ctx, tree, objects.ParsePath("missing")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}
