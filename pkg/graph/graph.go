// Package graph implements the L3 node-graph operations spec §4.3
// describes: hash-consed construction, path navigation, copy-on-write
// update/remove, and reachability closure over the node DAG. Node merge
// (the per-step lift) lives in merge.go, alongside this package because
// it needs the same read/write access to the node store.
package graph

import (
	"context"
	"sort"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stores"
)

// Graph is a repository-scoped handle over a NodeStore (spec §4.3).
type Graph struct {
	store *stores.NodeStore
}

// New wraps store as a Graph.
func New(store *stores.NodeStore) *Graph { return &Graph{store: store} }

// Empty creates (hash-conses) the empty node and returns its key.
func (g *Graph) Empty(ctx context.Context) (objects.Hash, error) {
	return g.store.Add(ctx, objects.EmptyNode())
}

// V hash-conses a node from the given entries ("v" for "value", spec
// §4.3's node constructor).
func (g *Graph) V(ctx context.Context, entries map[objects.Step]objects.Entry) (objects.Hash, error) {
	n := objects.EmptyNode()
	for s, e := range entries {
		n.Entries[s] = e
	}
	return g.store.Add(ctx, n)
}

// ListEntry is one (step, entry) pair returned by List, in canonical
// byte-lex step order.
type ListEntry struct {
	Step  objects.Step
	Entry objects.Entry
}

// List reads one node's entries.
func (g *Graph) List(ctx context.Context, n objects.Hash) ([]ListEntry, error) {
	node, err := g.store.Get(ctx, n)
	if err != nil {
		return nil, err
	}
	raw := node.List()
	out := make([]ListEntry, len(raw))
	for i, r := range raw {
		out[i] = ListEntry{Step: r.Step, Entry: r.Entry}
	}
	return out, nil
}

// Found is the result of Find: an empty Path addresses n itself
// (spec §4.3: "empty path yields some(node=n)").
type Found struct {
	Entry objects.Entry
}

// Find walks path from n, returning (entry, true) or (Found{}, false) for
// "none". A contents entry found before the path is exhausted yields
// none (spec §4.3).
func (g *Graph) Find(ctx context.Context, n objects.Hash, path objects.Path) (Found, bool, error) {
	if path.IsRoot() {
		return Found{Entry: objects.Entry{Kind: objects.KindNode, Hash: n}}, true, nil
	}
	node, err := g.store.Get(ctx, n)
	if err != nil {
		return Found{}, false, err
	}
	step := path[0]
	entry, ok := node.Entries[step]
	if !ok {
		return Found{}, false, nil
	}
	if len(path) == 1 {
		return Found{Entry: entry}, true, nil
	}
	if entry.Kind != objects.KindNode {
		return Found{}, false, nil
	}
	return g.Find(ctx, entry.Hash, path[1:])
}

// Update performs the copy-on-write path update spec §4.3 describes:
// rehashing every ancestor from the modified leaf back to the root.
// The empty path is rejected (spec invariant 5: the root cannot be
// contents, and there is no sense in which a bare node "replaces itself"
// through Update).
func (g *Graph) Update(ctx context.Context, n objects.Hash, path objects.Path, entry objects.Entry) (objects.Hash, error) {
	if path.IsRoot() {
		return objects.Hash{}, errs.Invalid("graph: update requires a non-empty path")
	}
	return g.updateAt(ctx, n, path, entry)
}

func (g *Graph) updateAt(ctx context.Context, n objects.Hash, path objects.Path, entry objects.Entry) (objects.Hash, error) {
	node, err := g.store.Get(ctx, n)
	if err != nil {
		return objects.Hash{}, err
	}
	step := path[0]
	if len(path) == 1 {
		return g.store.Add(ctx, node.With(step, entry))
	}

	childHash := n
	if existing, ok := node.Entries[step]; ok && existing.Kind == objects.KindNode {
		childHash = existing.Hash
	} else {
		childHash, err = g.Empty(ctx)
		if err != nil {
			return objects.Hash{}, err
		}
	}

	newChild, err := g.updateAt(ctx, childHash, path[1:], entry)
	if err != nil {
		return objects.Hash{}, err
	}
	return g.store.Add(ctx, node.With(step, objects.Entry{Kind: objects.KindNode, Hash: newChild}))
}

// Remove deletes path from the tree rooted at n; removing an absent path
// is a no-op that returns n unchanged (spec §4.3).
func (g *Graph) Remove(ctx context.Context, n objects.Hash, path objects.Path) (objects.Hash, error) {
	if path.IsRoot() {
		return objects.Hash{}, errs.Invalid("graph: remove requires a non-empty path")
	}
	return g.removeAt(ctx, n, path)
}

func (g *Graph) removeAt(ctx context.Context, n objects.Hash, path objects.Path) (objects.Hash, error) {
	node, err := g.store.Get(ctx, n)
	if err != nil {
		return objects.Hash{}, err
	}
	step := path[0]

	if len(path) == 1 {
		if _, ok := node.Entries[step]; !ok {
			return n, nil
		}
		return g.store.Add(ctx, node.Without(step))
	}

	child, ok := node.Entries[step]
	if !ok || child.Kind != objects.KindNode {
		return n, nil
	}
	newChild, err := g.removeAt(ctx, child.Hash, path[1:])
	if err != nil {
		return objects.Hash{}, err
	}
	if newChild == child.Hash {
		return n, nil
	}
	return g.store.Add(ctx, node.With(step, objects.Entry{Kind: objects.KindNode, Hash: newChild}))
}

// Closure returns every node reachable from any hash in max, excluding
// the strict subtree of any hash in min; both endpoints are themselves
// included (spec §4.3).
func (g *Graph) Closure(ctx context.Context, min, max []objects.Hash) (map[objects.Hash]objects.Node, error) {
	minSet := make(map[objects.Hash]bool, len(min))
	for _, h := range min {
		minSet[h] = true
	}

	result := map[objects.Hash]objects.Node{}
	visited := map[objects.Hash]bool{}

	var visit func(h objects.Hash) error
	visit = func(h objects.Hash) error {
		if visited[h] {
			return nil
		}
		visited[h] = true
		n, err := g.store.Get(ctx, h)
		if err != nil {
			return err
		}
		result[h] = n
		if minSet[h] {
			return nil
		}
		for _, e := range n.Entries {
			if e.Kind == objects.KindNode {
				if err := visit(e.Hash); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, h := range max {
		if err := visit(h); err != nil {
			return nil, err
		}
	}
	for _, h := range min {
		if _, ok := result[h]; ok {
			continue
		}
		n, err := g.store.Get(ctx, h)
		if err != nil {
			return nil, err
		}
		result[h] = n
	}
	return result, nil
}

// unionSteps returns the sorted union of steps across nodes, the
// canonical enumeration order spec §4.3's tie-break rule requires.
func unionSteps(nodes ...objects.Node) []objects.Step {
	seen := map[objects.Step]bool{}
	var steps []objects.Step
	for _, n := range nodes {
		for s := range n.Entries {
			if !seen[s] {
				seen[s] = true
				steps = append(steps, s)
			}
		}
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}
