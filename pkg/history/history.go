// Package history implements the L3 commit-history engine spec §4.3
// describes: lowest-common-ancestor search, three-way commit merging,
// fast-forward detection, and bounded DAG traversal. The engine keeps no
// separate graph structure; it walks `parents` edges on demand.
package history

import (
	"context"
	"sort"

	"github.com/weftdb/weft/pkg/objects"
	"github.com/weftdb/weft/pkg/stores"
)

// Engine is a repository-scoped handle over a CommitStore.
type Engine struct {
	commits *stores.CommitStore
}

// New wraps commits as an Engine.
func New(commits *stores.CommitStore) *Engine { return &Engine{commits: commits} }

// Bound is a traversal-bound outcome: spec §7 treats these as values, not
// errors ("max-depth-reached, too-many-lcas; returned as values").
type Bound int

const (
	// BoundNone means the search completed within its limits.
	BoundNone Bound = iota
	// MaxDepthReached means exploration hit the depth cap before the
	// search could conclude; the result is incomplete.
	MaxDepthReached
	// TooManyLCAs means the lowest-candidate set exceeded the caller's
	// requested bound n.
	TooManyLCAs
)

// LCAResult is the outcome of LCAs: either a definitive candidate set
// (Bound == BoundNone) or a bound that prevented one.
type LCAResult struct {
	Commits []objects.Hash
	Bound   Bound
}

// LCAs computes the lowest common ancestors of c1 and c2 (spec §4.3):
// breadth-first from both sides, marking a commit once seen by each
// side; a commit seen from both is a candidate; a candidate with no
// descendant among the candidates is lowest. maxDepth <= 0 means
// unlimited; n <= 0 means unbounded.
func (e *Engine) LCAs(ctx context.Context, c1, c2 objects.Hash, maxDepth, n int) (LCAResult, error) {
	seenA := map[objects.Hash]struct{}{}
	seenB := map[objects.Hash]struct{}{}

	truncatedA, err := e.bfsAncestors(ctx, c1, maxDepth, seenA)
	if err != nil {
		return LCAResult{}, err
	}
	truncatedB, err := e.bfsAncestors(ctx, c2, maxDepth, seenB)
	if err != nil {
		return LCAResult{}, err
	}
	if truncatedA || truncatedB {
		return LCAResult{Bound: MaxDepthReached}, nil
	}

	var candidates []objects.Hash
	for h := range seenA {
		if _, ok := seenB[h]; ok {
			candidates = append(candidates, h)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Less(candidates[j]) })

	lowest, err := e.filterLowest(ctx, candidates)
	if err != nil {
		return LCAResult{}, err
	}

	if n > 0 && len(lowest) > n {
		return LCAResult{Bound: TooManyLCAs}, nil
	}
	return LCAResult{Commits: lowest}, nil
}

// bfsAncestors walks start's ancestry (inclusive of start), recording
// every visited hash in seen. It returns true if the depth cap stopped
// the walk before every ancestor at the boundary had been explored.
func (e *Engine) bfsAncestors(ctx context.Context, start objects.Hash, maxDepth int, seen map[objects.Hash]struct{}) (bool, error) {
	type item struct {
		h objects.Hash
		d int
	}
	visited := map[objects.Hash]bool{}
	queue := []item{{start, 0}}
	truncated := false

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if visited[it.h] {
			continue
		}
		visited[it.h] = true
		seen[it.h] = struct{}{}

		c, err := e.commits.Get(ctx, it.h)
		if err != nil {
			return false, err
		}
		if maxDepth > 0 && it.d >= maxDepth {
			if len(c.Parents) > 0 {
				truncated = true
			}
			continue
		}
		for _, p := range c.Parents {
			if !visited[p] {
				queue = append(queue, item{p, it.d + 1})
			}
		}
	}
	return truncated, nil
}

// filterLowest drops any candidate that is a strict ancestor of another
// candidate, leaving only those with no descendant in the set.
func (e *Engine) filterLowest(ctx context.Context, candidates []objects.Hash) ([]objects.Hash, error) {
	keep := make([]bool, len(candidates))
	for i := range keep {
		keep[i] = true
	}
	for i, ci := range candidates {
		for j, cj := range candidates {
			if i == j {
				continue
			}
			isAncestor, err := e.IsAncestor(ctx, ci, cj)
			if err != nil {
				return nil, err
			}
			if isAncestor {
				keep[i] = false
			}
		}
	}
	var out []objects.Hash
	for i, c := range candidates {
		if keep[i] {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsAncestor reports whether ancestor is a strict ancestor of descendant
// (a commit is never its own strict ancestor).
func (e *Engine) IsAncestor(ctx context.Context, ancestor, descendant objects.Hash) (bool, error) {
	if ancestor == descendant {
		return false, nil
	}
	visited := map[objects.Hash]bool{}
	queue := []objects.Hash{descendant}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if visited[h] {
			continue
		}
		visited[h] = true
		c, err := e.commits.Get(ctx, h)
		if err != nil {
			return false, err
		}
		for _, p := range c.Parents {
			if p == ancestor {
				return true, nil
			}
			if !visited[p] {
				queue = append(queue, p)
			}
		}
	}
	return false, nil
}

// FastForward reports whether head is a strict ancestor of target (spec
// §4.3, GLOSSARY): the store-handle layer uses this to decide whether a
// branch update can skip creating a merge commit.
func (e *Engine) FastForward(ctx context.Context, head, target objects.Hash) (bool, error) {
	return e.IsAncestor(ctx, head, target)
}

// History returns the commit-DAG reachable from max, truncated at depth
// and at any commit in min (spec §4.3 `history(depth?, min?, max?)`).
// depth <= 0 means unlimited. The result includes both endpoints, in
// breadth-first discovery order.
func (e *Engine) History(ctx context.Context, max, min []objects.Hash, depth int) ([]objects.Hash, error) {
	minSet := make(map[objects.Hash]bool, len(min))
	for _, h := range min {
		minSet[h] = true
	}

	type item struct {
		h objects.Hash
		d int
	}
	visited := map[objects.Hash]bool{}
	var order []objects.Hash
	queue := make([]item, 0, len(max))
	for _, h := range max {
		queue = append(queue, item{h, 0})
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if visited[it.h] {
			continue
		}
		visited[it.h] = true
		order = append(order, it.h)

		if minSet[it.h] {
			continue
		}
		if depth > 0 && it.d >= depth {
			continue
		}
		c, err := e.commits.Get(ctx, it.h)
		if err != nil {
			return nil, err
		}
		for _, p := range c.Parents {
			if !visited[p] {
				queue = append(queue, item{p, it.d + 1})
			}
		}
	}
	return order, nil
}
