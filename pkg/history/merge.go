package history

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

// ThreeWayMerge computes lcas(a,b), reduces them to a single virtual
// ancestor by pairwise three-way merging, runs nodeMerge over the two
// branch trees against that ancestor, and wraps a successful result in a
// new commit with parents [a; b] and the supplied task (spec §4.3). a is
// the "into" branch; its position is preserved in the result's parent
// order (spec §9's open-question resolution — never silently normalised).
func (e *Engine) ThreeWayMerge(ctx context.Context, a, b objects.Hash, task objects.Task, nodeMerge mergealg.Combinator, maxDepth, maxLCAs int) (objects.Hash, error) {
	lcaResult, err := e.LCAs(ctx, a, b, maxDepth, maxLCAs)
	if err != nil {
		return objects.Hash{}, err
	}
	switch lcaResult.Bound {
	case MaxDepthReached:
		return objects.Hash{}, errs.WrapConflict("history: lowest-common-ancestor search exceeded its depth limit")
	case TooManyLCAs:
		return objects.Hash{}, errs.WrapConflict("history: too many lowest common ancestors")
	}

	ancestor, err := e.reduceAncestors(ctx, lcaResult.Commits, task, nodeMerge)
	if err != nil {
		return objects.Hash{}, err
	}

	commitMerge := e.commits.Merge(task, nodeMerge)
	result, err := commitMerge(ctx, ancestor, mergealg.Some(a), mergealg.Some(b))
	if err != nil {
		return objects.Hash{}, err
	}
	if !result.Present {
		return objects.Hash{}, errs.WrapConflict("history: merge produced no commit")
	}
	return result.Hash, nil
}

// reduceAncestors folds a set of lowest common ancestors down to a
// single virtual ancestor commit by pairwise three-way merging, left to
// right: each pair is merged with ThreeWayMerge itself (so against the
// pair's own reduced common ancestor), recorded with task as each
// intermediate merge's provenance. Zero LCAs yields the absent ancestor
// (a merge with no common history); one yields itself unchanged.
func (e *Engine) reduceAncestors(ctx context.Context, lcas []objects.Hash, task objects.Task, nodeMerge mergealg.Combinator) (mergealg.Option, error) {
	if len(lcas) == 0 {
		return mergealg.None(), nil
	}

	acc := lcas[0]
	for _, next := range lcas[1:] {
		merged, err := e.ThreeWayMerge(ctx, acc, next, task, nodeMerge, 0, 0)
		if err != nil {
			return mergealg.Option{}, err
		}
		acc = merged
	}
	return mergealg.Some(acc), nil
}
