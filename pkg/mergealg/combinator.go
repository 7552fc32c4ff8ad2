// Package mergealg is the compositional merge-combinator algebra spec §4.3
// and §9 describe: three-way functions over optional content-addressed
// keys, composable with conflict propagation. The algebra never throws —
// combinators convert failures from user code into Conflict-marked
// errors (spec §7).
package mergealg

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// Option is the merge algebra's option<Hash>: Present=false is spec's
// "none" (absent on that side, or a merge result that deletes the entry).
type Option struct {
	Hash    objects.Hash
	Present bool
}

// None is the absent Option.
func None() Option { return Option{} }

// Some wraps a present Hash.
func Some(h objects.Hash) Option { return Option{Hash: h, Present: true} }

// Combinator is a three-way merge function over optional keys (spec §4.2
// "merge-combinator", §9). ctx carries the cancellation signal spec §5
// requires every operation to accept.
type Combinator func(ctx context.Context, old, a, b Option) (Option, error)

// Identity is the trivial combinator: it never has to reconcile anything
// because it is only ever exercised with old==a==b in the identity law
// (spec §8), but is provided for composition and for combinators that
// want an inert base case.
func Identity(_ context.Context, _, a, _ Option) (Option, error) { return a, nil }

// AlwaysConflict is a combinator that always refuses to reconcile,
// useful as the final element of a Seq chain that should surface a
// conflict rather than silently pick a side.
func AlwaysConflict(reason string) Combinator {
	return func(_ context.Context, _, _, _ Option) (Option, error) {
		return Option{}, errs.WrapConflict(reason)
	}
}

// Seq returns cs[0]'s result unless it is a Conflict, in which case it
// tries cs[1], and so on — spec §8's "conflict monotonicity" law,
// `seq([k1;k2])` returns `k1`'s result unless it is a conflict. A
// non-conflict error (e.g. backend I/O) aborts the chain immediately
// rather than falling through, since only conflicts are recoverable by
// trying an alternative combinator.
func Seq(cs ...Combinator) Combinator {
	return func(ctx context.Context, old, a, b Option) (Option, error) {
		var lastErr error = errs.WrapConflict("mergealg: empty combinator sequence")
		for _, c := range cs {
			res, err := c(ctx, old, a, b)
			if err == nil {
				return res, nil
			}
			if !errs.IsConflict(err) {
				return Option{}, err
			}
			lastErr = err
		}
		return Option{}, lastErr
	}
}

// TakeOurs and TakeTheirs are the two trivial resolution strategies an
// application can append to a Seq chain instead of AlwaysConflict, when
// it would rather silently prefer one side than fail.
func TakeOurs(_ context.Context, _, a, _ Option) (Option, error)   { return a, nil }
func TakeTheirs(_ context.Context, _, _, b Option) (Option, error) { return b, nil }
