package stores

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
)

// BranchStore is L1's RW directly (spec §4.2: "Branch store is L1's RW
// directly (no hashing required; keys are user-visible names)"), typed
// to hold commit hashes and to enforce branch-name validity on writes.
// It does not create the default branch or treat it specially.
type BranchStore struct {
	rw kernel.RW
}

// NewBranchStore wraps rw as a BranchStore.
func NewBranchStore(rw kernel.RW) *BranchStore { return &BranchStore{rw: rw} }

// Get returns the commit hash name points to.
func (s *BranchStore) Get(ctx context.Context, name string) (objects.Hash, bool, error) {
	b, ok, err := s.rw.Find(ctx, name)
	if err != nil {
		return objects.Hash{}, false, errs.WrapBackend(err, "branch store: find")
	}
	if !ok {
		return objects.Hash{}, false, nil
	}
	h, err := objects.HashFromHex(string(b))
	if err != nil {
		return objects.Hash{}, false, errs.WrapBackend(err, "branch store: corrupt ref")
	}
	return h, true, nil
}

// Set points name at commit, validating the name first (spec invariant 4:
// "every branch value is a commit hash present in the commit store" is
// enforced by callers that only pass hashes they already inserted).
func (s *BranchStore) Set(ctx context.Context, name string, commit objects.Hash) error {
	if err := objects.ValidateBranchName(name); err != nil {
		return errs.Invalid("branch store: %v", err)
	}
	return errs.WrapBackend(s.rw.Set(ctx, name, []byte(commit.String())), "branch store: set")
}

// TestAndSet performs the linearisable CAS a branch-head update relies on
// (spec §5: "set(head) and test_and_set(head) on a branch are
// linearisable").
func (s *BranchStore) TestAndSet(ctx context.Context, name string, test objects.Hash, testPresent bool, set objects.Hash, setPresent bool) (bool, error) {
	if err := objects.ValidateBranchName(name); err != nil {
		return false, errs.Invalid("branch store: %v", err)
	}
	var testBytes, setBytes []byte
	if testPresent {
		testBytes = []byte(test.String())
	}
	if setPresent {
		setBytes = []byte(set.String())
	}
	ok, err := s.rw.TestAndSet(ctx, name, testBytes, setBytes, testPresent, setPresent)
	if err != nil {
		return false, errs.WrapBackend(err, "branch store: test-and-set")
	}
	return ok, nil
}

// Remove destroys a branch (spec §3: "Branches are ... destroyed by
// remove").
func (s *BranchStore) Remove(ctx context.Context, name string) error {
	return errs.WrapBackend(s.rw.Remove(ctx, name), "branch store: remove")
}

// List returns every branch name currently pointing at a commit.
func (s *BranchStore) List(ctx context.Context) ([]string, error) {
	names, err := s.rw.List(ctx)
	if err != nil {
		return nil, errs.WrapBackend(err, "branch store: list")
	}
	return names, nil
}
