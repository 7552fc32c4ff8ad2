package stores

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
)

// NodeStore is the typed store for Node objects. Its merge lifting lives
// in pkg/graph, since the per-step merge discipline (spec §4.3) needs the
// recursive node-graph machinery, not just a read/merge/write wrapper.
type NodeStore struct {
	ao     kernel.AO
	hasher objects.Hasher
}

// NewNodeStore builds a NodeStore over ao, addressed with hasher.
func NewNodeStore(ao kernel.AO, hasher objects.Hasher) *NodeStore {
	return &NodeStore{ao: ao, hasher: hasher}
}

// Hasher exposes the configured Hasher for callers (pkg/graph) that need
// to pre-compute a hash without a round trip through Add.
func (s *NodeStore) Hasher() objects.Hasher { return s.hasher }

// Add inserts n, returning its content-addressed key.
func (s *NodeStore) Add(ctx context.Context, n objects.Node) (objects.Hash, error) {
	b, err := n.Encode()
	if err != nil {
		return objects.Hash{}, errs.Invalid("node store: encode: %v", err)
	}
	h, err := s.ao.Add(ctx, b)
	if err != nil {
		return objects.Hash{}, errs.WrapBackend(err, "node store: add")
	}
	return h, nil
}

// Get retrieves and decodes a Node by hash, or a NotFound-marked error.
func (s *NodeStore) Get(ctx context.Context, h objects.Hash) (objects.Node, error) {
	b, ok, err := s.ao.Find(ctx, h.String())
	if err != nil {
		return objects.Node{}, errs.WrapBackend(err, "node store: find")
	}
	if !ok {
		return objects.Node{}, errs.NotFoundErr("node " + h.String())
	}
	return objects.DecodeNode(b)
}
