package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weftdb/weft/pkg/config"
	"github.com/weftdb/weft/pkg/mergealg"
	"github.com/weftdb/weft/pkg/objects"
)

type stringContents string

func (s stringContents) Encode() ([]byte, error) { return []byte(s), nil }
func (s stringContents) String() string          { return string(s) }

type lastWriterCodec struct{}

func (lastWriterCodec) Decode(b []byte) (objects.Contents, error) { return stringContents(b), nil }
func (lastWriterCodec) Parse(s string) (objects.Contents, error)  { return stringContents(s), nil }
func (lastWriterCodec) Merge(old objects.Ancestor, a, b objects.Contents) (objects.Contents, error) {
	if b != nil {
		return b, nil
	}
	return a, nil
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Open(context.Background(), config.New(), lastWriterCodec{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })
	return r
}

func mustSet(t *testing.T, h *StoreHandle, path string, value string) objects.Hash {
	t.Helper()
	commit, err := h.Set(context.Background(), objects.Task{Owner: "tester"}, objects.ParsePath(path), nil, stringContents(value))
	require.NoError(t, err)
	return commit
}

func TestSetAndGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	h := Master(r)

	mustSet(t, h, "a/b", "hello")

	v, err := h.Get(ctx, objects.ParsePath("a/b"))
	require.NoError(t, err)
	require.Equal(t, stringContents("hello"), v)

	kind, err := h.Kind(ctx, objects.ParsePath("a"))
	require.NoError(t, err)
	require.Equal(t, KindNode, kind)

	kind, err = h.Kind(ctx, objects.ParsePath("a/b"))
	require.NoError(t, err)
	require.Equal(t, KindContents, kind)

	kind, err = h.Kind(ctx, objects.ParsePath("missing"))
	require.NoError(t, err)
	require.Equal(t, KindAbsent, kind)
}

func TestGet_AbsentIsError(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	h := Master(r)

	_, err := h.Get(ctx, objects.ParsePath("nope"))
	require.Error(t, err)
}

func TestSet_FirstCommitHasNoParents(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	h := Master(r)

	commit := mustSet(t, h, "x", "1")

	task, ok, err := r.TaskOfCommit(ctx, commit)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tester", task.Owner)

	c, err := r.commits.Get(ctx, commit)
	require.NoError(t, err)
	require.Empty(t, c.Parents)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	h := Master(r)

	mustSet(t, h, "a", "1")
	_, err := h.Remove(ctx, objects.Task{Owner: "tester"}, objects.ParsePath("a"))
	require.NoError(t, err)

	ok, err := h.Mem(ctx, objects.ParsePath("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteRequiresBranch(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	h := Empty(r)

	_, err := h.Set(ctx, objects.Task{}, objects.ParsePath("a"), nil, stringContents("1"))
	require.Error(t, err)
}

func TestCloneAndDiverge(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	mustSet(t, master, "x", "1")

	_, err := r.Clone(ctx, objects.DefaultBranch, "dev")
	require.NoError(t, err)

	dev := OfBranch(r, "dev")
	mustSet(t, dev, "y", "2")
	mustSet(t, master, "z", "3")

	devVal, err := dev.Get(ctx, objects.ParsePath("x"))
	require.NoError(t, err)
	require.Equal(t, stringContents("1"), devVal)

	_, err = master.Get(ctx, objects.ParsePath("y"))
	require.Error(t, err)
}

func TestClone_DuplicateDestinationFails(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	mustSet(t, master, "x", "1")

	_, err := r.Clone(ctx, objects.DefaultBranch, "dev")
	require.NoError(t, err)

	_, err = r.Clone(ctx, objects.DefaultBranch, "dev")
	require.Error(t, err)
}

func TestMergeInto_UnionOfDisjointPaths(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	mustSet(t, master, "x", "1")

	_, err := r.Clone(ctx, objects.DefaultBranch, "dev")
	require.NoError(t, err)
	dev := OfBranch(r, "dev")
	mustSet(t, dev, "y", "2")
	mustSet(t, master, "z", "3")

	_, err = dev.MergeInto(ctx, objects.Task{Owner: "tester"}, objects.DefaultBranch, r.contents.Merge())
	require.NoError(t, err)

	for path, want := range map[string]stringContents{"x": "1", "y": "2", "z": "3"} {
		v, err := master.Get(ctx, objects.ParsePath(path))
		require.NoError(t, err)
		require.Equal(t, want, v)
	}
}

func TestMerge_FastForward(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	mustSet(t, master, "x", "1")

	_, err := r.Clone(ctx, objects.DefaultBranch, "dev")
	require.NoError(t, err)
	dev := OfBranch(r, "dev")
	devHead := mustSet(t, dev, "y", "2")

	merged, err := master.MergeWithBranch(ctx, objects.Task{Owner: "tester"}, "dev", r.contents.Merge())
	require.NoError(t, err)
	require.Equal(t, devHead, merged)
}

func TestLCAs(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	mustSet(t, master, "x", "1")

	_, err := r.Clone(ctx, objects.DefaultBranch, "dev")
	require.NoError(t, err)
	dev := OfBranch(r, "dev")
	mustSet(t, dev, "y", "2")
	mustSet(t, master, "z", "3")

	res, err := master.LCAsWithBranch(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, res.Commits, 1)
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestRepo(t)
	h := Master(src)
	mustSet(t, h, "a/b", "hello")
	mustSet(t, h, "a/c", "world")

	heads, err := src.Heads(ctx)
	require.NoError(t, err)

	sl, err := src.Export(ctx, 0, nil, heads, true)
	require.NoError(t, err)
	require.NotEmpty(t, sl.Commits)
	require.NotEmpty(t, sl.Nodes)
	require.NotEmpty(t, sl.Contents)

	dst := newTestRepo(t)
	require.NoError(t, dst.Import(ctx, sl))

	for _, head := range heads {
		task, ok, err := dst.TaskOfCommit(ctx, head)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "tester", task.Owner)
	}
}

func TestWatchBranch_DeliversHeadTransitions(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	h := Master(r)

	diffs := make(chan BranchDiff, 8)
	handle, err := h.Watch(ctx, func(_ context.Context, d BranchDiff) {
		diffs <- d
	})
	require.NoError(t, err)
	defer h.Unwatch(handle)

	commit := mustSet(t, h, "x", "1")

	d := <-diffs
	require.Equal(t, objects.DefaultBranch, d.Branch)
	require.True(t, d.HasNew)
	require.Equal(t, commit, d.New)
}

func TestMergeWithCommit_NoOpWhenAlreadyAncestor(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	first := mustSet(t, master, "x", "1")
	mustSet(t, master, "y", "2")

	merged, err := master.MergeWithCommit(ctx, objects.Task{Owner: "tester"}, first, r.contents.Merge())
	require.NoError(t, err)

	head, _, err := r.branches.Get(ctx, objects.DefaultBranch)
	require.NoError(t, err)
	require.Equal(t, head, merged)
}

func TestBranches_ListsAllWithHeads(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	master := Master(r)
	mustSet(t, master, "x", "1")
	_, err := r.Clone(ctx, objects.DefaultBranch, "dev")
	require.NoError(t, err)

	refs, err := r.Branches(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	var names []string
	for _, ref := range refs {
		names = append(names, ref.Name)
		require.False(t, ref.Head.IsZero())
	}
	require.ElementsMatch(t, []string{objects.DefaultBranch, "dev"}, names)
}

func TestOpenFileBackend_RequiresDir(t *testing.T) {
	cfg := config.New()
	config.Set(cfg, config.BackendKind, "file")
	_, err := Open(context.Background(), cfg, lastWriterCodec{}, nil)
	require.Error(t, err)
}

func TestMergeAlgUnused(t *testing.T) {
	// Sanity: mergealg.Identity composes with Seq, used by callers that
	// build a custom contentsMerge instead of the codec's own Merge.
	c := mergealg.Seq(mergealg.Identity, mergealg.TakeTheirs)
	require.NotNil(t, c)
}
