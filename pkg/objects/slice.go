package objects

// Slice is the transferable bundle of objects used for bulk export/import
// (spec §3, §6). Contents are stored as their already-encoded bytes:
// a Slice is agnostic to the concrete Contents type, the same way the
// node/commit stores are — decoding is the caller's ContentsCodec's job.
type Slice struct {
	Contents map[Hash][]byte
	Nodes    map[Hash]Node
	Commits  map[Hash]Commit
}

// NewSlice returns an empty, ready-to-populate Slice.
func NewSlice() *Slice {
	return &Slice{
		Contents: map[Hash][]byte{},
		Nodes:    map[Hash]Node{},
		Commits:  map[Hash]Commit{},
	}
}

// Merge folds other into s in place (union by hash; content-addressing
// means any collision is the same logical object).
func (s *Slice) Merge(other *Slice) {
	for h, b := range other.Contents {
		s.Contents[h] = b
	}
	for h, n := range other.Nodes {
		s.Nodes[h] = n
	}
	for h, c := range other.Commits {
		s.Commits[h] = c
	}
}
