package objects

import (
	"bytes"
	"encoding/binary"
	"sort"
)

// EntryKind discriminates a Node's child entries (spec §3).
type EntryKind uint8

const (
	KindNode EntryKind = iota + 1
	KindContents
)

// Entry is one child of a Node: either another node (by hash) or a
// contents leaf (by hash, with its metadata). Metadata is empty for
// KindNode entries.
type Entry struct {
	Kind     EntryKind
	Hash     Hash
	Metadata []byte
}

// Node is an immutable mapping from Step to Entry (spec §3, §4.1). The
// empty node is valid and addresses an empty directory-like container.
type Node struct {
	Entries map[Step]Entry
}

// EmptyNode returns a fresh, empty Node value (not yet hashed/stored).
func EmptyNode() Node { return Node{Entries: map[Step]Entry{}} }

// sortedSteps returns the node's steps in canonical byte-lex order, the
// ordering spec §4.3's tie-break rule fixes for deterministic hashing
// and deterministic enumeration alike.
func (n Node) sortedSteps() []Step {
	steps := make([]Step, 0, len(n.Entries))
	for s := range n.Entries {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps
}

// Encode produces the deterministic binary serialisation a Node's Hash
// is derived from (spec invariant 1). Layout is length-prefixed fields
// in the teacher's big-endian style (pkg/tree/serialize.go), generalised
// from fixed leaf/internal B-tree nodes to the spec's step-keyed map.
func (n Node) Encode() ([]byte, error) {
	steps := n.sortedSteps()

	var buf bytes.Buffer
	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(steps)))
	buf.Write(count[:])

	for _, step := range steps {
		e := n.Entries[step]

		var stepLen [4]byte
		binary.BigEndian.PutUint32(stepLen[:], uint32(len(step)))
		buf.Write(stepLen[:])
		buf.WriteString(string(step))

		buf.WriteByte(byte(e.Kind))
		buf.Write(e.Hash[:])

		var metaLen [4]byte
		binary.BigEndian.PutUint32(metaLen[:], uint32(len(e.Metadata)))
		buf.Write(metaLen[:])
		buf.Write(e.Metadata)
	}
	return buf.Bytes(), nil
}

// DecodeNode is the inverse of Node.Encode.
func DecodeNode(data []byte) (Node, error) {
	n := EmptyNode()
	if len(data) < 4 {
		return n, ErrCorrupt
	}
	pos := 0
	count := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	for i := uint32(0); i < count; i++ {
		if pos+4 > len(data) {
			return n, ErrCorrupt
		}
		stepLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if pos+int(stepLen) > len(data) {
			return n, ErrCorrupt
		}
		step := Step(data[pos : pos+int(stepLen)])
		pos += int(stepLen)

		if pos+1+len(Hash{}) > len(data) {
			return n, ErrCorrupt
		}
		kind := EntryKind(data[pos])
		pos++
		var h Hash
		copy(h[:], data[pos:pos+len(h)])
		pos += len(h)

		if pos+4 > len(data) {
			return n, ErrCorrupt
		}
		metaLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
		if pos+int(metaLen) > len(data) {
			return n, ErrCorrupt
		}
		var meta []byte
		if metaLen > 0 {
			meta = make([]byte, metaLen)
			copy(meta, data[pos:pos+int(metaLen)])
		}
		pos += int(metaLen)

		n.Entries[step] = Entry{Kind: kind, Hash: h, Metadata: meta}
	}

	if pos != len(data) {
		return n, ErrCorrupt
	}
	return n, nil
}

// Hash computes n's content-addressed key under the given Hasher.
func (n Node) Hash(h Hasher) (Hash, error) {
	data, err := n.Encode()
	if err != nil {
		return Hash{}, err
	}
	return h.Sum(data), nil
}

// List returns n's entries as (step, entry) pairs in canonical order
// (spec §4.3 `list`).
func (n Node) List() []struct {
	Step  Step
	Entry Entry
} {
	steps := n.sortedSteps()
	out := make([]struct {
		Step  Step
		Entry Entry
	}, len(steps))
	for i, s := range steps {
		out[i] = struct {
			Step  Step
			Entry Entry
		}{Step: s, Entry: n.Entries[s]}
	}
	return out
}

// With returns a copy of n with step bound to entry (used by copy-on-write
// updates; never mutates n).
func (n Node) With(step Step, entry Entry) Node {
	out := Node{Entries: make(map[Step]Entry, len(n.Entries)+1)}
	for k, v := range n.Entries {
		out.Entries[k] = v
	}
	out.Entries[step] = entry
	return out
}

// Without returns a copy of n with step removed. Removing an absent step
// is a no-op that still returns a (logically equal) copy.
func (n Node) Without(step Step) Node {
	out := Node{Entries: make(map[Step]Entry, len(n.Entries))}
	for k, v := range n.Entries {
		if k == step {
			continue
		}
		out.Entries[k] = v
	}
	return out
}
