package objects

import (
	"bytes"
	"encoding/binary"
)

// Task is the provenance record attached to a commit (spec §3, GLOSSARY).
type Task struct {
	Date     int64
	Owner    string
	UID      int64
	Messages []string
}

// Commit is the immutable tuple (node_hash, parents, task) (spec §3).
// Parents preserves insertion order; the first parent is privileged for
// traversal, mirroring "main parent" semantics in history walks.
type Commit struct {
	NodeHash Hash
	Parents  []Hash
	Task     Task
}

// Encode is the deterministic binary serialisation Commit's Hash derives
// from, in the same length-prefixed big-endian style as Node.Encode.
func (c Commit) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(c.NodeHash[:])

	var parentCount [4]byte
	binary.BigEndian.PutUint32(parentCount[:], uint32(len(c.Parents)))
	buf.Write(parentCount[:])
	for _, p := range c.Parents {
		buf.Write(p[:])
	}

	var date [8]byte
	binary.BigEndian.PutUint64(date[:], uint64(c.Task.Date))
	buf.Write(date[:])

	writeString(&buf, c.Task.Owner)

	var uid [8]byte
	binary.BigEndian.PutUint64(uid[:], uint64(c.Task.UID))
	buf.Write(uid[:])

	var msgCount [4]byte
	binary.BigEndian.PutUint32(msgCount[:], uint32(len(c.Task.Messages)))
	buf.Write(msgCount[:])
	for _, m := range c.Task.Messages {
		writeString(&buf, m)
	}

	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(s)))
	buf.Write(l[:])
	buf.WriteString(s)
}

func readString(data []byte, pos int) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, ErrCorrupt
	}
	l := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if pos+int(l) > len(data) {
		return "", pos, ErrCorrupt
	}
	s := string(data[pos : pos+int(l)])
	pos += int(l)
	return s, pos, nil
}

// DecodeCommit is the inverse of Commit.Encode.
func DecodeCommit(data []byte) (Commit, error) {
	var c Commit
	pos := 0
	if pos+len(c.NodeHash) > len(data) {
		return c, ErrCorrupt
	}
	copy(c.NodeHash[:], data[pos:pos+len(c.NodeHash)])
	pos += len(c.NodeHash)

	if pos+4 > len(data) {
		return c, ErrCorrupt
	}
	parentCount := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	c.Parents = make([]Hash, parentCount)
	for i := range c.Parents {
		if pos+len(c.Parents[i]) > len(data) {
			return c, ErrCorrupt
		}
		copy(c.Parents[i][:], data[pos:pos+len(c.Parents[i])])
		pos += len(c.Parents[i])
	}

	if pos+8 > len(data) {
		return c, ErrCorrupt
	}
	c.Task.Date = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
	pos += 8

	var err error
	c.Task.Owner, pos, err = readString(data, pos)
	if err != nil {
		return c, err
	}

	if pos+8 > len(data) {
		return c, ErrCorrupt
	}
	c.Task.UID = int64(binary.BigEndian.Uint64(data[pos : pos+8]))
	pos += 8

	if pos+4 > len(data) {
		return c, ErrCorrupt
	}
	msgCount := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	c.Task.Messages = make([]string, msgCount)
	for i := range c.Task.Messages {
		c.Task.Messages[i], pos, err = readString(data, pos)
		if err != nil {
			return c, err
		}
	}

	if pos != len(data) {
		return c, ErrCorrupt
	}
	return c, nil
}

// Hash computes c's content-addressed key under the given Hasher.
func (c Commit) Hash(h Hasher) (Hash, error) {
	data, err := c.Encode()
	if err != nil {
		return Hash{}, err
	}
	return h.Sum(data), nil
}
