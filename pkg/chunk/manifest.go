package chunk

import (
	"encoding/binary"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/objects"
)

// encodeManifest lays out a chunk manifest in the teacher serialiser's
// length-prefixed big-endian style, specialised to a list of fixed-width
// hashes: [4 bytes count][count * 32-byte hash].
func encodeManifest(hashes []objects.Hash) []byte {
	buf := make([]byte, 4+len(hashes)*len(objects.Hash{}))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(hashes)))
	pos := 4
	for _, h := range hashes {
		copy(buf[pos:], h[:])
		pos += len(h)
	}
	return buf
}

func decodeManifest(data []byte) ([]objects.Hash, error) {
	if len(data) < 4 {
		return nil, errs.Invalid("chunk: manifest too short")
	}
	count := binary.BigEndian.Uint32(data[:4])
	pos := 4
	hashes := make([]objects.Hash, count)
	for i := range hashes {
		if pos+len(hashes[i]) > len(data) {
			return nil, errs.Invalid("chunk: manifest truncated")
		}
		copy(hashes[i][:], data[pos:pos+len(hashes[i])])
		pos += len(hashes[i])
	}
	if pos != len(data) {
		return nil, errs.Invalid("chunk: manifest has trailing data")
	}
	return hashes, nil
}
