// Package chunk implements content-defined splitting of large contents
// values (SPEC_FULL's chunked-large-contents feature): a rolling hash
// decides chunk boundaries so that a small edit to a large blob changes
// only the chunks around the edit, not the whole blob's hash.
package chunk

// buzhash is a rolling hash over a sliding window of bytes, used to find
// content-defined chunk boundaries independent of byte offset.
type buzhash struct {
	targetSize uint32
	minSize    uint32
	maxSize    uint32

	hash        uint32
	window      []byte
	pos         int
	count       int
	boundaryHit bool
}

// buzhashTable is the mixing table the rolling hash folds each
// incoming/outgoing byte through. Only the entries for byte values 0-63
// are populated with random values; byte values 64-255 map to zero and
// change the hash only through the rotation.
var buzhashTable = [256]uint32{
	0x458be752, 0xc10748cc, 0xfbbcdbb8, 0x6ded5b68,
	0xb10a82b5, 0x20d75648, 0xdfc5665f, 0xa8428801,
	0x7ebf5191, 0x841135c7, 0x65cc53b3, 0x280a597c,
	0x16f60255, 0xc78cbc3e, 0x294415f5, 0xb938d494,
	0xec85c4e6, 0xb7d33edc, 0xe549b544, 0xfdeda5aa,
	0x882bf287, 0x3116571e, 0xa6fc8d2d, 0x1b5f3f3c,
	0x2e7d4e29, 0x49e95d76, 0x540d0a26, 0xf87b1a02,
	0x84b4a028, 0xd7f89c1e, 0xf309cbe0, 0x600a2f4f,
	0x5f33e848, 0xb149a5d5, 0x1e39e8bd, 0x2a1fc67a,
	0x934d46e4, 0x8f902f30, 0xfc4b0223, 0xfb6d4314,
	0x5f6b9b30, 0x6f2d9c6c, 0x58597e40, 0x3cbbb848,
	0x7c3b5360, 0x3f0ab26c, 0x9ea521c8, 0x1c1b0d14,
	0x3e9de0c0, 0x289d8f1c, 0x0c01f56c, 0x61bd8e3c,
	0xd6e2e980, 0x9c098894, 0x9e0e2534, 0x049dc09c,
	0x64a0dc24, 0xb07c0440, 0x8e5b0a50, 0xf05c1e10,
	0x4c449e3c, 0x5c8c6c30, 0x88507800, 0x08b09a40,
}

const windowSize = 64

func newBuzhash(targetSize, minSize, maxSize uint32) *buzhash {
	return &buzhash{
		targetSize: targetSize,
		minSize:    minSize,
		maxSize:    maxSize,
		window:     make([]byte, windowSize),
	}
}

func (b *buzhash) reset() {
	b.hash = 0
	b.pos = 0
	b.count = 0
	b.boundaryHit = false
	for i := range b.window {
		b.window[i] = 0
	}
}

// roll folds newByte into the hash and drops the byte leaving the window.
func (b *buzhash) roll(newByte byte) {
	outByte := b.window[b.pos]
	b.window[b.pos] = newByte
	b.pos = (b.pos + 1) % windowSize

	b.hash = rotateLeft(b.hash, 1) ^ rotateLeft(buzhashTable[outByte], windowSize) ^ buzhashTable[newByte]
	b.count++

	if b.count >= int(b.minSize) && b.hash%b.targetSize == 0 {
		b.boundaryHit = true
	}
}

// atBoundary reports whether the current position should end a chunk,
// respecting min/max size regardless of what the rolling hash says.
func (b *buzhash) atBoundary() bool {
	if b.count < int(b.minSize) {
		return false
	}
	if b.count >= int(b.maxSize) {
		return true
	}
	return b.boundaryHit
}

func rotateLeft(val uint32, n uint32) uint32 {
	n %= 32
	return (val << n) | (val >> (32 - n))
}
