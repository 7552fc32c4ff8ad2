package chunk

import (
	"context"

	"github.com/weftdb/weft/pkg/errs"
	"github.com/weftdb/weft/pkg/kernel"
	"github.com/weftdb/weft/pkg/objects"
)

// Policy tunes content-defined chunking. Threshold is the encoded-value
// size above which a value is split at all; below it, Put stores the
// value as a single untouched entry.
type Policy struct {
	TargetSize uint32
	MinSize    uint32
	MaxSize    uint32
	Threshold  uint32
}

// DefaultPolicy mirrors the teacher chunker's defaults (4KiB target,
// 512B floor, 16KiB ceiling); Threshold is set to the ceiling so a value
// is only ever split once it could not have fit in a single chunk anyway.
func DefaultPolicy() Policy {
	return Policy{TargetSize: 4096, MinSize: 512, MaxSize: 16384, Threshold: 16384}
}

const (
	tagRaw      byte = 0x00
	tagManifest byte = 0x01
)

// chunkBytes splits data at content-defined boundaries using a rolling
// hash over a sliding window, so a local edit anywhere in data only ever
// shifts the one or two chunks around it (SPEC_FULL's chunked-large-
// contents feature). Adapted from the teacher's KV-pair chunker,
// generalised to operate directly on a byte stream instead of serialised
// key/value pairs.
func chunkBytes(data []byte, p Policy) [][]byte {
	if len(data) == 0 {
		return nil
	}
	h := newBuzhash(p.TargetSize, p.MinSize, p.MaxSize)

	var chunks [][]byte
	start := 0
	for i, b := range data {
		h.roll(b)
		if h.atBoundary() {
			chunks = append(chunks, data[start:i+1])
			start = i + 1
			h.reset()
		}
	}
	if start < len(data) {
		chunks = append(chunks, data[start:])
	}
	return chunks
}

// Put stores data under ao, splitting it into content-defined chunks and
// writing a manifest when it exceeds policy.Threshold, or storing it as
// one tagged entry otherwise. The returned hash addresses the tagged
// envelope, never a raw chunk.
func Put(ctx context.Context, ao kernel.AO, policy Policy, data []byte) (objects.Hash, error) {
	if uint32(len(data)) <= policy.Threshold {
		envelope := append([]byte{tagRaw}, data...)
		h, err := ao.Add(ctx, envelope)
		if err != nil {
			return objects.Hash{}, errs.WrapBackend(err, "chunk: put raw")
		}
		return h, nil
	}

	chunks := chunkBytes(data, policy)
	hashes := make([]objects.Hash, len(chunks))
	for i, c := range chunks {
		h, err := ao.Add(ctx, c)
		if err != nil {
			return objects.Hash{}, errs.WrapBackend(err, "chunk: put chunk")
		}
		hashes[i] = h
	}

	manifest := append([]byte{tagManifest}, encodeManifest(hashes)...)
	h, err := ao.Add(ctx, manifest)
	if err != nil {
		return objects.Hash{}, errs.WrapBackend(err, "chunk: put manifest")
	}
	return h, nil
}

// Get reassembles the value Put stored under h, reading every chunk a
// manifest names, in order.
func Get(ctx context.Context, ao kernel.AO, h objects.Hash) ([]byte, bool, error) {
	envelope, ok, err := ao.Find(ctx, h.String())
	if err != nil {
		return nil, false, errs.WrapBackend(err, "chunk: get")
	}
	if !ok || len(envelope) == 0 {
		return nil, false, nil
	}

	switch envelope[0] {
	case tagRaw:
		return envelope[1:], true, nil
	case tagManifest:
		hashes, err := decodeManifest(envelope[1:])
		if err != nil {
			return nil, false, err
		}
		out := make([]byte, 0, len(hashes)*int(DefaultPolicy().TargetSize))
		for _, ch := range hashes {
			b, ok, err := ao.Find(ctx, ch.String())
			if err != nil {
				return nil, false, errs.WrapBackend(err, "chunk: get chunk")
			}
			if !ok {
				return nil, false, errs.NotFoundErr("chunk " + ch.String())
			}
			out = append(out, b...)
		}
		return out, true, nil
	default:
		return nil, false, errs.Invalid("chunk: unknown envelope tag %d", envelope[0])
	}
}

// ManifestChunks reports whether envelope (as read directly from an AO's
// raw bytes) is a chunk manifest and, if so, the chunk hashes it names.
// Callers that need to transfer a chunked value's dependent chunks
// alongside its envelope (e.g. Repository.Export) use this instead of
// reassembling the value with Get.
func ManifestChunks(envelope []byte) ([]objects.Hash, bool, error) {
	if len(envelope) == 0 || envelope[0] != tagManifest {
		return nil, false, nil
	}
	hashes, err := decodeManifest(envelope[1:])
	if err != nil {
		return nil, false, err
	}
	return hashes, true, nil
}
