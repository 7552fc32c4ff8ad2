package config

import "strconv"

func identity(s string) (string, error) { return s, nil }

// BackendKind selects the kernel.Backend an Open call constructs:
// "mem" (default), "file", or "badger".
var BackendKind = Key[string]{
	Name:    "backend.kind",
	Doc:     "kernel backend: mem, file, or badger",
	Default: "mem",
	Parse:   identity,
	Print:   func(s string) string { return s },
}

// BackendDir is the filesystem root for the file and badger backends.
// Four subdirectories (contents, node, commit, refs) are created under
// it, one per typed store, so hashes from different object kinds never
// share a keyspace.
var BackendDir = Key[string]{
	Name:    "backend.dir",
	Doc:     "filesystem directory for the file/badger backend",
	Default: "",
	Parse:   identity,
	Print:   func(s string) string { return s },
}

// HashAlgo selects the content-hash Hasher: "sha256" (default) or
// "blake2b".
var HashAlgo = Key[string]{
	Name:    "hash.algo",
	Doc:     "content hash algorithm: sha256 or blake2b",
	Default: "sha256",
	Parse:   identity,
	Print:   func(s string) string { return s },
}

// MaxLCADepth caps lcas' breadth-first exploration depth; 0 means
// unlimited (spec §4.3 default).
var MaxLCADepth = Key[int]{
	Name:    "history.max_lca_depth",
	Doc:     "lcas search depth cap, 0 = unlimited",
	Default: 0,
	Parse:   strconv.Atoi,
	Print:   strconv.Itoa,
}

// MaxLCACount caps the number of lowest common ancestors lcas returns
// before reporting too-many-lcas; 0 means unbounded.
var MaxLCACount = Key[int]{
	Name:    "history.max_lca_count",
	Doc:     "lcas result count cap, 0 = unbounded",
	Default: 0,
	Parse:   strconv.Atoi,
	Print:   strconv.Itoa,
}

// ChunkThreshold is the encoded contents size, in bytes, above which the
// contents store splits a value into content-defined chunks instead of
// storing it as one entry; 0 means use chunk.DefaultPolicy's threshold.
var ChunkThreshold = Key[int]{
	Name:    "contents.chunk_threshold",
	Doc:     "contents size above which values are chunked, 0 = default",
	Default: 0,
	Parse:   strconv.Atoi,
	Print:   strconv.Itoa,
}
