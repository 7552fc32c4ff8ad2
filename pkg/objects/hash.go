// Package objects defines the four-tier content-addressed object model
// (contents, nodes, commits, branches) and their deterministic codecs
// (spec §3, §4.1-§4.2).
package objects

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hash is the fixed-width digest used as a content-addressed key
// (spec GLOSSARY: Hash). All stores key their entries on Hash.
type Hash [32]byte

// ZeroHash is the distinguished empty digest, used to mark "no parent".
var ZeroHash = Hash{}

// IsZero reports whether h is the zero digest.
func (h Hash) IsZero() bool { return h == ZeroHash }

// String returns the hex encoding of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Less gives the canonical byte-lex ordering spec §4.3 relies on for
// deterministic enumeration of parents, entries, and ancestors.
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

// HashFromHex parses a hex-encoded digest.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, errInvalidHashLen
	}
	copy(h[:], b)
	return h, nil
}

// Hasher is the pluggable digest capability the repository is
// parameterised over (spec §9: "capability pattern"). Any implementation
// must be collision-resistant and deterministic: equal inputs always
// yield equal outputs (spec invariant 1).
type Hasher interface {
	Sum(data []byte) Hash
	Name() string
}

type sha256Hasher struct{}

func (sha256Hasher) Sum(data []byte) Hash { return sha256.Sum256(data) }
func (sha256Hasher) Name() string         { return "sha256" }

// SHA256 is the default Hasher, matching the teacher's existing digest
// choice (microprolly's types.Hash used crypto/sha256 directly).
var SHA256 Hasher = sha256Hasher{}

type blake2bHasher struct{}

func (blake2bHasher) Sum(data []byte) Hash { return blake2b.Sum256(data) }
func (blake2bHasher) Name() string         { return "blake2b-256" }

// Blake2b256 is an alternate Hasher, grounded on iotaledger-trie.go's use
// of golang.org/x/crypto/blake2b for its trie commitments.
var Blake2b256 Hasher = blake2bHasher{}
