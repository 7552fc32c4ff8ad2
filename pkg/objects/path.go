package objects

import "strings"

// Step is one segment of a Path (spec GLOSSARY: Step). Total ordering is
// plain byte-lexicographic comparison over the string form.
type Step string

// Path is a finite ordered sequence of Steps; the empty Path denotes the
// root (spec §3). Two paths are equal iff their step sequences are equal.
type Path []Step

// Root is the empty path, addressing the tree itself rather than a value
// (spec invariant 5).
var Root = Path{}

// ParsePath splits a "/"-separated diagnostic string into a Path. Empty
// segments (leading/trailing/doubled slashes) are dropped, matching how
// callers typically write paths like "/a/b" or "a/b/".
func ParsePath(s string) Path {
	if s == "" {
		return Path{}
	}
	parts := strings.Split(s, "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		p = append(p, Step(part))
	}
	return p
}

// String renders the Path in "/"-separated diagnostic form.
func (p Path) String() string {
	strs := make([]string, len(p))
	for i, s := range p {
		strs[i] = string(s)
	}
	return "/" + strings.Join(strs, "/")
}

// Equal reports whether p and o address the same location.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// IsRoot reports whether p is the zero-length root path.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Parent and Last split a non-root path into the path to its containing
// node and the final step, the decomposition every copy-on-write update
// walk needs (spec §4.3 `update`/`remove`).
func (p Path) Parent() Path { return p[:len(p)-1] }
func (p Path) Last() Step   { return p[len(p)-1] }
