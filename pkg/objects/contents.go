package objects

// Contents is the capability set user data must implement (spec §3): a
// deterministic byte codec plus a diagnostic parse/print round trip. The
// merge combinator lives on ContentsCodec, not on Contents itself, so
// that merge policy can be swapped independently of the value type.
type Contents interface {
	// Encode produces the deterministic byte serialisation a Hash is
	// derived from. Equal contents must always encode identically.
	Encode() ([]byte, error)
	// String is the diagnostic print used for conflict messages and logs.
	String() string
}

// Ancestor is the lazy promise for a three-way merge's common-ancestor
// value (spec §3, §9: "invoked at most once ... implementations
// memoise its result"). A nil Contents with a nil error means "none".
type Ancestor func() (Contents, error)

// MemoizeAncestor wraps a one-shot lookup so repeated calls to the
// returned Ancestor reuse the first result, satisfying the "invoked at
// most once" contract even when a merge combinator calls old() from
// several branches of a composite (spec §9).
func MemoizeAncestor(load func() (Contents, error)) Ancestor {
	var (
		done bool
		val  Contents
		err  error
	)
	return func() (Contents, error) {
		if !done {
			val, err = load()
			done = true
		}
		return val, err
	}
}

// ContentsCodec is the per-application capability bundle for a concrete
// Contents type: decode, diagnostic parse, and the three-way value merge
// (spec §3's `option<contents> → option<contents> → option<contents>`).
// A nil Contents argument/result represents "none" (the entry is absent
// on that side, or the merge deletes it). A merge that cannot reconcile
// must return an error marked with errs.Conflict; ContentsStore.Merge
// propagates it verbatim (spec §4.2).
type ContentsCodec interface {
	Decode(b []byte) (Contents, error)
	Parse(s string) (Contents, error)
	// Merge reconciles old (lazy), a, and b. Any of a, b may be nil
	// ("deleted on this side"); old() may likewise resolve to nil
	// ("did not exist at the common ancestor").
	Merge(old Ancestor, a, b Contents) (Contents, error)
}
