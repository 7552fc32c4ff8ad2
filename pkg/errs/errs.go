// Package errs defines the error kinds the engine distinguishes
// programmatically (spec §7). Traversal bounds (max-depth-reached,
// too-many-lcas) are not errors and live in pkg/history instead.
package errs

import (
	"github.com/cockroachdb/errors"
)

// Sentinel kinds. Wrap a lower-level error with WrapConflict/WrapBackend/...
// and test with errors.Is(err, errs.Conflict) at call sites that need to
// branch on kind rather than just report failure.
var (
	Conflict        = errors.New("conflict")
	InvalidArgument = errors.New("invalid argument")
	ConcurrentUpdate = errors.New("concurrent update")
	BackendIO       = errors.New("backend i/o error")
	Aborted         = errors.New("aborted")
	NotFound        = errors.New("not found")
)

// WrapConflict builds a new error from msg and args and marks it as a
// Conflict.
func WrapConflict(msg string, args ...interface{}) error {
	return errors.Mark(errors.Newf(msg, args...), Conflict)
}

// Invalid marks an invalid-argument error.
func Invalid(msg string, args ...interface{}) error {
	return errors.Mark(errors.Newf(msg, args...), InvalidArgument)
}

// WrapBackend marks an underlying backend failure so callers can retry.
func WrapBackend(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), BackendIO)
}

// WrapAborted marks a cancellation-triggered error.
func WrapAborted(err error) error {
	if err == nil {
		err = errors.New("operation aborted")
	}
	return errors.Mark(err, Aborted)
}

// ConcurrentUpdateErr marks a lost compare-and-swap race surfaced above
// the point where the caller can simply retry with the fresh value
// (spec §7: "test_and_set returns false; not an exception" at the kernel
// level, promoted to an error once a higher layer has already committed
// to a single attempt).
func ConcurrentUpdateErr(msg string, args ...interface{}) error {
	return errors.Mark(errors.Newf(msg, args...), ConcurrentUpdate)
}

// NotFoundErr marks a missing object as NotFound: the general case
// (spec §7) for a store-layer lookup whose caller already expects the
// object to exist (a hash read back from a commit/node entry, a slice
// import/export reference), as opposed to a user-facing get of a path
// that may simply not be there.
func NotFoundErr(what string) error {
	return errors.Mark(errors.Newf("%s not found", what), NotFound)
}

// InvalidGetErr produces the invalid-argument error the get/get_head
// family converts a none result into (spec §7: "Not found ... except
// for get/get_head family which convert none to invalid-argument").
func InvalidGetErr(what string) error {
	return Invalid("%s not found", what)
}

// WrapStep annotates err with a path step while preserving its
// underlying kind (Conflict, BackendIO, ...), so a merge conflict
// originating deep in a recursive node merge accumulates a readable
// path as it unwinds, one prefix per level, e.g. "/a: /k: ...".
func WrapStep(err error, step string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "/%s", step)
}

// IsConflict reports whether err (or any error it wraps) is a Conflict.
func IsConflict(err error) bool { return errors.Is(err, Conflict) }

// IsConcurrentUpdate reports whether err is a ConcurrentUpdate marker.
func IsConcurrentUpdate(err error) bool { return errors.Is(err, ConcurrentUpdate) }

// IsNotFound reports whether err (or any error it wraps) is a NotFound
// marker.
func IsNotFound(err error) bool { return errors.Is(err, NotFound) }

// IsInvalid reports whether err (or any error it wraps) is an
// InvalidArgument marker.
func IsInvalid(err error) bool { return errors.Is(err, InvalidArgument) }
