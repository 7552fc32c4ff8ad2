package objects

import "errors"

var (
	errInvalidHashLen = errors.New("objects: hash must decode to 32 bytes")
	// ErrEmptyStep is returned by codecs that reject zero-length steps.
	ErrEmptyStep = errors.New("objects: step cannot be empty")
	// ErrEmptyBranchName is returned by branch name validation.
	ErrEmptyBranchName = errors.New("objects: branch name cannot be empty")
	// ErrInvalidBranchName is returned when a branch name uses disallowed characters.
	ErrInvalidBranchName = errors.New("objects: branch name must match [A-Za-z0-9._/-]+")
	// ErrMismatchedKind is returned when a node merge finds the same step
	// holding a node on one side and contents on the other (spec §9 open
	// question: source behaviour is to conflict, kept here).
	ErrMismatchedKind = errors.New("objects: entry kind mismatch between node and contents")
	// ErrCorrupt is returned by codecs on malformed bytes.
	ErrCorrupt = errors.New("objects: corrupted encoding")
)
