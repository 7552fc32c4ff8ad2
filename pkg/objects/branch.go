package objects

// DefaultBranch is the distinguished branch name that always exists
// (spec §3).
const DefaultBranch = "master"

// branchNameOK reports whether every rune in name is an allowed branch
// character: alphanumerics plus '-', '_', '.', '/' (spec §3).
func branchNameOK(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == '/':
		return true
	}
	return false
}

// ValidateBranchName enforces the spec §3 branch-name rule: non-empty,
// alphanumerics plus "- _ . /". Adapted from the teacher's
// pkg/branch/validate.go, whose Git-flavoured rule set (no leading '-'
// or '.', no "..", no "HEAD") is replaced by the spec's plainer allowlist.
func ValidateBranchName(name string) error {
	if name == "" {
		return ErrEmptyBranchName
	}
	for _, r := range name {
		if !branchNameOK(r) {
			return ErrInvalidBranchName
		}
	}
	return nil
}
