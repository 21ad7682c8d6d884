package litani

import "golang.org/x/mod/semver"

// version is the litani release embedded into every run document's
// Version field. It must be a valid semver tag (golang.org/x/mod/semver
// requires a leading "v").
const version = "v1.0.0"

// Version returns the litani release string stamped on newly created runs.
func Version() string { return version }

// NewerVersion reports whether a is a strictly newer release than b, using
// the same golang.org/x/mod/semver comparison internal/checkupstream once
// used for upstream-version polling (that package is gone; the remaining
// caller is jobstore.FuseCache, which checks cache.json's litani_version).
func NewerVersion(a, b string) bool {
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return false
	}
	return semver.Compare(a, b) > 0
}
