package litani

import (
	"testing"

	"golang.org/x/mod/semver"
)

func TestNewerVersionComparesSemver(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"v1.1.0", "v1.0.0", true},
		{"v1.0.0", "v1.1.0", false},
		{"v1.0.0", "v1.0.0", false},
	}
	for _, c := range cases {
		if got := NewerVersion(c.a, c.b); got != c.want {
			t.Errorf("NewerVersion(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestNewerVersionRejectsInvalidSemver(t *testing.T) {
	if NewerVersion("not-semver", "v1.0.0") {
		t.Error("NewerVersion with an invalid left operand: want false")
	}
	if NewerVersion("v1.0.0", "not-semver") {
		t.Error("NewerVersion with an invalid right operand: want false")
	}
}

func TestVersionIsValidSemver(t *testing.T) {
	if Version() != version {
		t.Errorf("Version() = %q, want %q", Version(), version)
	}
	if !semver.IsValid(Version()) {
		t.Errorf("Version() = %q is not valid semver", Version())
	}
}
