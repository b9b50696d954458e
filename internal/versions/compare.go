package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Compare orders version strings. Two valid semantic versions compare by
// precedence, two other strings lexically, and a semantic version sorts
// before a string that is not one.
func Compare(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)

	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
		// "v1.0.0" and "1.0.0" have equal precedence
		return strings.Compare(a, b)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
