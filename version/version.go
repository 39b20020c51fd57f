// Package version implements the runtime's semver-compatible version type
// and the compatibility predicate used to gate module/symbol resolution
// and context handle registration.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is an immutable semver-shaped version record: major, minor,
// and patch as u64 components, plus optional pre-release and build
// metadata strings.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	Pre   string
	Build string
}

// New constructs a Version with no pre-release/build metadata.
func New(major, minor, patch uint64) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// String renders the version using standard semver formatting.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		b.WriteByte('-')
		b.WriteString(v.Pre)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater than
// other, per semver precedence (build metadata is not significant).
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		return cmpU64(v.Major, other.Major)
	}
	if v.Minor != other.Minor {
		return cmpU64(v.Minor, other.Minor)
	}
	if v.Patch != other.Patch {
		return cmpU64(v.Patch, other.Patch)
	}
	return comparePre(v.Pre, other.Pre)
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePre implements semver's pre-release precedence: a version without
// a pre-release tag has higher precedence than one with, all else equal.
func comparePre(a, b string) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "" && b != "":
		return 1
	case a != "" && b == "":
		return -1
	default:
		return comparePreIdentifiers(a, b)
	}
}

func comparePreIdentifiers(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := comparePreIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmpU64(uint64(len(as)), uint64(len(bs)))
}

func comparePreIdentifier(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmpU64(an, bn)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Satisfies implements the compatibility predicate:
//
//	got.major == required.major AND
//	(required.major == 0 => got.minor == required.minor) AND
//	got >= required
func Satisfies(got, required Version) bool {
	if got.Major != required.Major {
		return false
	}
	if required.Major == 0 && got.Minor != required.Minor {
		return false
	}
	return got.Compare(required) >= 0
}

// Parse parses a "major.minor.patch[-pre][+build]" string.
func Parse(s string) (Version, error) {
	var v Version
	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Pre = s[i+1:]
		s = s[:i]
	}
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version: %q is not major.minor.patch", s)
	}
	nums := [3]uint64{}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version: invalid component %q: %w", p, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}
