package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var pattern = regexp.MustCompile(`^[0-9]{1,4}\.[0-9]{1,4}\.[0-9]{1,4}(-[A-Za-z0-9]+)?$`)

// Version is a parsed N.N.N[-QUALIFIER] string
type Version struct {
	Major     int
	Minor     int
	Patch     int
	Qualifier string
}

// IsValid reports whether s matches the canonical version pattern
func IsValid(s string) bool {
	return pattern.MatchString(s)
}

// IsValidQualifier accepts an empty qualifier or one of at least two
// characters starting with '-'
func IsValidQualifier(q string) bool {
	if q == "" {
		return true
	}
	return len(q) >= 2 && q[0] == '-'
}

// RetrieveVersionWithoutQualifier drops a trailing -QUALIFIER
func RetrieveVersionWithoutQualifier(s string) string {
	v, _ := Split(s)
	return v
}

// RetrieveQualifierWithoutVersion returns the -QUALIFIER suffix, or "" when absent
func RetrieveQualifierWithoutVersion(s string) string {
	_, q := Split(s)
	return q
}

// Split separates the numeric part from the qualifier (qualifier keeps its '-')
func Split(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// Join is the inverse of Split
func Join(version, qualifier string) string {
	return version + qualifier
}

// Parse validates and parses a version string
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if !IsValid(s) {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	numeric, qualifier := Split(s)
	parts := strings.Split(numeric, ".")

	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], Qualifier: qualifier}, nil
}

// MustParse is Parse for constants known to be valid
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare orders versions numerically segment by segment. Qualifiers do not
// take part in the ordering.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return sign(v.Major - o.Major)
	case v.Minor != o.Minor:
		return sign(v.Minor - o.Minor)
	default:
		return sign(v.Patch - o.Patch)
	}
}

// Numeric returns the version without its qualifier
func (v Version) Numeric() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) String() string {
	return v.Numeric() + v.Qualifier
}

// Compare parses and compares two version strings
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
