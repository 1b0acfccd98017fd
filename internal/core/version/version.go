package version

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"
)

// =============================================================================
// Pre-release Labels
// =============================================================================

// Label is a pre-release label. Labels are ordered alpha < beta < rc.
type Label string

const (
	LabelAlpha Label = "alpha"
	LabelBeta  Label = "beta"
	LabelRC    Label = "rc"
)

// ParseLabel returns the label named by s.
func ParseLabel(s string) (Label, bool) {
	switch Label(s) {
	case LabelAlpha, LabelBeta, LabelRC:
		return Label(s), true
	default:
		return "", false
	}
}

// rank returns the position of the label in the alpha < beta < rc order.
func (l Label) rank() int {
	switch l {
	case LabelAlpha:
		return 1
	case LabelBeta:
		return 2
	case LabelRC:
		return 3
	default:
		return 0
	}
}

// =============================================================================
// Version
// =============================================================================

// PreRelease is a pre-release label with its counter, e.g. rc.2.
type PreRelease struct {
	Label   Label
	Counter uint64
}

func (p PreRelease) String() string {
	return fmt.Sprintf("%s.%d", p.Label, p.Counter)
}

// Version is a parsed major.minor.patch[-label.counter] version.
// Build metadata is accepted by Parse but never kept.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	Pre   *PreRelease
}

// IsPreRelease reports whether the version carries a pre-release.
func (v Version) IsPreRelease() bool {
	return v.Pre != nil
}

// String returns the canonical form major.minor.patch[-label.counter].
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != nil {
		s += "-" + v.Pre.String()
	}
	return s
}

// Compare orders versions by semantic version precedence. A final release
// outranks every pre-release of the same numeric triple.
// Returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	return v.semver().Compare(other.semver())
}

func (v Version) semver() *semver.Version {
	pre := ""
	if v.Pre != nil {
		pre = v.Pre.String()
	}
	return semver.New(v.Major, v.Minor, v.Patch, pre, "")
}

// =============================================================================
// Parsing
// =============================================================================

var preReleasePattern = regexp.MustCompile(`^(alpha|beta|rc)\.(0|[1-9][0-9]*)$`)

// Parse parses a tag of the form major.minor.patch[-label.counter][+build].
// It returns false for anything else; malformed tags are not errors, callers
// decide whether to skip them.
//
// Example:
//
//	v, ok := Parse("1.4.0-rc.2+build.7") // v.String() == "1.4.0-rc.2"
//	_, ok = Parse("v1.4")                 // ok == false
func Parse(tag string) (Version, bool) {
	sv, err := semver.StrictNewVersion(tag)
	if err != nil {
		return Version{}, false
	}

	v := Version{
		Major: sv.Major(),
		Minor: sv.Minor(),
		Patch: sv.Patch(),
	}

	if pre := sv.Prerelease(); pre != "" {
		m := preReleasePattern.FindStringSubmatch(pre)
		if m == nil {
			return Version{}, false
		}
		counter, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return Version{}, false
		}
		v.Pre = &PreRelease{Label: Label(m[1]), Counter: counter}
	}

	return v, true
}

// MustParse is like Parse but panics on malformed input. Intended for tests
// and constants.
func MustParse(tag string) Version {
	v, ok := Parse(tag)
	if !ok {
		panic(fmt.Sprintf("version: cannot parse %q", tag))
	}
	return v
}
