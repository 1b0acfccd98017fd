package version

import (
	"sort"
	"strings"
)

// =============================================================================
// Natural Tag Ordering
// =============================================================================

// finalSentinel is appended to every tag before comparison so that a final
// release sorts after its own pre-releases: "1.0.0z" > "1.0.0-rc.1z" because
// 'z' sorts after '-'.
const finalSentinel = "z"

// SortTags returns a new slice with the tags in natural order. The sort is
// stable: tags that compare equal keep their input order, also when
// descending (the order is not the reverse of the ascending result).
//
// Example:
//
//	SortTags([]string{"1.9.0", "1.10.0", "1.2.0"}, false)
//	// returns ["1.2.0", "1.9.0", "1.10.0"]
func SortTags(tags []string, descending bool) []string {
	out := make([]string, len(tags))
	copy(out, tags)

	keys := make(map[string][]run, len(out))
	for _, t := range out {
		if _, ok := keys[t]; !ok {
			keys[t] = splitRuns(t + finalSentinel)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compareRuns(keys[out[i]], keys[out[j]])
		if descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

// CompareNatural compares two tags the way SortTags orders them.
// Returns -1, 0 or 1.
func CompareNatural(a, b string) int {
	return compareRuns(splitRuns(a+finalSentinel), splitRuns(b+finalSentinel))
}

// run is a maximal sequence of either digits or non-digits.
type run struct {
	text    string
	numeric bool
}

func splitRuns(s string) []run {
	var runs []run
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || isDigit(s[i]) != isDigit(s[start]) {
			runs = append(runs, run{text: s[start:i], numeric: isDigit(s[start])})
			start = i
		}
	}
	return runs
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func compareRuns(a, b []run) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareRun(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// compareRun compares digit runs as integers and text runs case-insensitively.
// A digit run sorts before a text run.
func compareRun(a, b run) int {
	switch {
	case a.numeric && b.numeric:
		return compareDigits(a.text, b.text)
	case a.numeric:
		return -1
	case b.numeric:
		return 1
	default:
		return strings.Compare(strings.ToLower(a.text), strings.ToLower(b.text))
	}
}

// compareDigits compares two digit strings by numeric value without
// converting them, so arbitrarily long runs cannot overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
