package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortTags_NumericAware(t *testing.T) {
	sorted := SortTags([]string{"1.9.0", "1.10.0", "1.2.0"}, false)

	assert.Equal(t, []string{"1.2.0", "1.9.0", "1.10.0"}, sorted)
}

func TestSortTags_FinalAfterPreRelease(t *testing.T) {
	sorted := SortTags([]string{"1.0.0", "1.0.0-rc.1"}, false)

	assert.Equal(t, []string{"1.0.0-rc.1", "1.0.0"}, sorted)
}

func TestSortTags_PreReleaseLabels(t *testing.T) {
	input := []string{"1.0.0", "1.0.0-rc.2", "1.0.0-alpha.10", "1.0.0-beta.1", "1.0.0-alpha.2", "0.9.0"}

	sorted := SortTags(input, false)

	assert.Equal(t, []string{
		"0.9.0",
		"1.0.0-alpha.2",
		"1.0.0-alpha.10",
		"1.0.0-beta.1",
		"1.0.0-rc.2",
		"1.0.0",
	}, sorted)
}

func TestSortTags_Descending(t *testing.T) {
	sorted := SortTags([]string{"1.2.0", "1.10.0", "1.10.0-rc.1", "1.9.0"}, true)

	assert.Equal(t, []string{"1.10.0", "1.10.0-rc.1", "1.9.0", "1.2.0"}, sorted)
}

func TestSortTags_Empty(t *testing.T) {
	assert.Empty(t, SortTags(nil, false))
	assert.Empty(t, SortTags([]string{}, true))
}

func TestSortTags_DoesNotMutateInput(t *testing.T) {
	input := []string{"2.0.0", "1.0.0"}

	_ = SortTags(input, false)

	assert.Equal(t, []string{"2.0.0", "1.0.0"}, input)
}

func TestSortTags_Stable(t *testing.T) {
	// Equal by numeric value; input order is kept in both directions.
	input := []string{"1.01.0", "1.1.0", "1.001.0"}

	assert.Equal(t, []string{"1.01.0", "1.1.0", "1.001.0"}, SortTags(input, false))
	assert.Equal(t, []string{"1.01.0", "1.1.0", "1.001.0"}, SortTags(input, true))

	descending := SortTags([]string{"1.1.0", "2.0.0", "1.01.0", "0.9.0"}, true)
	assert.Equal(t, []string{"2.0.0", "1.1.0", "1.01.0", "0.9.0"}, descending)
}

func TestSortTags_CaseInsensitiveText(t *testing.T) {
	sorted := SortTags([]string{"1.0.0-RC.1", "1.0.0-beta.1"}, false)

	assert.Equal(t, []string{"1.0.0-beta.1", "1.0.0-RC.1"}, sorted)
}

func TestSortTags_LongDigitRuns(t *testing.T) {
	sorted := SortTags([]string{"99999999999999999999999.0.0", "1.0.0"}, false)

	assert.Equal(t, []string{"1.0.0", "99999999999999999999999.0.0"}, sorted)
}

func TestCompareNatural(t *testing.T) {
	assert.Equal(t, -1, CompareNatural("1.2.0", "1.10.0"))
	assert.Equal(t, 1, CompareNatural("1.0.0", "1.0.0-rc.9"))
	assert.Equal(t, 0, CompareNatural("1.0.0", "1.0.0"))
}
