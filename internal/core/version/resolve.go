package version

// =============================================================================
// Resolution
// =============================================================================

// seedTag is the baseline used when no tags exist yet.
const seedTag = "0.0.0"

// Resolution is the outcome of resolving a request against a tag set.
type Resolution struct {
	// Tag is the version to deploy.
	Tag string

	// Created is true when Tag does not exist yet and must be published.
	Created bool

	// Baseline is the tag the new version was computed from.
	// Empty when the request named an existing tag.
	Baseline string
}

// Resolve computes the tag to deploy for a request.
//
// A request present verbatim in tags is returned unchanged with Created set
// to false. Otherwise the request must be a keyword (see ParseRequest); the
// baseline is the first tag, in descending natural order, that parses as a
// version. Tags that do not parse are skipped. An empty tag set is seeded
// with "0.0.0".
//
// Example:
//
//	Resolve([]string{"1.2.3"}, "minor")     // 1.3.0, Created
//	Resolve([]string{"1.2.3"}, "1.2.3")     // 1.2.3, not Created
//	Resolve([]string{"1.0.0-rc.1"}, "release") // 1.0.0, Created
func Resolve(tags []string, request string) (Resolution, error) {
	for _, t := range tags {
		if t == request {
			return Resolution{Tag: request}, nil
		}
	}

	keyword, err := ParseRequest(request)
	if err != nil {
		return Resolution{}, newResolveError(request, "", err)
	}

	candidates := tags
	if len(candidates) == 0 {
		candidates = []string{seedTag}
	}

	baselineTag, baseline, ok := latest(candidates)
	if !ok {
		return Resolution{}, newResolveError(request, "", ErrVersionNotFound)
	}

	next, err := Bump(baseline, keyword)
	if err != nil {
		return Resolution{}, newResolveError(request, baselineTag, err)
	}

	return Resolution{
		Tag:      next.String(),
		Created:  true,
		Baseline: baselineTag,
	}, nil
}

// Latest returns the highest tag, in natural order, that parses as a version.
func Latest(tags []string) (string, Version, bool) {
	return latest(tags)
}

func latest(tags []string) (string, Version, bool) {
	for _, t := range SortTags(tags, true) {
		if v, ok := Parse(t); ok {
			return t, v, true
		}
	}
	return "", Version{}, false
}

// Bump applies a keyword to a baseline version.
//
// A level bump resets lower components; combined with a label it starts the
// pre-release at counter 1. A bare label continues an existing pre-release:
// the same label increments the counter, a later label (alpha -> beta -> rc)
// restarts at 1, anything else is ErrCannotIncreasePreRelease. "release"
// drops the pre-release and fails with ErrAlreadyReleased on a final version.
func Bump(baseline Version, k Keyword) (Version, error) {
	next := Version{Major: baseline.Major, Minor: baseline.Minor, Patch: baseline.Patch}

	switch k.Level {
	case LevelMajor:
		next.Major, next.Minor, next.Patch = baseline.Major+1, 0, 0
	case LevelMinor:
		next.Minor, next.Patch = baseline.Minor+1, 0
	case LevelPatch:
		next.Patch = baseline.Patch + 1
	case LevelRelease:
		if !baseline.IsPreRelease() {
			return Version{}, ErrAlreadyReleased
		}
	}

	if k.Label == "" {
		return next, nil
	}

	if k.Level != LevelNone {
		next.Pre = &PreRelease{Label: k.Label, Counter: 1}
		return next, nil
	}

	pre, err := nextPreRelease(baseline.Pre, k.Label)
	if err != nil {
		return Version{}, err
	}
	next.Pre = pre
	return next, nil
}

func nextPreRelease(current *PreRelease, requested Label) (*PreRelease, error) {
	if current == nil {
		return nil, ErrCannotIncreasePreRelease
	}
	switch {
	case current.Label == requested:
		return &PreRelease{Label: requested, Counter: current.Counter + 1}, nil
	case requested.rank() > current.Label.rank():
		return &PreRelease{Label: requested, Counter: 1}, nil
	default:
		return nil, ErrCannotIncreasePreRelease
	}
}
