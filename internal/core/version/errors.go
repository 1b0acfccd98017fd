package version

import (
	"errors"
	"fmt"
)

// =============================================================================
// Resolution Errors
// =============================================================================

var (
	// ErrInvalidKeyword is returned when a request is neither a known tag nor a valid keyword.
	ErrInvalidKeyword = errors.New("version does not exist or invalid keyword")

	// ErrVersionNotFound is returned when no candidate tag parses as a version.
	ErrVersionNotFound = errors.New("no semantic version tag found")

	// ErrAlreadyReleased is returned when "release" is requested on a final version.
	ErrAlreadyReleased = errors.New("there is already a final release, use major|minor|patch[-]alpha|beta|rc instead")

	// ErrCannotIncreasePreRelease is returned for an illegal pre-release transition.
	ErrCannotIncreasePreRelease = errors.New("unable to increase pre-release")
)

// ResolveError wraps a resolution error with the request and baseline involved.
type ResolveError struct {
	Request  string // Request as given by the caller
	Baseline string // Baseline tag, empty when resolution failed before selecting one
	Err      error
}

func (e *ResolveError) Error() string {
	if e.Baseline != "" {
		return fmt.Sprintf("resolve %q from %s: %v", e.Request, e.Baseline, e.Err)
	}
	return fmt.Sprintf("resolve %q: %v", e.Request, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

func newResolveError(request, baseline string, err error) *ResolveError {
	return &ResolveError{Request: request, Baseline: baseline, Err: err}
}
