package version

import "strings"

// =============================================================================
// Version Requests
// =============================================================================

// Level is the numeric component a keyword request bumps.
type Level string

const (
	LevelNone    Level = ""
	LevelMajor   Level = "major"
	LevelMinor   Level = "minor"
	LevelPatch   Level = "patch"
	LevelRelease Level = "release"
)

// Keyword is a parsed keyword request: a level, a pre-release label, or both.
type Keyword struct {
	Level Level
	Label Label // empty when no pre-release was requested
}

func (k Keyword) String() string {
	switch {
	case k.Level != LevelNone && k.Label != "":
		return string(k.Level) + "-" + string(k.Label)
	case k.Label != "":
		return string(k.Label)
	default:
		return string(k.Level)
	}
}

// ParseRequest parses a keyword request. Accepted forms:
//
//	<level>-<label>   level in major|minor|patch, label in alpha|beta|rc
//	<label>           alpha|beta|rc
//	<level>           major|minor|patch|release
//
// "release" cannot be combined with a label.
func ParseRequest(request string) (Keyword, error) {
	parts := strings.Split(request, "-")

	switch len(parts) {
	case 1:
		if label, ok := ParseLabel(parts[0]); ok {
			return Keyword{Label: label}, nil
		}
		switch Level(parts[0]) {
		case LevelMajor, LevelMinor, LevelPatch, LevelRelease:
			return Keyword{Level: Level(parts[0])}, nil
		}
	case 2:
		label, ok := ParseLabel(parts[1])
		if !ok {
			break
		}
		switch Level(parts[0]) {
		case LevelMajor, LevelMinor, LevelPatch:
			return Keyword{Level: Level(parts[0]), Label: label}, nil
		}
	}

	return Keyword{}, ErrInvalidKeyword
}
