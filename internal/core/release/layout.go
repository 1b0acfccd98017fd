package release

import (
	"path"
	"strings"
)

// =============================================================================
// Filesystem Layout
// =============================================================================

// Names of the entries under a target's base path and inside a release.
const (
	ReleasesDirName    = "releases"
	EnvDirName         = "venv"
	LogsDirName        = "logs"
	MediaDirName       = "media"
	CrontabFileName    = "crontab.txt"
	LockDirName        = ".releaser.lock"
	CrontabPlaceholder = "{{ project_dir }}"
)

// Layout derives every path a deploy touches from the base path.
// Paths are POSIX paths on the target host.
//
//	<base>/releases/<version>/         materialized checkout
//	<base>/releases/<version>/venv     per-release environment
//	<base>/releases/<version>/media -> <base>/media
//	<base>/venv                        shared environment, or link to the active release's
//	<base>/logs/, <base>/media/        shared directories
//	<base>/src -> <base>/releases/<version>/<source_dir>
type Layout struct {
	Base      string
	SourceDir string
}

// NewLayout returns the layout for a base path and source subdirectory.
func NewLayout(base, sourceDir string) Layout {
	if sourceDir == "" {
		sourceDir = "src"
	}
	return Layout{Base: path.Clean(base), SourceDir: sourceDir}
}

// Releases returns the directory holding all release directories.
func (l Layout) Releases() string { return path.Join(l.Base, ReleasesDirName) }

// Env returns the target level environment path (directory or link).
func (l Layout) Env() string { return path.Join(l.Base, EnvDirName) }

// Logs returns the shared logs directory.
func (l Layout) Logs() string { return path.Join(l.Base, LogsDirName) }

// Media returns the shared media directory.
func (l Layout) Media() string { return path.Join(l.Base, MediaDirName) }

// Current returns the cutover symlink naming the live release's source.
func (l Layout) Current() string { return path.Join(l.Base, l.SourceDir) }

// Lock returns the advisory lock directory.
func (l Layout) Lock() string { return path.Join(l.Base, LockDirName) }

// Release returns the directory of one release.
func (l Layout) Release(version string) string { return path.Join(l.Releases(), version) }

// ReleaseEnv returns the per-release environment directory.
func (l Layout) ReleaseEnv(version string) string {
	return path.Join(l.Release(version), EnvDirName)
}

// ReleaseSource returns the source subdirectory that the cutover link points at.
func (l Layout) ReleaseSource(version string) string {
	return path.Join(l.Release(version), l.SourceDir)
}

// ReleaseMedia returns the media link inside a release.
func (l Layout) ReleaseMedia(version string) string {
	return path.Join(l.Release(version), MediaDirName)
}

// ReleaseCrontab returns the crontab template inside a release.
func (l Layout) ReleaseCrontab(version string) string {
	return path.Join(l.Release(version), CrontabFileName)
}

// ReleaseFile resolves a path relative to a release directory.
func (l Layout) ReleaseFile(version, rel string) string {
	return path.Join(l.Release(version), rel)
}

// VersionOf returns the release version a cutover link target points into,
// or false if the target is not inside the releases directory.
func (l Layout) VersionOf(linkTarget string) (string, bool) {
	rest, ok := strings.CutPrefix(path.Clean(linkTarget), l.Releases()+"/")
	if !ok || rest == "" {
		return "", false
	}
	version, _, _ := strings.Cut(rest, "/")
	return version, true
}
