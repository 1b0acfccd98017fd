// Package remote runs deploy operations on target hosts.
//
// Every operation a deploy needs is a typed method on Executor; callers never
// assemble shell strings themselves. SSHExecutor runs them on a remote host
// over SSH, LocalExecutor runs them on this machine.
package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

// =============================================================================
// Executor Interface
// =============================================================================

// Executor performs filesystem and command operations on one host.
// Paths are absolute POSIX paths on that host.
type Executor interface {
	// Host returns the host this executor talks to.
	Host() string

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(ctx context.Context, dir string) error

	// Mkdir creates a single directory and fails with ErrExists if the path
	// already exists. Used as an advisory lock.
	Mkdir(ctx context.Context, dir string) error

	// Exists reports whether a path exists. Dangling symlinks exist.
	Exists(ctx context.Context, p string) (bool, error)

	// RemoveAll removes a path recursively. A symlink is removed, not followed.
	RemoveAll(ctx context.Context, p string) error

	// Symlink removes link and creates it pointing at target. Not atomic:
	// link is briefly absent.
	Symlink(ctx context.Context, target, link string) error

	// SymlinkReplace points link at target with a single rename, so readers
	// see either the old or the new target.
	SymlinkReplace(ctx context.Context, target, link string) error

	// ReadLink returns the target of a symlink.
	ReadLink(ctx context.Context, link string) (string, error)

	// CheckoutAtTag materializes repository at tag into dir without VCS
	// metadata. dir appears only once the checkout is complete.
	CheckoutAtTag(ctx context.Context, repository, tag, dir string) error

	// Run executes a command and returns its combined output.
	Run(ctx context.Context, cmd Command) (string, error)

	// ListDir lists the entries of a directory with their modification times.
	ListDir(ctx context.Context, dir string) ([]Entry, error)

	// ReadFile returns the contents of a file.
	ReadFile(ctx context.Context, p string) ([]byte, error)

	// ReplaceCrontab removes the user's crontab and installs content.
	// Not atomic: the crontab is briefly empty.
	ReplaceCrontab(ctx context.Context, content []byte) error

	// Close releases the connection, if any.
	Close() error
}

// Entry is a directory entry.
type Entry struct {
	Name    string
	IsDir   bool
	ModTime time.Time
}

// =============================================================================
// Commands
// =============================================================================

// Command is a command to run on a host. Args are quoted individually, so
// values such as paths and versions never need escaping by the caller.
type Command struct {
	Args []string

	// Dir is the working directory. Empty means the login directory.
	Dir string

	// Activate names an environment directory whose bin/activate script is
	// sourced before the command runs.
	Activate string

	// Stdin is written to the command's standard input.
	Stdin []byte
}

// String renders the command as a single shell line.
//
// Example:
//
//	Command{Args: []string{"pip", "install", "-r", "req s.txt"}, Dir: "/srv/app", Activate: "/srv/venv"}.String()
//	// cd /srv/app && . /srv/venv/bin/activate && pip install -r 'req s.txt'
func (c Command) String() string {
	parts := make([]string, 0, 3)
	if c.Dir != "" {
		parts = append(parts, "cd "+shellescape.Quote(c.Dir))
	}
	if c.Activate != "" {
		parts = append(parts, ". "+shellescape.Quote(path.Join(c.Activate, "bin", "activate")))
	}
	parts = append(parts, shellescape.QuoteCommand(c.Args))
	return strings.Join(parts, " && ")
}

// checkoutScript clones a tag into a temporary sibling of dir, strips the
// VCS metadata and renames it into place.
func checkoutScript(repository, tag, dir string) string {
	tmp := dir + ".partial"
	return strings.Join([]string{
		shellescape.QuoteCommand([]string{"rm", "-rf", tmp}),
		shellescape.QuoteCommand([]string{"git", "clone", "--quiet", "--depth", "1", "--branch", tag, repository, tmp}),
		shellescape.QuoteCommand([]string{"rm", "-rf", path.Join(tmp, ".git")}),
		shellescape.QuoteCommand([]string{"mv", "-T", tmp, dir}),
	}, " && ")
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrCommandFailed is returned when a command exits non-zero.
	ErrCommandFailed = errors.New("command failed")

	// ErrExists is returned by Mkdir when the path already exists.
	ErrExists = errors.New("path already exists")

	// ErrConnectionFailed is returned when the host cannot be reached.
	ErrConnectionFailed = errors.New("connection failed")
)

// CommandError carries the raw output and exit status of a failed command.
type CommandError struct {
	Host     string
	Command  string
	ExitCode int // -1 when the command did not exit normally
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out != "" {
		return fmt.Sprintf("%s: %q exited %d: %s", e.Host, e.Command, e.ExitCode, out)
	}
	return fmt.Sprintf("%s: %q exited %d", e.Host, e.Command, e.ExitCode)
}

func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}

// ExitCode returns the exit code carried by err, or -1.
func ExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}
