// Package vcs talks to the version control system that stores release tags.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git runs git in a local working copy of the deployed repository.
type Git struct {
	dir    string // working copy
	remote string // remote tags are pushed to
	binary string
}

// NewGit creates a Git collaborator for the working copy in dir.
// An empty remote pushes to the default remote.
func NewGit(dir, remote string) *Git {
	if dir == "" {
		dir = "."
	}
	return &Git{dir: dir, remote: remote, binary: "git"}
}

// ListTags returns the tags matching a glob pattern, e.g. "*.*.*".
func (g *Git) ListTags(ctx context.Context, pattern string) ([]string, error) {
	args := []string{"tag", "--list"}
	if pattern != "" {
		args = append(args, pattern)
	}
	out, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// CreateTag creates an annotated tag at HEAD.
func (g *Git) CreateTag(ctx context.Context, tag, message string) error {
	_, err := g.run(ctx, "tag", "--annotate", tag, "--message", message)
	return err
}

// PushTags pushes all tags.
func (g *Git) PushTags(ctx context.Context) error {
	args := []string{"push", "--quiet", "--tags"}
	if g.remote != "" {
		args = append(args, g.remote)
	}
	_, err := g.run(ctx, args...)
	return err
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = g.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
