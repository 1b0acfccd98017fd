// Package environment materializes dependency environments for releases.
package environment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/remote"
)

// Result describes the environment prepared for a release.
type Result struct {
	// Dir is the environment to activate for release commands.
	// Empty under EnvNone.
	Dir string

	// Created is true when the environment was created by this call.
	Created bool

	// Installed is true when dependencies were installed by this call.
	Installed bool
}

// Manager prepares environments according to a target's policy.
//
// Switching a target between policies is not supported: artifacts of the
// previous policy are left in place.
type Manager struct {
	logger *slog.Logger
}

// NewManager creates a new environment manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "environment")}
}

// Prepare runs the target's environment policy for version on exec.
//
//   - EnvPerRelease: create <release>/venv and install the release's manifest
//     if the environment does not exist yet, then point <base>/venv at it.
//   - EnvShared: create <base>/venv if absent and install the release's
//     manifest into it on every call.
//   - EnvNone: nothing.
func (m *Manager) Prepare(ctx context.Context, exec remote.Executor, target release.DeploymentTarget, version string) (Result, error) {
	switch target.EnvPolicy {
	case release.EnvPerRelease:
		return m.preparePerRelease(ctx, exec, target, version)
	case release.EnvShared:
		return m.prepareShared(ctx, exec, target, version)
	case release.EnvNone:
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", release.ErrInvalidEnvPolicy, target.EnvPolicy)
	}
}

func (m *Manager) preparePerRelease(ctx context.Context, exec remote.Executor, target release.DeploymentTarget, version string) (Result, error) {
	layout := target.Layout()
	envDir := layout.ReleaseEnv(version)
	res := Result{Dir: envDir}

	exists, err := exec.Exists(ctx, envDir)
	if err != nil {
		return res, fmt.Errorf("check environment: %w", err)
	}

	if !exists {
		if err := m.create(ctx, exec, target, version, envDir); err != nil {
			return res, err
		}
		res.Created = true

		if err := m.install(ctx, exec, target, version, envDir); err != nil {
			// Remove the half-built environment so the next deploy retries.
			_ = exec.RemoveAll(ctx, envDir)
			return res, err
		}
		res.Installed = true
	}

	if err := exec.Symlink(ctx, envDir, layout.Env()); err != nil {
		return res, fmt.Errorf("link environment: %w", err)
	}
	return res, nil
}

func (m *Manager) prepareShared(ctx context.Context, exec remote.Executor, target release.DeploymentTarget, version string) (Result, error) {
	envDir := target.Layout().Env()
	res := Result{Dir: envDir}

	exists, err := exec.Exists(ctx, envDir)
	if err != nil {
		return res, fmt.Errorf("check environment: %w", err)
	}

	if !exists {
		if err := m.create(ctx, exec, target, version, envDir); err != nil {
			return res, err
		}
		res.Created = true
	}

	if err := m.install(ctx, exec, target, version, envDir); err != nil {
		return res, err
	}
	res.Installed = true
	return res, nil
}

func (m *Manager) create(ctx context.Context, exec remote.Executor, target release.DeploymentTarget, version, envDir string) error {
	m.logger.Info("creating environment", "host", exec.Host(), "version", version, "path", envDir)

	args := append(append([]string(nil), target.Environment.Create...), envDir)
	if _, err := exec.Run(ctx, remote.Command{Args: args, Dir: target.Layout().Release(version)}); err != nil {
		return fmt.Errorf("create environment: %w", err)
	}
	return nil
}

func (m *Manager) install(ctx context.Context, exec remote.Executor, target release.DeploymentTarget, version, envDir string) error {
	layout := target.Layout()
	manifest := layout.ReleaseFile(version, target.Manifest)
	m.logger.Info("installing dependencies", "host", exec.Host(), "version", version, "manifest", manifest)

	args := append(append([]string(nil), target.Environment.Install...), manifest)
	cmd := remote.Command{Args: args, Dir: layout.Release(version), Activate: envDir}
	if _, err := exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}
	return nil
}
