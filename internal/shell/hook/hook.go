// Package hook runs application specific steps before a release goes live.
package hook

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/mattn/go-shellwords"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/remote"
)

// Context describes the release a hook runs against.
type Context struct {
	Target       release.DeploymentTarget
	ReleasesPath string
	Version      string

	// ReleaseDir is ReleasesPath/Version.
	ReleaseDir string

	// EnvDir is the environment to activate. Empty when the target has none.
	EnvDir string
}

// PreActivationHook runs after the release is prepared and before cutover.
// A returned error aborts the deploy and leaves the previous release live.
type PreActivationHook interface {
	Run(ctx context.Context, exec remote.Executor, hc Context) error
}

// HookFunc adapts a function to PreActivationHook.
type HookFunc func(ctx context.Context, exec remote.Executor, hc Context) error

// Run calls f.
func (f HookFunc) Run(ctx context.Context, exec remote.Executor, hc Context) error {
	return f(ctx, exec, hc)
}

// Noop does nothing.
var Noop PreActivationHook = HookFunc(func(context.Context, remote.Executor, Context) error { return nil })

// =============================================================================
// Command Hook
// =============================================================================

// CommandHook installs the target's local settings file and then runs a list
// of commands in the release directory with the environment activated.
type CommandHook struct {
	config   release.HookConfig
	commands [][]string
	logger   *slog.Logger
}

// NewCommandHook parses the configured commands.
func NewCommandHook(config release.HookConfig, logger *slog.Logger) (*CommandHook, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parser := shellwords.NewParser()
	commands := make([][]string, 0, len(config.Commands))
	for _, line := range config.Commands {
		args, err := parser.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", release.ErrInvalidHookCommand, line, err)
		}
		if len(args) == 0 {
			continue
		}
		commands = append(commands, args)
	}

	return &CommandHook{
		config:   config,
		commands: commands,
		logger:   logger.With("component", "hook"),
	}, nil
}

// Run implements PreActivationHook.
func (h *CommandHook) Run(ctx context.Context, exec remote.Executor, hc Context) error {
	if err := h.installSettings(ctx, exec, hc); err != nil {
		return err
	}

	for _, args := range h.commands {
		cmd := remote.Command{Args: args, Dir: hc.ReleaseDir, Activate: hc.EnvDir}
		h.logger.Info("running hook command", "host", exec.Host(), "version", hc.Version, "command", cmd.String())
		if _, err := exec.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// installSettings copies the target's local settings file to the settings
// file name unless the release already has one.
func (h *CommandHook) installSettings(ctx context.Context, exec remote.Executor, hc Context) error {
	if hc.Target.LocalSettings == "" || h.config.SettingsDir == "" || h.config.SettingsFile == "" {
		return nil
	}

	dir := path.Join(hc.ReleaseDir, h.config.SettingsDir)
	exists, err := exec.Exists(ctx, path.Join(dir, h.config.SettingsFile))
	if err != nil {
		return fmt.Errorf("check settings file: %w", err)
	}
	if exists {
		return nil
	}

	h.logger.Info("installing local settings", "host", exec.Host(), "version", hc.Version,
		"from", hc.Target.LocalSettings, "to", h.config.SettingsFile)
	cmd := remote.Command{Args: []string{"cp", hc.Target.LocalSettings, h.config.SettingsFile}, Dir: dir}
	if _, err := exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("install settings: %w", err)
	}
	return nil
}

// ForTarget returns the command hook configured for target, or Noop when the
// target configures neither commands nor a settings copy.
func ForTarget(target release.DeploymentTarget, logger *slog.Logger) (PreActivationHook, error) {
	if len(target.Hook.Commands) == 0 && (target.LocalSettings == "" || target.Hook.SettingsDir == "") {
		return Noop, nil
	}
	return NewCommandHook(target.Hook, logger)
}
