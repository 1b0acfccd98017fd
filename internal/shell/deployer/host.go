package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/hook"
	"github.com/artpar/releaser/internal/shell/remote"
)

// hostRun is the state of one host deploy.
type hostRun struct {
	deployer    *Deployer
	exec        remote.Executor
	target      release.DeploymentTarget
	layout      release.Layout
	version     string
	updateCron  bool
	preActivate hook.PreActivationHook
	tracker     *release.Tracker
	logger      *slog.Logger

	result HostResult
	envDir string
}

// step is one deploy step. Its failure is reported as kind; on success the
// deploy advances to stage, if set.
type step struct {
	name  string
	kind  error
	stage release.Stage
	run   func(ctx context.Context) error
}

func (h *hostRun) steps() []step {
	return []step{
		{name: "materialize", kind: release.ErrMaterializeFailure, run: h.materialize},
		{name: "environment", kind: release.ErrEnvironmentFailure, run: h.prepareEnvironment},
		{name: "shared directories", kind: release.ErrEnvironmentFailure, stage: release.StageEnvironmentReady, run: h.linkShared},
		{name: "pre-activation hook", kind: release.ErrHookFailure, stage: release.StagePreActivated, run: h.runHook},
		{name: "crontab", kind: release.ErrCronFailure, run: h.installCrontab},
		{name: "cutover", kind: release.ErrCutoverFailure, stage: release.StageActive, run: h.cutover},
	}
}

// execute runs the steps under the host lock, then prunes old releases.
func (h *hostRun) execute(ctx context.Context) (HostResult, error) {
	h.result = HostResult{Host: h.exec.Host(), ReleasePath: h.layout.Release(h.version)}

	if err := h.lock(ctx); err != nil {
		return h.result, err
	}
	defer h.unlock(ctx)

	if err := h.tracker.Advance(release.StageMaterializing); err != nil {
		return h.result, err
	}

	for _, s := range h.steps() {
		h.logger.Debug("running step", "step", s.name)
		if err := s.run(ctx); err != nil {
			return h.result, release.NewStepError(h.exec.Host(), s.name, s.kind, err)
		}
		if s.stage != "" {
			if err := h.tracker.Advance(s.stage); err != nil {
				return h.result, err
			}
		}
	}
	h.logger.Info("release active", "path", h.layout.ReleaseSource(h.version))

	pruned, err := prune(ctx, h.exec, h.layout, h.target.Retain, h.version)
	h.result.Pruned = pruned
	if len(pruned) > 0 {
		h.logger.Info("pruned releases", "step", "retention", "versions", pruned)
	}
	if err != nil {
		h.result.RetentionErr = release.NewStepError(h.exec.Host(), "retention", release.ErrRetentionFailure, err)
		h.logger.Warn("retention failed", "step", "retention", "error", err)
	}
	return h.result, nil
}

// lock takes the advisory lock directory. A concurrent deploy of the same
// target on the same host fails here instead of racing on the cutover.
func (h *hostRun) lock(ctx context.Context) error {
	if err := h.exec.MkdirAll(ctx, h.layout.Releases()); err != nil {
		return release.NewStepError(h.exec.Host(), "lock", release.ErrLockFailure, err)
	}
	if err := h.exec.Mkdir(ctx, h.layout.Lock()); err != nil {
		if errors.Is(err, remote.ErrExists) {
			err = fmt.Errorf("%s exists, another deploy may be running", h.layout.Lock())
		}
		return release.NewStepError(h.exec.Host(), "lock", release.ErrLockFailure, err)
	}
	return nil
}

func (h *hostRun) unlock(ctx context.Context) {
	if err := h.exec.RemoveAll(context.WithoutCancel(ctx), h.layout.Lock()); err != nil {
		h.logger.Warn("failed to release deploy lock", "path", h.layout.Lock(), "error", err)
	}
}

// =============================================================================
// Steps
// =============================================================================

// materialize checks out the release unless its directory already exists.
func (h *hostRun) materialize(ctx context.Context) error {
	dir := h.layout.Release(h.version)
	exists, err := h.exec.Exists(ctx, dir)
	if err != nil {
		return err
	}
	if exists {
		h.logger.Info("release already materialized", "step", "materialize", "path", dir)
		return nil
	}

	h.logger.Info("materializing release", "step", "materialize", "path", dir)
	if err := h.exec.CheckoutAtTag(ctx, h.target.Repository, h.version, dir); err != nil {
		return err
	}
	h.result.Materialized = true
	return nil
}

func (h *hostRun) prepareEnvironment(ctx context.Context) error {
	env, err := h.deployer.environments.Prepare(ctx, h.exec, h.target, h.version)
	if err != nil {
		return err
	}
	h.envDir = env.Dir
	return nil
}

// linkShared ensures logs/ and media/ exist and links media/ into the release.
func (h *hostRun) linkShared(ctx context.Context) error {
	for _, dir := range []string{h.layout.Logs(), h.layout.Media()} {
		if err := h.exec.MkdirAll(ctx, dir); err != nil {
			return err
		}
	}
	return h.exec.Symlink(ctx, h.layout.Media(), h.layout.ReleaseMedia(h.version))
}

func (h *hostRun) runHook(ctx context.Context) error {
	return h.preActivate.Run(ctx, h.exec, hook.Context{
		Target:       h.target,
		ReleasesPath: h.layout.Releases(),
		Version:      h.version,
		ReleaseDir:   h.layout.Release(h.version),
		EnvDir:       h.envDir,
	})
}

// installCrontab replaces the host's crontab with the release's template.
// A release without a template leaves the crontab alone.
func (h *hostRun) installCrontab(ctx context.Context) error {
	if !h.updateCron {
		return nil
	}

	path := h.layout.ReleaseCrontab(h.version)
	exists, err := h.exec.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		h.logger.Info("release has no crontab", "step", "crontab")
		return nil
	}

	template, err := h.exec.ReadFile(ctx, path)
	if err != nil {
		return err
	}
	h.logger.Info("installing crontab", "step", "crontab")
	return h.exec.ReplaceCrontab(ctx, release.RenderCrontab(template, h.layout.Release(h.version)))
}

func (h *hostRun) cutover(ctx context.Context) error {
	h.logger.Info("cutting over", "step", "cutover", "link", h.layout.Current())
	return h.exec.SymlinkReplace(ctx, h.layout.ReleaseSource(h.version), h.layout.Current())
}
