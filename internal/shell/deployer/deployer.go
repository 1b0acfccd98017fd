// Package deployer rolls a resolved release out to every host of a target.
//
// A host deploy materializes the release directory, prepares its environment,
// links the shared directories, runs the pre-activation hook, optionally
// installs the release's crontab and finally repoints the current source link.
// Everything before the cutover is invisible to users of the live release, so
// any failure up to that point leaves the previous release serving.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/core/version"
	"github.com/artpar/releaser/internal/shell/environment"
	"github.com/artpar/releaser/internal/shell/hook"
	"github.com/artpar/releaser/internal/shell/remote"
)

// ErrNoActiveRelease is returned by Current when a host has no live release.
var ErrNoActiveRelease = errors.New("no active release")

// =============================================================================
// Collaborators
// =============================================================================

// VersionResolver turns version requests into tags.
type VersionResolver interface {
	Preview(ctx context.Context, request string) (version.Resolution, error)
	Resolve(ctx context.Context, request, message string) (version.Resolution, error)
}

// ExecutorSource hands out executors per host. remote.Pool implements it.
type ExecutorSource interface {
	Get(host string) (remote.Executor, error)
}

// HistoryRecorder persists one record per host deploy.
type HistoryRecorder interface {
	CreateDeployRecord(ctx context.Context, record *release.DeployRecord) error
	FinishDeployRecord(ctx context.Context, record *release.DeployRecord) error
}

// Options configures a Deployer.
type Options struct {
	Resolver     VersionResolver
	Executors    ExecutorSource
	Environments *environment.Manager

	// Hook overrides the hook built from each target's configuration.
	Hook hook.PreActivationHook

	// History is optional.
	History HistoryRecorder

	Logger *slog.Logger
	Now    func() time.Time
}

// =============================================================================
// Requests and Results
// =============================================================================

// Request is one deploy invocation.
type Request struct {
	Target         release.DeploymentTarget
	VersionRequest string
	Message        string
	UpdateCron     bool

	// DryRun resolves without publishing and touches no host.
	DryRun bool
}

// HostResult reports the deploy on one host.
type HostResult struct {
	Host         string   `json:"host"`
	ReleasePath  string   `json:"release_path"`
	Materialized bool     `json:"materialized"`
	Pruned       []string `json:"pruned,omitempty"`

	// RetentionErr is set when pruning failed after a successful cutover.
	RetentionErr error `json:"-"`
}

// Result reports a deploy across all hosts of a target.
type Result struct {
	Tag     string       `json:"tag"`
	Created bool         `json:"created"`
	DryRun  bool         `json:"dry_run,omitempty"`
	Hosts   []HostResult `json:"hosts"`
}

// =============================================================================
// Deployer
// =============================================================================

// Deployer orchestrates deploys.
type Deployer struct {
	resolver     VersionResolver
	executors    ExecutorSource
	environments *environment.Manager
	hook         hook.PreActivationHook
	history      HistoryRecorder
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a deployer.
func New(opts Options) *Deployer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	envs := opts.Environments
	if envs == nil {
		envs = environment.NewManager(logger)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Deployer{
		resolver:     opts.Resolver,
		executors:    opts.Executors,
		environments: envs,
		hook:         opts.Hook,
		history:      opts.History,
		logger:       logger.With("component", "deployer"),
		now:          now,
	}
}

// Deploy resolves the version once and deploys it to the target's hosts in
// order, stopping at the first host that fails. The returned Result holds the
// hosts attempted so far.
func (d *Deployer) Deploy(ctx context.Context, req Request) (Result, error) {
	target := req.Target
	logger := d.logger.With("target", target.Name)

	// Built before resolving: a broken hook must not leave a published tag.
	preActivate := d.hook
	if preActivate == nil {
		var err error
		preActivate, err = hook.ForTarget(target, d.logger)
		if err != nil {
			return Result{}, err
		}
	}

	if req.DryRun {
		res, err := d.resolver.Preview(ctx, req.VersionRequest)
		if err != nil {
			return Result{}, err
		}
		result := Result{Tag: res.Tag, Created: res.Created, DryRun: true}
		for _, host := range target.Hosts {
			result.Hosts = append(result.Hosts, HostResult{
				Host:        host,
				ReleasePath: target.Layout().Release(res.Tag),
			})
		}
		logger.Info("dry run", "version", res.Tag, "created", res.Created)
		return result, nil
	}

	res, err := d.resolver.Resolve(ctx, req.VersionRequest, req.Message)
	if err != nil {
		return Result{}, err
	}
	logger.Info("deploying", "version", res.Tag, "created", res.Created, "hosts", len(target.Hosts))

	result := Result{Tag: res.Tag, Created: res.Created}
	for _, host := range target.Hosts {
		exec, err := d.executors.Get(host)
		if err != nil {
			return result, fmt.Errorf("host %s: %w", host, err)
		}

		hr, err := d.deployHost(ctx, exec, preActivate, req, res)
		result.Hosts = append(result.Hosts, hr)
		if err != nil {
			logger.Error("deploy failed", "host", host, "version", res.Tag, "error", err)
			return result, err
		}
	}

	logger.Info("deploy complete", "version", res.Tag)
	return result, nil
}

// deployHost runs one host deploy and records it in the history.
func (d *Deployer) deployHost(ctx context.Context, exec remote.Executor, preActivate hook.PreActivationHook, req Request, res version.Resolution) (HostResult, error) {
	record := release.NewDeployRecord(req.Target.Name, exec.Host(), req.VersionRequest, res.Tag, res.Created, req.Message, d.now())
	d.recordStart(ctx, &record)

	run := &hostRun{
		deployer:    d,
		exec:        exec,
		target:      req.Target,
		layout:      req.Target.Layout(),
		version:     res.Tag,
		updateCron:  req.UpdateCron,
		preActivate: preActivate,
		tracker:     release.NewTracker(),
		logger:      d.logger.With("target", req.Target.Name, "host", exec.Host(), "version", res.Tag),
	}
	hr, err := run.execute(ctx)

	outcome := err
	if outcome == nil {
		outcome = hr.RetentionErr
	}
	record = record.Finish(run.tracker.Stage(), hr.Pruned, outcome, d.now())
	d.recordFinish(ctx, &record)
	return hr, err
}

func (d *Deployer) recordStart(ctx context.Context, record *release.DeployRecord) {
	if d.history == nil {
		return
	}
	if err := d.history.CreateDeployRecord(ctx, record); err != nil {
		d.logger.Warn("failed to record deploy", "id", record.ID, "error", err)
	}
}

func (d *Deployer) recordFinish(ctx context.Context, record *release.DeployRecord) {
	if d.history == nil {
		return
	}
	if err := d.history.FinishDeployRecord(context.WithoutCancel(ctx), record); err != nil {
		d.logger.Warn("failed to record deploy outcome", "id", record.ID, "error", err)
	}
}

// =============================================================================
// Inspection
// =============================================================================

// Current returns the version the host's current source link points into.
func (d *Deployer) Current(ctx context.Context, target release.DeploymentTarget, host string) (string, error) {
	exec, err := d.executors.Get(host)
	if err != nil {
		return "", fmt.Errorf("host %s: %w", host, err)
	}
	return current(ctx, exec, target.Layout())
}

// Releases lists the release directories on host, newest first, marking the
// live one.
func (d *Deployer) Releases(ctx context.Context, target release.DeploymentTarget, host string) ([]release.ReleaseRecord, error) {
	exec, err := d.executors.Get(host)
	if err != nil {
		return nil, fmt.Errorf("host %s: %w", host, err)
	}

	layout := target.Layout()
	active, err := current(ctx, exec, layout)
	if err != nil && !errors.Is(err, ErrNoActiveRelease) {
		return nil, err
	}

	records, err := listReleases(ctx, exec, layout, active)
	if err != nil {
		return nil, err
	}
	release.SortRecords(records)
	return records, nil
}

func current(ctx context.Context, exec remote.Executor, layout release.Layout) (string, error) {
	exists, err := exec.Exists(ctx, layout.Current())
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNoActiveRelease
	}

	target, err := exec.ReadLink(ctx, layout.Current())
	if err != nil {
		return "", fmt.Errorf("read current link: %w", err)
	}
	v, ok := layout.VersionOf(target)
	if !ok {
		return "", fmt.Errorf("%w: %s points outside %s", ErrNoActiveRelease, target, layout.Releases())
	}
	return v, nil
}

// listReleases returns one record per release directory. Unfinished
// checkouts are skipped.
func listReleases(ctx context.Context, exec remote.Executor, layout release.Layout, active string) ([]release.ReleaseRecord, error) {
	exists, err := exec.Exists(ctx, layout.Releases())
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	entries, err := exec.ListDir(ctx, layout.Releases())
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}

	records := make([]release.ReleaseRecord, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir || strings.HasSuffix(e.Name, ".partial") {
			continue
		}
		records = append(records, release.ReleaseRecord{
			Version:   e.Name,
			Path:      layout.Release(e.Name),
			CreatedAt: e.ModTime,
			Active:    e.Name == active,
		})
	}
	return records, nil
}

// prune removes the release directories outside the retention window.
// Removal continues past failures; all failures are returned together.
func prune(ctx context.Context, exec remote.Executor, layout release.Layout, retain int, active string) ([]string, error) {
	records, err := listReleases(ctx, exec, layout, active)
	if err != nil {
		return nil, err
	}

	plan := release.PlanRetention(records, retain, active)
	var pruned []string
	var errs error
	for _, r := range plan.Prune {
		if err := exec.RemoveAll(ctx, r.Path); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", r.Version, err))
			continue
		}
		pruned = append(pruned, r.Version)
	}
	return pruned, errs
}
