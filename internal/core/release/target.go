package release

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"go.uber.org/multierr"
)

// =============================================================================
// Target Errors
// =============================================================================

var (
	ErrMissingRepository     = errors.New("repository is required")
	ErrUnsupportedRepository = errors.New("unsupported repository type")
	ErrNoHosts               = errors.New("at least one host is required")
	ErrMissingBasePath       = errors.New("base path is required")
	ErrRelativeBasePath      = errors.New("base path must be absolute")
	ErrInvalidEnvPolicy      = errors.New("invalid environment policy")
	ErrInvalidRetention      = errors.New("retention must be at least 1")
	ErrInvalidHookCommand    = errors.New("invalid hook command")
	ErrMissingSettingsFile   = errors.New("hook settings_file is required to copy local settings")
)

// DefaultRetain is the number of release directories kept per host.
const DefaultRetain = 10

// RepositoryTypeGit is the only supported repository type.
const RepositoryTypeGit = "git"

// =============================================================================
// Environment Policy
// =============================================================================

// EnvPolicy decides where the dependency environment of a release lives.
type EnvPolicy string

const (
	// EnvPerRelease builds one environment inside every release directory.
	EnvPerRelease EnvPolicy = "per_release"
	// EnvShared keeps one environment at the base path, reinstalled on every deploy.
	EnvShared EnvPolicy = "shared"
	// EnvNone leaves dependency management to someone else.
	EnvNone EnvPolicy = "none"
)

// ParseEnvPolicy parses a policy name. The legacy names "release"
// and "project" are accepted as aliases.
func ParseEnvPolicy(s string) (EnvPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "per_release", "per-release", "release":
		return EnvPerRelease, nil
	case "shared", "project":
		return EnvShared, nil
	case "none", "":
		return EnvNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEnvPolicy, s)
	}
}

// EnvironmentTooling holds the argv used to create an environment and to
// install a manifest into it. The environment directory and the manifest path
// are appended as the final argument.
type EnvironmentTooling struct {
	Create  []string `yaml:"create"`
	Install []string `yaml:"install"`
}

// DefaultEnvironmentTooling returns virtualenv + pip tooling.
func DefaultEnvironmentTooling() EnvironmentTooling {
	return EnvironmentTooling{
		Create:  []string{"virtualenv"},
		Install: []string{"pip", "install", "-q", "-r"},
	}
}

// HookConfig configures the command based pre-activation hook.
type HookConfig struct {
	// SettingsDir is the directory, relative to the release, that receives
	// the local settings file. Empty disables the copy.
	SettingsDir string `yaml:"settings_dir,omitempty"`

	// SettingsFile is the name the local settings file is copied to.
	SettingsFile string `yaml:"settings_file,omitempty"`

	// Commands run in the release directory with the environment activated.
	Commands []string `yaml:"commands,omitempty"`
}

// =============================================================================
// Deployment Target
// =============================================================================

// DeploymentTarget is the immutable configuration of a named environment
// such as "prod" or "staging". It is built once and passed by value.
type DeploymentTarget struct {
	Name           string             `yaml:"name"`
	Repository     string             `yaml:"repository"`
	RepositoryType string             `yaml:"repository_type"`
	Hosts          []string           `yaml:"hosts"`
	BasePath       string             `yaml:"base_path"`
	EnvPolicy      EnvPolicy          `yaml:"env_policy"`
	LocalSettings  string             `yaml:"local_settings,omitempty"`
	SourceDir      string             `yaml:"source_dir"`
	Manifest       string             `yaml:"manifest"`
	Retain         int                `yaml:"retain"`
	Environment    EnvironmentTooling `yaml:"environment"`
	Hook           HookConfig         `yaml:"hook"`
}

// NewDeploymentTarget builds a target with defaults applied and validates it.
func NewDeploymentTarget(t DeploymentTarget) (DeploymentTarget, error) {
	if t.RepositoryType == "" {
		t.RepositoryType = RepositoryTypeGit
	}
	if t.EnvPolicy == "" {
		t.EnvPolicy = EnvNone
	}
	if t.SourceDir == "" {
		t.SourceDir = "src"
	}
	if t.Manifest == "" {
		t.Manifest = t.SourceDir + "/requirements.txt"
	}
	if t.Retain == 0 {
		t.Retain = DefaultRetain
	}
	defaults := DefaultEnvironmentTooling()
	if len(t.Environment.Create) == 0 {
		t.Environment.Create = defaults.Create
	}
	if len(t.Environment.Install) == 0 {
		t.Environment.Install = defaults.Install
	}
	t.Hosts = append([]string(nil), t.Hosts...)
	t.Hook.Commands = append([]string(nil), t.Hook.Commands...)

	if err := t.Validate(); err != nil {
		return DeploymentTarget{}, err
	}
	return t, nil
}

// Validate reports every problem with the target at once.
func (t DeploymentTarget) Validate() error {
	var errs error
	if t.Repository == "" {
		errs = multierr.Append(errs, ErrMissingRepository)
	}
	if t.RepositoryType != RepositoryTypeGit {
		errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrUnsupportedRepository, t.RepositoryType))
	}
	if len(t.Hosts) == 0 {
		errs = multierr.Append(errs, ErrNoHosts)
	}
	switch {
	case t.BasePath == "":
		errs = multierr.Append(errs, ErrMissingBasePath)
	case !strings.HasPrefix(t.BasePath, "/"):
		errs = multierr.Append(errs, ErrRelativeBasePath)
	}
	switch t.EnvPolicy {
	case EnvPerRelease, EnvShared, EnvNone:
	default:
		errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrInvalidEnvPolicy, t.EnvPolicy))
	}
	if t.Retain < 1 {
		errs = multierr.Append(errs, ErrInvalidRetention)
	}
	if t.LocalSettings != "" && t.Hook.SettingsDir != "" && t.Hook.SettingsFile == "" {
		errs = multierr.Append(errs, ErrMissingSettingsFile)
	}
	for _, line := range t.Hook.Commands {
		if _, err := shellwords.Parse(line); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w %q: %v", ErrInvalidHookCommand, line, err))
		}
	}
	if errs != nil {
		return fmt.Errorf("target %q: %w", t.Name, errs)
	}
	return nil
}

// Layout returns the filesystem layout of the target.
func (t DeploymentTarget) Layout() Layout {
	return NewLayout(t.BasePath, t.SourceDir)
}
