package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/shell/remote"
)

// DefaultConfigFile is read from the working directory when --config is not given.
const DefaultConfigFile = "releaser.yaml"

// ErrUnknownTarget is returned when a command names a target that is not configured.
var ErrUnknownTarget = errors.New("unknown target")

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Log      LogConfig               `mapstructure:"log"`
	Database DatabaseConfig          `mapstructure:"database"`
	Server   ServerConfig            `mapstructure:"server"`
	SSH      SSHConfig               `mapstructure:"ssh"`
	VCS      VCSConfig               `mapstructure:"vcs"`
	Targets  map[string]TargetConfig `mapstructure:"targets"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds the deploy history database configuration.
// An empty DSN disables history.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ServerConfig holds the status API configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SSHConfig holds the connection settings shared by all remote hosts.
type SSHConfig struct {
	User           string        `mapstructure:"user"`
	Port           int           `mapstructure:"port"`
	KeyFile        string        `mapstructure:"key_file"`
	Passphrase     string        `mapstructure:"passphrase"`
	KnownHosts     string        `mapstructure:"known_hosts"`
	Insecure       bool          `mapstructure:"insecure"`
	UseAgent       bool          `mapstructure:"use_agent"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// Remote converts the settings to the executor configuration.
func (c SSHConfig) Remote() remote.SSHConfig {
	return remote.SSHConfig{
		User:                  c.User,
		Port:                  c.Port,
		KeyFile:               c.KeyFile,
		Passphrase:            c.Passphrase,
		KnownHostsFile:        c.KnownHosts,
		InsecureIgnoreHostKey: c.Insecure,
		UseAgent:              c.UseAgent,
		ConnectTimeout:        c.ConnectTimeout,
		CommandTimeout:        c.CommandTimeout,
	}
}

// VCSConfig points at the local working copy that owns the tags.
type VCSConfig struct {
	Workdir    string `mapstructure:"workdir"`
	TagPattern string `mapstructure:"tag_pattern"`
	Remote     string `mapstructure:"remote"`
}

// TargetConfig is the raw configuration of one deployment target.
type TargetConfig struct {
	Repository     string            `mapstructure:"repository"`
	RepositoryType string            `mapstructure:"repository_type"`
	Hosts          []string          `mapstructure:"hosts"`
	BasePath       string            `mapstructure:"base_path"`
	EnvPolicy      string            `mapstructure:"env_policy"`
	LocalSettings  string            `mapstructure:"local_settings"`
	SourceDir      string            `mapstructure:"source_dir"`
	Manifest       string            `mapstructure:"manifest"`
	Retain         int               `mapstructure:"retain"`
	Environment    EnvironmentConfig `mapstructure:"environment"`
	Hook           HookConfig        `mapstructure:"hook"`
}

// EnvironmentConfig overrides the environment tooling.
type EnvironmentConfig struct {
	Create  []string `mapstructure:"create"`
	Install []string `mapstructure:"install"`
}

// HookConfig configures the pre-activation hook.
type HookConfig struct {
	SettingsDir  string   `mapstructure:"settings_dir"`
	SettingsFile string   `mapstructure:"settings_file"`
	Commands     []string `mapstructure:"commands"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
// An empty configPath reads DefaultConfigFile if it exists.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.dsn", "./data/releaser.db")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.key_file", "~/.ssh/id_ed25519")
	v.SetDefault("ssh.passphrase", "")
	v.SetDefault("ssh.known_hosts", "~/.ssh/known_hosts")
	v.SetDefault("ssh.insecure", false)
	v.SetDefault("ssh.use_agent", true)
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("ssh.command_timeout", "0s")
	v.SetDefault("vcs.workdir", ".")
	v.SetDefault("vcs.tag_pattern", "*.*.*")
	v.SetDefault("vcs.remote", "origin")

	if configPath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			configPath = DefaultConfigFile
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("RELEASER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DeploymentTargets builds and validates every configured target.
// All invalid targets are reported together.
func (c *Config) DeploymentTargets() (map[string]release.DeploymentTarget, error) {
	targets := make(map[string]release.DeploymentTarget, len(c.Targets))
	var errs error
	for _, name := range c.TargetNames() {
		target, err := c.Targets[name].build(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		targets[name] = target
	}
	if errs != nil {
		return nil, errs
	}
	return targets, nil
}

// Target builds and validates one target.
func (c *Config) Target(name string) (release.DeploymentTarget, error) {
	tc, ok := c.Targets[strings.ToLower(name)]
	if !ok {
		return release.DeploymentTarget{}, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownTarget, name, strings.Join(c.TargetNames(), ", "))
	}
	return tc.build(strings.ToLower(name))
}

// TargetNames returns the configured target names in order.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (tc TargetConfig) build(name string) (release.DeploymentTarget, error) {
	policy, err := release.ParseEnvPolicy(tc.EnvPolicy)
	if err != nil {
		return release.DeploymentTarget{}, fmt.Errorf("target %q: %w", name, err)
	}
	return release.NewDeploymentTarget(release.DeploymentTarget{
		Name:           name,
		Repository:     tc.Repository,
		RepositoryType: tc.RepositoryType,
		Hosts:          tc.Hosts,
		BasePath:       tc.BasePath,
		EnvPolicy:      policy,
		LocalSettings:  tc.LocalSettings,
		SourceDir:      tc.SourceDir,
		Manifest:       tc.Manifest,
		Retain:         tc.Retain,
		Environment: release.EnvironmentTooling{
			Create:  tc.Environment.Create,
			Install: tc.Environment.Install,
		},
		Hook: release.HookConfig{
			SettingsDir:  tc.Hook.SettingsDir,
			SettingsFile: tc.Hook.SettingsFile,
			Commands:     tc.Hook.Commands,
		},
	})
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format writing
// to w. Command output goes to stdout, so logs go to stderr.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
