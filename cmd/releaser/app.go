package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/releaser/internal/shell/deployer"
	"github.com/artpar/releaser/internal/shell/environment"
	"github.com/artpar/releaser/internal/shell/remote"
	"github.com/artpar/releaser/internal/shell/store"
	"github.com/artpar/releaser/internal/shell/vcs"
)

// app holds what every command needs: configuration, logger and lazily
// built collaborators.
type app struct {
	configPath string
	logLevel   string

	stdout io.Writer
	stderr io.Writer

	cfg    *Config
	logger *slog.Logger
	pool   *remote.Pool
}

// load reads the configuration and sets up logging.
func (a *app) load() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return fail("load config", ExitConfigError, err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = SetupLogger(cfg, a.stderr)
	a.logger.Debug("configuration loaded", "config", a.configPath, "targets", cfg.TargetNames())
	return nil
}

// close releases open remote connections.
func (a *app) close() {
	if a.pool == nil {
		return
	}
	if err := a.pool.Close(); err != nil {
		a.logger.Warn("failed to close connections", "error", err)
	}
}

func (a *app) resolver() *vcs.Resolver {
	git := vcs.NewGit(a.cfg.VCS.Workdir, a.cfg.VCS.Remote)
	return vcs.NewResolver(git, a.cfg.VCS.TagPattern, a.logger)
}

func (a *app) executors() *remote.Pool {
	if a.pool == nil {
		a.pool = remote.NewPool(remote.NewFactory(a.cfg.SSH.Remote()))
	}
	return a.pool
}

// openStore opens the history database. It returns nil when history is
// disabled by an empty DSN.
func (a *app) openStore() (*store.SQLiteStore, error) {
	dsn := a.cfg.Database.DSN
	if dsn == "" {
		return nil, nil
	}
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fail("open database", ExitDatabaseError, fmt.Errorf("create data directory: %w", err))
		}
	}
	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, fail("open database", ExitDatabaseError, err)
	}
	return s, nil
}

// deployer builds a deployer recording into history when it is not nil.
func (a *app) deployer(history *store.SQLiteStore) *deployer.Deployer {
	opts := deployer.Options{
		Resolver:     a.resolver(),
		Executors:    a.executors(),
		Environments: environment.NewManager(a.logger),
		Logger:       a.logger,
	}
	if history != nil {
		opts.History = history
	}
	return deployer.New(opts)
}
