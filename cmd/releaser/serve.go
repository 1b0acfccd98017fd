package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/releaser/internal/shell/api"
	"github.com/artpar/releaser/internal/shell/store"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := NewServer(a)
			if err != nil {
				return err
			}
			return server.Start(cmd.Context())
		},
	}
}

// =============================================================================
// Server
// =============================================================================

// Server serves the status API over deploy history and target configuration.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	logger     *slog.Logger
}

// NewServer opens the history database and builds the HTTP server.
func NewServer(a *app) (*Server, error) {
	targets, err := a.cfg.DeploymentTargets()
	if err != nil {
		return nil, fail("NewServer", ExitConfigError, err)
	}

	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fail("NewServer", ExitConfigError, errors.New("the status API needs deploy history (database.dsn is empty)"))
	}

	handler := api.NewHandler(s, targets, a.deployer(nil), a.logger)

	return &Server{
		config: a.cfg,
		httpServer: &http.Server{
			Addr:         a.cfg.Server.Address(),
			Handler:      handler.Routes(),
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		},
		store:  s,
		logger: a.logger,
	}, nil
}

// Start serves until the context is cancelled or a shutdown signal arrives.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.store.Close()
		return fail("Start", ExitHTTPServerError, fmt.Errorf("listen on %s: %w", s.config.Server.Address(), err))
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}
