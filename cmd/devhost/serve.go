package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/devhost/internal/agent"
	"github.com/edvin/devhost/internal/api"
	"github.com/edvin/devhost/internal/config"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/logging"
	"github.com/edvin/devhost/internal/mcpserver"
	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/probe"
	"github.com/edvin/devhost/internal/settings"
	"github.com/edvin/devhost/internal/site"
)

// shutdownTimeout bounds the HTTP drain only; process stops are not timed.
const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var noAutostart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the devhost daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if noAutostart {
				cfg.AutoStart = false
			}
			return serve(cfg)
		},
	}
	cmd.Flags().BoolVar(&noAutostart, "no-autostart", false, "do not start sites when the daemon starts")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := logging.NewLogger(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := settings.Open(cfg.SettingsPath(), settings.Defaults{
		SitesPath:  config.DefaultSitesPath(),
		PHPVersion: cfg.DefaultPHPVersion,
	})
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	bus := events.NewBus()
	agents := agent.NewServer(logger, agent.ConfigFrom(cfg), bus, store.PHPVersion)

	discoverer := site.NewDiscoverer(logger, nil, cfg.TLD)
	discoverer.VersionFor = store.PHPVersionFor

	orch := orchestrator.New(logger, orchestrator.Deps{
		Sites:    discoverer,
		Settings: store,
		Backends: agents.BackendManager(),
		Proxy:    agents.NginxManager(),
		Hosts:    agents.HostsManager(),
		Admin:    agents.AdminerManager(),
		Families: []orchestrator.Family{
			agents.BroadcastManager(),
			agents.DevToolManager(),
			orchestrator.FamilyFunc(agents.ServicesManager().StopChildren),
		},
		Notify: bus,
	}, orchestrator.Options{BasePort: cfg.BasePort, TLD: cfg.TLD})

	srv := api.NewServer(logger, cfg.APIToken, api.Deps{
		Orchestrator: orch,
		Broadcasts:   agents.BroadcastManager(),
		DevTools:     agents.DevToolManager(),
		Services:     agents.ServicesManager(),
		Settings:     store,
		Interpreters: agents.PHP(),
		Prober:       probe.NewProber(logger, probe.DefaultTimeout),
		Events:       bus,
		MCP:          mcpserver.New(logger, orch, version),
	})

	// No WriteTimeout: event streams stay open and a planning pass can
	// outlast any fixed budget.
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("version", version).Msg("starting devhost API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.AutoStart {
		go func() {
			sites, err := orch.StartAll(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("autostart finished with errors")
			}
			logger.Info().Int("sites", len(sites)).Msg("autostart complete")
		}()
	}

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	// Fresh context: the signal context is already cancelled.
	return orch.Shutdown(context.Background())
}
