package agent

import (
	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/config"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
)

// Config holds what the process managers need from the daemon configuration.
type Config struct {
	BinDir string
	// NginxConfigPath is rewritten on every planning pass.
	NginxConfigPath string
	// NginxPrefix is passed to nginx as -p and holds its logs and temp dirs.
	NginxPrefix string
	ProxyPort   int

	AdminPort  int
	AdminAlias string
	AdminerDir string

	HostsFile     string
	HostsLockPath string

	// RewriteEnv points each site's .env APP_URL at its alias before start.
	RewriteEnv bool
	// ServiceManager selects the native service manager implementation.
	// "systemd", "windows", or "direct".
	ServiceManager string
}

// ConfigFrom derives the manager configuration from the daemon config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		BinDir:          cfg.BinDir,
		NginxConfigPath: cfg.NginxConfigPath(),
		NginxPrefix:     cfg.NginxDir(),
		ProxyPort:       cfg.ProxyPort,
		AdminPort:       cfg.AdminPort,
		AdminAlias:      cfg.AdminAlias,
		AdminerDir:      cfg.AdminerDir(),
		HostsFile:       cfg.HostsFile,
		HostsLockPath:   cfg.HostsLockPath(),
		RewriteEnv:      cfg.RewriteEnv,
		ServiceManager:  cfg.ServiceManager,
	}
}

// Server owns every process manager. Each manager has its own registry and
// is the only writer to it.
type Server struct {
	logger    zerolog.Logger
	php       *runtime.PHP
	svcMgr    runtime.ServiceManager
	hosts     *HostsManager
	backend   *BackendManager
	nginx     *NginxManager
	adminer   *AdminerManager
	broadcast *BroadcastManager
	devtools  *DevToolManager
	services  *ServicesManager
}

// NewServer creates the managers. phpVersion returns the currently
// configured interpreter version for services that are not tied to a site.
func NewServer(logger zerolog.Logger, cfg Config, notify events.Notifier, phpVersion func() string) *Server {
	svcMgr := runtime.NewServiceManager(logger, cfg.ServiceManager)
	php := runtime.NewPHP(logger, cfg.BinDir)

	s := &Server{
		logger:    logger.With().Str("component", "agent-server").Logger(),
		php:       php,
		svcMgr:    svcMgr,
		hosts:     NewHostsManager(logger, cfg),
		backend:   NewBackendManager(logger, cfg, php, notify),
		nginx:     NewNginxManager(logger, cfg, notify),
		adminer:   NewAdminerManager(logger, cfg, php, notify, phpVersion),
		broadcast: NewBroadcastManager(logger, php, notify),
		devtools:  NewDevToolManager(logger, notify),
		services:  NewServicesManager(logger, svcMgr, notify),
	}

	metrics.RegisterTracked("backend", s.backend.procs.Len)
	metrics.RegisterTracked("broadcast", s.broadcast.procs.Len)
	metrics.RegisterTracked("devtool", s.devtools.procs.Len)
	metrics.RegisterTracked("service", s.services.procs.Len)
	return s
}

// PHP returns the interpreter locator.
func (s *Server) PHP() *runtime.PHP { return s.php }

// HostsManager returns the server's hosts manager.
func (s *Server) HostsManager() *HostsManager { return s.hosts }

// BackendManager returns the server's site backend manager.
func (s *Server) BackendManager() *BackendManager { return s.backend }

// NginxManager returns the server's proxy manager.
func (s *Server) NginxManager() *NginxManager { return s.nginx }

// AdminerManager returns the server's admin tool manager.
func (s *Server) AdminerManager() *AdminerManager { return s.adminer }

// BroadcastManager returns the server's broadcast server manager.
func (s *Server) BroadcastManager() *BroadcastManager { return s.broadcast }

// DevToolManager returns the server's dev-tool command manager.
func (s *Server) DevToolManager() *DevToolManager { return s.devtools }

// ServicesManager returns the server's manageable services.
func (s *Server) ServicesManager() *ServicesManager { return s.services }
