package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/api/handler"
	mw "github.com/edvin/devhost/internal/api/middleware"
)

// Deps are the collaborators the routes are served from. MCP is optional.
type Deps struct {
	Orchestrator handler.Orchestrator
	Broadcasts   handler.Broadcasts
	DevTools     handler.DevTools
	Services     handler.Services
	Settings     handler.SettingsStore
	Interpreters handler.Interpreters
	Prober       handler.Capturer
	Events       handler.Subscriber
	MCP          http.Handler
}

type Server struct {
	router chi.Router
	logger zerolog.Logger
	deps   Deps
	token  string
}

// NewServer builds the control API. An empty token leaves /api/v1 open,
// which is only sensible on a loopback listener.
func NewServer(logger zerolog.Logger, token string, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger,
		deps:   deps,
		token:  token,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.token))

		lifecycle := handler.NewLifecycle(s.deps.Orchestrator)
		r.Get("/status", lifecycle.Status)
		r.Post("/start", lifecycle.Start)
		r.Post("/stop", lifecycle.Stop)
		r.Post("/restart", lifecycle.Restart)

		// Sites
		sites := handler.NewSite(s.logger, s.deps.Orchestrator, s.deps.DevTools, s.deps.Broadcasts, s.deps.Prober)
		r.Get("/sites", sites.List)
		r.Get("/sites/{name}", sites.Get)
		r.Delete("/sites/{name}", sites.Delete)
		r.Post("/sites/{name}/toggle", sites.Toggle)
		r.Post("/sites/{name}/capture", sites.Capture)

		broadcast := handler.NewBroadcast(sites, s.deps.Broadcasts)
		r.Get("/sites/{name}/broadcast", broadcast.Get)
		r.Post("/sites/{name}/broadcast/install", broadcast.Install)
		r.Post("/sites/{name}/broadcast/start", broadcast.Start)
		r.Post("/sites/{name}/broadcast/stop", broadcast.Stop)

		command := handler.NewCommand(sites, s.deps.DevTools)
		r.Get("/sites/{name}/commands", command.List)
		r.Post("/sites/{name}/commands", command.Run)
		r.Delete("/sites/{name}/commands/{command}", command.Stop)

		// Settings and interpreters
		settings := handler.NewSettings(s.deps.Settings)
		r.Get("/settings/{key}", settings.Get)
		r.Put("/settings/{key}", settings.Put)

		php := handler.NewPHP(s.deps.Interpreters, s.deps.Settings)
		r.Get("/php/versions", php.Versions)
		r.Put("/php/version", php.SetVersion)
		r.Delete("/php/versions/{version}", php.Remove)

		// Services
		service := handler.NewService(s.logger, s.deps.Services, s.deps.Settings)
		r.Get("/services", service.List)
		r.Post("/services", service.Create)
		r.Delete("/services/{category}/{name}", service.Delete)
		r.Post("/services/{category}/{name}/start", service.Start)
		r.Post("/services/{category}/{name}/stop", service.Stop)

		r.Get("/events", handler.NewEvents(s.logger, s.deps.Events).Stream)
	})

	if s.deps.MCP != nil {
		s.router.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.token))
			r.Mount("/mcp", s.deps.MCP)
		})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
