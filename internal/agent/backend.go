package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/site"
)

// BackendManager runs one PHP built-in server per site, keyed by site name.
type BackendManager struct {
	logger     zerolog.Logger
	php        *runtime.PHP
	notify     events.Notifier
	rewriteEnv bool
	classify   process.Classifier

	procs *process.Registry[*process.Process]
	// stopping marks processes whose exit we asked for.
	stopping sync.Map
}

func NewBackendManager(logger zerolog.Logger, cfg Config, php *runtime.PHP, notify events.Notifier) *BackendManager {
	return &BackendManager{
		logger:     logger.With().Str("component", "backend-manager").Logger(),
		php:        php,
		notify:     notify,
		rewriteEnv: cfg.RewriteEnv,
		classify:   runtime.ClassifyServerLine,
		procs:      process.NewRegistry[*process.Process](),
	}
}

// SetClassifier replaces the diagnostic line classifier. Call before the
// first Start.
func (m *BackendManager) SetClassifier(c process.Classifier) {
	m.classify = c
}

// Start spawns the site's backend on 127.0.0.1:<s.Port>. A site that is
// already tracked is left alone.
func (m *BackendManager) Start(ctx context.Context, s site.Site) error {
	if m.procs.Has(s.Name) {
		return nil
	}
	if s.Port <= 0 {
		return fmt.Errorf("start %s: no port assigned", s.Name)
	}

	in, err := m.php.Resolve(s.PHPVersion)
	if err != nil {
		m.logger.Error().Err(err).Str("site", s.Name).Msg("cannot start backend")
		m.notify.Error(s.Name, err.Error())
		return fmt.Errorf("start %s: %w", s.Name, err)
	}
	if info, err := os.Stat(s.DocumentRoot); err != nil || !info.IsDir() {
		err = fmt.Errorf("start %s: document root %s missing", s.Name, s.DocumentRoot)
		m.notify.Error(s.Name, err.Error())
		return err
	}

	if m.rewriteEnv {
		changed, err := site.RewriteEnvFile(s.Path, s.Alias)
		if err != nil {
			m.logger.Warn().Err(err).Str("site", s.Name).Msg("could not rewrite .env")
		} else if changed {
			m.logger.Debug().Str("site", s.Name).Msg("rewrote .env for alias")
		}
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.Port))
	opts := process.Options{
		Name:   in.Exe,
		Args:   in.ServerArgs(addr, s.DocumentRoot),
		Dir:    s.Path,
		Stderr: m.diagnostics(s.Name),
	}
	p, err := process.Spawn(m.procs, s.Name, opts, func(p *process.Process, err error) {
		m.exited(s.Name, p, err)
	})
	if err != nil {
		m.notify.Error(s.Name, err.Error())
		return fmt.Errorf("start %s: %w", s.Name, err)
	}

	metrics.SitesRunning.Set(float64(m.procs.Len()))
	m.logger.Info().
		Str("site", s.Name).
		Str("addr", addr).
		Str("php", in.Version).
		Int("pid", p.Pid()).
		Msg("backend started")
	return nil
}

// Stop terminates the site's backend and returns once its exit is observed.
// Stopping an untracked site succeeds.
func (m *BackendManager) Stop(ctx context.Context, name string) error {
	p, ok := m.procs.Get(name)
	if !ok {
		return nil
	}
	m.stopping.Store(p, struct{}{})
	if err := p.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	m.logger.Info().Str("site", name).Msg("backend stopped")
	return nil
}

func (m *BackendManager) IsRunning(name string) bool {
	return m.procs.Has(name)
}

// Running lists the tracked site names.
func (m *BackendManager) Running() []string {
	return m.procs.Keys()
}

func (m *BackendManager) diagnostics(name string) process.LineHandler {
	return func(line string) {
		if m.classify(line) == process.Routine {
			m.logger.Debug().Str("site", name).Msg(line)
			m.notify.Log(name, line)
			return
		}
		m.logger.Warn().Str("site", name).Msg(line)
		m.notify.Error(name, line)
	}
}

func (m *BackendManager) exited(name string, p *process.Process, err error) {
	metrics.ProcessExits.WithLabelValues("backend").Inc()
	metrics.SitesRunning.Set(float64(m.procs.Len()))

	if _, requested := m.stopping.LoadAndDelete(p); requested {
		return
	}
	code := process.ExitCode(err)
	m.logger.Warn().Str("site", name).Int("code", code).Msg("backend exited unexpectedly")
	if code != 0 {
		m.notify.Error(name, fmt.Sprintf("backend for %s exited with code %d", name, code))
	}
	m.notify.SiteStatusChanged(name, false)
}
