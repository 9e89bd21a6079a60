package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/platform"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/site"
)

// ErrBroadcastNotInstalled means the site has no config/reverb.php.
var ErrBroadcastNotInstalled = errors.New("broadcast server not installed")

// BroadcastManager runs a Reverb websocket server per Laravel site
// (php artisan reverb:start), keyed "broadcast-<site>".
type BroadcastManager struct {
	logger zerolog.Logger
	php    *runtime.PHP
	notify events.Notifier
	procs  *process.Registry[*process.Process]
}

func NewBroadcastManager(logger zerolog.Logger, php *runtime.PHP, notify events.Notifier) *BroadcastManager {
	return &BroadcastManager{
		logger: logger.With().Str("component", "broadcast-manager").Logger(),
		php:    php,
		notify: notify,
		procs:  process.NewRegistry[*process.Process](),
	}
}

func broadcastKey(name string) string { return platform.ServiceKey("broadcast", name) }

// Installed reports whether the site has broadcasting configured.
func (m *BroadcastManager) Installed(s site.Site) bool {
	_, err := os.Stat(filepath.Join(s.Path, "config", "reverb.php"))
	return err == nil
}

// Install runs php artisan install:broadcasting and waits for it. Output is
// streamed as output events.
func (m *BroadcastManager) Install(ctx context.Context, s site.Site) error {
	key := broadcastKey(s.Name)
	in, err := m.php.Resolve(s.PHPVersion)
	if err != nil {
		return fmt.Errorf("install broadcasting for %s: %w", s.Name, err)
	}

	m.notify.Output(key, "Installing broadcasting for "+s.Name)
	p, err := process.Start(process.Options{
		Name:   in.Exe,
		Args:   []string{"artisan", "install:broadcasting", "--no-interaction"},
		Dir:    s.Path,
		Stdout: m.stream(key),
		Stderr: m.stream(key),
	})
	if err != nil {
		return fmt.Errorf("install broadcasting for %s: %w", s.Name, err)
	}
	if err := p.Wait(ctx); err != nil {
		_ = p.KillTree()
		return fmt.Errorf("install broadcasting for %s: %w", s.Name, err)
	}
	if code := p.ExitCode(); code != 0 {
		m.notify.Output(key, fmt.Sprintf("Installation failed with code %d", code))
		return fmt.Errorf("install broadcasting for %s: exited with code %d", s.Name, code)
	}
	m.notify.Output(key, "Broadcasting installed")
	return nil
}

// Start spawns the broadcast server. Already running is a no-op.
func (m *BroadcastManager) Start(ctx context.Context, s site.Site) error {
	key := broadcastKey(s.Name)
	if m.procs.Has(key) {
		return nil
	}
	if !m.Installed(s) {
		return fmt.Errorf("start broadcast for %s: %w", s.Name, ErrBroadcastNotInstalled)
	}
	in, err := m.php.Resolve(s.PHPVersion)
	if err != nil {
		return fmt.Errorf("start broadcast for %s: %w", s.Name, err)
	}

	opts := process.Options{
		Name:   in.Exe,
		Args:   []string{"artisan", "reverb:start"},
		Dir:    s.Path,
		Stdout: m.stream(key),
		Stderr: m.stream(key),
	}
	p, err := process.Spawn(m.procs, key, opts, func(_ *process.Process, err error) {
		code := process.ExitCode(err)
		metrics.ProcessExits.WithLabelValues("broadcast").Inc()
		if code != 0 {
			m.notify.Output(key, fmt.Sprintf("Broadcast server exited with code %d", code))
		}
		m.notify.Exit(key, code)
	})
	if err != nil {
		return fmt.Errorf("start broadcast for %s: %w", s.Name, err)
	}
	m.logger.Info().Str("site", s.Name).Int("pid", p.Pid()).Msg("broadcast server started")
	return nil
}

// Stop terminates the site's broadcast server and waits for it.
func (m *BroadcastManager) Stop(ctx context.Context, name string) error {
	p, ok := m.procs.Get(broadcastKey(name))
	if !ok {
		return nil
	}
	if err := p.Stop(ctx); err != nil {
		return fmt.Errorf("stop broadcast for %s: %w", name, err)
	}
	m.logger.Info().Str("site", name).Msg("broadcast server stopped")
	return nil
}

func (m *BroadcastManager) IsRunning(name string) bool {
	return m.procs.Has(broadcastKey(name))
}

// StopAll terminates every broadcast server, collecting failures.
func (m *BroadcastManager) StopAll(ctx context.Context) error {
	var errs []error
	for _, key := range m.procs.Keys() {
		p, ok := m.procs.Get(key)
		if !ok {
			continue
		}
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (m *BroadcastManager) stream(key string) process.LineHandler {
	return func(line string) { m.notify.Output(key, line) }
}
