package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/settings"
)

// nativeUnits maps a service name fragment to its unit name per OS.
var nativeUnits = []struct {
	match string
	units map[string]string
}{
	{"postgresql", map[string]string{"windows": "postgresql-x64-16", "linux": "postgresql", "darwin": "postgresql"}},
	{"mariadb", map[string]string{"windows": "MySQL", "linux": "mariadb", "darwin": "mariadb"}},
	{"mysql", map[string]string{"windows": "MySQL", "linux": "mysql", "darwin": "mysql"}},
	{"mongodb", map[string]string{"windows": "MongoDB", "linux": "mongod", "darwin": "mongodb-community"}},
	{"redis", map[string]string{"windows": "memurai", "linux": "redis-server", "darwin": "redis"}},
}

// UnitFor looks up the platform unit for a service name. Matching is by
// case-insensitive substring, so "postgresql16" finds the postgresql unit.
func UnitFor(name, goos string) (string, bool) {
	lower := strings.ToLower(name)
	for _, n := range nativeUnits {
		if strings.Contains(lower, n.match) {
			unit, ok := n.units[goos]
			return unit, ok
		}
	}
	return "", false
}

// NewService builds the Service for a definition: a child service when it has
// a command, otherwise a native one. A definition that is neither yields an
// error.
func NewService(logger zerolog.Logger, def settings.ServiceDef, mgr ServiceManager, procs *process.Registry[*process.Process], notify events.Notifier) (Service, error) {
	if len(def.Command) > 0 {
		return NewChildService(logger, def, procs, notify), nil
	}
	unit := def.Unit
	if unit == "" {
		var ok bool
		if unit, ok = UnitFor(def.Name, goruntime.GOOS); !ok {
			return nil, fmt.Errorf("service %s: no known unit on %s and no command configured", def.Key(), goruntime.GOOS)
		}
	}
	return NewNativeService(logger, def.Key(), unit, mgr), nil
}

// NativeService delegates to the platform service manager.
type NativeService struct {
	logger zerolog.Logger
	key    string
	unit   string
	mgr    ServiceManager
}

func NewNativeService(logger zerolog.Logger, key, unit string, mgr ServiceManager) *NativeService {
	return &NativeService{
		logger: logger.With().Str("service", key).Str("unit", unit).Logger(),
		key:    key,
		unit:   unit,
		mgr:    mgr,
	}
}

func (s *NativeService) Key() string  { return s.key }
func (s *NativeService) Native() bool { return true }
func (s *NativeService) Unit() string { return s.unit }

func (s *NativeService) Start(ctx context.Context) error {
	s.logger.Info().Msg("starting native service")
	if err := s.mgr.Start(ctx, s.unit); err != nil {
		return fmt.Errorf("start %s: %w", s.key, err)
	}
	return nil
}

func (s *NativeService) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping native service")
	if err := s.mgr.Stop(ctx, s.unit); err != nil {
		return fmt.Errorf("stop %s: %w", s.key, err)
	}
	return nil
}

func (s *NativeService) IsRunning(ctx context.Context) bool {
	ok, err := s.mgr.IsActive(ctx, s.unit)
	if err != nil {
		s.logger.Debug().Err(err).Msg("status probe failed")
	}
	return ok
}

// ChildService runs a configured command and tracks it in a shared registry
// under its key.
type ChildService struct {
	logger  zerolog.Logger
	key     string
	command []string
	dir     string
	procs   *process.Registry[*process.Process]
	notify  events.Notifier
}

func NewChildService(logger zerolog.Logger, def settings.ServiceDef, procs *process.Registry[*process.Process], notify events.Notifier) *ChildService {
	return &ChildService{
		logger:  logger.With().Str("service", def.Key()).Logger(),
		key:     def.Key(),
		command: def.Command,
		dir:     def.Dir,
		procs:   procs,
		notify:  notify,
	}
}

func (s *ChildService) Key() string  { return s.key }
func (s *ChildService) Native() bool { return false }

// Start spawns the command unless it is already tracked.
func (s *ChildService) Start(_ context.Context) error {
	if s.procs.Has(s.key) {
		return nil
	}
	opts := process.Options{
		Name:   s.command[0],
		Args:   s.command[1:],
		Dir:    s.dir,
		Stdout: func(line string) { s.notify.Output(s.key, line) },
		Stderr: func(line string) { s.notify.Output(s.key, line) },
	}
	p, err := process.Spawn(s.procs, s.key, opts, func(_ *process.Process, err error) {
		code := process.ExitCode(err)
		metrics.ProcessExits.WithLabelValues("service").Inc()
		s.logger.Info().Int("code", code).Msg("service exited")
		s.notify.Exit(s.key, code)
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", s.key, err)
	}
	s.logger.Info().Int("pid", p.Pid()).Msg("service started")
	return nil
}

// Stop terminates the process and waits for its exit.
func (s *ChildService) Stop(ctx context.Context) error {
	p, ok := s.procs.Get(s.key)
	if !ok {
		return nil
	}
	if err := p.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", s.key, err)
	}
	return nil
}

func (s *ChildService) IsRunning(context.Context) bool {
	return s.procs.Has(s.key)
}
