package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/platform"
	"github.com/edvin/devhost/internal/process"
)

// AdminerManager serves the database admin tool with the PHP built-in
// server behind its own alias. It implements runtime.Service.
type AdminerManager struct {
	logger     zerolog.Logger
	php        *runtime.PHP
	dir        string
	port       int
	alias      string
	notify     events.Notifier
	phpVersion func() string

	procs *process.Registry[*process.Process]
}

var _ runtime.Service = (*AdminerManager)(nil)

func NewAdminerManager(logger zerolog.Logger, cfg Config, php *runtime.PHP, notify events.Notifier, phpVersion func() string) *AdminerManager {
	return &AdminerManager{
		logger:     logger.With().Str("component", "adminer-manager").Logger(),
		php:        php,
		dir:        cfg.AdminerDir,
		port:       cfg.AdminPort,
		alias:      cfg.AdminAlias,
		notify:     notify,
		phpVersion: phpVersion,
		procs:      process.NewRegistry[*process.Process](),
	}
}

func (m *AdminerManager) Key() string   { return platform.ServiceKey("tools", "adminer") }
func (m *AdminerManager) Native() bool  { return false }
func (m *AdminerManager) Alias() string { return m.alias }

// Start (re)spawns the admin tool. A running instance is killed first so it
// picks up the currently configured interpreter.
func (m *AdminerManager) Start(ctx context.Context) error {
	if p, ok := m.procs.Get(m.Key()); ok {
		if err := p.ForceStop(ctx); err != nil {
			return fmt.Errorf("restart adminer: %w", err)
		}
	}

	in, err := m.php.Resolve(m.phpVersion())
	if err != nil {
		m.notify.Error("adminer", err.Error())
		return fmt.Errorf("start adminer: %w", err)
	}
	if info, err := os.Stat(m.dir); err != nil || !info.IsDir() {
		err = fmt.Errorf("start adminer: directory %s missing", m.dir)
		m.notify.Error("adminer", err.Error())
		return err
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(m.port))
	opts := process.Options{
		Name: in.Exe,
		Args: in.ServerArgs(addr, m.dir),
		Dir:  m.dir,
		Stderr: func(line string) {
			m.logger.Debug().Msg(line)
			m.notify.Log("adminer", line)
		},
	}
	p, err := process.Spawn(m.procs, m.Key(), opts, func(_ *process.Process, err error) {
		metrics.ProcessExits.WithLabelValues("adminer").Inc()
		m.logger.Info().Int("code", process.ExitCode(err)).Msg("adminer exited")
	})
	if err != nil {
		m.notify.Error("adminer", err.Error())
		return fmt.Errorf("start adminer: %w", err)
	}

	m.logger.Info().Str("addr", addr).Int("pid", p.Pid()).Msg("adminer started")
	return nil
}

func (m *AdminerManager) Stop(ctx context.Context) error {
	p, ok := m.procs.Get(m.Key())
	if !ok {
		return nil
	}
	if err := p.Stop(ctx); err != nil {
		return fmt.Errorf("stop adminer: %w", err)
	}
	return nil
}

func (m *AdminerManager) IsRunning(context.Context) bool {
	return m.procs.Has(m.Key())
}
