package agent

import (
	"context"
	"errors"
	"io/fs"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/hosts"
)

// HostsManager keeps <alias> → 127.0.0.1 entries in the hosts file.
//
// Editing the hosts file usually needs elevated privileges. A permission
// failure is logged and swallowed: the site stays reachable on its port, and
// the caller continues.
type HostsManager struct {
	logger zerolog.Logger
	table  *hosts.Table
}

func NewHostsManager(logger zerolog.Logger, cfg Config) *HostsManager {
	return &HostsManager{
		logger: logger.With().Str("component", "hosts-manager").Logger(),
		table:  hosts.NewTable(cfg.HostsFile, cfg.HostsLockPath),
	}
}

// Bind adds alias. Already-bound aliases are left alone.
func (m *HostsManager) Bind(ctx context.Context, alias string) error {
	changed, err := m.table.Bind(ctx, alias)
	if err != nil {
		return m.handle(err, alias, "bind")
	}
	if changed {
		m.logger.Info().Str("alias", alias).Msg("bound alias")
	}
	return nil
}

// Unbind removes alias. Missing aliases are not an error.
func (m *HostsManager) Unbind(ctx context.Context, alias string) error {
	changed, err := m.table.Unbind(ctx, alias)
	if err != nil {
		return m.handle(err, alias, "unbind")
	}
	if changed {
		m.logger.Info().Str("alias", alias).Msg("unbound alias")
	}
	return nil
}

// IsBound reports whether alias currently resolves locally.
func (m *HostsManager) IsBound(alias string) bool {
	ok, err := m.table.Bound(alias)
	if err != nil {
		m.logger.Debug().Err(err).Str("alias", alias).Msg("hosts lookup failed")
	}
	return ok
}

func (m *HostsManager) handle(err error, alias, op string) error {
	if errors.Is(err, fs.ErrPermission) {
		m.logger.Warn().Err(err).Str("alias", alias).Str("hosts_file", m.table.Path()).
			Msgf("cannot %s alias without elevated privileges", op)
		return nil
	}
	m.logger.Error().Err(err).Str("alias", alias).Msgf("failed to %s alias", op)
	return err
}
