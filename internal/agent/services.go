package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/settings"
)

// ErrUnknownService is returned for a category/name pair with no definition.
var ErrUnknownService = errors.New("unknown service")

// ServiceStatus is the collaborator view of one manageable service.
type ServiceStatus struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Key      string `json:"key"`
	Native   bool   `json:"native"`
	Running  bool   `json:"running"`
}

// ServicesManager turns service definitions into runtime.Services. Child
// services share one registry so StopChildren can find them all.
type ServicesManager struct {
	logger zerolog.Logger
	svcMgr runtime.ServiceManager
	notify events.Notifier
	procs  *process.Registry[*process.Process]
}

func NewServicesManager(logger zerolog.Logger, svcMgr runtime.ServiceManager, notify events.Notifier) *ServicesManager {
	return &ServicesManager{
		logger: logger.With().Str("component", "services-manager").Logger(),
		svcMgr: svcMgr,
		notify: notify,
		procs:  process.NewRegistry[*process.Process](),
	}
}

// Find returns the service defined as category/name.
func (m *ServicesManager) Find(defs []settings.ServiceDef, category, name string) (runtime.Service, error) {
	for _, d := range defs {
		if d.Category == category && d.Name == name {
			return runtime.NewService(m.logger, d, m.svcMgr, m.procs, m.notify)
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownService, category, name)
}

// Status probes every definition. Definitions that cannot be resolved on
// this platform are reported as not running.
func (m *ServicesManager) Status(ctx context.Context, defs []settings.ServiceDef) []ServiceStatus {
	out := make([]ServiceStatus, 0, len(defs))
	for _, d := range defs {
		st := ServiceStatus{Category: d.Category, Name: d.Name, Key: d.Key()}
		svc, err := runtime.NewService(m.logger, d, m.svcMgr, m.procs, m.notify)
		if err != nil {
			m.logger.Debug().Err(err).Msg("skipping unresolvable service")
		} else {
			st.Native = svc.Native()
			st.Running = svc.IsRunning(ctx)
		}
		out = append(out, st)
	}
	return out
}

// StopChildren terminates every child-process service and waits for each.
// Native services are left to the platform.
func (m *ServicesManager) StopChildren(ctx context.Context) error {
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
