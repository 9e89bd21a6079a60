package handler

import (
	"context"

	"github.com/edvin/devhost/internal/agent"
	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/probe"
	"github.com/edvin/devhost/internal/settings"
	"github.com/edvin/devhost/internal/site"
)

// Orchestrator is the lifecycle surface the handlers drive.
type Orchestrator interface {
	StartAll(ctx context.Context) ([]site.Site, error)
	StopAll(ctx context.Context) error
	RestartAll(ctx context.Context) orchestrator.Result
	ToggleSite(ctx context.Context, name string) (bool, error)
	GetSites(ctx context.Context) ([]site.Site, error)
	GetSiteStatus(ctx context.Context, name string) (orchestrator.SiteStatus, error)
	GetServicesStatus() bool
	DeleteSite(ctx context.Context, name string) error
}

type Broadcasts interface {
	Installed(s site.Site) bool
	Install(ctx context.Context, s site.Site) error
	Start(ctx context.Context, s site.Site) error
	Stop(ctx context.Context, name string) error
	IsRunning(name string) bool
}

type DevTools interface {
	Run(ctx context.Context, s site.Site, command string) (string, error)
	Stop(ctx context.Context, siteName, command string) error
	Running(siteName string) []string
}

type Services interface {
	Find(defs []settings.ServiceDef, category, name string) (runtime.Service, error)
	Status(ctx context.Context, defs []settings.ServiceDef) []agent.ServiceStatus
}

// SettingsStore is the settings store as the handlers see it.
type SettingsStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	PHPVersion() string
	Services() []settings.ServiceDef
	SetServices(defs []settings.ServiceDef) error
}

type Interpreters interface {
	Versions() ([]string, error)
	Installed(version string) bool
	Remove(version string) error
}

type Capturer interface {
	Capture(ctx context.Context, url string) (probe.Snapshot, error)
}

type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}
