package orchestrator

import (
	"context"

	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/ports"
	"github.com/edvin/devhost/internal/site"
)

// SiteSource lists the sites under a root directory.
type SiteSource interface {
	Discover(root string) ([]site.Site, error)
}

// Settings is the part of the settings store the orchestrator reads.
type Settings interface {
	SitesPath() string
	DeleteSite(name string) error
}

// Backends supervises one backend process per site, keyed by site name.
type Backends interface {
	Start(ctx context.Context, s site.Site) error
	Stop(ctx context.Context, name string) error
	IsRunning(name string) bool
	Running() []string
}

// Proxy renders and runs the shared reverse proxy.
type Proxy interface {
	GenerateConfig(sites []site.Site, alloc ports.Allocation) (string, error)
	WriteConfig(config string) error
	Converge(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Hosts binds and unbinds loopback aliases. Both calls are idempotent.
type Hosts interface {
	Bind(ctx context.Context, alias string) error
	Unbind(ctx context.Context, alias string) error
}

// AdminTool is the auxiliary admin service started with every pass.
type AdminTool interface {
	runtime.Service
	Alias() string
}

// Family is a group of auxiliary child processes stopped together by
// StopAll.
type Family interface {
	StopAll(ctx context.Context) error
}

// FamilyFunc adapts a function to Family.
type FamilyFunc func(ctx context.Context) error

func (f FamilyFunc) StopAll(ctx context.Context) error { return f(ctx) }
