// Package orchestrator drives the global lifecycle: one planning pass
// (discover, allocate, render, start backends, converge the proxy) on
// StartAll, and an unconditional teardown on StopAll.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/platform"
	"github.com/edvin/devhost/internal/ports"
	"github.com/edvin/devhost/internal/site"
)

type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

const source = "orchestrator"

// Deps are the collaborators the orchestrator drives.
type Deps struct {
	Sites    SiteSource
	Settings Settings
	Backends Backends
	Proxy    Proxy
	Hosts    Hosts
	Admin    AdminTool
	// Families are stopped in order by StopAll, before the site backends.
	Families []Family
	Notify   events.Notifier
}

type Options struct {
	// BasePort is the first backend port of every allocation.
	BasePort int
	// TLD derives aliases for tracked sites whose directory is gone.
	TLD string
}

// Result is what RestartAll reports to collaborators.
type Result struct {
	Success  bool        `json:"success"`
	Sites    []site.Site `json:"sites,omitempty"`
	Error    string      `json:"error,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// SiteStatus is one site with its detected project type.
type SiteStatus struct {
	site.Site
	ProjectType site.ProjectType `json:"project_type"`
}

// Orchestrator serializes the global operations behind one mutex. Toggles
// and deletes take the same lock so they never interleave with a pass.
type Orchestrator struct {
	logger zerolog.Logger
	deps   Deps
	opts   Options

	mu    sync.Mutex
	state State
	// alloc and planned are the result of the last planning pass.
	alloc   ports.Allocation
	planned []site.Site
}

func New(logger zerolog.Logger, deps Deps, opts Options) *Orchestrator {
	if deps.Notify == nil {
		deps.Notify = events.Discard
	}
	if opts.BasePort <= 0 {
		opts.BasePort = ports.DefaultBase
	}
	return &Orchestrator{
		logger: logger.With().Str("component", "orchestrator").Logger(),
		deps:   deps,
		opts:   opts,
		state:  StateStopped,
		alloc:  ports.Allocation{},
	}
}

// State returns the global state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// GetServicesStatus reports whether the services are started.
func (o *Orchestrator) GetServicesStatus() bool {
	return o.State() == StateRunning
}

// StartAll runs one planning pass. Backends are started one at a time and
// all of them before the proxy. Component failures do not abort the pass;
// they come back as a *DegradedError next to the site list. Only a
// discovery failure is fatal.
func (o *Orchestrator) StartAll(ctx context.Context) ([]site.Site, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	sites, err := o.startAll(ctx)
	metrics.Operations.WithLabelValues("start_all", metrics.ResultLabel(err)).Inc()
	return sites, err
}

// StopAll stops everything the orchestrator may have started. It is safe in
// any state; the proxy is killed even when earlier steps fail.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	err := o.stopAll(ctx)
	metrics.Operations.WithLabelValues("stop_all", metrics.ResultLabel(err)).Inc()
	return err
}

// RestartAll is StopAll strictly followed by StartAll. Stop failures are
// reported as warnings.
func (o *Orchestrator) RestartAll(ctx context.Context) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	var warnings []string
	if err := o.stopAll(ctx); err != nil {
		warnings = append(warnings, warningsFrom(err)...)
	}

	sites, err := o.startAll(ctx)
	metrics.Operations.WithLabelValues("restart_all", metrics.ResultLabel(err)).Inc()

	var de *DegradedError
	switch {
	case err == nil:
	case errors.As(err, &de):
		warnings = append(warnings, de.Messages()...)
	default:
		return Result{Success: false, Error: err.Error(), Warnings: warnings}
	}
	return Result{Success: true, Sites: sites, Warnings: warnings}
}

// Shutdown drives the system to Stopped before the process exits.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.logger.Info().Msg("shutting down")
	if err := o.StopAll(ctx); err != nil {
		o.logger.Error().Err(err).Msg("shutdown left components behind")
		return err
	}
	return nil
}

func (o *Orchestrator) startAll(ctx context.Context) ([]site.Site, error) {
	start := time.Now()
	defer func() { metrics.PlanningPassDuration.Observe(time.Since(start).Seconds()) }()

	var failures []error
	fail := func(err error) {
		o.logger.Error().Err(err).Msg("component failed")
		failures = append(failures, err)
	}

	// Tracked backends keep their ports across Start, so a new
	// allocation is only safe once they are gone.
	if o.state == StateRunning {
		o.logger.Info().Msg("start requested while running; stopping first")
		var de *DegradedError
		if err := o.stopAll(ctx); errors.As(err, &de) {
			failures = append(failures, de.Failures...)
		}
	}

	if err := o.deps.Admin.Start(ctx); err != nil {
		fail(fmt.Errorf("admin tool: %w", err))
	}
	if err := o.deps.Hosts.Bind(ctx, o.deps.Admin.Alias()); err != nil {
		fail(fmt.Errorf("bind %s: %w", o.deps.Admin.Alias(), err))
	}

	root := o.deps.Settings.SitesPath()
	sites, err := o.deps.Sites.Discover(root)
	if err != nil {
		err = fmt.Errorf("discover sites in %s: %w", root, err)
		o.deps.Notify.Error(source, err.Error())
		return nil, err
	}

	alloc := ports.Allocate(sites, o.opts.BasePort)
	sites = alloc.Apply(sites)

	configured := true
	config, err := o.deps.Proxy.GenerateConfig(sites, alloc)
	if err == nil {
		err = o.deps.Proxy.WriteConfig(config)
	}
	if err != nil {
		configured = false
		o.deps.Notify.Error(source, err.Error())
		fail(fmt.Errorf("proxy config: %w", err))
	}

	for _, s := range sites {
		if err := o.deps.Hosts.Bind(ctx, s.Alias); err != nil {
			fail(fmt.Errorf("bind %s: %w", s.Alias, err))
		}
		if err := o.deps.Backends.Start(ctx, s); err != nil {
			fail(fmt.Errorf("backend %s: %w", s.Name, err))
		}
	}

	if configured {
		if err := o.deps.Proxy.Converge(ctx); err != nil {
			fail(fmt.Errorf("proxy: %w", err))
		}
	}

	o.alloc = alloc
	o.planned = sites
	o.state = StateRunning
	o.deps.Notify.ServicesStatusChanged(true)

	for i := range sites {
		sites[i].Running = o.deps.Backends.IsRunning(sites[i].Name)
	}
	o.logger.Info().
		Int("sites", len(sites)).
		Int("failures", len(failures)).
		Dur("took", time.Since(start)).
		Msg("services started")
	return sites, degraded(failures)
}

func (o *Orchestrator) stopAll(ctx context.Context) error {
	var failures []error
	fail := func(err error) {
		o.logger.Error().Err(err).Msg("stop failed")
		failures = append(failures, err)
	}

	if err := o.deps.Admin.Stop(ctx); err != nil {
		fail(fmt.Errorf("admin tool: %w", err))
	}
	if err := o.deps.Hosts.Unbind(ctx, o.deps.Admin.Alias()); err != nil {
		fail(fmt.Errorf("unbind %s: %w", o.deps.Admin.Alias(), err))
	}

	for _, f := range o.deps.Families {
		if err := f.StopAll(ctx); err != nil {
			fail(err)
		}
	}

	for _, err := range o.stopSites(ctx) {
		fail(err)
	}

	if err := o.deps.Proxy.Stop(ctx); err != nil {
		fail(fmt.Errorf("proxy: %w", err))
	}

	o.state = StateStopped
	o.deps.Notify.ServicesStatusChanged(false)
	o.logger.Info().Int("failures", len(failures)).Msg("services stopped")
	return degraded(failures)
}

// stopSites stops every discovered or tracked backend concurrently and
// unbinds its alias.
func (o *Orchestrator) stopSites(ctx context.Context) []error {
	targets := o.stopTargets()

	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, s := range targets {
		g.Go(func() error {
			var siteErrs []error
			if err := o.deps.Backends.Stop(ctx, s.Name); err != nil {
				siteErrs = append(siteErrs, fmt.Errorf("backend %s: %w", s.Name, err))
			}
			if err := o.deps.Hosts.Unbind(ctx, s.Alias); err != nil {
				siteErrs = append(siteErrs, fmt.Errorf("unbind %s: %w", s.Alias, err))
			}
			errs[i] = errors.Join(siteErrs...)
			return nil
		})
	}
	_ = g.Wait()

	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// stopTargets is the union of the current directory listing, the last
// planning pass and the tracked backends, keyed by name.
func (o *Orchestrator) stopTargets() []site.Site {
	seen := map[string]bool{}
	var out []site.Site
	add := func(s site.Site) {
		if seen[s.Name] {
			return
		}
		seen[s.Name] = true
		out = append(out, s)
	}

	discovered, err := o.deps.Sites.Discover(o.deps.Settings.SitesPath())
	if err != nil {
		o.logger.Warn().Err(err).Msg("discovery failed during stop; using tracked sites")
	}
	for _, s := range discovered {
		add(s)
	}
	for _, s := range o.planned {
		add(s)
	}
	for _, name := range o.deps.Backends.Running() {
		add(site.Site{Name: name, Alias: platform.SiteAlias(name, o.opts.TLD)})
	}
	return out
}

// ToggleSite starts a stopped site or stops a running one and returns the
// new running state. The proxy and other sites are never touched; a start
// reuses the port from the last planning pass.
func (o *Orchestrator) ToggleSite(ctx context.Context, name string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	running, err := o.toggle(ctx, name)
	metrics.Operations.WithLabelValues("toggle_site", metrics.ResultLabel(err)).Inc()
	if err != nil {
		o.deps.Notify.Error(name, err.Error())
	}
	o.deps.Notify.SiteStatusChanged(name, running)
	return running, err
}

func (o *Orchestrator) toggle(ctx context.Context, name string) (bool, error) {
	if o.deps.Backends.IsRunning(name) {
		alias := platform.SiteAlias(name, o.opts.TLD)
		if s, ok := findSite(o.planned, name); ok {
			alias = s.Alias
		}
		if err := o.deps.Backends.Stop(ctx, name); err != nil {
			return o.deps.Backends.IsRunning(name), err
		}
		if err := o.deps.Hosts.Unbind(ctx, alias); err != nil {
			return false, fmt.Errorf("unbind %s: %w", alias, err)
		}
		o.logger.Info().Str("site", name).Msg("site stopped")
		return false, nil
	}

	s, err := o.discoverSite(name)
	if err != nil {
		return false, err
	}
	port, ok := o.alloc.Port(s.Alias)
	if !ok {
		return false, fmt.Errorf("start %s: %w", name, ErrNoPort)
	}
	s.Port = port

	if err := o.deps.Hosts.Bind(ctx, s.Alias); err != nil {
		return false, fmt.Errorf("bind %s: %w", s.Alias, err)
	}
	if err := o.deps.Backends.Start(ctx, s); err != nil {
		return false, err
	}
	o.logger.Info().Str("site", name).Int("port", port).Msg("site started")
	return true, nil
}

// GetSites discovers the sites afresh. Ports come from the last planning
// pass and are zero for sites that were not part of it.
func (o *Orchestrator) GetSites(ctx context.Context) ([]site.Site, error) {
	o.mu.Lock()
	alloc := o.alloc
	o.mu.Unlock()

	sites, err := o.deps.Sites.Discover(o.deps.Settings.SitesPath())
	if err != nil {
		return nil, fmt.Errorf("discover sites: %w", err)
	}
	for i := range sites {
		if port, ok := alloc.Port(sites[i].Alias); ok {
			sites[i].Port = port
		}
		sites[i].Running = o.deps.Backends.IsRunning(sites[i].Name)
	}
	return sites, nil
}

// GetSiteStatus returns one site with its project type.
func (o *Orchestrator) GetSiteStatus(ctx context.Context, name string) (SiteStatus, error) {
	sites, err := o.GetSites(ctx)
	if err != nil {
		return SiteStatus{}, err
	}
	s, ok := findSite(sites, name)
	if !ok {
		return SiteStatus{}, fmt.Errorf("%w: %s", ErrSiteNotFound, name)
	}
	return SiteStatus{Site: s, ProjectType: site.DetectProjectType(s.Path)}, nil
}

// DeleteSite stops the site, removes its directory and forgets its
// settings. The directory must resolve inside the sites root.
func (o *Orchestrator) DeleteSite(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	err := o.deleteSite(ctx, name)
	metrics.Operations.WithLabelValues("delete_site", metrics.ResultLabel(err)).Inc()
	return err
}

func (o *Orchestrator) deleteSite(ctx context.Context, name string) error {
	s, err := o.discoverSite(name)
	if err != nil {
		return err
	}
	root := o.deps.Settings.SitesPath()
	if !within(root, s.Path) {
		return fmt.Errorf("delete %s: %w", name, ErrOutsideRoot)
	}

	if err := o.deps.Backends.Stop(ctx, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if err := o.deps.Hosts.Unbind(ctx, s.Alias); err != nil {
		o.logger.Warn().Err(err).Str("site", name).Msg("could not unbind deleted site")
	}
	if err := os.RemoveAll(s.Path); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if err := o.deps.Settings.DeleteSite(name); err != nil {
		return fmt.Errorf("delete %s settings: %w", name, err)
	}

	o.logger.Info().Str("site", name).Str("path", s.Path).Msg("site deleted")
	o.deps.Notify.SiteStatusChanged(name, false)
	return nil
}

func (o *Orchestrator) discoverSite(name string) (site.Site, error) {
	sites, err := o.deps.Sites.Discover(o.deps.Settings.SitesPath())
	if err != nil {
		return site.Site{}, fmt.Errorf("discover sites: %w", err)
	}
	s, ok := findSite(sites, name)
	if !ok {
		return site.Site{}, fmt.Errorf("%w: %s", ErrSiteNotFound, name)
	}
	return s, nil
}

func findSite(sites []site.Site, name string) (site.Site, bool) {
	for _, s := range sites {
		if s.Name == name {
			return s, true
		}
	}
	return site.Site{}, false
}

// within reports whether path is a strict descendant of root.
func within(root, path string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func warningsFrom(err error) []string {
	var de *DegradedError
	if errors.As(err, &de) {
		return de.Messages()
	}
	return []string{err.Error()}
}
