package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/edvin/devhost/internal/agent"
	"github.com/edvin/devhost/internal/agent/runtime"
	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/probe"
	"github.com/edvin/devhost/internal/settings"
	"github.com/edvin/devhost/internal/site"
)

type fakeOrch struct {
	mu       sync.Mutex
	sites    []site.Site
	running  bool
	startErr error
	stopErr  error
	restart  orchestrator.Result
	toggled  chan string
	deleted  []string

	// cancelled records every call that received an already-cancelled context.
	cancelled []string
}

func newFakeOrch(sites ...site.Site) *fakeOrch {
	return &fakeOrch{sites: sites, toggled: make(chan string, 4)}
}

func (f *fakeOrch) observe(ctx context.Context, op string) {
	if ctx.Err() != nil {
		f.mu.Lock()
		f.cancelled = append(f.cancelled, op)
		f.mu.Unlock()
	}
}

func (f *fakeOrch) StartAll(ctx context.Context) ([]site.Site, error) {
	f.observe(ctx, "start")
	f.running = true
	return f.sites, f.startErr
}

func (f *fakeOrch) StopAll(ctx context.Context) error {
	f.observe(ctx, "stop")
	f.running = false
	return f.stopErr
}

func (f *fakeOrch) RestartAll(ctx context.Context) orchestrator.Result {
	f.observe(ctx, "restart")
	return f.restart
}

func (f *fakeOrch) ToggleSite(_ context.Context, name string) (bool, error) {
	f.toggled <- name
	return true, nil
}

func (f *fakeOrch) GetSites(context.Context) ([]site.Site, error) { return f.sites, nil }

func (f *fakeOrch) GetSiteStatus(_ context.Context, name string) (orchestrator.SiteStatus, error) {
	for _, s := range f.sites {
		if s.Name == name {
			return orchestrator.SiteStatus{Site: s, ProjectType: site.ProjectLaravel}, nil
		}
	}
	return orchestrator.SiteStatus{}, fmt.Errorf("%w: %s", orchestrator.ErrSiteNotFound, name)
}

func (f *fakeOrch) GetServicesStatus() bool { return f.running }

func (f *fakeOrch) DeleteSite(ctx context.Context, name string) error {
	f.observe(ctx, "delete")
	if _, err := f.GetSiteStatus(ctx, name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

type fakeBroadcasts struct {
	installed  bool
	running    map[string]bool
	installErr error
}

func (f *fakeBroadcasts) Installed(site.Site) bool { return f.installed }

func (f *fakeBroadcasts) Install(context.Context, site.Site) error {
	if f.installErr != nil {
		return f.installErr
	}
	f.installed = true
	return nil
}

func (f *fakeBroadcasts) Start(_ context.Context, s site.Site) error {
	if !f.installed {
		return agent.ErrBroadcastNotInstalled
	}
	f.running[s.Name] = true
	return nil
}

func (f *fakeBroadcasts) Stop(_ context.Context, name string) error {
	delete(f.running, name)
	return nil
}

func (f *fakeBroadcasts) IsRunning(name string) bool { return f.running[name] }

type fakeDevTools struct {
	running map[string][]string
	stopped []string
}

func (f *fakeDevTools) Run(_ context.Context, s site.Site, command string) (string, error) {
	if command == "bad;cmd" {
		return "", agent.ErrInvalidCommand
	}
	f.running[s.Name] = append(f.running[s.Name], command)
	return s.Name + "-" + command, nil
}

func (f *fakeDevTools) Stop(_ context.Context, siteName, command string) error {
	f.stopped = append(f.stopped, siteName+"-"+command)
	return nil
}

func (f *fakeDevTools) Running(siteName string) []string {
	if cmds := f.running[siteName]; cmds != nil {
		return cmds
	}
	return []string{}
}

type fakeService struct {
	key     string
	running bool
	stopped int
}

func (s *fakeService) Key() string                    { return s.key }
func (s *fakeService) Native() bool                   { return false }
func (s *fakeService) Start(context.Context) error    { s.running = true; return nil }
func (s *fakeService) Stop(context.Context) error     { s.running = false; s.stopped++; return nil }
func (s *fakeService) IsRunning(context.Context) bool { return s.running }

type fakeServices struct {
	svcs map[string]*fakeService
}

func (f *fakeServices) Find(defs []settings.ServiceDef, category, name string) (runtime.Service, error) {
	for _, d := range defs {
		if d.Category == category && d.Name == name {
			svc, ok := f.svcs[d.Key()]
			if !ok {
				svc = &fakeService{key: d.Key()}
				f.svcs[d.Key()] = svc
			}
			return svc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", agent.ErrUnknownService, category, name)
}

func (f *fakeServices) Status(ctx context.Context, defs []settings.ServiceDef) []agent.ServiceStatus {
	out := make([]agent.ServiceStatus, 0, len(defs))
	for _, d := range defs {
		st := agent.ServiceStatus{Category: d.Category, Name: d.Name, Key: d.Key()}
		if svc, ok := f.svcs[d.Key()]; ok {
			st.Running = svc.IsRunning(ctx)
		}
		out = append(out, st)
	}
	return out
}

type fakeStore struct {
	values   map[string]string
	services []settings.ServiceDef
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{settings.KeyPHPVersion: "8.4.12"}}
}

func (f *fakeStore) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeStore) Set(key, value string) error {
	if key == "bad key" {
		return settings.ErrInvalidKey
	}
	f.values[key] = value
	return nil
}

func (f *fakeStore) PHPVersion() string { return f.values[settings.KeyPHPVersion] }

func (f *fakeStore) Services() []settings.ServiceDef {
	return append([]settings.ServiceDef(nil), f.services...)
}

func (f *fakeStore) SetServices(defs []settings.ServiceDef) error {
	f.services = defs
	return nil
}

type fakeInterpreters struct {
	versions []string
	removed  []string
}

func (f *fakeInterpreters) Versions() ([]string, error) { return f.versions, nil }

func (f *fakeInterpreters) Installed(version string) bool {
	for _, v := range f.versions {
		if v == version {
			return true
		}
	}
	return false
}

func (f *fakeInterpreters) Remove(version string) error {
	if !f.Installed(version) {
		return runtime.ErrInterpreterNotFound
	}
	f.removed = append(f.removed, version)
	return nil
}

type fakeCapturer struct {
	urls []string
	err  error
}

func (f *fakeCapturer) Capture(_ context.Context, url string) (probe.Snapshot, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return probe.Snapshot{}, f.err
	}
	return probe.Snapshot{URL: url, Status: 200, Title: "Welcome"}, nil
}

type fakeBus struct {
	ch chan events.Event
}

func (f *fakeBus) Subscribe(int) (<-chan events.Event, func()) {
	return f.ch, func() {}
}
