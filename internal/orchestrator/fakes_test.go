package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devhost/internal/ports"
	"github.com/edvin/devhost/internal/site"
)

// callLog records the order in which collaborators were driven.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) index(call string) int {
	for i, c := range l.all() {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeBackends struct {
	log      *callLog
	mu       sync.Mutex
	running  map[string]site.Site
	startErr map[string]error
}

func (f *fakeBackends) Start(_ context.Context, s site.Site) error {
	f.log.add("backend.start %s:%d", s.Name, s.Port)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErr[s.Name]; err != nil {
		return err
	}
	if _, ok := f.running[s.Name]; ok {
		return nil
	}
	for _, other := range f.running {
		if other.Port == s.Port {
			return fmt.Errorf("port %d already in use by %s", s.Port, other.Name)
		}
	}
	f.running[s.Name] = s
	return nil
}

func (f *fakeBackends) Stop(_ context.Context, name string) error {
	f.log.add("backend.stop %s", name)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, name)
	return nil
}

func (f *fakeBackends) IsRunning(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.running[name]
	return ok
}

func (f *fakeBackends) Running() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.running))
	for n := range f.running {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *fakeBackends) port(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[name].Port
}

type fakeProxy struct {
	log         *callLog
	running     bool
	config      string
	written     string
	converges   int
	convergeErr error
}

func (f *fakeProxy) GenerateConfig(sites []site.Site, alloc ports.Allocation) (string, error) {
	var b strings.Builder
	for _, s := range sites {
		port, ok := alloc.Port(s.Alias)
		if !ok {
			return "", fmt.Errorf("no port for %s", s.Alias)
		}
		fmt.Fprintf(&b, "server_name %s -> 127.0.0.1:%d\n", s.Alias, port)
	}
	f.config = b.String()
	return f.config, nil
}

func (f *fakeProxy) WriteConfig(config string) error {
	f.log.add("proxy.write")
	f.written = config
	return nil
}

func (f *fakeProxy) Converge(context.Context) error {
	f.log.add("proxy.converge")
	f.converges++
	if f.convergeErr != nil {
		return f.convergeErr
	}
	f.running = true
	return nil
}

func (f *fakeProxy) Stop(context.Context) error {
	f.log.add("proxy.stop")
	f.running = false
	return nil
}

func (f *fakeProxy) IsRunning() bool { return f.running }

type fakeHosts struct {
	log   *callLog
	mu    sync.Mutex
	bound map[string]bool
}

func (f *fakeHosts) Bind(_ context.Context, alias string) error {
	f.log.add("hosts.bind %s", alias)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[alias] = true
	return nil
}

func (f *fakeHosts) Unbind(_ context.Context, alias string) error {
	f.log.add("hosts.unbind %s", alias)
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bound, alias)
	return nil
}

func (f *fakeHosts) isBound(alias string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bound[alias]
}

type fakeAdmin struct {
	log      *callLog
	running  bool
	startErr error
}

func (f *fakeAdmin) Key() string   { return "tools-adminer" }
func (f *fakeAdmin) Native() bool  { return false }
func (f *fakeAdmin) Alias() string { return "adminer.devhost.test" }
func (f *fakeAdmin) Start(context.Context) error {
	f.log.add("admin.start")
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeAdmin) Stop(context.Context) error {
	f.log.add("admin.stop")
	f.running = false
	return nil
}
func (f *fakeAdmin) IsRunning(context.Context) bool { return f.running }

type fakeSettings struct {
	root    string
	deleted []string
}

func (f *fakeSettings) SitesPath() string { return f.root }
func (f *fakeSettings) DeleteSite(name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

type failingSource struct{}

func (failingSource) Discover(string) ([]site.Site, error) {
	return nil, errors.New("permission denied")
}

type notification struct {
	kind    string
	name    string
	running bool
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *fakeNotifier) add(e notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *fakeNotifier) ServicesStatusChanged(running bool) {
	n.add(notification{kind: "services", running: running})
}
func (n *fakeNotifier) SiteStatusChanged(name string, running bool) {
	n.add(notification{kind: "site", name: name, running: running})
}
func (n *fakeNotifier) Log(string, string)     {}
func (n *fakeNotifier) Error(source, _ string) { n.add(notification{kind: "error", name: source}) }
func (n *fakeNotifier) Output(string, string)  {}
func (n *fakeNotifier) Exit(string, int)       {}

func (n *fakeNotifier) last() notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.kind == kind {
			c++
		}
	}
	return c
}

type harness struct {
	orch     *Orchestrator
	root     string
	log      *callLog
	backends *fakeBackends
	proxy    *fakeProxy
	hosts    *fakeHosts
	admin    *fakeAdmin
	settings *fakeSettings
	notify   *fakeNotifier
	stopped  []string
}

func newHarness(t *testing.T, siteNames ...string) *harness {
	t.Helper()
	root := filepath.Join(t.TempDir(), "sites")
	for _, n := range siteNames {
		addSite(t, root, n)
	}

	log := &callLog{}
	h := &harness{
		root:     root,
		log:      log,
		backends: &fakeBackends{log: log, running: map[string]site.Site{}, startErr: map[string]error{}},
		proxy:    &fakeProxy{log: log},
		hosts:    &fakeHosts{log: log, bound: map[string]bool{}},
		admin:    &fakeAdmin{log: log},
		settings: &fakeSettings{root: root},
		notify:   &fakeNotifier{},
	}
	family := func(name string) Family {
		return FamilyFunc(func(context.Context) error {
			log.add("family.stop %s", name)
			h.stopped = append(h.stopped, name)
			return nil
		})
	}

	h.orch = New(zerolog.Nop(), Deps{
		Sites:    site.NewDiscoverer(zerolog.Nop(), nil, ".test"),
		Settings: h.settings,
		Backends: h.backends,
		Proxy:    h.proxy,
		Hosts:    h.hosts,
		Admin:    h.admin,
		Families: []Family{family("devtools"), family("broadcast"), family("services")},
		Notify:   h.notify,
	}, Options{BasePort: 8000, TLD: ".test"})
	return h
}

func addSite(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.php"), []byte("<?php echo 1;"), 0o644))
	return dir
}
