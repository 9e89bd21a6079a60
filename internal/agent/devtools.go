package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	goruntime "runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/site"
)

// ErrInvalidCommand rejects script names that are not a single token.
var ErrInvalidCommand = errors.New("invalid command name")

var commandName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:_.\-]*$`)

// npm subcommands that are not package.json scripts.
var directCommands = map[string]bool{"install": true, "ci": true, "uninstall": true, "init": true}

// DevToolManager runs package-manager commands (npm or yarn) inside a site
// on a pseudo-terminal, keyed "<site>-<command>". Stopping kills the whole
// tree since dev servers spawn watchers of their own.
type DevToolManager struct {
	logger zerolog.Logger
	notify events.Notifier
	procs  *process.Registry[*process.Process]

	// owners maps a key to its site, since site names may contain "-".
	mu     sync.Mutex
	owners map[string]string
}

func NewDevToolManager(logger zerolog.Logger, notify events.Notifier) *DevToolManager {
	return &DevToolManager{
		logger: logger.With().Str("component", "devtool-manager").Logger(),
		notify: notify,
		procs:  process.NewRegistry[*process.Process](),
		owners: map[string]string{},
	}
}

func devToolKey(siteName, command string) string { return siteName + "-" + command }

// Run starts command for the site and returns its key. A command that is
// already running is not started twice.
func (m *DevToolManager) Run(ctx context.Context, s site.Site, command string) (string, error) {
	if !commandName.MatchString(command) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	key := devToolKey(s.Name, command)
	if m.procs.Has(key) {
		return key, nil
	}

	m.mu.Lock()
	m.owners[key] = s.Name
	m.mu.Unlock()

	tool, args := packageCommand(s.Path, command)
	opts := process.Options{
		Name:   tool,
		Args:   args,
		Dir:    s.Path,
		Stdout: func(line string) { m.notify.Output(key, line) },
		PTY:    true,
	}
	p, err := process.Spawn(m.procs, key, opts, func(_ *process.Process, err error) {
		code := process.ExitCode(err)
		metrics.ProcessExits.WithLabelValues("devtool").Inc()
		m.logger.Info().Str("key", key).Int("code", code).Msg("command exited")
		m.notify.Exit(key, code)
	})
	if err != nil {
		return "", fmt.Errorf("run %s in %s: %w", command, s.Name, err)
	}

	m.logger.Info().Str("key", key).Str("tool", tool).Strs("args", args).Int("pid", p.Pid()).Msg("command started")
	return key, nil
}

// Stop kills the command's process tree. Stopping a command that is not
// running succeeds.
func (m *DevToolManager) Stop(ctx context.Context, siteName, command string) error {
	key := devToolKey(siteName, command)
	p, ok := m.procs.Get(key)
	if !ok {
		return nil
	}
	if err := p.ForceStop(ctx); err != nil {
		return fmt.Errorf("stop %s: %w", key, err)
	}
	return nil
}

func (m *DevToolManager) IsRunning(siteName, command string) bool {
	return m.procs.Has(devToolKey(siteName, command))
}

// Running lists the keys of running commands, optionally only for one site.
func (m *DevToolManager) Running(siteName string) []string {
	keys := m.procs.Keys()
	if siteName == "" {
		return keys
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, k := range keys {
		if m.owners[k] == siteName {
			out = append(out, k)
		}
	}
	return out
}

// StopAll kills every running command.
func (m *DevToolManager) StopAll(ctx context.Context) error {
	var errs []error
	for _, key := range m.procs.Keys() {
		p, ok := m.procs.Get(key)
		if !ok {
			continue
		}
		if err := p.ForceStop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// packageCommand picks yarn when the site has a yarn.lock, npm otherwise,
// and maps command onto that tool's arguments.
func packageCommand(sitePath, command string) (string, []string) {
	if _, err := os.Stat(filepath.Join(sitePath, "yarn.lock")); err == nil {
		var args []string
		switch command {
		case "ci":
			args = []string{"install", "--frozen-lockfile"}
		case "uninstall":
			args = []string{"remove"}
		default:
			args = []string{command}
		}
		return executable("yarn"), args
	}
	if directCommands[command] {
		return executable("npm"), []string{command}
	}
	return executable("npm"), []string{"run", command}
}

func executable(name string) string {
	if goruntime.GOOS == "windows" {
		return name + ".cmd"
	}
	return name
}
