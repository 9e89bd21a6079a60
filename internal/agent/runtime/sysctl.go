package runtime

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ServiceManager abstracts the platform's service manager so native
// services (databases, caches) are driven the same way on every host.
//
// Linux workstations use SystemdManager, Windows uses WindowsManager through
// net.exe and sc.exe, and anything else gets DirectManager.
type ServiceManager interface {
	// Start starts a service. Starting a running service succeeds.
	Start(ctx context.Context, unit string) error

	// Stop stops a service. Stopping a stopped service succeeds.
	Stop(ctx context.Context, unit string) error

	// IsActive reports whether the service is running.
	IsActive(ctx context.Context, unit string) (bool, error)
}

// NewServiceManager picks the implementation for kind ("systemd",
// "windows", anything else is direct).
func NewServiceManager(logger zerolog.Logger, kind string) ServiceManager {
	switch kind {
	case "systemd":
		return NewSystemdManager(logger)
	case "windows":
		return NewWindowsManager(logger)
	default:
		return NewDirectManager(logger)
	}
}

// ---------------------------------------------------------------------------
// SystemdManager
// ---------------------------------------------------------------------------

// SystemdManager implements ServiceManager using systemctl.
type SystemdManager struct {
	logger zerolog.Logger
}

func NewSystemdManager(logger zerolog.Logger) *SystemdManager {
	return &SystemdManager{logger: logger.With().Str("svc_mgr", "systemd").Logger()}
}

func (s *SystemdManager) Start(ctx context.Context, unit string) error {
	return sysctl(ctx, "start", unit)
}

func (s *SystemdManager) Stop(ctx context.Context, unit string) error {
	return sysctl(ctx, "stop", unit)
}

func (s *SystemdManager) IsActive(ctx context.Context, unit string) (bool, error) {
	return exitStatus(exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", unit))
}

// ---------------------------------------------------------------------------
// WindowsManager
// ---------------------------------------------------------------------------

// WindowsManager implements ServiceManager with net start/stop and sc query.
type WindowsManager struct {
	logger zerolog.Logger
}

func NewWindowsManager(logger zerolog.Logger) *WindowsManager {
	return &WindowsManager{logger: logger.With().Str("svc_mgr", "windows").Logger()}
}

func (w *WindowsManager) Start(ctx context.Context, unit string) error {
	return netService(ctx, "start", unit)
}

func (w *WindowsManager) Stop(ctx context.Context, unit string) error {
	return netService(ctx, "stop", unit)
}

func (w *WindowsManager) IsActive(ctx context.Context, unit string) (bool, error) {
	out, err := exec.CommandContext(ctx, "sc", "query", unit).CombinedOutput()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return false, nil
		}
		return false, fmt.Errorf("sc query %s: %w", unit, err)
	}
	return strings.Contains(string(out), "RUNNING"), nil
}

// ---------------------------------------------------------------------------
// DirectManager
// ---------------------------------------------------------------------------

// DirectManager is used where no service manager is available. Starting is
// left to the user; stopping and status go through process signals.
type DirectManager struct {
	logger zerolog.Logger
}

func NewDirectManager(logger zerolog.Logger) *DirectManager {
	return &DirectManager{logger: logger.With().Str("svc_mgr", "direct").Logger()}
}

func (d *DirectManager) Start(_ context.Context, unit string) error {
	d.logger.Warn().Str("unit", unit).Msg("start: no-op without a service manager (start the service yourself)")
	return nil
}

func (d *DirectManager) Stop(ctx context.Context, unit string) error {
	d.logger.Debug().Str("unit", unit).Msg("stop: sending SIGTERM")
	if err := pkillSignal(ctx, unit, "TERM"); err != nil {
		d.logger.Warn().Str("unit", unit).Msg("could not stop process (may not be running)")
	}
	return nil
}

func (d *DirectManager) IsActive(ctx context.Context, unit string) (bool, error) {
	return exitStatus(exec.CommandContext(ctx, "pgrep", "-f", unit))
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func sysctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %v: %s: %w", args, strings.TrimSpace(string(output)), err)
	}
	return nil
}

// net.exe reports "already started" and "not started" as failures.
var netBenign = []string{"already been started", "is not started"}

func netService(ctx context.Context, verb, unit string) error {
	output, err := exec.CommandContext(ctx, "net", verb, unit).CombinedOutput()
	if err == nil {
		return nil
	}
	for _, s := range netBenign {
		if strings.Contains(string(output), s) {
			return nil
		}
	}
	return fmt.Errorf("net %s %s: %s: %w", verb, unit, strings.TrimSpace(string(output)), err)
}

func pkillSignal(ctx context.Context, process, signal string) error {
	cmd := exec.CommandContext(ctx, "pkill", "-"+signal, "-f", process)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pkill -%s %s: %s: %w", signal, process, string(output), err)
	}
	return nil
}

// exitStatus runs a probe command: exit 0 is true, any other exit status is
// false, and failing to run the command is an error.
func exitStatus(cmd *exec.Cmd) (bool, error) {
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return false, nil
	}
	return false, fmt.Errorf("%s: %w", strings.Join(cmd.Args, " "), err)
}
