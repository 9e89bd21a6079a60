package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/metrics"
	"github.com/edvin/devhost/internal/ports"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/site"
)

// ErrProxyNotFound means no nginx executable was found in the prefix
// directory or on PATH.
var ErrProxyNotFound = errors.New("nginx executable not found")

const nginxKey = "nginx"

const nginxConfigTemplate = `worker_processes  1;

events {
    worker_connections  2048;
}

http {
    server_names_hash_bucket_size 128;
    client_max_body_size 100M;
    large_client_header_buffers 4 32k;

    server {
        listen       {{ .ListenPort }};
        server_name  {{ .AdminAlias }};

        location / {
            proxy_pass   http://127.0.0.1:{{ .AdminPort }};
{{- template "proxy_headers" }}
        }
    }
{{ range .Sites }}
    server {
        listen       {{ $.ListenPort }};
        server_name  {{ .Alias }};
{{ template "site_body" . }}
    }

    server {
        listen       127.0.0.1:{{ .Port }};
        server_name  127.0.0.1;
{{ template "site_body" . }}
    }
{{ end -}}
}
{{ define "proxy_headers" }}
            proxy_set_header Host $host;
            proxy_set_header X-Real-IP $remote_addr;
            proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
            proxy_set_header X-Forwarded-Proto $scheme;
{{- end }}
{{- define "site_body" }}
        add_header 'Access-Control-Allow-Origin' '*' always;
        add_header 'Access-Control-Allow-Methods' 'GET, POST, PUT, DELETE, OPTIONS' always;
        add_header 'Access-Control-Allow-Headers' 'Content-Type, Authorization' always;

        if ($request_method = 'OPTIONS') {
            return 204;
        }

        location / {
            proxy_pass   http://127.0.0.1:{{ .Port }};
{{- template "proxy_headers" }}
        }
{{- end -}}
`

var nginxConfigTmpl = template.Must(template.New("nginx").Parse(nginxConfigTemplate))

type nginxSite struct {
	Alias string
	Port  int
}

type nginxConfigData struct {
	ListenPort int
	AdminPort  int
	AdminAlias string
	Sites      []nginxSite
}

// NginxManager renders the proxy configuration and supervises the single
// nginx process.
type NginxManager struct {
	logger     zerolog.Logger
	configPath string
	prefix     string
	listenPort int
	adminPort  int
	adminAlias string
	notify     events.Notifier
	lookPath   func(string) (string, error)

	procs *process.Registry[*process.Process]
	// mu keeps Converge and Stop from interleaving.
	mu sync.Mutex
}

func NewNginxManager(logger zerolog.Logger, cfg Config, notify events.Notifier) *NginxManager {
	return &NginxManager{
		logger:     logger.With().Str("component", "nginx-manager").Logger(),
		configPath: cfg.NginxConfigPath,
		prefix:     cfg.NginxPrefix,
		listenPort: cfg.ProxyPort,
		adminPort:  cfg.AdminPort,
		adminAlias: cfg.AdminAlias,
		notify:     notify,
		lookPath:   exec.LookPath,
		procs:      process.NewRegistry[*process.Process](),
	}
}

// ConfigPath is where WriteConfig persists and Converge reads.
func (m *NginxManager) ConfigPath() string { return m.configPath }

// GenerateConfig renders the full configuration: the admin tool block, then
// two blocks per site in the given order. Identical inputs give identical
// output. Every site must have a port in alloc.
func (m *NginxManager) GenerateConfig(sites []site.Site, alloc ports.Allocation) (string, error) {
	data := nginxConfigData{
		ListenPort: m.listenPort,
		AdminPort:  m.adminPort,
		AdminAlias: m.adminAlias,
		Sites:      make([]nginxSite, 0, len(sites)),
	}
	for _, s := range sites {
		port, ok := alloc.Port(s.Alias)
		if !ok {
			return "", fmt.Errorf("render nginx config: no port allocated for %s", s.Alias)
		}
		data.Sites = append(data.Sites, nginxSite{Alias: s.Alias, Port: port})
	}

	var buf bytes.Buffer
	if err := nginxConfigTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render nginx config: %w", err)
	}
	return buf.String(), nil
}

// WriteConfig replaces the config file atomically.
func (m *NginxManager) WriteConfig(config string) error {
	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create nginx config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".nginx-*.conf")
	if err != nil {
		return fmt.Errorf("write nginx config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(config); err != nil {
		tmp.Close()
		return fmt.Errorf("write nginx config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write nginx config: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.configPath); err != nil {
		return fmt.Errorf("write nginx config: %w", err)
	}

	m.logger.Info().Str("path", m.configPath).Msg("wrote nginx config")
	return nil
}

// Converge replaces the running proxy with one started from the current
// config file. The old instance is killed and its exit awaited before the
// new one is spawned.
func (m *NginxManager) Converge(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.teardown(ctx); err != nil {
		return err
	}

	exe, err := m.executable()
	if err != nil {
		m.logger.Error().Err(err).Msg("cannot start nginx")
		m.notify.Error(nginxKey, err.Error())
		return err
	}
	for _, d := range []string{"logs", "temp"} {
		if err := os.MkdirAll(filepath.Join(m.prefix, d), 0o755); err != nil {
			return fmt.Errorf("prepare nginx prefix: %w", err)
		}
	}

	opts := process.Options{
		Name: exe,
		Args: m.args(),
		Dir:  m.prefix,
		Stderr: func(line string) {
			m.logger.Error().Msg(line)
			m.notify.Error(nginxKey, line)
		},
	}
	p, err := process.Spawn(m.procs, nginxKey, opts, func(_ *process.Process, err error) {
		metrics.ProxyUp.Set(0)
		metrics.ProcessExits.WithLabelValues("proxy").Inc()
		m.logger.Info().Int("code", process.ExitCode(err)).Msg("nginx exited")
	})
	if err != nil {
		if errors.Is(err, process.ErrNotFound) {
			err = fmt.Errorf("%w: %v", ErrProxyNotFound, err)
		}
		m.notify.Error(nginxKey, err.Error())
		return fmt.Errorf("start nginx: %w", err)
	}

	metrics.ProxyUp.Set(1)
	m.logger.Info().Int("pid", p.Pid()).Str("config", m.configPath).Msg("nginx started")
	return nil
}

// Stop force-kills the proxy tree and waits for it to exit. Stopping a
// proxy that is not running succeeds.
func (m *NginxManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teardown(ctx)
}

func (m *NginxManager) IsRunning() bool {
	return m.procs.Has(nginxKey)
}

func (m *NginxManager) teardown(ctx context.Context) error {
	p, ok := m.procs.Get(nginxKey)
	if !ok {
		return nil
	}
	m.logger.Info().Int("pid", p.Pid()).Msg("killing nginx")
	if err := p.ForceStop(ctx); err != nil {
		return fmt.Errorf("stop nginx: %w", err)
	}
	return nil
}

func (m *NginxManager) args() []string {
	args := []string{"-c", m.configPath, "-p", m.prefix}
	if goruntime.GOOS != "windows" {
		// Keep the master in the foreground so it stays our child.
		args = append(args, "-g", "daemon off;")
	}
	return args
}

// executable prefers the bundled binary in the prefix directory and falls
// back to PATH.
func (m *NginxManager) executable() (string, error) {
	name := "nginx"
	if goruntime.GOOS == "windows" {
		name = "nginx.exe"
	}
	bundled := filepath.Join(m.prefix, name)
	if info, err := os.Stat(bundled); err == nil && !info.IsDir() {
		return bundled, nil
	}
	if path, err := m.lookPath(name); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrProxyNotFound, bundled)
}
