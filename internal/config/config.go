package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string
	// APIToken guards /api/v1 and /mcp when set. The CLI sends the same value.
	APIToken string

	// DataDir holds settings.yaml, the generated nginx.conf and lock files.
	DataDir string
	// BinDir holds the bundled binaries: php-<version>/, nginx/, adminer/.
	BinDir    string
	HostsFile string

	ProxyPort  int
	BasePort   int
	AdminPort  int
	AdminAlias string
	TLD        string

	// ServiceManager selects how native services are driven.
	// "systemd" on Linux hosts, "windows" for the SCM via net.exe, "direct" for no-ops.
	ServiceManager string

	DefaultPHPVersion string
	RewriteEnv        bool
	AutoStart         bool
}

func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	dataDir := getEnv("DEVHOST_DATA_DIR", filepath.Join(home, ".devhost"))

	cfg := &Config{
		ListenAddr:        getEnv("DEVHOST_LISTEN_ADDR", "127.0.0.1:7070"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("DEVHOST_LOG_FORMAT", "json"),
		APIToken:          os.Getenv("DEVHOST_API_TOKEN"),
		DataDir:           dataDir,
		BinDir:            getEnv("DEVHOST_BIN_DIR", filepath.Join(dataDir, "bin")),
		HostsFile:         getEnv("DEVHOST_HOSTS_FILE", defaultHostsFile()),
		AdminAlias:        getEnv("DEVHOST_ADMIN_ALIAS", "adminer.devhost.test"),
		TLD:               getEnv("DEVHOST_TLD", ".test"),
		ServiceManager:    getEnv("DEVHOST_SERVICE_MANAGER", defaultServiceManager()),
		DefaultPHPVersion: getEnv("DEVHOST_PHP_VERSION", "8.4.12"),
	}

	ints := []struct {
		key      string
		fallback int
		dst      *int
	}{
		{"DEVHOST_PROXY_PORT", 80, &cfg.ProxyPort},
		{"DEVHOST_BASE_PORT", 8000, &cfg.BasePort},
		{"DEVHOST_ADMIN_PORT", 7999, &cfg.AdminPort},
	}
	for _, i := range ints {
		v, err := getEnvInt(i.key, i.fallback)
		if err != nil {
			return nil, err
		}
		if v <= 0 || v > 65535 {
			return nil, fmt.Errorf("%s: port %d out of range", i.key, v)
		}
		*i.dst = v
	}

	if cfg.RewriteEnv, err = getEnvBool("DEVHOST_REWRITE_ENV", true); err != nil {
		return nil, err
	}
	if cfg.AutoStart, err = getEnvBool("DEVHOST_AUTOSTART", true); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SettingsPath is the YAML file backing the settings store.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.yaml")
}

// NginxConfigPath is the proxy configuration rewritten on every planning pass.
func (c *Config) NginxConfigPath() string {
	return filepath.Join(c.DataDir, "nginx.conf")
}

// NginxDir is the nginx prefix directory (-p).
func (c *Config) NginxDir() string {
	return filepath.Join(c.BinDir, "nginx")
}

// AdminerDir is the document root served by the admin tool.
func (c *Config) AdminerDir() string {
	return filepath.Join(c.BinDir, "adminer")
}

// HostsLockPath guards concurrent edits of the hosts file.
func (c *Config) HostsLockPath() string {
	return filepath.Join(c.DataDir, "hosts.lock")
}

// DefaultSitesPath is used when the settings store has no sites_path yet.
func DefaultSitesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "devhost-sites")
	}
	return filepath.Join(home, "devhost-sites")
}

func defaultHostsFile() string {
	if runtime.GOOS == "windows" {
		root := getEnv("SystemRoot", `C:\Windows`)
		return filepath.Join(root, "System32", "drivers", "etc", "hosts")
	}
	return "/etc/hosts"
}

func defaultServiceManager() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "linux":
		return "systemd"
	default:
		return "direct"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
