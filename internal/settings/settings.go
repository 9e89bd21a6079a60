// Package settings persists user preferences in a YAML file under the data
// directory.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	KeySitesPath  = "sites_path"
	KeyPHPVersion = "php_version"
)

// ErrInvalidKey is returned for keys that cannot be stored.
var ErrInvalidKey = errors.New("invalid settings key")

// ServiceDef describes a manageable service. Services with a Command are run
// as child processes; the rest are driven through the platform service
// manager, with Unit overriding the catalogue's unit name.
type ServiceDef struct {
	Category string   `yaml:"category" json:"category" validate:"required"`
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Unit     string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Command  []string `yaml:"command,omitempty" json:"command,omitempty"`
	Dir      string   `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// Key is the "<category>-<name>" identity used for process tracking.
func (d ServiceDef) Key() string { return d.Category + "-" + d.Name }

// DefaultServices is used until the file lists services of its own.
func DefaultServices() []ServiceDef {
	return []ServiceDef{
		{Category: "database", Name: "postgresql"},
		{Category: "database", Name: "mariadb"},
		{Category: "database", Name: "mongodb"},
		{Category: "cache", Name: "redis"},
	}
}

type document struct {
	SitesPath  string                       `yaml:"sites_path,omitempty"`
	PHPVersion string                       `yaml:"php_version,omitempty"`
	Sites      map[string]map[string]string `yaml:"sites,omitempty"`
	Services   []ServiceDef                 `yaml:"services,omitempty"`
	Extras     map[string]string            `yaml:"extras,omitempty"`
}

// Defaults are returned for keys the file does not set.
type Defaults struct {
	SitesPath  string
	PHPVersion string
}

// Store is safe for concurrent use. Every mutation is written through.
type Store struct {
	path     string
	defaults Defaults

	mu  sync.RWMutex
	doc document
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string, defaults Defaults) (*Store, error) {
	s := &Store{path: path, defaults: defaults}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Get reads sites_path, php_version, sites.<name>.<key>, or any other key
// from the free-form extras.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch key {
	case KeySitesPath:
		return orDefault(s.doc.SitesPath, s.defaults.SitesPath)
	case KeyPHPVersion:
		return orDefault(s.doc.PHPVersion, s.defaults.PHPVersion)
	}
	if site, sub, ok := splitSiteKey(key); ok {
		v, ok := s.doc.Sites[site][sub]
		return v, ok
	}
	v, ok := s.doc.Extras[key]
	return v, ok
}

// Set stores key and persists the file.
func (s *Store) Set(key, value string) error {
	if key == "" || strings.HasPrefix(key, "sites.") && !validSiteKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case KeySitesPath:
		s.doc.SitesPath = value
	case KeyPHPVersion:
		s.doc.PHPVersion = value
	default:
		if site, sub, ok := splitSiteKey(key); ok {
			s.setSiteLocked(site, sub, value)
		} else {
			if s.doc.Extras == nil {
				s.doc.Extras = make(map[string]string)
			}
			s.doc.Extras[key] = value
		}
	}
	return s.saveLocked()
}

func (s *Store) SitesPath() string {
	v, _ := s.Get(KeySitesPath)
	return v
}

func (s *Store) PHPVersion() string {
	v, _ := s.Get(KeyPHPVersion)
	return v
}

// PHPVersionFor is the site's own php_version setting, falling back to the
// global one.
func (s *Store) PHPVersionFor(site string) string {
	if v, ok := s.SiteSetting(site, KeyPHPVersion); ok && v != "" {
		return v
	}
	return s.PHPVersion()
}

func (s *Store) SiteSetting(site, key string) (string, bool) {
	return s.Get("sites." + site + "." + key)
}

func (s *Store) SetSiteSetting(site, key, value string) error {
	return s.Set("sites."+site+"."+key, value)
}

// DeleteSite drops every setting stored for site.
func (s *Store) DeleteSite(site string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Sites[site]; !ok {
		return nil
	}
	delete(s.doc.Sites, site)
	return s.saveLocked()
}

// Services returns the configured service definitions.
func (s *Store) Services() []ServiceDef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.doc.Services) == 0 {
		return DefaultServices()
	}
	return append([]ServiceDef(nil), s.doc.Services...)
}

func (s *Store) SetServices(defs []ServiceDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Services = append([]ServiceDef(nil), defs...)
	return s.saveLocked()
}

func (s *Store) setSiteLocked(site, key, value string) {
	if s.doc.Sites == nil {
		s.doc.Sites = make(map[string]map[string]string)
	}
	if s.doc.Sites[site] == nil {
		s.doc.Sites[site] = make(map[string]string)
	}
	s.doc.Sites[site][key] = value
}

// saveLocked writes the document to a temp file and renames it into place.
func (s *Store) saveLocked() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func orDefault(v, fallback string) (string, bool) {
	if v != "" {
		return v, true
	}
	return fallback, fallback != ""
}

// splitSiteKey parses "sites.<name>.<key>".
func splitSiteKey(key string) (site, sub string, ok bool) {
	rest, found := strings.CutPrefix(key, "sites.")
	if !found {
		return "", "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func validSiteKey(key string) bool {
	_, _, ok := splitSiteKey(key)
	return ok
}
