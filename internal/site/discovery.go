package site

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edvin/devhost/internal/platform"
	"github.com/rs/zerolog"
)

// DirLister is the filesystem surface discovery needs.
type DirLister interface {
	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(name string, perm fs.FileMode) error
}

// OSDirLister reads the real filesystem.
type OSDirLister struct{}

func (OSDirLister) ReadDir(name string) ([]fs.DirEntry, error)  { return os.ReadDir(name) }
func (OSDirLister) Stat(name string) (fs.FileInfo, error)       { return os.Stat(name) }
func (OSDirLister) MkdirAll(name string, perm fs.FileMode) error { return os.MkdirAll(name, perm) }

// Discoverer turns the sites root into a list of sites.
type Discoverer struct {
	logger zerolog.Logger
	lister DirLister
	tld    string
	// VersionFor returns the interpreter version for a site. Nil leaves
	// PHPVersion empty.
	VersionFor func(name string) string
}

func NewDiscoverer(logger zerolog.Logger, lister DirLister, tld string) *Discoverer {
	if lister == nil {
		lister = OSDirLister{}
	}
	return &Discoverer{
		logger: logger.With().Str("component", "site-discovery").Logger(),
		lister: lister,
		tld:    tld,
	}
}

// Discover lists the immediate subdirectories of root, sorted by name.
// Plain files and hidden directories are ignored; symlinks are followed. A
// missing root is created and yields an empty list. Directories whose names
// differ only by case share an alias; only the first in sort order is kept.
func (d *Discoverer) Discover(root string) ([]Site, error) {
	entries, err := d.lister.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		if mkErr := d.lister.MkdirAll(root, 0o755); mkErr != nil {
			d.logger.Warn().Err(mkErr).Str("root", root).Msg("failed to create sites root")
		} else {
			d.logger.Info().Str("root", root).Msg("created sites root")
		}
		return []Site{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sites root %s: %w", root, err)
	}

	sites := make([]Site, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(root, name)

		info, err := d.lister.Stat(path)
		if err != nil {
			d.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			continue
		}
		if !info.IsDir() {
			continue
		}

		s := Site{
			Name:         name,
			Alias:        platform.SiteAlias(name, d.tld),
			Path:         path,
			DocumentRoot: d.documentRoot(path),
		}
		if d.VersionFor != nil {
			s.PHPVersion = d.VersionFor(name)
		}
		sites = append(sites, s)
	}

	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return d.dropAliasCollisions(sites), nil
}

// dropAliasCollisions keeps the first site per alias. Host names are case
// insensitive, so "Blog" and "blog" cannot both be served.
func (d *Discoverer) dropAliasCollisions(sites []Site) []Site {
	owner := make(map[string]string, len(sites))
	kept := sites[:0]
	for _, s := range sites {
		if first, ok := owner[s.Alias]; ok {
			d.logger.Warn().
				Str("site", s.Name).
				Str("alias", s.Alias).
				Str("kept", first).
				Msg("skipping site whose alias is taken")
			continue
		}
		owner[s.Alias] = s.Name
		kept = append(kept, s)
	}
	return kept
}

func (d *Discoverer) documentRoot(path string) string {
	public := filepath.Join(path, "public")
	if info, err := d.lister.Stat(filepath.Join(public, "index.php")); err == nil && !info.IsDir() {
		return public
	}
	return path
}
