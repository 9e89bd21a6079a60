package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, err := Open(path, Defaults{SitesPath: "/home/dev/sites", PHPVersion: "8.4.12"})
	require.NoError(t, err)
	return s, path
}

func TestOpen_MissingFileUsesDefaults(t *testing.T) {
	s, path := openTemp(t)

	assert.Equal(t, "/home/dev/sites", s.SitesPath())
	assert.Equal(t, "8.4.12", s.PHPVersion())
	assert.Equal(t, DefaultServices(), s.Services())
	assert.NoFileExists(t, path)

	_, ok := s.Get("theme")
	assert.False(t, ok)
}

func TestSet_PersistsAndReloads(t *testing.T) {
	s, path := openTemp(t)

	require.NoError(t, s.Set(KeySitesPath, "/srv/sites"))
	require.NoError(t, s.Set(KeyPHPVersion, "8.3.1"))
	require.NoError(t, s.Set("theme", "dark"))
	require.NoError(t, s.SetSiteSetting("blog", "php_version", "8.2.0"))

	reopened, err := Open(path, Defaults{})
	require.NoError(t, err)

	assert.Equal(t, "/srv/sites", reopened.SitesPath())
	assert.Equal(t, "8.3.1", reopened.PHPVersion())
	v, ok := reopened.Get("theme")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
	v, ok = reopened.Get("sites.blog.php_version")
	assert.True(t, ok)
	assert.Equal(t, "8.2.0", v)
}

func TestPHPVersionFor(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.SetSiteSetting("legacy", KeyPHPVersion, "7.4.33"))

	assert.Equal(t, "7.4.33", s.PHPVersionFor("legacy"))
	assert.Equal(t, "8.4.12", s.PHPVersionFor("modern"))
}

func TestSet_InvalidKeys(t *testing.T) {
	s, _ := openTemp(t)

	for _, key := range []string{"", "sites.", "sites.blog", "sites.blog."} {
		t.Run(key, func(t *testing.T) {
			assert.ErrorIs(t, s.Set(key, "x"), ErrInvalidKey)
		})
	}
}

func TestSiteNamesWithDots(t *testing.T) {
	s, _ := openTemp(t)
	require.NoError(t, s.SetSiteSetting("my.app", "favorite", "true"))

	v, ok := s.SiteSetting("my.app", "favorite")
	assert.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestDeleteSite(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.SetSiteSetting("blog", "favorite", "true"))
	require.NoError(t, s.SetSiteSetting("shop", "favorite", "false"))

	require.NoError(t, s.DeleteSite("blog"))
	require.NoError(t, s.DeleteSite("never-existed"))

	reopened, err := Open(path, Defaults{})
	require.NoError(t, err)
	_, ok := reopened.SiteSetting("blog", "favorite")
	assert.False(t, ok)
	_, ok = reopened.SiteSetting("shop", "favorite")
	assert.True(t, ok)
}

func TestServicesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - category: database
    name: postgresql
    unit: postgresql@16-main
  - category: queue
    name: mailpit
    command: ["mailpit", "--smtp", "127.0.0.1:1025"]
`), 0o644))

	s, err := Open(path, Defaults{})
	require.NoError(t, err)

	defs := s.Services()
	require.Len(t, defs, 2)
	assert.Equal(t, "postgresql@16-main", defs[0].Unit)
	assert.Equal(t, "queue-mailpit", defs[1].Key())
	assert.Equal(t, []string{"mailpit", "--smtp", "127.0.0.1:1025"}, defs[1].Command)

	require.NoError(t, s.SetServices(defs[:1]))
	assert.Len(t, s.Services(), 1)
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites_path: [unterminated"), 0o644))

	_, err := Open(path, Defaults{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse settings")
}
