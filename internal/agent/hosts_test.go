package agent

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHostsManager(t *testing.T, content string) (*HostsManager, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	mgr := NewHostsManager(zerolog.Nop(), Config{
		HostsFile:     path,
		HostsLockPath: filepath.Join(dir, "hosts.lock"),
	})
	return mgr, path
}

func TestHostsManager_BindUnbind(t *testing.T) {
	mgr, path := newTestHostsManager(t, "127.0.0.1 localhost\n")

	require.NoError(t, mgr.Bind(t.Context(), "blog.test"))
	require.NoError(t, mgr.Bind(t.Context(), "blog.test"))
	assert.True(t, mgr.IsBound("blog.test"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n127.0.0.1 blog.test\n", string(data))

	require.NoError(t, mgr.Unbind(t.Context(), "blog.test"))
	require.NoError(t, mgr.Unbind(t.Context(), "blog.test"))
	assert.False(t, mgr.IsBound("blog.test"))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n", string(data))
}

func TestHostsManager_PermissionDeniedIsSwallowed(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced")
	}
	mgr, path := newTestHostsManager(t, "127.0.0.1 localhost\n")
	require.NoError(t, os.Chmod(path, 0o444))

	assert.NoError(t, mgr.Bind(t.Context(), "blog.test"))
	assert.False(t, mgr.IsBound("blog.test"))
}
