//go:build !windows

package process

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *lineSink) add(l string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, l)
}

func (s *lineSink) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func TestStart_CapturesStreamsAndExitCode(t *testing.T) {
	var out, errs lineSink
	exited := make(chan error, 1)

	p, err := Start(Options{
		Name:   "sh",
		Args:   []string{"-c", "echo out; echo err 1>&2; exit 3"},
		Stdout: out.add,
		Stderr: errs.add,
		OnExit: func(err error) { exited <- err },
	})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	select {
	case err := <-exited:
		assert.Error(t, err)
		assert.Equal(t, 3, ExitCode(err))
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	<-p.Done()
	assert.True(t, p.Exited())
	assert.Equal(t, 3, p.ExitCode())
	assert.Equal(t, []string{"out"}, out.get())
	assert.Equal(t, []string{"err"}, errs.get())
}

func TestStart_Env(t *testing.T) {
	var out lineSink
	p, err := Start(Options{
		Name:   "sh",
		Args:   []string{"-c", "echo $DEVHOST_TEST_VALUE"},
		Env:    []string{"DEVHOST_TEST_VALUE=hello"},
		Stdout: out.add,
	})
	require.NoError(t, err)
	require.NoError(t, p.Err())
	assert.Equal(t, []string{"hello"}, out.get())
}

func TestStart_NotFound(t *testing.T) {
	_, err := Start(Options{Name: "devhost-definitely-not-a-binary"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStop_Terminates(t *testing.T) {
	p, err := Start(Options{Name: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	assert.False(t, p.Exited())
	assert.Equal(t, -1, p.ExitCode())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.True(t, p.Exited())

	// stopping twice is harmless
	require.NoError(t, p.Stop(ctx))
}

func TestForceStop_KillsTree(t *testing.T) {
	p, err := Start(Options{Name: "sh", Args: []string{"-c", "sleep 30 & wait"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.ForceStop(ctx))
	assert.True(t, p.Exited())
}

func TestStart_PTYMergesOutput(t *testing.T) {
	var out lineSink
	p, err := Start(Options{
		Name:   "sh",
		Args:   []string{"-c", "echo first; echo second 1>&2"},
		Stdout: out.add,
		PTY:    true,
	})
	require.NoError(t, err)
	_ = p.Err()

	assert.ElementsMatch(t, []string{"first", "second"}, out.get())
}

func TestWait_ContextExpires(t *testing.T) {
	p, err := Start(Options{Name: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.ForceStop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestSpawn_TracksUntilExit(t *testing.T) {
	reg := NewRegistry[*Process]()
	exited := make(chan int, 1)

	p, err := Spawn(reg, "blog", Options{Name: "sh", Args: []string{"-c", "exit 0"}}, func(_ *Process, err error) {
		exited <- ExitCode(err)
	})
	require.NoError(t, err)

	select {
	case code := <-exited:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	<-p.Done()
	assert.False(t, reg.Has("blog"))
}

func TestSpawn_StopClearsTracking(t *testing.T) {
	reg := NewRegistry[*Process]()
	p, err := Spawn(reg, "blog", Options{Name: "sleep", Args: []string{"30"}}, nil)
	require.NoError(t, err)
	assert.True(t, reg.Has("blog"))

	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, reg.Has("blog"), "tracking is cleared once Stop returns")
}

func TestSpawn_StartFailureNotTracked(t *testing.T) {
	reg := NewRegistry[*Process]()
	_, err := Spawn(reg, "blog", Options{Name: "devhost-definitely-not-a-binary"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, reg.Len())
}
