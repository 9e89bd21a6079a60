//go:build !windows

package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devhost/internal/events"
	"github.com/edvin/devhost/internal/process"
	"github.com/edvin/devhost/internal/settings"
)

type outputRecorder struct {
	events.Notifier
	mu    sync.Mutex
	lines []string
	exits []int
}

func (r *outputRecorder) Output(_, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *outputRecorder) Exit(_ string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, code)
}

func TestChildService_Lifecycle(t *testing.T) {
	procs := process.NewRegistry[*process.Process]()
	rec := &outputRecorder{Notifier: events.Discard}
	def := settings.ServiceDef{Category: "queue", Name: "worker", Command: []string{"sh", "-c", "echo ready; exec sleep 30"}}
	svc := NewChildService(zerolog.Nop(), def, procs, rec)
	ctx := context.Background()

	require.NoError(t, svc.Start(ctx))
	assert.True(t, svc.IsRunning(ctx))
	require.NoError(t, svc.Start(ctx), "second start is a no-op")
	assert.Equal(t, 1, procs.Len())

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.lines) == 1 && rec.lines[0] == "ready"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, svc.Stop(ctx))
	assert.False(t, svc.IsRunning(ctx))
	require.NoError(t, svc.Stop(ctx), "stopping a stopped service succeeds")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.exits, 1)
}

func TestChildService_MissingCommand(t *testing.T) {
	procs := process.NewRegistry[*process.Process]()
	def := settings.ServiceDef{Category: "queue", Name: "ghost", Command: []string{"devhost-definitely-not-a-binary"}}
	svc := NewChildService(zerolog.Nop(), def, procs, events.Discard)

	err := svc.Start(context.Background())
	assert.ErrorIs(t, err, process.ErrNotFound)
	assert.False(t, svc.IsRunning(context.Background()))
}
