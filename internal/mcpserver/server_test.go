package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/site"
)

type fakeOrch struct {
	sites     []site.Site
	running   bool
	startErr  error
	restart   orchestrator.Result
	toggleErr error
	toggled   []string
	cancelled []string
}

func (f *fakeOrch) observe(ctx context.Context, op string) {
	if ctx.Err() != nil {
		f.cancelled = append(f.cancelled, op)
	}
}

func (f *fakeOrch) StartAll(ctx context.Context) ([]site.Site, error) {
	f.observe(ctx, "start")
	f.running = true
	return f.sites, f.startErr
}

func (f *fakeOrch) StopAll(ctx context.Context) error {
	f.observe(ctx, "stop")
	f.running = false
	return nil
}

func (f *fakeOrch) RestartAll(ctx context.Context) orchestrator.Result {
	f.observe(ctx, "restart")
	return f.restart
}

func (f *fakeOrch) ToggleSite(ctx context.Context, name string) (bool, error) {
	f.observe(ctx, "toggle")
	if f.toggleErr != nil {
		return false, f.toggleErr
	}
	f.toggled = append(f.toggled, name)
	return true, nil
}

func (f *fakeOrch) GetSites(context.Context) ([]site.Site, error) { return f.sites, nil }
func (f *fakeOrch) GetServicesStatus() bool                       { return f.running }

func call(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	return callCtx(t, context.Background(), s, name, args)
}

func callCtx(t *testing.T, ctx context.Context, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	for _, tool := range s.Tools() {
		if tool.Tool.Name != name {
			continue
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		res, err := tool.Handler(ctx, req)
		require.NoError(t, err)
		return res
	}
	t.Fatalf("no tool named %s", name)
	return nil
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestTools_Names(t *testing.T) {
	s := New(zerolog.Nop(), &fakeOrch{}, "test")

	var names []string
	for _, tool := range s.Tools() {
		names = append(names, tool.Tool.Name)
	}
	assert.Equal(t, []string{"list_sites", "services_status", "start_all", "stop_all", "restart_all", "toggle_site"}, names)
}

func TestListSites(t *testing.T) {
	s := New(zerolog.Nop(), &fakeOrch{sites: []site.Site{{Name: "blog", Alias: "blog.test", Port: 8000}}}, "test")

	res := call(t, s, "list_sites", nil)

	assert.False(t, res.IsError)
	var sites []site.Site
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &sites))
	assert.Equal(t, []string{"blog"}, site.Names(sites))
}

func TestStartStopStatus(t *testing.T) {
	orch := &fakeOrch{sites: []site.Site{{Name: "blog"}}}
	s := New(zerolog.Nop(), orch, "test")

	res := call(t, s, "start_all", nil)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"running":true}`, text(t, call(t, s, "services_status", nil)))

	res = call(t, s, "stop_all", nil)
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"success":true}`, text(t, res))
	assert.False(t, orch.running)
}

func TestStartAll_Degraded(t *testing.T) {
	orch := &fakeOrch{startErr: &orchestrator.DegradedError{Failures: []error{errors.New("proxy: nginx not found")}}}
	s := New(zerolog.Nop(), orch, "test")

	res := call(t, s, "start_all", nil)

	assert.False(t, res.IsError)
	var body orchestrator.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &body))
	assert.True(t, body.Success)
	assert.Equal(t, []string{"proxy: nginx not found"}, body.Warnings)
}

func TestStartAll_Fatal(t *testing.T) {
	s := New(zerolog.Nop(), &fakeOrch{startErr: errors.New("discover sites: boom")}, "test")

	res := call(t, s, "start_all", nil)

	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "boom")
}

func TestRestartAll_Failure(t *testing.T) {
	s := New(zerolog.Nop(), &fakeOrch{restart: orchestrator.Result{Error: "discover sites: boom"}}, "test")

	res := call(t, s, "restart_all", nil)

	assert.True(t, res.IsError)
}

func TestToggleSite(t *testing.T) {
	orch := &fakeOrch{}
	s := New(zerolog.Nop(), orch, "test")

	res := call(t, s, "toggle_site", map[string]any{"name": "blog"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"site":"blog","running":true}`, text(t, res))
	assert.Equal(t, []string{"blog"}, orch.toggled)

	res = call(t, s, "toggle_site", map[string]any{})
	assert.True(t, res.IsError)

	orch.toggleErr = orchestrator.ErrNoPort
	res = call(t, s, "toggle_site", map[string]any{"name": "new"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "new")
}

func TestLifecycleTools_IgnoreCancelledCall(t *testing.T) {
	orch := &fakeOrch{restart: orchestrator.Result{Success: true}}
	s := New(zerolog.Nop(), orch, "test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, name := range []string{"start_all", "stop_all", "restart_all"} {
		assert.False(t, callCtx(t, ctx, s, name, nil).IsError, name)
	}
	assert.False(t, callCtx(t, ctx, s, "toggle_site", map[string]any{"name": "blog"}).IsError)

	assert.Empty(t, orch.cancelled)
	assert.Equal(t, []string{"blog"}, orch.toggled)
}
