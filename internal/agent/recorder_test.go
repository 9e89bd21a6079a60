package agent

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	kind    string
	source  string
	message string
	code    int
	running bool
}

// recorder is an events.Notifier that keeps every notification.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func newRecorder() *recorder { return &recorder{} }

func (r *recorder) add(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ServicesStatusChanged(running bool) {
	r.add(recordedEvent{kind: "services", running: running})
}
func (r *recorder) SiteStatusChanged(name string, running bool) {
	r.add(recordedEvent{kind: "site", source: name, running: running})
}
func (r *recorder) Log(source, line string) { r.add(recordedEvent{kind: "log", source: source, message: line}) }
func (r *recorder) Error(source, message string) {
	r.add(recordedEvent{kind: "error", source: source, message: message})
}
func (r *recorder) Output(source, line string) {
	r.add(recordedEvent{kind: "output", source: source, message: line})
}
func (r *recorder) Exit(source string, code int) {
	r.add(recordedEvent{kind: "exit", source: source, code: code})
}

func (r *recorder) filter(kind, source string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.kind == kind && e.source == source {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) errorsFrom(source string) []recordedEvent { return r.filter("error", source) }

func (r *recorder) messages(kind, source string) []string {
	var out []string
	for _, e := range r.filter(kind, source) {
		out = append(out, e.message)
	}
	return out
}

// writeScript creates an executable shell script at path.
func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

const waitFor = 5 * time.Second
const tick = 20 * time.Millisecond
