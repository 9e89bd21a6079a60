// Package hosts edits the system hosts table. Only loopback entries are
// written or removed; everything else in the file is preserved.
package hosts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Loopback is the address every alias is bound to.
const Loopback = "127.0.0.1"

const lockRetry = 50 * time.Millisecond

// Table is a hosts file guarded by an advisory lock file. The in-process
// mutex is needed as well since a flock.Flock counts as held for every
// goroutine sharing it.
type Table struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func NewTable(path, lockPath string) *Table {
	return &Table{path: path, lock: flock.New(lockPath)}
}

func (t *Table) Path() string { return t.path }

// Bind maps alias to the loopback address. Binding an alias that is already
// present is a no-op. Reports whether the file was rewritten.
func (t *Table) Bind(ctx context.Context, alias string) (bool, error) {
	return t.edit(ctx, func(lines []string) ([]string, bool) {
		for _, l := range lines {
			if ip, names, _ := parseLine(l); ip == Loopback && containsFold(names, alias) {
				return lines, false
			}
		}
		return append(lines, Loopback+" "+alias), true
	})
}

// Unbind removes alias from every loopback line. Other names on the same
// line survive; a line left without names is dropped. Unbinding an absent
// alias is a no-op.
func (t *Table) Unbind(ctx context.Context, alias string) (bool, error) {
	return t.edit(ctx, func(lines []string) ([]string, bool) {
		changed := false
		out := lines[:0:0]
		for _, l := range lines {
			ip, names, comment := parseLine(l)
			if ip != Loopback || !containsFold(names, alias) {
				out = append(out, l)
				continue
			}
			changed = true
			rest := names[:0:0]
			for _, n := range names {
				if !strings.EqualFold(n, alias) {
					rest = append(rest, n)
				}
			}
			if len(rest) == 0 {
				continue
			}
			rebuilt := ip + " " + strings.Join(rest, " ")
			if comment != "" {
				rebuilt += " " + comment
			}
			out = append(out, rebuilt)
		}
		return out, changed
	})
}

// Bound reports whether alias currently resolves to the loopback address.
func (t *Table) Bound(alias string) (bool, error) {
	lines, _, err := t.read()
	if err != nil {
		return false, err
	}
	for _, l := range lines {
		if ip, names, _ := parseLine(l); ip == Loopback && containsFold(names, alias) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Table) edit(ctx context.Context, fn func([]string) ([]string, bool)) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.lock.Path()), 0o755); err != nil {
		return false, fmt.Errorf("create lock directory: %w", err)
	}
	locked, err := t.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return false, fmt.Errorf("lock hosts file: %w", err)
	}
	if !locked {
		return false, fmt.Errorf("lock hosts file: %w", ctx.Err())
	}
	defer func() { _ = t.lock.Unlock() }()

	lines, eol, err := t.read()
	if err != nil {
		return false, err
	}
	updated, changed := fn(lines)
	if !changed {
		return false, nil
	}
	if err := t.write(updated, eol); err != nil {
		return false, err
	}
	return true, nil
}

// read returns the file's lines without terminators and the line ending in
// use. A missing file reads as empty.
func (t *Table) read() ([]string, string, error) {
	data, err := os.ReadFile(t.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, defaultEOL, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read hosts file: %w", err)
	}

	text := string(data)
	eol := "\n"
	if strings.Contains(text, "\r\n") {
		eol = "\r\n"
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil, eol, nil
	}
	return strings.Split(text, "\n"), eol, nil
}

// write rewrites the file in place. The hosts file may be a symlink or have
// ACLs that a rename would discard.
func (t *Table) write(lines []string, eol string) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(t.path); err == nil {
		perm = info.Mode().Perm()
	}
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, eol) + eol
	}
	if err := os.WriteFile(t.path, []byte(content), perm); err != nil {
		return fmt.Errorf("write hosts file: %w", err)
	}
	return nil
}

// parseLine splits an entry into address, host names and trailing comment.
// Blank and comment-only lines have an empty address.
func parseLine(l string) (ip string, names []string, comment string) {
	content := l
	if i := strings.IndexByte(l, '#'); i >= 0 {
		content, comment = l[:i], l[i:]
	}
	f := strings.Fields(content)
	if len(f) < 2 {
		return "", nil, comment
	}
	return f[0], f[1:], comment
}

func containsFold(names []string, alias string) bool {
	for _, n := range names {
		if strings.EqualFold(n, alias) {
			return true
		}
	}
	return false
}
