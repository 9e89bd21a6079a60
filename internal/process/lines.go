package process

import (
	"bytes"
	"strings"
	"sync"
)

// LineHandler receives one complete, trimmed, non-empty line of output.
type LineHandler func(line string)

// Level is the result of classifying a diagnostic line.
type Level int

const (
	// Routine lines are ordinary activity (request logs, banners).
	Routine Level = iota
	// Problem lines are surfaced on the error channel.
	Problem
)

// Classifier decides whether a diagnostic line is routine or a problem. It is
// a heuristic and carries no correctness guarantee.
type Classifier func(line string) Level

// AllProblems treats every line as relevant. Used for streams where any
// output means something went wrong (nginx stderr).
func AllProblems(string) Level { return Problem }

// LineWriter is an io.Writer that buffers arbitrary chunks and emits them one
// line at a time. Both "\n" and "\r\n" terminate a line.
type LineWriter struct {
	mu     sync.Mutex
	buf    []byte
	handle LineHandler
}

// NewLineWriter returns a writer that forwards lines to h. A nil h discards.
func NewLineWriter(h LineHandler) *LineWriter {
	return &LineWriter{handle: h}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.buf[:i])
		w.buf = w.buf[i+1:]
		w.emit(line)
	}
	return len(p), nil
}

// Flush emits whatever partial line is still buffered.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		line := string(w.buf)
		w.buf = nil
		w.emit(line)
	}
}

func (w *LineWriter) emit(line string) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" || w.handle == nil {
		return
	}
	w.handle(line)
}
