package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSiteNotFound = errors.New("site not found")
	// ErrNoPort means the site was not part of the last planning pass and
	// needs a full restart before it can be started.
	ErrNoPort = errors.New("site has no port from the last start; restart all services")
	// ErrOutsideRoot refuses to delete a directory that does not resolve
	// inside the sites root.
	ErrOutsideRoot = errors.New("site path is outside the sites root")
)

// DegradedError reports component failures from a pass that otherwise
// completed.
type DegradedError struct {
	Failures []error
}

func (e *DegradedError) Error() string {
	noun := "components"
	if len(e.Failures) == 1 {
		noun = "component"
	}
	return fmt.Sprintf("%d %s failed: %s", len(e.Failures), noun, strings.Join(e.Messages(), "; "))
}

func (e *DegradedError) Unwrap() []error { return e.Failures }

// Messages returns one line per failure.
func (e *DegradedError) Messages() []string {
	out := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		out[i] = err.Error()
	}
	return out
}

func degraded(failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	return &DegradedError{Failures: failures}
}
