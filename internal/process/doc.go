// Package process spawns and tracks child processes on behalf of the
// supervisors in internal/agent.
//
// Every child runs in its own process group (or session, when attached to a
// pseudo-terminal) so that a forced stop reaches the whole tree. Output is
// delivered line by line through LineHandler callbacks; partial lines are
// buffered until their terminator arrives or the stream closes.
package process
