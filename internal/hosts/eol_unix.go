//go:build !windows

package hosts

const defaultEOL = "\n"
