//go:build windows

package hosts

const defaultEOL = "\r\n"
