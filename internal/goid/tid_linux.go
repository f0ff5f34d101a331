//go:build linux

package goid

import "golang.org/x/sys/unix"

// Tid returns the OS thread id of the calling thread.
func Tid() int {
	return unix.Gettid()
}
