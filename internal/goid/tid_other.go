//go:build !linux

package goid

// Tid returns 0 where thread ids are not exposed.
func Tid() int {
	return 0
}
