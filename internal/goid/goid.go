// Package goid identifies the calling goroutine and its OS thread.
package goid

import "runtime"

// ID returns a unique identifier for the current goroutine.
// It parses the header of the runtime stack trace, which looks like
// "goroutine 123 [running]:".
func ID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n && buf[i] != ' '; i++ {
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
