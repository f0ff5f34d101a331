package jsvm

import (
	"sync"

	"github.com/Gaurav-Gosain/ffibridge/internal/goid"
)

// engineLock serializes access to the engine. It is reentrant so that a
// native function called from script can use the environment of the
// goroutine that entered the engine.
type engineLock struct {
	mu     sync.Mutex
	holder uint64 // goroutine ID of the current holder, 0 if unlocked
	depth  int32
	state  sync.Mutex // protects holder and depth
}

// lock acquires the engine for the calling goroutine and returns its ID.
func (l *engineLock) lock() uint64 {
	gid := goid.ID()

	l.state.Lock()
	if l.holder == gid {
		l.depth++
		l.state.Unlock()
		return gid
	}
	l.state.Unlock()

	l.mu.Lock()

	l.state.Lock()
	l.holder = gid
	l.depth = 1
	l.state.Unlock()
	return gid
}

func (l *engineLock) unlock() {
	l.state.Lock()
	l.depth--
	if l.depth == 0 {
		l.holder = 0
		l.state.Unlock()
		l.mu.Unlock()
		return
	}
	l.state.Unlock()
}
