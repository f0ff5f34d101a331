package ffibridge

import (
	"go.uber.org/zap"

	"github.com/Gaurav-Gosain/ffibridge/internal/goid"
)

// goroutineFields identifies the calling goroutine and, where the platform
// exposes it, the OS thread it is pinned to.
func goroutineFields(extra ...zap.Field) []zap.Field {
	fields := []zap.Field{zap.Uint64("goroutine", goid.ID())}
	if tid := goid.Tid(); tid > 0 {
		fields = append(fields, zap.Int("tid", tid))
	}
	return append(fields, extra...)
}
