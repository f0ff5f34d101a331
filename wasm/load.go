// Package wasm locates the QuickJS-ng WebAssembly binary used by the
// QuickJS engine.
package wasm

import (
	"errors"
	"fmt"
	"os"
)

// EnvVar names the environment variable holding the path of the module.
const EnvVar = "FFIBRIDGE_QUICKJS_WASM"

// ErrNotConfigured is returned by Load when EnvVar is unset.
var ErrNotConfigured = errors.New(EnvVar + " is not set")

// Load reads the module named by EnvVar.
func Load() ([]byte, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, ErrNotConfigured
	}
	return LoadFile(path)
}

// LoadFile reads a module from path and checks the WebAssembly magic.
func LoadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read QuickJS module: %w", err)
	}
	if len(data) < 4 || string(data[:4]) != "\x00asm" {
		return nil, fmt.Errorf("%s is not a WebAssembly module", path)
	}
	return data, nil
}
