package wasm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNotConfigured(t *testing.T) {
	t.Setenv(EnvVar, "")
	if _, err := Load(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Load() error = %v, want ErrNotConfigured", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.wasm")
	if err := os.WriteFile(good, []byte("\x00asm\x01\x00\x00\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.wasm")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(good); err != nil {
		t.Fatalf("LoadFile(good) error = %v", err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Fatal("LoadFile(bad) succeeded")
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.wasm")); err == nil {
		t.Fatal("LoadFile(missing) succeeded")
	}

	t.Setenv(EnvVar, good)
	if data, err := Load(); err != nil || len(data) != 8 {
		t.Fatalf("Load() = %d bytes, %v", len(data), err)
	}
}
