package home

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-mathres")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-mathres" {
			t.Errorf("expected path /tmp/test-mathres, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		home, _ := os.UserHomeDir()
		if expected := filepath.Join(home, DefaultDirName); dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-mathres")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataPath", dir.DataPath(), "/tmp/test-mathres/data"},
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-mathres/config.yaml"},
		{"DatabasePath", dir.DatabasePath(), "/tmp/test-mathres/data/mathres.db"},
		{"ExtractDir", dir.ExtractDir(), "/tmp/test-mathres/extract"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestDir_EnsureExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir, err := NewWithFs(fs, "/home/u/.mathres")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	for _, p := range []string{dir.DataPath(), dir.ExtractDir()} {
		if ok, _ := afero.DirExists(fs, p); !ok {
			t.Errorf("%s not created", p)
		}
	}

	if dir.ConfigExists() {
		t.Error("config should not exist yet")
	}
	if err := afero.WriteFile(fs, dir.ConfigPath(), []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !dir.ConfigExists() {
		t.Error("config should exist after write")
	}

	// Idempotent
	if err := dir.EnsureExists(); err != nil {
		t.Errorf("second EnsureExists() error = %v", err)
	}
}
