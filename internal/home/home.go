// Package home manages the mathres home directory (~/.mathres).
package home

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// DefaultDirName is the default name for the mathres home directory.
	DefaultDirName = ".mathres"

	// DataDirName is the subdirectory for the local result database.
	DataDirName = "data"

	// ExtractDirName is the subdirectory for batch extraction output.
	ExtractDirName = "extract"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the default SQLite database file name.
	DatabaseFileName = "mathres.db"
)

// Dir represents the mathres home directory structure.
type Dir struct {
	fs   afero.Fs
	path string
}

// New creates a new Dir on the OS filesystem.
// If path is empty, uses the default (~/.mathres).
func New(path string) (*Dir, error) {
	return NewWithFs(afero.NewOsFs(), path)
}

// NewWithFs creates a Dir backed by fs. Use afero.NewMemMapFs() in tests.
func NewWithFs(fs afero.Fs, path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}
	return &Dir{fs: fs, path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// Fs returns the filesystem the directory lives on.
func (d *Dir) Fs() afero.Fs {
	return d.fs
}

// DataPath returns the path to the data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the default SQLite database path.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.DataPath(), DatabaseFileName)
}

// ExtractDir returns the default output directory for batch extraction.
func (d *Dir) ExtractDir() string {
	return filepath.Join(d.path, ExtractDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.DataPath(), d.ExtractDir()} {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	ok, err := afero.DirExists(d.fs, d.path)
	return err == nil && ok
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	ok, err := afero.Exists(d.fs, d.ConfigPath())
	return err == nil && ok
}
