package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const filePermissions = 0600

// File persists Settings as YAML
type File struct {
	Path   string
	Logger *log.Logger
}

// NewFile creates a settings file handle at path
func NewFile(path string, logger *log.Logger) *File {
	return &File{Path: path, Logger: logger}
}

// Load reads the settings. A missing or unreadable file yields defaults.
func (f *File) Load() *Settings {
	s := &Settings{}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.warn("failed to read settings, using defaults", "path", f.Path, "err", err)
		}
		return s
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		f.warn("corrupt settings, using defaults", "path", f.Path, "err", err)
		return &Settings{}
	}
	s.normalize()
	return s
}

// Save writes the settings atomically
func (f *File) Save(s *Settings) error {
	s.mu.RLock()
	data, err := yaml.Marshal(s)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Chmod(filePermissions); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set settings permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

func (f *File) warn(msg string, kv ...any) {
	if f.Logger != nil {
		f.Logger.Warn(msg, kv...)
	}
}
