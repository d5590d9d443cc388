package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"

	"github.com/0xADE/ade-progd/client/prog"
)

const progrc = "~/.config/ade/progd.rc"

// Config holds the environment settings and the extra scan paths read from
// the rc file
type Config struct {
	static  env
	dynamic rc
	rcPath  string
}

type (
	env struct {
		Path           string        `envconfig:"PATH"`
		Home           string        `envconfig:"HOME"`
		Terminal       string        `envconfig:"ADE_DEFAULT_TERM"`
		UnixSocket     string        `envconfig:"ADE_PROGD_SOCK"`
		DataDir        string        `envconfig:"ADE_PROGD_DATA_DIR"`
		Workers        int           `envconfig:"ADE_PROGD_WORKERS" default:"4"`
		ListLimit      int           `envconfig:"ADE_PROGD_LIST_LIMIT" default:"50"`
		ReindexDays    int           `envconfig:"ADE_PROGD_REINDEX_DAYS" default:"3"`
		StartupTimeout time.Duration `envconfig:"ADE_PROGD_STARTUP_TIMEOUT" default:"5s"`
		LogLevel       string        `envconfig:"ADE_PROGD_LOG_LEVEL" default:"info"`
		NormalizeCache int           `envconfig:"ADE_PROGD_NORMALIZE_CACHE" default:"4096"`
		XDGDataHome    string        `envconfig:"XDG_DATA_HOME"`
		XDGDataDirs    string        `envconfig:"XDG_DATA_DIRS"`
	}
	rc struct {
		sync.RWMutex
		additionalPaths []string
	}
)

// Load reads the environment and the default rc file
func Load() (*Config, error) {
	return LoadFrom(progrc)
}

// LoadFrom reads the environment and the rc file at rcPath
func LoadFrom(rcPath string) (*Config, error) {
	c := &Config{}

	if err := envconfig.Process("", &c.static); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	c.rcPath = c.expandPath(rcPath)

	// Set default socket path if not provided
	if c.static.UnixSocket == "" {
		currentUser, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("failed to get current user: %w", err)
		}
		c.static.UnixSocket = prog.DefaultSocket(currentUser.Uid)
	}
	c.static.UnixSocket = c.expandPath(c.static.UnixSocket)

	if c.static.DataDir == "" {
		c.static.DataDir = filepath.Join(c.dataHome(), "ade", "progd")
	}
	c.static.DataDir = c.expandPath(c.static.DataDir)

	if err := c.loadRC(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) loadRC() error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(c.rcPath), 0750); err != nil {
		return err
	}

	file, err := os.Open(c.rcPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			file, err = os.Create(c.rcPath)
			if err != nil {
				return err
			}
			return file.Close()
		}
		return err
	}
	defer file.Close()

	var paths []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, c.expandPath(line))
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	c.dynamic.Lock()
	c.dynamic.additionalPaths = paths
	c.dynamic.Unlock()
	return nil
}

// Watch reloads the rc file whenever it changes and calls onChange after each
// successful reload. It blocks until ctx is done.
func (c *Config) Watch(ctx context.Context, logger *log.Logger, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory so that editors replacing the file are noticed
	if err := watcher.Add(filepath.Dir(c.rcPath)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != c.rcPath || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := c.loadRC(); err != nil {
				logger.Error("failed to reload rc file", "path", c.rcPath, "err", err)
				continue
			}
			logger.Info("rc file reloaded", "paths", len(c.AdditionalPaths()))
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "err", err)
		}
	}
}

// Path returns all directories to scan for executables (PATH + rc paths)
func (c *Config) Path() []string {
	paths := strings.Split(c.static.Path, string(os.PathListSeparator))
	additional := c.AdditionalPaths()

	filtered := make([]string, 0, len(paths)+len(additional))
	for _, p := range paths {
		if p != "" {
			filtered = append(filtered, p)
		}
	}
	return append(filtered, additional...)
}

// AdditionalPaths returns the directories listed in the rc file
func (c *Config) AdditionalPaths() []string {
	c.dynamic.RLock()
	defer c.dynamic.RUnlock()
	return append([]string(nil), c.dynamic.additionalPaths...)
}

// RCPath returns the rc file location
func (c *Config) RCPath() string {
	return c.rcPath
}

// ApplicationDirs returns the desktop entry directories in XDG precedence
// order, followed by the Flatpak and Snap export directories
func (c *Config) ApplicationDirs() []string {
	dirs := []string{
		filepath.Join(c.dataHome(), "applications"),
		filepath.Join(c.dataHome(), "flatpak", "exports", "share", "applications"),
	}

	dataDirs := c.static.XDGDataDirs
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}
	for _, d := range strings.Split(dataDirs, string(os.PathListSeparator)) {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	dirs = append(dirs,
		"/var/lib/flatpak/exports/share/applications",
		"/var/lib/snapd/desktop/applications",
	)

	seen := make(map[string]struct{}, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		d = filepath.Clean(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// Terminal returns the default terminal command
func (c *Config) Terminal() string {
	if c.static.Terminal != "" {
		return c.static.Terminal
	}
	// Fallback to TERM env var
	if term := os.Getenv("TERM"); term != "" && term != "dumb" {
		return term
	}
	return "xterm" // Ultimate fallback
}

// UnixSocket returns the Unix socket path
func (c *Config) UnixSocket() string {
	return c.static.UnixSocket
}

// DataDir returns the directory holding the catalog database and settings
func (c *Config) DataDir() string {
	return c.static.DataDir
}

// SettingsPath returns the settings file location
func (c *Config) SettingsPath() string {
	return filepath.Join(c.static.DataDir, "settings.yaml")
}

// Workers returns the number of goroutines used for scoring
func (c *Config) Workers() int {
	if c.static.Workers <= 0 {
		return 4 // Default
	}
	return c.static.Workers
}

// ListLimit returns the maximum number of query results, 0 meaning unlimited
func (c *Config) ListLimit() int {
	if c.static.ListLimit < 0 {
		return 0
	}
	return c.static.ListLimit
}

// FreshnessThreshold returns how old the last index may get before a rescan
func (c *Config) FreshnessThreshold() time.Duration {
	days := c.static.ReindexDays
	if days <= 0 {
		days = 3
	}
	return time.Duration(days) * 24 * time.Hour
}

// StartupTimeout bounds how long startup waits for the first index
func (c *Config) StartupTimeout() time.Duration {
	if c.static.StartupTimeout < 0 {
		return 0
	}
	return c.static.StartupTimeout
}

// LogLevel returns the configured log level name
func (c *Config) LogLevel() string {
	return c.static.LogLevel
}

// NormalizeCacheSize returns the size of the name normalization cache
func (c *Config) NormalizeCacheSize() int {
	return c.static.NormalizeCache
}

func (c *Config) dataHome() string {
	if c.static.XDGDataHome != "" {
		return c.static.XDGDataHome
	}
	return filepath.Join(c.home(), ".local", "share")
}

func (c *Config) home() string {
	if c.static.Home != "" {
		return c.static.Home
	}
	home, _ := os.UserHomeDir()
	return home
}

func (c *Config) expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		return strings.Replace(path, "~", c.home(), 1)
	}
	return path
}
