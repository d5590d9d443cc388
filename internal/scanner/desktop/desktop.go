package desktop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultCacheSize bounds the number of parsed files kept between scans
const DefaultCacheSize = 2048

// DesktopEntry represents a parsed .desktop file
type DesktopEntry struct {
	ID           string            // Desktop file id, relative path with "/" replaced by "-"
	Name         string            // Default name
	Names        map[string]string // Localized names (locale -> name)
	GenericName  string
	Comment      string
	Keywords     []string
	Categories   []string // Application categories
	Type         string
	Exec         string // Exec command
	TryExec      string
	Terminal     bool // Whether to run in terminal
	NoDisplay    bool
	Hidden       bool
	FlatpakID    string // X-Flatpak
	SnapInstance string // X-SnapInstanceName
	Path         string // Path to .desktop file
}

// Visible reports whether the entry should be offered to the user
func (d *DesktopEntry) Visible() bool {
	if d.Hidden || d.NoDisplay {
		return false
	}
	return d.Type == "" || d.Type == "Application"
}

type cachedEntry struct {
	modTime time.Time
	size    int64
	entry   *DesktopEntry
}

// Scanner walks application directories and reuses parses of unchanged files
type Scanner struct {
	cache *lru.Cache[string, cachedEntry]
}

// NewScanner creates a scanner whose parse cache holds size files
func NewScanner(size int) (*Scanner, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create desktop cache: %w", err)
	}
	return &Scanner{cache: cache}, nil
}

// Scan walks dirs in order, sends every parsed entry to resultChan and closes
// it when done. Directories that do not exist are skipped. Files that fail to
// parse are skipped.
func (s *Scanner) Scan(ctx context.Context, dirs []string, resultChan chan<- *DesktopEntry) error {
	defer close(resultChan)

	var errs []error
	for _, dir := range dirs {
		if err := s.scanDir(ctx, dir, resultChan); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Continue scanning other paths
			errs = append(errs, fmt.Errorf("scan %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scanner) scanDir(ctx context.Context, rootPath string, resultChan chan<- *DesktopEntry) error {
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}

		if d.IsDir() || !strings.HasSuffix(path, ".desktop") {
			return nil
		}

		entry, err := s.parse(path)
		if err != nil {
			// Skip invalid files
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return nil
		}
		entry.ID = DesktopFileID(rel)

		select {
		case resultChan <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// parse returns a private copy of the entry, from the cache when the file is
// unchanged since it was last parsed
func (s *Scanner) parse(path string) (*DesktopEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if c, ok := s.cache.Get(path); ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		entry := *c.entry
		return &entry, nil
	}

	parsed, err := ParseDesktopFile(path)
	if err != nil {
		s.cache.Remove(path)
		return nil, err
	}
	s.cache.Add(path, cachedEntry{modTime: info.ModTime(), size: info.Size(), entry: parsed})

	entry := *parsed
	return &entry, nil
}

// DesktopFileID converts a path relative to an applications directory into a
// desktop file id, e.g. "kde/konsole.desktop" becomes "kde-konsole.desktop"
func DesktopFileID(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "-")
}

// ParseDesktopFile parses a single .desktop file
func ParseDesktopFile(path string) (*DesktopEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	entry := &DesktopEntry{
		Path:  path,
		Names: make(map[string]string),
	}

	scanner := bufio.NewScanner(file)
	var inDesktopEntry bool

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Check for section header
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inDesktopEntry = strings.Trim(line, "[]") == "Desktop Entry"
			continue
		}

		if !inDesktopEntry {
			continue
		}

		// Parse key=value pairs
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Name":
			entry.Name = unescape(value)
		case "GenericName":
			entry.GenericName = unescape(value)
		case "Comment":
			entry.Comment = unescape(value)
		case "Keywords":
			entry.Keywords = splitList(value)
		case "Categories":
			entry.Categories = splitList(value)
		case "Type":
			entry.Type = value
		case "Exec":
			entry.Exec = value
		case "TryExec":
			entry.TryExec = unescape(value)
		case "Terminal":
			entry.Terminal = parseBool(value)
		case "NoDisplay":
			entry.NoDisplay = parseBool(value)
		case "Hidden":
			entry.Hidden = parseBool(value)
		case "X-Flatpak":
			entry.FlatpakID = value
		case "X-SnapInstanceName":
			entry.SnapInstance = value
		default:
			// Check for localized Name[locale]
			if strings.HasPrefix(key, "Name[") && strings.HasSuffix(key, "]") {
				locale := key[5 : len(key)-1]
				entry.Names[locale] = unescape(value)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Validate required fields
	if entry.Name == "" && entry.Exec == "" {
		return nil, fmt.Errorf("missing required fields")
	}

	// Set default name if not set
	if entry.Name == "" {
		entry.Name = strings.TrimSuffix(filepath.Base(path), ".desktop")
	}

	return entry, nil
}

func parseBool(value string) bool {
	return strings.EqualFold(value, "true")
}

// splitList splits a semicolon-separated value, honouring "\;" escapes
func splitList(value string) []string {
	var (
		items []string
		cur   strings.Builder
	)
	for i := 0; i < len(value); i++ {
		switch {
		case value[i] == '\\' && i+1 < len(value) && value[i+1] == ';':
			cur.WriteByte(';')
			i++
		case value[i] == ';':
			if item := unescape(strings.TrimSpace(cur.String())); item != "" {
				items = append(items, item)
			}
			cur.Reset()
		default:
			cur.WriteByte(value[i])
		}
	}
	if item := unescape(strings.TrimSpace(cur.String())); item != "" {
		items = append(items, item)
	}
	return items
}

var unescaper = strings.NewReplacer(`\s`, " ", `\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)

func unescape(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	return unescaper.Replace(value)
}

// ExpandExecCommand substitutes the name and location codes of an Exec
// value and drops the file and URL codes. The substituted values are quoted
// so that shell word splitting keeps each of them a single argument.
func ExpandExecCommand(exec, name, desktopFile string) (string, error) {
	values := make(map[byte]string, 2)
	for code, v := range map[byte]string{'c': name, 'k': desktopFile} {
		if v == "" {
			continue
		}
		quoted, err := syntax.Quote(v, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("cannot quote %%%c value %q: %w", code, v, err)
		}
		values[code] = quoted
	}
	return strings.TrimSpace(expandFieldCodes(exec, values)), nil
}

// expandFieldCodes replaces the field codes of s in a single pass: "%%"
// becomes "%", codes found in values are replaced and other codes removed.
// Replacement text is never scanned again.
func expandFieldCodes(s string, values map[byte]string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '%' && i+1 < len(s) {
			next := s[i+1]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') || next == '%' {
				if next == '%' {
					result.WriteByte('%')
				} else {
					result.WriteString(values[next])
				}
				i += 2
				continue
			}
		}
		result.WriteByte(s[i])
		i++
	}
	return result.String()
}
