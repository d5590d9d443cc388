// Package scanner turns executables and desktop entries found on disk into
// catalog entries.
package scanner

import (
	"context"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/scanner/desktop"
	"github.com/0xADE/ade-progd/internal/scanner/executable"
	"github.com/0xADE/ade-progd/internal/settings"
)

const flatpakExports = "/flatpak/exports/share/applications"

// Dirs provides the directories to scan
type Dirs interface {
	Path() []string
	ApplicationDirs() []string
}

// Sources scans both program sources
type Sources struct {
	dirs     Dirs
	desktop  *desktop.Scanner
	logger   *log.Logger
	lookPath func(string) (string, error)
}

// New creates the scanners over dirs
func New(dirs Dirs, logger *log.Logger) (*Sources, error) {
	ds, err := desktop.NewScanner(desktop.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Sources{
		dirs:     dirs,
		desktop:  ds,
		logger:   logger,
		lookPath: exec.LookPath,
	}, nil
}

// ScanNative lists the executables in PATH, the rc directories and the
// enabled program sources
func (s *Sources) ScanNative(ctx context.Context, sources []settings.ProgramSource) ([]*catalog.Native, error) {
	roots := s.dirs.Path()
	for _, src := range sources {
		if src.Enabled && src.Location != "" {
			roots = append(roots, src.Location)
		}
	}
	roots = uniqueClean(roots)

	var native []*catalog.Native
	results := make(chan *executable.ExecutableInfo, 100)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return executable.ScanPaths(gctx, roots, results)
	})
	g.Go(func() error {
		for info := range results {
			native = append(native, &catalog.Native{
				Name:             info.Name,
				Path:             info.Path,
				UniqueIdentifier: catalog.NativeIdentifier(info.Canonical, nil),
				Enabled:          true,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("native scan finished", "roots", len(roots), "found", len(native))
	return native, nil
}

// ScanPackaged lists the desktop entries of the application directories. It
// returns nothing on platforms without XDG desktop entries.
func (s *Sources) ScanPackaged(ctx context.Context) ([]*catalog.Packaged, error) {
	if !supportsDesktopEntries(runtime.GOOS) {
		return nil, nil
	}

	dirs := s.dirs.ApplicationDirs()
	results := make(chan *desktop.DesktopEntry, 100)

	var entries []*desktop.DesktopEntry
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.desktop.Scan(gctx, dirs, results)
	})
	g.Go(func() error {
		for e := range results {
			entries = append(entries, e)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	packaged := s.toPackaged(entries)
	s.logger.Debug("packaged scan finished", "dirs", len(dirs), "found", len(packaged))
	return packaged, nil
}

// toPackaged converts entries in precedence order. An entry hidden by a
// directory of higher precedence masks the ones with the same id below it.
func (s *Sources) toPackaged(entries []*desktop.DesktopEntry) []*catalog.Packaged {
	masked := make(map[string]struct{})
	packaged := make([]*catalog.Packaged, 0, len(entries))

	for _, e := range entries {
		family := packageFamily(e)
		id := catalog.PackagedIdentifier(family, e.ID)
		if _, ok := masked[id]; ok {
			continue
		}
		if !e.Visible() {
			masked[id] = struct{}{}
			continue
		}
		if e.TryExec != "" {
			if _, err := s.lookPath(e.TryExec); err != nil {
				s.logger.Debug("skipping entry with missing TryExec", "file", e.Path, "try_exec", e.TryExec)
				continue
			}
		}

		p := catalog.NewPackaged(family, e.ID, e.Name)
		p.Names = e.Names
		p.GenericName = e.GenericName
		p.Description = e.Comment
		p.Keywords = e.Keywords
		p.Categories = e.Categories
		p.DesktopFile = e.Path
		p.PackageLocation = packageLocation(e, family)
		p.Exec = e.Exec
		p.Terminal = e.Terminal
		packaged = append(packaged, p)
	}
	return packaged
}

func packageFamily(e *desktop.DesktopEntry) string {
	switch {
	case e.FlatpakID != "":
		return e.FlatpakID
	case e.SnapInstance != "":
		return e.SnapInstance
	default:
		return catalog.SystemFamily
	}
}

// packageLocation returns the install directory of the package behind e
func packageLocation(e *desktop.DesktopEntry, family string) string {
	dir := filepath.Dir(e.Path)
	switch {
	case e.FlatpakID != "":
		if root, ok := strings.CutSuffix(filepath.ToSlash(dir), flatpakExports); ok {
			return filepath.Join(filepath.FromSlash(root), "flatpak", "app", family)
		}
		return filepath.Join("/var/lib/flatpak/app", family)
	case e.SnapInstance != "":
		return filepath.Join("/snap", family)
	default:
		return dir
	}
}

func supportsDesktopEntries(goos string) bool {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd", "dragonfly":
		return true
	default:
		return false
	}
}

func uniqueClean(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
