package executable

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ExecutableInfo contains information about an executable file
type ExecutableInfo struct {
	Name      string // Executable name
	Path      string // Path the executable was found at
	Canonical string // Path with directory symlinks resolved
}

// ScanPaths scans executable files in the given paths and closes resultChan
// when done. Missing or unreadable roots are skipped; other I/O failures are
// returned after every root was tried.
func ScanPaths(ctx context.Context, paths []string, resultChan chan<- *ExecutableInfo) error {
	defer close(resultChan)

	var errs []error
	for _, path := range paths {
		if err := scanPath(ctx, path, resultChan); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Continue scanning other paths even if one fails
			errs = append(errs, fmt.Errorf("scan %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

func scanPath(ctx context.Context, rootPath string, resultChan chan<- *ExecutableInfo) error {
	resolvedDirs := make(map[string]string)

	// WalkDir does not descend into a symlinked root such as /bin -> usr/bin
	if info, err := os.Lstat(rootPath); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		rootPath += string(filepath.Separator)
	}

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if ignorable(err) {
				// Skip directories we can't access
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}

		baseName := d.Name()
		if d.IsDir() {
			// Skip hidden directories below the root
			if path != rootPath && strings.HasPrefix(baseName, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip hidden files (starting with .)
		if strings.HasPrefix(baseName, ".") {
			return nil
		}

		if !isExecutable(path, d) {
			return nil
		}

		dir := filepath.Dir(path)
		canonicalDir, ok := resolvedDirs[dir]
		if !ok {
			canonicalDir = dir
			if resolved, err := filepath.EvalSymlinks(dir); err == nil {
				canonicalDir = resolved
			}
			resolvedDirs[dir] = canonicalDir
		}

		select {
		case resultChan <- &ExecutableInfo{
			Name:      baseName,
			Path:      path,
			Canonical: filepath.Join(canonicalDir, baseName),
		}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil && ignorable(err) {
		return nil
	}
	return err
}

// isExecutable follows symlinks and checks for a regular file with any execute bit
func isExecutable(path string, d fs.DirEntry) bool {
	var info fs.FileInfo
	var err error
	if d.Type()&fs.ModeSymlink != 0 {
		info, err = os.Stat(path)
	} else {
		info, err = d.Info()
	}
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

func ignorable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
