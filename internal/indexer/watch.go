package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Dirs lists the executable directories and the desktop entry directories
// to watch. It is called again after every Rewatch.
type Dirs func() (execDirs, appDirs []string)

// Watch keeps the catalog fresh until ctx is done. Changes in the watched
// directories trigger a debounced reindex of the affected source, and the
// freshness threshold is re-checked every check interval. Desktop entry
// directories are watched with all their subdirectories.
func (idx *Indexer) Watch(ctx context.Context, dirs Dirs) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	set := &watchSet{watcher: watcher, logger: idx.logger, dirs: make(map[string]bool)}
	set.update(dirs())

	ticker := time.NewTicker(idx.opts.CheckInterval)
	defer ticker.Stop()

	debounce := time.NewTimer(idx.opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	var pendingNative, pendingPackaged bool

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-idx.rewatch:
			set.update(dirs())

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Write) {
				continue
			}
			app := set.isApp(event.Name)
			if event.Has(fsnotify.Create) && app {
				set.addTree(event.Name)
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				set.forget(event.Name)
			}
			if app || strings.HasSuffix(event.Name, ".desktop") {
				pendingPackaged = true
			} else {
				pendingNative = true
			}
			debounce.Reset(idx.opts.Debounce)

		case <-debounce.C:
			native, packaged := pendingNative, pendingPackaged
			pendingNative, pendingPackaged = false, false
			idx.logger.Debug("directories changed, reindexing", "native", native, "packaged", packaged)
			_, _ = idx.run(ctx, native, packaged)

		case <-ticker.C:
			if _, err := idx.ReindexDue(ctx); err != nil {
				idx.logger.Warn("periodic reindex failed", "err", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			idx.logger.Warn("directory watcher error", "err", err)
		}
	}
}

// Rewatch makes a running Watch ask its Dirs again
func (idx *Indexer) Rewatch() {
	select {
	case idx.rewatch <- struct{}{}:
	default:
	}
}

// watchSet tracks the directories registered with the watcher
type watchSet struct {
	watcher  *fsnotify.Watcher
	logger   *log.Logger
	appRoots []string
	dirs     map[string]bool
}

// update makes the watched set match execDirs and the trees below appDirs
func (w *watchSet) update(execDirs, appDirs []string) {
	want := make(map[string]bool)
	for _, dir := range execDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			want[filepath.Clean(dir)] = true
		}
	}
	w.appRoots = w.appRoots[:0]
	for _, dir := range appDirs {
		dir = filepath.Clean(dir)
		w.appRoots = append(w.appRoots, dir)
		walkDirs(dir, func(path string) { want[path] = true })
	}

	for dir := range w.dirs {
		if !want[dir] {
			_ = w.watcher.Remove(dir)
			delete(w.dirs, dir)
		}
	}
	for dir := range want {
		w.add(dir)
	}
}

func (w *watchSet) add(dir string) {
	if w.dirs[dir] {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Debug("cannot watch directory", "dir", dir, "err", err)
		return
	}
	w.dirs[dir] = true
}

// addTree watches a directory created inside a desktop entry tree. Files
// written before the watch was added are caught by the reindex that the
// create event triggers.
func (w *watchSet) addTree(path string) {
	walkDirs(filepath.Clean(path), w.add)
}

func (w *watchSet) forget(path string) {
	path = filepath.Clean(path)
	if w.dirs[path] {
		_ = w.watcher.Remove(path)
		delete(w.dirs, path)
	}
}

func (w *watchSet) isApp(path string) bool {
	path = filepath.Clean(path)
	for _, root := range w.appRoots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// walkDirs calls fn for root and every directory below it. Missing or
// unreadable directories are skipped.
func walkDirs(root string, fn func(string)) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			fn(path)
		}
		return nil
	})
}
