// Package programs is the program plugin: it owns the catalog and exposes the
// query, lifecycle and context menu operations to the host.
package programs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/host"
	"github.com/0xADE/ade-progd/internal/indexer"
	"github.com/0xADE/ade-progd/internal/launcher"
	"github.com/0xADE/ade-progd/internal/match"
	"github.com/0xADE/ade-progd/internal/query"
	"github.com/0xADE/ade-progd/internal/settings"
	"github.com/0xADE/ade-progd/internal/storage"
)

// ErrUnknownProgram is returned for identifiers missing from the catalog
var ErrUnknownProgram = errors.New("unknown program")

// Options configure the plugin
type Options struct {
	DataDir            string
	SettingsPath       string
	Workers            int
	ListLimit          int
	NormalizeCacheSize int
	FreshnessThreshold time.Duration
	StartupTimeout     time.Duration
}

// Status describes the catalog for diagnostics
type Status struct {
	State       indexer.State
	Generation  uint64
	Native      int
	Packaged    int
	Disabled    int
	LastIndexed time.Time
}

// Plugin owns the catalog store and its collaborators
type Plugin struct {
	opts     Options
	scanner  indexer.Scanner
	launcher launcher.Launcher
	api      host.API
	logger   *log.Logger

	lock         *storage.DirLock
	db           *storage.DB
	settingsFile *settings.File
	settings     *settings.Settings
	store        *catalog.Store
	indexer      *indexer.Indexer
	engine       *query.Engine

	cancel     context.CancelFunc
	background sync.WaitGroup
}

// New creates a plugin. Nothing is loaded until Init.
func New(opts Options, scanner indexer.Scanner, l launcher.Launcher, api host.API, logger *log.Logger) *Plugin {
	return &Plugin{
		opts:     opts,
		scanner:  scanner,
		launcher: l,
		api:      api,
		logger:   logger,
		store:    catalog.NewStore(),
	}
}

// Init takes the data directory lock, seeds the catalog from storage and
// starts indexing the sources that are due
func (p *Plugin) Init(ctx context.Context) error {
	matcher, err := match.NewMatcher(p.opts.NormalizeCacheSize)
	if err != nil {
		return err
	}

	lock, err := storage.LockDir(p.opts.DataDir)
	if err != nil {
		return err
	}
	p.lock = lock

	db, err := storage.Open(p.opts.DataDir)
	if err != nil {
		p.lock.Unlock()
		return err
	}
	p.db = db

	p.settingsFile = settings.NewFile(p.opts.SettingsPath, p.logger)
	p.settings = p.settingsFile.Load()

	native := loadList[*catalog.Native](p, storage.KeyNative)
	packaged := loadList[*catalog.Packaged](p, storage.KeyPackaged)

	// Stored flags are not trusted; the exclusion records decide
	disabled := p.settings.DisabledSet()
	native, _ = catalog.Dedup(catalog.ApplyDisabled(native, disabled, catalog.NativeWithEnabled))
	packaged, _ = catalog.Dedup(catalog.ApplyDisabled(packaged, disabled, catalog.PackagedWithEnabled))
	p.store.Replace(native, packaged)
	p.logger.Info("catalog loaded", "native", len(native), "packaged", len(packaged))

	p.engine = query.NewEngine(p.store, matcher, query.Options{
		Workers: p.opts.Workers,
		Limit:   p.opts.ListLimit,
	})

	p.indexer = indexer.New(p.store, p.settings, p.scanner, indexer.Options{
		FreshnessThreshold: p.opts.FreshnessThreshold,
		StartupTimeout:     p.opts.StartupTimeout,
		OnCommit: func(indexer.Report) {
			if err := p.Save(); err != nil {
				p.logger.Error("failed to persist catalog after index", "err", err)
			}
		},
	}, p.logger.WithPrefix("indexer"))

	// Close stops the startup index and waits for it before the database goes
	ctx, p.cancel = context.WithCancel(ctx)
	reports := p.indexer.Start(ctx)
	p.background.Go(func() {
		for report := range reports {
			if err := report.Err(); err != nil {
				p.logger.Warn("startup index finished with errors", "err", err)
			}
		}
	})
	return nil
}

// Title is the translated plugin name
func (p *Plugin) Title() string {
	return p.api.Translate(host.KeyPluginName)
}

// Description is the translated plugin description
func (p *Plugin) Description() string {
	return p.api.Translate(host.KeyPluginDescription)
}

// loadList reads a stored catalog list, falling back to an empty one
func loadList[T any](p *Plugin, key string) []T {
	v, err := storage.Load[[]T](p.db, key)
	if err != nil {
		if !storage.IsMissing(err) {
			p.logger.Warn("stored catalog unreadable, starting empty", "key", key, "err", err)
		}
		return []T{}
	}
	return v
}

// Query returns the ranked enabled programs matching text
func (p *Plugin) Query(text string) []query.Result {
	results := p.engine.Query(text)
	for i := range results {
		prog := results[i].Program
		results[i].Action = func() bool {
			_, err := p.launch(prog, p.launcher.Launch)
			return err == nil
		}
	}
	return results
}

// Run starts the program with the given identifier
func (p *Plugin) Run(id string, inTerminal bool) (int, error) {
	prog, ok := p.store.Find(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProgram, id)
	}
	if inTerminal {
		return p.launch(prog, p.launcher.LaunchInTerminal)
	}
	return p.launch(prog, p.launcher.Launch)
}

// launch runs start and tells the user when the program could not start
func (p *Plugin) launch(prog catalog.Program, start func(catalog.Program) (int, error)) (int, error) {
	pid, err := start(prog)
	if err != nil {
		p.logger.Error("failed to start program", "id", prog.Identifier(), "location", prog.Location(), "err", err)
		p.api.ShowMsg(
			p.api.Translate(host.KeyLaunchFailedTitle),
			fmt.Sprintf(p.api.Translate(host.KeyLaunchFailedMessage), launcher.Executable(prog)),
		)
		return 0, err
	}
	return pid, nil
}

// ReloadData rescans both sources
func (p *Plugin) ReloadData(ctx context.Context) (indexer.Report, error) {
	return p.indexer.Reindex(ctx)
}

// Watch keeps the catalog fresh until ctx is done
func (p *Plugin) Watch(ctx context.Context, dirs indexer.Dirs) error {
	return p.indexer.Watch(ctx, dirs)
}

// Rewatch makes Watch pick up a changed directory list
func (p *Plugin) Rewatch() {
	p.indexer.Rewatch()
}

// Save writes both catalog lists and the settings. Memory is never rolled
// back on failure.
func (p *Plugin) Save() error {
	snap := p.store.Snapshot()

	var errs []error
	if err := storage.Save(p.db, storage.KeyNative, snap.Native); err != nil {
		errs = append(errs, err)
	}
	if err := storage.Save(p.db, storage.KeyPackaged, snap.Packaged); err != nil {
		errs = append(errs, err)
	}
	if err := p.settingsFile.Save(p.settings); err != nil {
		errs = append(errs, err)
	}
	for _, err := range errs {
		p.logger.Error("save failed", "err", err)
	}
	return errors.Join(errs...)
}

// Status reports the catalog state
func (p *Plugin) Status() Status {
	snap := p.store.Snapshot()
	return Status{
		State:       p.indexer.State(),
		Generation:  snap.Generation,
		Native:      len(snap.Native),
		Packaged:    len(snap.Packaged),
		Disabled:    len(p.settings.Disabled()),
		LastIndexed: p.settings.LastIndexed(),
	}
}

// Find looks up a program in the current catalog
func (p *Plugin) Find(id string) (catalog.Program, bool) {
	return p.store.Find(id)
}

// Close stops background indexing, then releases the database and the data
// directory lock
func (p *Plugin) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	p.background.Wait()

	var errs []error
	if err := p.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
