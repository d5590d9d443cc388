package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/settings"
)

const (
	DefaultFreshnessThreshold = 3 * 24 * time.Hour
	DefaultDebounce           = 2 * time.Second
	DefaultCheckInterval      = time.Hour
)

// Scanner produces fresh catalog lists
type Scanner interface {
	ScanNative(ctx context.Context, sources []settings.ProgramSource) ([]*catalog.Native, error)
	ScanPackaged(ctx context.Context) ([]*catalog.Packaged, error)
}

// State of the indexer
type State int32

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// Options tune the indexer. Zero values pick the defaults.
type Options struct {
	FreshnessThreshold time.Duration
	StartupTimeout     time.Duration
	Debounce           time.Duration
	CheckInterval      time.Duration
	Now                func() time.Time
	// OnCommit runs after a new snapshot was published, outside of any lock
	OnCommit func(Report)
}

// Report summarizes one indexing run
type Report struct {
	NativeScanned   bool
	PackagedScanned bool
	Native          int // entries in the published snapshot
	Packaged        int
	Duplicates      int
	Generation      uint64
	Duration        time.Duration
	Errors          []error
}

// Err joins the scan errors of the run
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

// Indexer coordinates scanning both sources and publishing the results
type Indexer struct {
	store    *catalog.Store
	settings *settings.Settings
	scanner  Scanner
	opts     Options
	logger   *log.Logger

	runMu   sync.Mutex
	state   atomic.Int32
	rewatch chan struct{}
}

// New creates an indexer publishing into store
func New(store *catalog.Store, s *settings.Settings, scanner Scanner, opts Options, logger *log.Logger) *Indexer {
	if opts.FreshnessThreshold <= 0 {
		opts.FreshnessThreshold = DefaultFreshnessThreshold
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = DefaultCheckInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Indexer{
		store:    store,
		settings: s,
		scanner:  scanner,
		opts:     opts,
		logger:   logger,
		rewatch:  make(chan struct{}, 1),
	}
}

// State returns whether a run is in progress
func (idx *Indexer) State() State {
	return State(idx.state.Load())
}

// IsRunning returns true if indexing is currently in progress
func (idx *Indexer) IsRunning() bool {
	return idx.State() == Scanning
}

// Due reports which sources need a rescan: a source is due when the last full
// index is older than the freshness threshold or its list is empty
func (idx *Indexer) Due(now time.Time) (native, packaged bool) {
	stale := true
	if last := idx.settings.LastIndexed(); !last.IsZero() {
		stale = day(addDays(last.In(now.Location()), idx.opts.FreshnessThreshold)).Before(day(now))
	}
	n, p := idx.store.Len()
	return stale || n == 0, stale || p == 0
}

// Start indexes the due sources in the background. When the catalog is
// completely empty it waits up to the startup timeout for the first run. The
// returned channel yields the report and is closed; it is closed without a
// value when nothing was due.
func (idx *Indexer) Start(ctx context.Context) <-chan Report {
	reports := make(chan Report, 1)

	native, packaged := idx.Due(idx.opts.Now())
	if !native && !packaged {
		idx.logger.Info("catalog is fresh, skipping startup index")
		close(reports)
		return reports
	}

	empty := idx.store.Snapshot().Len() == 0
	done := make(chan struct{})
	go func() {
		defer close(reports)
		defer close(done)
		report, _ := idx.run(ctx, native, packaged)
		reports <- report
	}()

	if empty && idx.opts.StartupTimeout > 0 {
		timer := time.NewTimer(idx.opts.StartupTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			idx.logger.Warn("initial index still running, continuing startup", "waited", idx.opts.StartupTimeout)
		case <-ctx.Done():
		}
	}
	return reports
}

// Reindex scans both sources and publishes the result
func (idx *Indexer) Reindex(ctx context.Context) (Report, error) {
	return idx.run(ctx, true, true)
}

// ReindexDue scans only the sources that are due
func (idx *Indexer) ReindexDue(ctx context.Context) (Report, error) {
	native, packaged := idx.Due(idx.opts.Now())
	if !native && !packaged {
		return Report{}, nil
	}
	return idx.run(ctx, native, packaged)
}

func (idx *Indexer) run(ctx context.Context, scanNative, scanPackaged bool) (Report, error) {
	idx.runMu.Lock()
	defer idx.runMu.Unlock()

	idx.state.Store(int32(Scanning))
	defer idx.state.Store(int32(Idle))

	start := idx.opts.Now()
	report := Report{NativeScanned: scanNative, PackagedScanned: scanPackaged}

	sources := idx.settings.EnabledSources()
	var (
		native            []*catalog.Native
		packaged          []*catalog.Packaged
		nativeErr, pkgErr error
		g                 errgroup.Group
	)

	// A failing scan must not cancel the other one, so the goroutines keep
	// their errors instead of returning them
	if scanNative {
		g.Go(func() error {
			native, nativeErr = idx.scanner.ScanNative(ctx, sources)
			return nil
		})
	}
	if scanPackaged {
		g.Go(func() error {
			packaged, pkgErr = idx.scanner.ScanPackaged(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if nativeErr != nil {
		nativeErr = fmt.Errorf("native scan: %w", nativeErr)
		idx.logger.Warn("native scan failed, keeping previous list", "err", nativeErr)
		report.Errors = append(report.Errors, nativeErr)
	}
	if pkgErr != nil {
		pkgErr = fmt.Errorf("packaged scan: %w", pkgErr)
		idx.logger.Warn("packaged scan failed, keeping previous list", "err", pkgErr)
		report.Errors = append(report.Errors, pkgErr)
	}

	nativeOK := scanNative && nativeErr == nil
	packagedOK := scanPackaged && pkgErr == nil
	if !nativeOK && !packagedOK {
		report.Duration = idx.opts.Now().Sub(start)
		return report, report.Err()
	}

	snap := idx.store.Update(func(cur *catalog.Snapshot) ([]*catalog.Native, []*catalog.Packaged) {
		disabled := idx.settings.DisabledSet()

		nextNative, nextPackaged := cur.Native, cur.Packaged
		if nativeOK {
			var dropped []*catalog.Native
			nextNative, dropped = catalog.Dedup(catalog.ApplyDisabled(native, disabled, catalog.NativeWithEnabled))
			report.Duplicates += len(dropped)
			for _, d := range dropped {
				idx.logger.Debug("dropped duplicate native entry", "id", d.Identifier(), "path", d.Path)
			}
		}
		if packagedOK {
			var dropped []*catalog.Packaged
			nextPackaged, dropped = catalog.Dedup(catalog.ApplyDisabled(packaged, disabled, catalog.PackagedWithEnabled))
			report.Duplicates += len(dropped)
			for _, d := range dropped {
				idx.logger.Debug("dropped duplicate packaged entry", "id", d.Identifier(), "file", d.DesktopFile)
			}
		}
		return nextNative, nextPackaged
	})

	// A partial run leaves the freshness of the other source untouched
	if nativeOK && packagedOK {
		idx.settings.SetLastIndexed(start)
	}

	report.Native = len(snap.Native)
	report.Packaged = len(snap.Packaged)
	report.Generation = snap.Generation
	report.Duration = idx.opts.Now().Sub(start)

	idx.logger.Info("index committed",
		"native", report.Native,
		"packaged", report.Packaged,
		"duplicates", report.Duplicates,
		"generation", report.Generation,
		"took", report.Duration)

	if idx.opts.OnCommit != nil {
		idx.opts.OnCommit(report)
	}
	return report, report.Err()
}

// addDays adds whole calendar days of d to t, so a DST change in between
// does not shift the wall clock
func addDays(t time.Time, d time.Duration) time.Time {
	const oneDay = 24 * time.Hour
	return t.AddDate(0, 0, int(d/oneDay)).Add(d % oneDay)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
