// Package query ranks catalog programs against a search string.
package query

import (
	"cmp"
	"slices"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/0xADE/ade-progd/internal/catalog"
	"github.com/0xADE/ade-progd/internal/match"
)

const (
	DefaultWorkers = 4
	minChunk       = 64
)

// Result is one ranked program
type Result struct {
	ID       string
	Title    string
	SubTitle string
	Score    int
	Kind     catalog.Kind
	Program  catalog.Program
	// Action is set by the plugin; it returns whether the host should hide
	// its window
	Action func() bool
}

// Options tune the engine
type Options struct {
	Workers int
	Limit   int // 0 means unlimited
}

// Engine answers queries from the current catalog snapshot
type Engine struct {
	store   *catalog.Store
	matcher *match.Matcher
	workers int
	limit   int
}

// NewEngine creates a query engine over store
func NewEngine(store *catalog.Store, matcher *match.Matcher, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Limit < 0 {
		opts.Limit = 0
	}
	return &Engine{
		store:   store,
		matcher: matcher,
		workers: opts.Workers,
		limit:   opts.Limit,
	}
}

// Query scores every enabled program of one snapshot and returns the matches,
// best first
func (e *Engine) Query(text string) []Result {
	return e.Search(e.store.Snapshot(), text)
}

// Search is Query against an explicit snapshot
func (e *Engine) Search(snap *catalog.Snapshot, text string) []Result {
	q := e.matcher.Prepare(text)
	if q.Empty() {
		return nil
	}

	candidates := make([]catalog.Program, 0, snap.Len())
	for _, n := range snap.Native {
		if n.Enabled {
			candidates = append(candidates, n)
		}
	}
	for _, p := range snap.Packaged {
		if p.Enabled {
			candidates = append(candidates, p)
		}
	}

	chunks := chunk(candidates, e.workers)
	partial := make([][]Result, len(chunks))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, c := range chunks {
		g.Go(func() error {
			partial[i] = e.score(c, q)
			return nil
		})
	}
	_ = g.Wait()

	var results []Result
	for _, part := range partial {
		results = append(results, part...)
	}
	Sort(results)

	if e.limit > 0 && len(results) > e.limit {
		results = results[:e.limit]
	}
	return results
}

func (e *Engine) score(programs []catalog.Program, q match.Query) []Result {
	var out []Result
	for _, p := range programs {
		s := e.matcher.ScoreProgram(p, q)
		if s <= 0 {
			continue
		}
		out = append(out, Result{
			ID:       p.Identifier(),
			Title:    p.DisplayName(),
			SubTitle: p.Location(),
			Score:    s,
			Kind:     p.Kind(),
			Program:  p,
		})
	}
	return out
}

// Sort orders results by score, then shorter title, then title, then id
func Sort(results []Result) {
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(utf8.RuneCountInString(a.Title), utf8.RuneCountInString(b.Title)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// chunk splits programs into at most workers parts of at least minChunk
func chunk(programs []catalog.Program, workers int) [][]catalog.Program {
	if len(programs) == 0 {
		return nil
	}
	size := max((len(programs)+workers-1)/workers, minChunk)

	var chunks [][]catalog.Program
	for start := 0; start < len(programs); start += size {
		chunks = append(chunks, programs[start:min(start+size, len(programs))])
	}
	return chunks
}
