package match

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/0xADE/ade-progd/internal/catalog"
)

// DefaultCacheSize is the number of normalized names kept by a Matcher
const DefaultCacheSize = 4096

// Query is a normalized search string
type Query struct {
	Raw  string
	Norm string
}

// Empty reports whether the query has nothing to match
func (q Query) Empty() bool {
	return q.Norm == ""
}

// Matcher scores programs, caching normalized names between queries.
// It is safe for concurrent use.
type Matcher struct {
	names *lru.Cache[string, string]
}

// NewMatcher creates a matcher caching up to size normalized names
func NewMatcher(size int) (*Matcher, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalize cache: %w", err)
	}
	return &Matcher{names: cache}, nil
}

// Prepare normalizes a query once for scoring many programs
func (m *Matcher) Prepare(raw string) Query {
	return Query{Raw: raw, Norm: Normalize(raw)}
}

// ScoreName scores a display name against a prepared query
func (m *Matcher) ScoreName(name string, q Query) int {
	return score(m.normalize(name), q.Norm)
}

// ScoreProgram scores the display name and, at half weight, the aliases
func (m *Matcher) ScoreProgram(p catalog.Program, q Query) int {
	if q.Empty() {
		return 0
	}
	best := m.ScoreName(p.DisplayName(), q)
	if best == ScoreExact {
		return best
	}
	for _, alias := range p.Aliases() {
		if s := m.ScoreName(alias, q) / 2; s > best {
			best = s
		}
	}
	return best
}

func (m *Matcher) normalize(s string) string {
	if n, ok := m.names.Get(s); ok {
		return n
	}
	n := Normalize(s)
	m.names.Add(s, n)
	return n
}
