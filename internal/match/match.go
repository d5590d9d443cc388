// Package match scores program names against free-text queries.
//
// Scores fall into disjoint tiers, so a better kind of match always beats a
// worse one regardless of length:
//
//	exact                 1000
//	prefix                800..850
//	word prefix           600..650
//	substring             400..450
//	ordered subsequence   100..299
//	no match / empty      0
//
// Inside the prefix, word prefix and substring tiers, names closer in length
// to the query score higher.
package match

import (
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/unicode/norm"
)

const (
	ScoreExact      = 1000
	ScorePrefix     = 800
	ScoreWordPrefix = 600
	ScoreSubstring  = 400
	ScoreSubseq     = 100

	maxCloseness  = 50
	maxSubseqGain = 199
)

// Normalize folds s for matching: NFKC, lower case, single spaces
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Score returns how well name matches query. Zero means no match.
func Score(name, query string) int {
	return score(Normalize(name), Normalize(query))
}

// score expects both arguments normalized
func score(name, query string) int {
	if query == "" || name == "" {
		return 0
	}
	if name == query {
		return ScoreExact
	}

	closeness := closenessBonus(name, query)
	switch {
	case strings.HasPrefix(name, query):
		return ScorePrefix + closeness
	case hasWordPrefix(name, query):
		return ScoreWordPrefix + closeness
	case strings.Contains(name, query):
		return ScoreSubstring + closeness
	}

	matches := fuzzy.FindNoSort(query, []string{name})
	if len(matches) == 0 {
		return 0
	}
	gain := matches[0].Score
	if gain < 0 {
		gain = 0
	}
	if gain > maxSubseqGain {
		gain = maxSubseqGain
	}
	return ScoreSubseq + gain
}

// closenessBonus rewards names that are not much longer than the query
func closenessBonus(name, query string) int {
	extra := utf8.RuneCountInString(name) - utf8.RuneCountInString(query)
	bonus := (2*maxCloseness - extra) / 2
	if bonus < 0 {
		return 0
	}
	if bonus > maxCloseness {
		return maxCloseness
	}
	return bonus
}

// hasWordPrefix reports whether a word after the first one starts with query
func hasWordPrefix(name, query string) bool {
	for i := 1; i < len(name); i++ {
		if isSeparator(name[i-1]) && !isSeparator(name[i]) && strings.HasPrefix(name[i:], query) {
			return true
		}
	}
	return false
}

func isSeparator(b byte) bool {
	switch b {
	case ' ', '-', '_', '.', '/', ':', '(', ')':
		return true
	}
	return false
}
