// Package fuzzy ranks near-miss strings against a finite vocabulary. It is
// used to turn typos in resource types, search parameter names and codes
// into "did you mean" suggestions.
package fuzzy

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"
)

const (
	// DefaultMaxResults is the default K: the most suggestions returned.
	DefaultMaxResults = 3
	// DefaultThreshold is the default T: the minimum similarity accepted.
	DefaultThreshold = 0.6
)

// Options configures a Matcher. Zero values fall back to the defaults.
type Options struct {
	MaxResults int
	Threshold  float64
}

// Match is a single ranked suggestion.
type Match struct {
	Value    string
	Score    float64
	Distance int
}

// Matcher holds only its immutable options and is safe for concurrent use.
type Matcher struct {
	maxResults int
	threshold  float64
}

// New creates a Matcher, applying defaults for unset options.
func New(opts Options) Matcher {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	return Matcher{maxResults: opts.MaxResults, threshold: opts.Threshold}
}

// Default returns a Matcher with K=3 and T=0.6.
func Default() Matcher {
	return New(Options{})
}

// MaxResults returns K.
func (m Matcher) MaxResults() int { return m.maxResults }

// Threshold returns T.
func (m Matcher) Threshold() float64 { return m.threshold }

// Match returns at most K entries of valid whose similarity to candidate is
// at least T, best first. Ties are broken by the smaller edit distance and
// then lexically. Duplicate entries in valid are reported once.
func (m Matcher) Match(candidate string, valid []string) []Match {
	if m.maxResults <= 0 {
		m = Default()
	}
	needle := strings.ToLower(candidate)

	seen := make(map[string]struct{}, len(valid))
	matches := make([]Match, 0, m.maxResults)
	for _, v := range valid {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}

		score, dist := Similarity(needle, strings.ToLower(v))
		if score < m.threshold {
			continue
		}
		matches = append(matches, Match{Value: v, Score: score, Distance: dist})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Value < b.Value
	})

	if len(matches) > m.maxResults {
		matches = matches[:m.maxResults]
	}
	return matches
}

// Suggest is Match reduced to the suggested strings.
func (m Matcher) Suggest(candidate string, valid []string) []string {
	matches := m.Match(candidate, valid)
	out := make([]string, len(matches))
	for i, mt := range matches {
		out[i] = mt.Value
	}
	return out
}

// Similarity returns a score in [0,1] derived from the Levenshtein distance
// between a and b, normalised by the longer string, plus the raw distance.
func Similarity(a, b string) (float64, int) {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1, 0
	}
	dist := distance(a, b, la, lb)
	return 1 - float64(dist)/float64(longest), dist
}

// distance is the Levenshtein distance in runes. smetrics compares bytes,
// so non-ASCII input is first rewritten with one byte per distinct rune.
func distance(a, b string, la, lb int) int {
	if la == len(a) && lb == len(b) {
		return smetrics.WagnerFischer(a, b, 1, 1, 1)
	}
	if ea, eb, ok := byteAlphabet(a, b); ok {
		return smetrics.WagnerFischer(ea, eb, 1, 1, 1)
	}
	return runeDistance([]rune(a), []rune(b))
}

// byteAlphabet maps each distinct rune of a and b to one byte. It fails
// when there are more than 256 distinct runes.
func byteAlphabet(a, b string) (string, string, bool) {
	alphabet := make(map[rune]byte)
	encode := func(s string) ([]byte, bool) {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			c, ok := alphabet[r]
			if !ok {
				if len(alphabet) == 256 {
					return nil, false
				}
				c = byte(len(alphabet))
				alphabet[r] = c
			}
			out = append(out, c)
		}
		return out, true
	}
	ea, ok := encode(a)
	if !ok {
		return "", "", false
	}
	eb, ok := encode(b)
	if !ok {
		return "", "", false
	}
	return string(ea), string(eb), true
}

func runeDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
