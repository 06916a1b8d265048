// Package terminology builds per coding system indices of code -> display
// used to validate coded search values and suggest near-miss codes.
package terminology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/gofhir/fhir/r4"

	"github.com/fhirnudge/nudge/internal/platform/fuzzy"
)

// ErrEmptyExpansion is returned when an expansion yields no codes for the
// requested system.
var ErrEmptyExpansion = errors.New("terminology: expansion contains no codes")

// Index holds the codes of a single coding system. It is immutable once
// built and safe for concurrent reads.
type Index struct {
	system   string
	displays map[string]string
	codes    []string
	// texts is codes followed by non-empty displays, the fuzzy vocabulary.
	texts     []string
	byDisplay map[string][]string
}

// BuildIndex builds an Index for system from concepts. Concepts with an
// empty code are rejected; a repeated code keeps its first display.
func BuildIndex(system string, concepts []Concept) (*Index, error) {
	if system == "" {
		return nil, errors.New("terminology: system is required")
	}
	if len(concepts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyExpansion, system)
	}

	idx := &Index{
		system:    system,
		displays:  make(map[string]string, len(concepts)),
		byDisplay: make(map[string][]string),
	}
	for i, c := range concepts {
		if c.Code == "" {
			return nil, fmt.Errorf("terminology: %s concept %d has no code", system, i)
		}
		if _, dup := idx.displays[c.Code]; dup {
			continue
		}
		idx.displays[c.Code] = c.Display
		idx.codes = append(idx.codes, c.Code)
		if c.Display != "" {
			idx.byDisplay[c.Display] = append(idx.byDisplay[c.Display], c.Code)
		}
	}
	sort.Strings(idx.codes)

	displays := make([]string, 0, len(idx.byDisplay))
	for d := range idx.byDisplay {
		displays = append(displays, d)
	}
	sort.Strings(displays)
	idx.texts = append(append([]string(nil), idx.codes...), displays...)

	return idx, nil
}

// BuildIndexFromValueSet builds an Index from a FHIR ValueSet carrying an
// expansion (the result of $expand). Nested contains are flattened and only
// entries of system are kept.
func BuildIndexFromValueSet(system string, data []byte) (*Index, error) {
	var vs r4.ValueSet
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, fmt.Errorf("terminology: decode ValueSet expansion for %s: %w", system, err)
	}
	if vs.Expansion == nil {
		return nil, fmt.Errorf("%w: %s: ValueSet has no expansion", ErrEmptyExpansion, system)
	}

	var concepts []Concept
	var walk func(items []r4.ValueSetExpansionContains)
	walk = func(items []r4.ValueSetExpansionContains) {
		for i := range items {
			item := &items[i]
			if item.Code != nil && item.System != nil && *item.System == system {
				c := Concept{Code: *item.Code}
				if item.Display != nil {
					c.Display = *item.Display
				}
				concepts = append(concepts, c)
			}
			walk(item.Contains)
		}
	}
	walk(vs.Expansion.Contains)

	return BuildIndex(system, concepts)
}

// System returns the coding system URI.
func (x *Index) System() string { return x.system }

// Len returns the number of distinct codes.
func (x *Index) Len() int { return len(x.codes) }

// Lookup returns the display for code and whether the code is known.
func (x *Index) Lookup(code string) (string, bool) {
	d, ok := x.displays[code]
	return d, ok
}

// Codes returns the sorted codes.
func (x *Index) Codes() []string {
	return append([]string(nil), x.codes...)
}

// Suggest returns up to m.MaxResults() codes whose code or display text is
// close to value, best first. A display hit is reported as its code.
func (x *Index) Suggest(value string, m fuzzy.Matcher) []Suggestion {
	matches := m.Match(value, x.texts)

	limit := m.MaxResults()
	seen := make(map[string]struct{}, limit)
	out := make([]Suggestion, 0, limit)
	add := func(code string) {
		if _, dup := seen[code]; dup || len(out) >= limit {
			return
		}
		seen[code] = struct{}{}
		out = append(out, Suggestion{Code: code, Display: x.displays[code]})
	}
	for _, mt := range matches {
		if _, isCode := x.displays[mt.Value]; isCode {
			add(mt.Value)
			continue
		}
		for _, code := range x.byDisplay[mt.Value] {
			add(code)
		}
	}
	return out
}
