package terminology

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Loader builds indices for a set of coding systems, expanding ValueSets on
// the upstream server or reading the reference tables.
type Loader struct {
	expander ExpansionFetcher
	repo     CodeRepository
}

// NewLoader creates a Loader. Either dependency may be nil when no source
// of that kind is configured.
func NewLoader(expander ExpansionFetcher, repo CodeRepository) *Loader {
	return &Loader{expander: expander, repo: repo}
}

// LoadAll builds one Index per source concurrently. It fails as a whole if
// any single system cannot be loaded, so callers never see a partial set.
func (l *Loader) LoadAll(ctx context.Context, sources []SystemSource) (map[string]*Index, error) {
	out := make(map[string]*Index, len(sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			idx, err := l.Load(gctx, src)
			if err != nil {
				return err
			}
			mu.Lock()
			out[idx.System()] = idx
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Load builds the Index for a single source.
func (l *Loader) Load(ctx context.Context, src SystemSource) (*Index, error) {
	if src.System == "" {
		return nil, fmt.Errorf("terminology: source without system")
	}
	if src.ValueSetURL != "" {
		if l.expander == nil {
			return nil, fmt.Errorf("terminology: %s: no upstream expander configured", src.System)
		}
		data, err := l.expander.ExpandValueSet(ctx, src.ValueSetURL)
		if err != nil {
			return nil, fmt.Errorf("terminology: expand %s: %w", src.ValueSetURL, err)
		}
		return BuildIndexFromValueSet(src.System, data)
	}

	if l.repo == nil {
		return nil, fmt.Errorf("terminology: %s: no reference code repository configured", src.System)
	}
	concepts, err := l.repo.ListBySystem(ctx, src.System)
	if err != nil {
		return nil, fmt.Errorf("terminology: %w", err)
	}
	return BuildIndex(src.System, concepts)
}

// ParseSystemSources parses "system" and "system=valueset_url" entries.
// Duplicate systems are an error.
func ParseSystemSources(entries []string) ([]SystemSource, error) {
	seen := make(map[string]struct{}, len(entries))
	out := make([]SystemSource, 0, len(entries))
	for _, e := range entries {
		system, vs, _ := strings.Cut(strings.TrimSpace(e), "=")
		system, vs = strings.TrimSpace(system), strings.TrimSpace(vs)
		if system == "" {
			return nil, fmt.Errorf("terminology: invalid code system entry %q", e)
		}
		if _, dup := seen[system]; dup {
			return nil, fmt.Errorf("terminology: code system %s listed twice", system)
		}
		seen[system] = struct{}{}
		out = append(out, SystemSource{System: system, ValueSetURL: vs})
	}
	return out, nil
}
