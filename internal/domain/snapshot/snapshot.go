// Package snapshot holds the immutable set of indices the proxy validates
// and renders with, and swaps in a rebuilt set on refresh.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/classify"
	"github.com/fhirnudge/nudge/internal/domain/terminology"
	"github.com/fhirnudge/nudge/internal/domain/validation"
)

// Snapshot is one generation of indices and the components built over
// them. Nothing in it is modified after New returns.
type Snapshot struct {
	Generation uint64
	BuiltAt    time.Time

	Index    *capability.SearchIndex
	Systems  map[string]*terminology.Index
	Registry *aix.Registry

	Validator  *validation.Validator
	Classifier *classify.Classifier
	Renderer   *aix.Renderer
}

// New assembles a snapshot from freshly built parts.
func New(gen uint64, index *capability.SearchIndex, systems map[string]*terminology.Index,
	reg *aix.Registry, opts validation.Options) (*Snapshot, error) {
	v, err := validation.New(index, systems, opts)
	if err != nil {
		return nil, err
	}
	renderer := aix.NewRenderer(reg)
	return &Snapshot{
		Generation: gen,
		BuiltAt:    time.Now().UTC(),
		Index:      index,
		Systems:    systems,
		Registry:   reg,
		Validator:  v,
		Classifier: classify.New(index, renderer),
		Renderer:   renderer,
	}, nil
}

// SystemURIs returns the coding systems loaded in the snapshot.
func (s *Snapshot) SystemURIs() []string {
	out := make([]string, 0, len(s.Systems))
	for uri := range s.Systems {
		out = append(out, uri)
	}
	return out
}

// Store publishes the current snapshot. Readers never block.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store { return &Store{} }

// Load returns the current snapshot, or nil before the first refresh.
func (s *Store) Load() *Snapshot { return s.cur.Load() }

// Swap publishes next and returns the previous snapshot.
func (s *Store) Swap(next *Snapshot) *Snapshot { return s.cur.Swap(next) }

// Ready reports whether a snapshot has been published.
func (s *Store) Ready() bool { return s.cur.Load() != nil }
