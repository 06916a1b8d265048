package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/terminology"
	"github.com/fhirnudge/nudge/internal/domain/validation"
)

// ErrNotReady is returned by callers that need a snapshot before the first
// successful refresh.
var ErrNotReady = errors.New("snapshot: not loaded yet")

// CapabilityFetcher returns the raw CapabilityStatement of the upstream
// server.
type CapabilityFetcher interface {
	FetchCapability(ctx context.Context) ([]byte, error)
}

// Sources are where a refresh reads from. Loader may be nil when no coding
// systems are configured.
type Sources struct {
	Capability CapabilityFetcher
	Loader     *terminology.Loader
	Systems    []terminology.SystemSource
	Templates  []aix.TemplateSource
}

// Refresher rebuilds snapshots and publishes them to a Store.
type Refresher struct {
	store   *Store
	sources Sources
	builder *capability.Builder
	opts    validation.Options
	logger  zerolog.Logger

	// mu serializes refreshes so generations are published in order.
	mu  sync.Mutex
	gen uint64
}

// NewRefresher creates a Refresher.
func NewRefresher(store *Store, sources Sources, opts validation.Options, logger zerolog.Logger) *Refresher {
	return &Refresher{
		store:   store,
		sources: sources,
		builder: capability.NewBuilder(),
		opts:    opts,
		logger:  logger,
	}
}

// Refresh builds a complete new snapshot and publishes it. On any failure
// the current snapshot stays in place and the error is returned.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	var (
		index   *capability.SearchIndex
		systems map[string]*terminology.Index
		reg     *aix.Registry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if r.sources.Capability == nil {
			return fmt.Errorf("%w: no capability source", capability.ErrMetadataUnavailable)
		}
		doc, err := r.sources.Capability.FetchCapability(gctx)
		if err != nil {
			return fmt.Errorf("%w: %w", capability.ErrMetadataUnavailable, err)
		}
		index, err = r.builder.Build(doc)
		return err
	})
	g.Go(func() error {
		if r.sources.Loader == nil || len(r.sources.Systems) == 0 {
			systems = map[string]*terminology.Index{}
			return nil
		}
		var err error
		systems, err = r.sources.Loader.LoadAll(gctx, r.sources.Systems)
		return err
	})
	g.Go(func() error {
		var err error
		reg, err = aix.BuildRegistry(gctx, r.sources.Templates...)
		if err != nil {
			return fmt.Errorf("error templates: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		r.logger.Error().Err(err).Uint64("generation", r.gen).Msg("snapshot refresh failed, keeping current")
		return nil, err
	}

	snap, err := New(r.gen+1, index, systems, reg, r.opts)
	if err != nil {
		r.logger.Error().Err(err).Msg("snapshot assemble failed, keeping current")
		return nil, err
	}
	r.gen++
	r.store.Swap(snap)

	r.logger.Info().
		Uint64("generation", snap.Generation).
		Int("resource_types", index.Len()).
		Int("code_systems", len(systems)).
		Int("templates", reg.Len()).
		Dur("took", time.Since(start)).
		Msg("snapshot published")
	return snap, nil
}

// Run refreshes every interval until ctx is done. A zero or negative
// interval returns immediately.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are logged by Refresh
			_, _ = r.Refresh(ctx)
		}
	}
}
