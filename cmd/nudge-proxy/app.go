package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/fhirnudge/nudge/internal/config"
	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/proxy"
	"github.com/fhirnudge/nudge/internal/domain/snapshot"
	"github.com/fhirnudge/nudge/internal/domain/terminology"
	"github.com/fhirnudge/nudge/internal/domain/validation"
	"github.com/fhirnudge/nudge/internal/platform/db"
	"github.com/fhirnudge/nudge/internal/platform/fuzzy"
	"github.com/fhirnudge/nudge/internal/platform/upstream"
)

// app holds everything serve, mcp and check share.
type app struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	client    *upstream.Client
	store     *snapshot.Store
	refresher *snapshot.Refresher
	svc       *proxy.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, store: snapshot.NewStore()}

	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		logger.Info().Msg("connected to database")
	}

	client, err := upstream.New(upstream.Options{
		BaseURL: cfg.FHIRServerURL,
		Timeout: cfg.UpstreamTimeout,
		Retries: cfg.UpstreamRetries,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = client

	opts, err := validationOptions(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	systems, err := systemSources(cfg.CodeSystems, opts.CodedParams, a.pool != nil)
	if err != nil {
		a.Close()
		return nil, err
	}

	var codes terminology.CodeRepository
	var templates []aix.TemplateSource
	if cfg.TemplatesFile != "" {
		templates = append(templates, aix.FileSource(cfg.TemplatesFile))
	}
	if a.pool != nil {
		codes = terminology.NewCodeRepoPG(a.pool)
		templates = append(templates, aix.NewTemplateRepoPG(a.pool))
	}

	a.refresher = snapshot.NewRefresher(a.store, snapshot.Sources{
		Capability: client,
		Loader:     terminology.NewLoader(client, codes),
		Systems:    systems,
		Templates:  templates,
	}, opts, logger)
	a.svc = proxy.NewService(a.store, client, cfg.SoftEmptyStatus, logger)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func validationOptions(cfg *config.Config) (validation.Options, error) {
	coded, err := validation.ParseCodedParams(cfg.CodedParams)
	if err != nil {
		return validation.Options{}, err
	}
	return validation.Options{
		Matcher: fuzzy.New(fuzzy.Options{
			MaxResults: cfg.FuzzyMaxSuggestions,
			Threshold:  cfg.FuzzyThreshold,
		}),
		CodedParams:      coded,
		CacheSize:        cfg.SuggestionCacheSize,
		RejectDuplicates: cfg.RejectDuplicateParams,
		RequireParams:    cfg.RequireSearchParams,
	}, nil
}

// systemSources returns the coding systems to index. Explicit entries win.
// Without them the systems of the coded params are read from the reference
// tables, which needs a database.
func systemSources(entries []string, coded []validation.CodedParam, hasDB bool) ([]terminology.SystemSource, error) {
	if len(entries) > 0 {
		return terminology.ParseSystemSources(entries)
	}
	if !hasDB {
		return nil, nil
	}
	var out []terminology.SystemSource
	seen := make(map[string]bool)
	for _, c := range coded {
		if seen[c.System] {
			continue
		}
		seen[c.System] = true
		out = append(out, terminology.SystemSource{System: c.System})
	}
	return out, nil
}
