package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ofs-tlaxcala/scil/internal/analyze"
	"github.com/ofs-tlaxcala/scil/internal/catalog"
	"github.com/ofs-tlaxcala/scil/internal/ingest"
	"github.com/ofs-tlaxcala/scil/internal/report"
	"github.com/ofs-tlaxcala/scil/internal/resolution"
	"github.com/ofs-tlaxcala/scil/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles the wired components every command works with.
type env struct {
	Store    store.Store
	Catalog  *catalog.Catalog
	Runner   *ingest.Runner
	Analyzer *analyze.Analyzer
	Tracker  *resolution.Tracker
	Exporter *report.Exporter
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(st)
	tracker := resolution.New(st)
	return &env{
		Store:    st,
		Catalog:  cat,
		Runner:   ingest.NewRunner(st, ingest.NewNormalizer(cat)),
		Analyzer: analyze.New(st),
		Tracker:  tracker,
		Exporter: report.NewExporter(cat, tracker),
	}, nil
}

func (e *env) Close() {
	_ = e.Store.Close()
}
