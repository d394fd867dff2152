package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/extract"
	"github.com/sellerdata/ingest-cli/internal/importcfg"
	"github.com/sellerdata/ingest-cli/internal/importer"
	"github.com/sellerdata/ingest-cli/internal/storage"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/pkg/catalog"
	"github.com/sellerdata/ingest-cli/pkg/llm"
)

// appEnv holds the initialized store, drivers, and clients shared by the
// commands.
type appEnv struct {
	Store      store.Store
	Files      *storage.Manager
	FileDriver *importer.FileDriver
	APIDriver  *importer.APIDriver
	Extractor  *extract.Driver
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv sets up the store, storage layout, remote clients, and drivers.
// Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	files, err := storage.NewManager(cfg.Storage.Root)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts, err := importcfg.LoadFile(cfg.Import.MappingFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if cfg.Import.SheetName != "" {
		opts.SheetName = cfg.Import.SheetName
	}

	var remote catalog.Client
	if cfg.Catalog.Key != "" {
		catalogOpts := []catalog.Option{catalog.WithRateLimit(cfg.Catalog.RatePerSec)}
		if cfg.Catalog.BaseURL != "" {
			catalogOpts = append(catalogOpts, catalog.WithBaseURL(cfg.Catalog.BaseURL))
		}
		remote = catalog.NewClient(cfg.Catalog.Key, catalogOpts...)
	} else {
		zap.L().Warn("catalog key not set, api imports limited to test mode")
	}

	var llmClient llm.Client
	if cfg.LLM.Key != "" {
		llmOpts := []llm.Option{
			llm.WithModel(cfg.LLM.Model),
			llm.WithMaxTokens(int64(cfg.LLM.MaxTokens)),
		}
		if cfg.LLM.BaseURL != "" {
			llmOpts = append(llmOpts, llm.WithBaseURL(cfg.LLM.BaseURL))
		}
		llmClient = llm.NewClient(cfg.LLM.Key, llmOpts...)
	} else {
		zap.L().Warn("llm key not set, extraction uses an empty mock")
		llmClient = &llm.MockClient{}
	}

	extractor := extract.NewDriver(st, llmClient, extract.Options{
		CallTimeout: time.Duration(cfg.Extraction.TimeoutSecs) * time.Second,
		MaxAttempts: cfg.Extraction.MaxAttempts,
		BackoffBase: time.Duration(cfg.Extraction.BackoffBaseSecs) * time.Second,
		CostPer1K:   cfg.Extraction.CostPer1KTokens,
	})

	return &appEnv{
		Store:      st,
		Files:      files,
		FileDriver: importer.NewFileDriver(st, files, opts),
		APIDriver:  importer.NewAPIDriver(st, files, remote, opts, cfg.Catalog.Domain),
		Extractor:  extractor,
	}, nil
}

// initStore selects the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
