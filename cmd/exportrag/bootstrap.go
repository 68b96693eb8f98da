package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/exportrag/internal/adapters/driven/ai"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/config/file"
	snapfile "github.com/custodia-labs/exportrag/internal/adapters/driven/snapshot/file"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/storage/bolt"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/exportrag/internal/adapters/driven/vectorindex/flat"
	"github.com/custodia-labs/exportrag/internal/adapters/driving/cli"
	"github.com/custodia-labs/exportrag/internal/core/domain"
	"github.com/custodia-labs/exportrag/internal/core/ports/driven"
	"github.com/custodia-labs/exportrag/internal/core/services"
	"github.com/custodia-labs/exportrag/internal/logger"
	"github.com/custodia-labs/exportrag/internal/postprocessors"
)

// Default file names under the configuration directory.
const (
	dataDirName   = "data"
	promptDirName = "prompts"
	schemaDirName = "schemas"
	boltFile      = "exportrag.db"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// bootstrap wires stores, providers and services from the settings in the
// configuration directory.
func bootstrap(ctx context.Context, opts cli.Options) (_ *cli.Services, err error) {
	dir := opts.ConfigDir
	if dir == "" {
		if dir, err = file.DefaultDir(); err != nil {
			return nil, err
		}
	}

	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())

	schemas, err := file.NewSchemaStore(filepath.Join(dir, schemaDirName))
	if err != nil {
		return nil, fmt.Errorf("open schemas: %w", err)
	}
	if opts.SettingsOnly {
		return &cli.Services{Settings: settingsService, Schemas: schemas}, nil
	}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w. Run 'exportrag settings' to review the configuration", err)
	}

	prompts, err := file.NewPromptStore(filepath.Join(dir, promptDirName))
	if err != nil {
		return nil, fmt.Errorf("open prompts: %w", err)
	}

	var release closers
	defer func() {
		if err != nil {
			_ = release.close()
		}
	}()

	corpus, snapshots, cacheStore, err := openStores(dir, settings, opts.Ephemeral, &release)
	if err != nil {
		return nil, err
	}

	aiServices, err := ai.Init(settings, cacheStore)
	if err != nil {
		return nil, err
	}
	release.add(func() error {
		aiServices.Close()
		return nil
	})

	index, err := flat.New(flat.Config{
		Metric:     settings.Ranking.Metric,
		Dimensions: aiServices.EmbeddingService.Dimensions(),
	})
	if err != nil {
		return nil, fmt.Errorf("create vector index: %w", err)
	}
	release.add(index.Close)

	pipeline, err := postprocessors.DefaultPipeline(settings.Chunking)
	if err != nil {
		return nil, fmt.Errorf("create ingest pipeline: %w", err)
	}

	ingest := services.NewIngestService(aiServices.EmbeddingService, index, corpus, snapshots, pipeline)
	if err := ingest.LoadOrRebuild(ctx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}

	retrieval := services.NewRetrievalService(aiServices.EmbeddingService, index, settings.Ranking)
	generation := services.NewGenerationService(aiServices.Backend, prompts, settings.Generation)
	advisor := services.NewAdvisorService(retrieval, generation, schemas, settings.Generation)

	logger.Debug("Bootstrapped from %s: embedding %s, backends %v",
		dir, aiServices.EmbeddingService.ModelName(), aiServices.Backend.Providers())

	return &cli.Services{
		Retrieval:  retrieval,
		Generation: generation,
		Advisor:    advisor,
		Ingest:     ingest,
		Settings:   settingsService,
		Schemas:    schemas,
		WatchConfig: func(ctx context.Context) error {
			return watchConfig(ctx, prompts, schemas)
		},
		Close: release.close,
	}, nil
}

// openStores opens the corpus store and the snapshot sink. Ephemeral runs
// keep the corpus in memory and take no snapshots.
func openStores(
	dir string, settings *domain.AppSettings, ephemeral bool, release *closers,
) (driven.CorpusStore, driven.SnapshotStore, driven.EmbeddingCache, error) {
	if ephemeral {
		return memory.NewCorpusStore(), nil, nil, nil
	}

	corpusDir := settings.CorpusDir
	if corpusDir == "" {
		corpusDir = filepath.Join(dir, dataDirName)
	}
	corpus, err := sqlite.NewStore(corpusDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open corpus: %w", err)
	}
	release.add(corpus.Close)

	snapshotPath := settings.Index.Snapshot
	switch settings.Index.Backend {
	case domain.SnapshotBolt:
		if snapshotPath == "" {
			snapshotPath = filepath.Join(dir, dataDirName, boltFile)
		}
		db, err := bolt.Open(snapshotPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open snapshot store: %w", err)
		}
		release.add(db.Close)
		// The bolt file also holds the embedding cache.
		return corpus, db, db, nil

	default:
		if snapshotPath == "" {
			snapshotPath = filepath.Join(dir, dataDirName, snapfile.DefaultFileName)
		}
		snapshots, err := snapfile.NewStore(snapshotPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open snapshot store: %w", err)
		}
		return corpus, snapshots, nil, nil
	}
}

// watchConfig reloads prompt templates and schemas when their files change.
func watchConfig(ctx context.Context, prompts *file.PromptStore, schemas *file.SchemaStore) error {
	w, err := file.NewWatcher(file.DefaultDebounce)
	if err != nil {
		return err
	}
	if err := w.Watch(prompts.Dir(), prompts); err != nil {
		return err
	}
	if err := w.Watch(schemas.Dir(), schemas); err != nil {
		return err
	}
	return w.Run(ctx)
}
