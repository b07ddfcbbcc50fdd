package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cosmikwolf/sazid/internal/adapters/driven/ai"
	"github.com/cosmikwolf/sazid/internal/adapters/driven/config/file"
	"github.com/cosmikwolf/sazid/internal/adapters/driven/executor"
	"github.com/cosmikwolf/sazid/internal/adapters/driven/storage/postgres"
	"github.com/cosmikwolf/sazid/internal/adapters/driven/storage/sqlite"
	"github.com/cosmikwolf/sazid/internal/adapters/driving/cli"
	"github.com/cosmikwolf/sazid/internal/core/domain"
	"github.com/cosmikwolf/sazid/internal/core/ports/driven"
	"github.com/cosmikwolf/sazid/internal/core/services"
	"github.com/cosmikwolf/sazid/internal/logger"
	"github.com/cosmikwolf/sazid/internal/normalisers"
	"github.com/cosmikwolf/sazid/internal/postprocessors/chunker"
	"github.com/cosmikwolf/sazid/internal/tools"
)

// app owns the wired services and the resources behind them.
type app struct {
	services *cli.Services
	closers  []func() error
}

// newApp loads settings and wires every service. A nil app means the
// configuration file itself is unusable. A non-nil app with an error has
// only the settings service.
func newApp(ctx context.Context) (*app, error) {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator())

	a := &app{services: &cli.Services{
		Settings: settingsService,
		SkipDirs: services.DefaultSkipDirs,
	}}

	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := settingsService.Validate(); err != nil {
		return a, err
	}
	if err := a.wire(ctx, settings); err != nil {
		a.Close()
		a.closers = nil
		a.services = &cli.Services{Settings: settingsService, SkipDirs: services.DefaultSkipDirs}
		return a, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, settings *domain.AppSettings) error {
	embedder, err := ai.CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return domain.NewError(domain.KindConfiguration, "embedding provider", err)
	}
	a.closers = append(a.closers, embedder.Close)

	vectors, sessions, err := a.openStore(ctx, settings)
	if err != nil {
		return err
	}

	processor := chunker.New(chunker.WithMaxTokens(settings.Chat.ChunkTokens))
	ingest, err := services.NewIngestService(vectors, embedder, processor, settings.Tools.ProjectRoot,
		services.WithSkipDirs(services.DefaultSkipDirs...),
		services.WithNormalisers(normalisers.Defaults()...),
	)
	if err != nil {
		return domain.NewError(domain.KindConfiguration, "project root", err)
	}
	a.services.Ingest = ingest
	a.services.Retrieval = services.NewRetrievalService(vectors, embedder, settings.Chat.ChunkTokens)

	dispatcher, err := buildDispatcher(&settings.Tools)
	if err != nil {
		return err
	}
	a.services.Tools = dispatcher

	completion, err := ai.CreateCompletionService(&settings.LLM)
	if err != nil {
		return domain.NewError(domain.KindConfiguration, "completion provider", err)
	}
	a.closers = append(a.closers, completion.Close)

	prompts, err := file.NewPromptStore("")
	if err != nil {
		return fmt.Errorf("prompts: %w", err)
	}

	a.services.Chat = services.NewCoordinator(sessions, completion,
		services.WithTools(dispatcher, dispatcher.Specs()),
		services.WithRetrieval(vectors, embedder),
		services.WithPromptStore(prompts),
		services.WithSessionDefaults(services.DefaultSessionConfig(settings)),
		services.WithEmbedTokens(settings.Chat.ChunkTokens),
	)
	return nil
}

// openStore opens the configured backend. Sessions and chunks share it.
func (a *app) openStore(ctx context.Context, settings *domain.AppSettings) (driven.VectorStore, driven.SessionStore, error) {
	st := settings.Storage
	switch st.Backend {
	case domain.StoragePostgres:
		store, err := postgres.NewStore(ctx, postgres.Config{
			DSN:        st.PostgresDSN,
			Dimensions: settings.Embedding.Dimensions,
			Metric:     st.Metric,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		logger.Debug("storage: postgres")
		return store.VectorStore(), store.SessionStore(), nil

	default:
		store, err := sqlite.NewStore(sqlite.Config{
			DataDir:    st.DataDir,
			Dimensions: settings.Embedding.Dimensions,
			Metric:     st.Metric,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.services.Indexer = store
		logger.Debug("storage: sqlite at %s", store.Path())
		return store.VectorStore(), store.SessionStore(), nil
	}
}

func buildDispatcher(settings *domain.ToolSettings) (*tools.Dispatcher, error) {
	defs := tools.Builtins()
	if settings.ManifestPath != "" {
		extra, err := tools.LoadManifest(settings.ManifestPath)
		if err != nil {
			return nil, domain.NewError(domain.KindConfiguration, "tool manifest", err)
		}
		defs = append(defs, extra...)
	}

	registry, err := tools.NewRegistry(defs...)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "tool registry", err)
	}
	validator, err := tools.NewValidator(settings.ProjectRoot)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "project root", err)
	}
	exec := executor.New(executor.Config{
		DefaultTimeout: settings.Timeout,
		MaxOutputBytes: settings.MaxOutputBytes,
	})

	return tools.NewDispatcher(registry, validator, exec,
		tools.WithObserver(func(inv domain.ToolInvocation, state domain.InvocationState) {
			logger.Debug("tool %s [%s]: %s", inv.Tool, inv.ID, state)
		}),
	), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
