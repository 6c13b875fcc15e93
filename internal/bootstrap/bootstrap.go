package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alikoudar/irobot-sub000/internal/config"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
	"github.com/alikoudar/irobot-sub000/internal/core/usecase"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/chunking"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/extractor"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/llm/ollama"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/llm/openai"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/queue/nats"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/repository/memory"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/repository/postgres"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/resilience"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/storage/localfs"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/textclean"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/tokenizer"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/vector/pgindex"
	"github.com/alikoudar/irobot-sub000/internal/infrastructure/vector/qdrant"
	"github.com/alikoudar/irobot-sub000/internal/observability/metrics"
)

type Options struct {
	// Service labels metrics and logs.
	Service string
	Logger  *slog.Logger
	// Registerer receives the pipeline and resilience metrics. Nil disables them.
	Registerer prometheus.Registerer
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Settings  ports.SettingsProvider
	Ingest    ports.DocumentIngestor
	Documents ports.DocumentReader
	Lifecycle ports.DocumentLifecycle
	Process   ports.DocumentProcessor
	Chat      ports.ChatService
	Cache     ports.CacheAdmin

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	var (
		pipelineMetrics ports.PipelineMetrics
		execOpts        = []resilience.Option{resilience.WithLogger(logger)}
	)
	if opts.Registerer != nil {
		pm := metrics.NewPipelineMetrics(opts.Service, opts.Registerer)
		pipelineMetrics = pm
		execOpts = append(execOpts, resilience.WithObserver(pm))
	}
	executor := resilience.NewExecutor(cfg.ResilienceConfig(), execOpts...)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closeFns = append(app.closeFns, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.closeFns = append(app.closeFns, queue.Close)

	embedder, generator, err := newLLM(cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	index, err := newIndex(ctx, cfg, db, executor)
	if err != nil {
		app.Close()
		return nil, err
	}

	store, err := newCacheStore(cfg, db)
	if err != nil {
		app.Close()
		return nil, err
	}

	settings := config.NewFileSettingsProvider(cfg.SettingsPath, logger)

	repo := postgres.NewDocumentRepository(db)
	chunks := postgres.NewChunkRepository(db)
	counter := tokenizer.New(cfg.TokenEncoding, logger)

	cache := usecase.NewQueryCache(store, embedder, settings, pipelineMetrics, logger)
	retriever := usecase.NewHybridRetriever(index, embedder, pipelineMetrics)
	reranker := usecase.NewLLMReranker(generator, pipelineMetrics, logger)
	chat := usecase.NewChatUseCase(settings, cache, retriever, reranker, generator, pipelineMetrics, logger)

	process := usecase.NewProcessDocumentUseCase(
		repo,
		chunks,
		extractor.NewRouter(storage, cfg.MaxUploadBytes),
		textclean.New(),
		chunking.NewRecursiveSplitter(counter),
		embedder,
		index,
		cache,
		settings,
		logger,
	)
	lifecycle := usecase.NewDocumentLifecycleUseCase(repo, storage, index, queue, cache, process, logger)

	app.Queue = queue
	app.Settings = settings
	app.Ingest = usecase.NewIngestDocumentUseCase(repo, storage, queue)
	app.Documents = lifecycle
	app.Lifecycle = lifecycle
	app.Process = process
	app.Chat = chat
	app.Cache = cache

	logger.Info("bootstrap_completed",
		"llm_provider", cfg.LLMProvider,
		"index_backend", cfg.IndexBackend,
		"cache_backend", cfg.CacheBackend,
		"token_counter_exact", counter.Exact(),
	)
	return app, nil
}

func newLLM(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.AnswerGenerator, error) {
	switch cfg.LLMProvider {
	case "openai":
		client, err := openai.New(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			ChatModel:      cfg.OpenAIChatModel,
			EmbeddingModel: cfg.OpenAIEmbeddingModel,
			Dimensions:     cfg.OpenAIEmbeddingDimensions,
			Executor:       executor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init openai client: %w", err)
		}
		return client, client, nil
	case "ollama", "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func newIndex(ctx context.Context, cfg config.Config, db *sql.DB, executor *resilience.Executor) (ports.HybridIndex, error) {
	switch cfg.IndexBackend {
	case "pgvector":
		index := pgindex.New(db)
		if err := index.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure pgvector schema: %w", err)
		}
		return index, nil
	case "qdrant", "":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.WithExecutor(executor)), nil
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q", cfg.IndexBackend)
	}
}

func newCacheStore(cfg config.Config, db *sql.DB) (ports.CacheStore, error) {
	switch cfg.CacheBackend {
	case "memory":
		return memory.NewCacheStore(), nil
	case "postgres", "":
		return postgres.NewCacheRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
