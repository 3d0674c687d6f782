package app

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/internal/vectorindex/biz"
	"github.com/kart-io/vecstore/internal/vectorindex/metrics"
	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/component/milvus"
	"github.com/kart-io/vecstore/pkg/component/opensearch"
	"github.com/kart-io/vecstore/pkg/component/redis"
	"github.com/kart-io/vecstore/pkg/component/storage"
	"github.com/kart-io/vecstore/pkg/infra/app"
	"github.com/kart-io/vecstore/pkg/infra/tracing"
	"github.com/kart-io/vecstore/pkg/llm"
	"github.com/kart-io/vecstore/pkg/llm/resilience"
	vectoropts "github.com/kart-io/vecstore/pkg/options/vector"

	// Register embedding providers
	_ "github.com/kart-io/vecstore/pkg/llm/ollama"
	_ "github.com/kart-io/vecstore/pkg/llm/openai"
)

const (
	appName        = "vector-index"
	appDescription = `Vector index toolkit

Chunks, embeds and stores text in a vector index, and answers similarity
queries scoped to a namespace.

Supported backends: milvus, opensearch, memory.`

	shutdownTimeout = 10 * time.Second
)

// NewApp creates a new application instance.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Vector index toolkit"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithEnvAliases("vector.provider", vectoropts.ProviderEnv),
		app.WithCommands(
			newInitCommand(opts),
			newIngestCommand(opts),
			newQueryCommand(opts),
			newDeleteCommand(opts),
			newFetchCommand(opts),
			newStatsCommand(opts),
			newHealthCommand(opts),
		),
	)
}

// runtime holds everything a subcommand needs. close releases it in reverse
// order of construction.
type runtime struct {
	client    *biz.Client
	processor *biz.Processor
	storage   *storage.Manager
	metrics   *metrics.VectorMetrics
	tracer    *tracing.Provider
}

func newRuntime(ctx context.Context, opts *Options) (rt *runtime, err error) {
	if err := opts.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt = &runtime{
		storage: storage.NewManager(),
		metrics: metrics.Default(),
	}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	opts.Tracing.ServiceVersion = app.GetVersion()
	if rt.tracer, err = tracing.NewProvider(opts.Tracing); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	deps := &store.Deps{
		IndexName: opts.Vector.IndexName,
		Dimension: opts.Vector.Dimensions,
	}
	switch opts.Vector.Provider {
	case store.ProviderMilvus:
		c, err := milvus.New(ctx, opts.Milvus)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		rt.storage.MustRegister(store.ProviderMilvus, c)
		deps.Milvus = c
	case store.ProviderOpenSearch:
		c, err := opensearch.New(ctx, opts.OpenSearch)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize opensearch: %w", err)
		}
		rt.storage.MustRegister(store.ProviderOpenSearch, c)
		deps.OpenSearch = c
	}

	backend, err := store.New(opts.Vector.Provider, deps)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(ctx, opts, rt.storage)
	if err != nil {
		return nil, err
	}

	rt.client, err = biz.NewClient(biz.ConfigFromOptions(opts.Vector), backend, embedder, biz.WithMetrics(rt.metrics))
	if err != nil {
		return nil, err
	}
	rt.processor = biz.NewProcessor(rt.client)

	logger.Debugw("vector index runtime ready",
		"provider", backend.Name(),
		"index", opts.Vector.IndexName,
		"namespace", opts.Vector.Namespace,
		"embedding", embedder.Name(),
	)
	return rt, nil
}

// newEmbedder builds provider -> resilience -> batch splitting -> redis cache.
func newEmbedder(ctx context.Context, opts *Options, mgr *storage.Manager) (llm.EmbeddingProvider, error) {
	eo := opts.Embedding

	provider, err := llm.NewEmbeddingProvider(eo.Provider, eo.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	if eo.Resilient {
		retry := resilience.DefaultRetryConfig()
		retry.MaxAttempts = eo.RetryAttempts
		provider = resilience.NewResilientEmbeddingProvider(provider, retry, nil)
	}

	provider = llm.NewBatchEmbedder(provider, eo.MaxBatch)

	if eo.CacheEnabled {
		rc, err := redis.New(ctx, opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		mgr.MustRegister("redis", rc)

		cacheCfg := llm.DefaultEmbeddingCacheConfig()
		cacheCfg.TTL = eo.CacheTTL
		provider = llm.NewCachedEmbeddingProvider(provider, rc.Client(), cacheCfg)
	}
	return provider, nil
}

func (rt *runtime) close() {
	if rt.client != nil {
		if err := rt.client.Close(); err != nil {
			logger.Warnw("failed to close vector backend", "error", err.Error())
		}
	}
	if err := rt.storage.CloseAll(); err != nil {
		logger.Warnw("failed to close storage clients", "error", err.Error())
	}
	if rt.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.tracer.Shutdown(ctx); err != nil {
			logger.Warnw("failed to shut down tracer", "error", err.Error())
		}
	}
	_ = logger.Flush()
}
