package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"research-assistant/internal/config"
	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/domain/ports/repository"
	aiAdapters "research-assistant/internal/infra/adapters/ai"
	"research-assistant/internal/infra/adapters/render"
	"research-assistant/internal/infra/adapters/wikipedia"
	pg "research-assistant/internal/infra/db/postgres"
	"research-assistant/internal/infra/db/sqlite"
	"research-assistant/internal/infra/logging"
	red "research-assistant/internal/infra/redis"
	"research-assistant/internal/infra/storage"
	"research-assistant/internal/usecase"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zerolog.Logger
	jobs    usecase.JobUseCase
	redis   *red.Client
	queue   *red.JobQueue // nil in immediate mode
	locker  red.Locker
	limiter *red.RateLimiter
	fsStore *storage.FSStore // nil unless storage.backend=fs

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ---- Redis (embedded when none is configured) ----
	if err := a.connectRedis(ctx); err != nil {
		return nil, err
	}
	a.locker = red.NewLocker(a.redis)
	a.limiter = red.NewRateLimiter(a.redis)

	// ---- Artifact store ----
	artifacts, err := a.artifactStore(ctx)
	if err != nil {
		return nil, err
	}

	// ---- Status store ----
	status, err := a.statusStore(ctx)
	if err != nil {
		return nil, err
	}

	// ---- AI + knowledge source ----
	ai, err := buildAI(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var source adapter.KnowledgeSource = wikipedia.NewClient(cfg.Wikipedia.BaseURL, cfg.Wikipedia.UserAgent, cfg.Wikipedia.Timeout, logger)
	source = red.NewSummaryCache(source, a.redis, cfg.Wikipedia.CacheTTL, logger)

	// ---- Use cases ----
	model := cfg.AI.DefaultModel
	research := usecase.NewResearchUseCase(
		usecase.NewReducer(ai, model, logger),
		usecase.NewGatherer(ai, source, model, logger),
		usecase.NewSynthesizer(ai, model, logger),
		logger,
	)

	var exec usecase.Executor
	if cfg.Immediate() {
		exec = usecase.NewImmediateExecutor(cfg.Queue.JobTimeout)
	} else {
		a.queue = red.NewJobQueue(a.redis, cfg.Queue.Name)
		exec = usecase.NewDeferredExecutor(a.queue, cfg.Queue.JobTimeout)
	}
	a.jobs = usecase.NewJobUseCase(research, render.NewPDFRenderer(logger), status, artifacts, exec, logger)
	return a, nil
}

func (a *app) connectRedis(ctx context.Context) error {
	if a.cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &a.cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redis = c
		a.closers = append(a.closers, func() { _ = c.Close() })
		a.log.Info().Str("url", logging.Redact(a.cfg.Redis.URL, a.cfg.Runtime.Dev)).Msg("redis connected")
		return nil
	}
	// No broker: keep the cache and rate limiter working in-process.
	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("embedded redis: %w", err)
	}
	a.redis = red.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	a.closers = append(a.closers, mr.Close, func() { _ = a.redis.Close() })
	a.log.Warn().Msg("redis.url not set; using embedded in-memory redis")
	return nil
}

func (a *app) artifactStore(ctx context.Context) (repository.ArtifactStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageBackendAzBlob:
		s, err := storage.NewAzBlobStore(ctx, a.cfg.Storage.Azure.ConnectionString, a.cfg.Storage.Azure.Container, a.log)
		if err != nil {
			return nil, fmt.Errorf("azure blob storage: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewFSStore(a.cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("file storage: %w", err)
		}
		a.fsStore = s
		return s, nil
	}
}

func (a *app) statusStore(ctx context.Context) (repository.JobStatusStore, error) {
	switch a.cfg.Status.Backend {
	case config.StatusBackendRedis:
		return red.NewStatusStore(a.redis, a.cfg.Redis.TTL), nil
	case config.StatusBackendPostgres:
		pool, err := pg.Connect(ctx, &a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := pg.EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		statsCtx, cancel := context.WithCancel(context.Background())
		a.closers = append(a.closers, cancel)
		go pg.ReportPoolStats(statsCtx, pool, 30*time.Second)
		return pg.NewJobStatusRepo(pool), nil
	case config.StatusBackendSQLite:
		s, err := sqlite.Open(a.cfg.Status.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	default:
		if a.fsStore == nil {
			return nil, fmt.Errorf("status.backend=%s needs file storage", a.cfg.Status.Backend)
		}
		return storage.NewFSStatusStore(a.fsStore), nil
	}
}

// buildAI routes models to every configured provider. Each provider is
// instrumented; the whole set shares one concurrency cap.
func buildAI(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	if cfg.AI.Offline {
		logger.Warn().Msg("ai.offline set; using canned model responses")
		return aiAdapters.NewInstrumentedAI(aiAdapters.NewNoopAIAdapter(), "noop", logger), nil
	}

	byProvider := map[string]adapter.AIServiceAdapter{}
	modelFor := func(prefix string) string {
		if strings.HasPrefix(strings.ToLower(cfg.AI.DefaultModel), prefix) {
			return cfg.AI.DefaultModel
		}
		return ""
	}

	if cfg.AI.OpenAIKey != "" {
		a, err := aiAdapters.NewOpenAIAdapter(aiAdapters.OpenAIOptions{
			APIKey:  cfg.AI.OpenAIKey,
			BaseURL: cfg.AI.OpenAIBaseURL,
			Model:   cfg.AI.DefaultModel,
			Timeout: cfg.AI.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		byProvider["openai"] = aiAdapters.NewInstrumentedAI(a, "openai", logger)
	}
	if cfg.AI.MetisKey != "" {
		a, err := aiAdapters.NewMetisAdapter(cfg.AI.MetisKey, cfg.AI.DefaultModel, cfg.AI.MetisBaseURL, cfg.AI.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("metis adapter: %w", err)
		}
		byProvider["metis"] = aiAdapters.NewInstrumentedAI(a, "metis", logger)
	}
	if cfg.AI.GeminiKey != "" {
		a, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, modelFor("gemini"), cfg.AI.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		byProvider["gemini"] = aiAdapters.NewInstrumentedAI(a, "gemini", logger)
	}
	if cfg.AI.AnthropicKey != "" {
		a, err := aiAdapters.NewAnthropicAdapter(cfg.AI.AnthropicKey, cfg.AI.AnthropicBaseURL, modelFor("claude"), cfg.AI.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("anthropic adapter: %w", err)
		}
		byProvider["anthropic"] = aiAdapters.NewInstrumentedAI(a, "anthropic", logger)
	}

	providers := make([]string, 0, len(byProvider))
	for p := range byProvider {
		providers = append(providers, p)
	}
	logger.Info().Strs("providers", providers).Str("default_provider", cfg.AI.Provider).Str("model", cfg.AI.DefaultModel).Msg("ai adapters ready")

	multi := aiAdapters.NewMultiAIAdapter(cfg.AI.Provider, byProvider, cfg.AI.ModelProviders)
	return aiAdapters.NewLimitedAI(multi, cfg.AI.ConcurrentLimit), nil
}
