package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"promptforge/internal/assemble"
	"promptforge/internal/cache"
	"promptforge/internal/config"
	"promptforge/internal/fewshot"
	"promptforge/internal/history"
	"promptforge/internal/llm"
	"promptforge/internal/logging"
	"promptforge/internal/metrics"
	"promptforge/internal/pipeline"
	"promptforge/internal/quality"
	"promptforge/internal/types"
	"promptforge/internal/wizard"
)

// app holds everything a command needs: the wired engine plus the stores the
// subcommands query directly.
type app struct {
	cfg      config.Config
	sessions *wizard.SessionManager
	history  *history.Store
	metrics  *metrics.Store
	provider *fewshot.Provider
	store    cache.Store
	redis    *cache.Redis

	// engine is swapped whole on config reload; everything it holds is
	// immutable.
	mu     sync.Mutex
	engine *pipeline.Engine
}

// newApp loads configuration and wires the full pipeline. Optional
// subsystems (Redis, metrics) degrade with a warning instead of failing
// startup.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	if cfg.SafeMode {
		logger.Warn("Config missing or unreadable; running with defaults")
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(filepath.Join(dir, "logs"), cfg.Logging); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}

	catalog, err := fewshot.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	provider, err := fewshot.NewProvider(ctx, catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to build example index: %w", err)
	}

	a := &app{cfg: cfg, provider: provider}
	a.store = a.cacheStore(ctx)

	a.history, err = history.NewStore(filepath.Join(dir, "history.jsonl"), cfg.History.MaxEntries)
	if err != nil {
		return nil, err
	}
	a.metrics, err = metrics.NewStore(filepath.Join(dir, "metrics.db"))
	if err != nil {
		logger.Warn("Metrics disabled", zap.Error(err))
		a.metrics = nil
	}
	a.sessions, err = wizard.NewSessionManager(filepath.Join(dir, "sessions"))
	if err != nil {
		return nil, err
	}
	if cfg.Wizard.RetentionHours > 0 {
		a.sessions.SweepIdle(time.Duration(cfg.Wizard.RetentionHours) * time.Hour)
	}

	if err := a.rewire(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// rewire builds a fresh engine from cfg, reusing the catalog index and the
// stores. Called at startup and again on config reload.
func (a *app) rewire(cfg config.Config) error {
	var transport llm.Transport
	if cfg.LLM.Provider == "openai" {
		transport = llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)
	} else {
		transport = llm.NewOllamaClient(cfg.LLM.BaseURL)
	}

	validator := quality.NewValidator(cfg.Quality)
	schema, err := llm.NewResultSchema(cfg.Quality.MaxQuestions, cfg.Quality.MaxAssumptions)
	if err != nil {
		return fmt.Errorf("failed to build result schema: %w", err)
	}
	client := llm.NewStructuredClient(transport, schema, validator)

	engine := pipeline.New(pipeline.Options{
		Generator:        client,
		Assembler:        assemble.New(),
		Validator:        validator,
		Retriever:        a.provider,
		Store:            a.store,
		History:          a.history,
		Metrics:          a.metrics,
		Source:           types.EngineOllama,
		Model:            cfg.LLM.Model,
		FallbackModel:    cfg.LLM.FallbackModel,
		TimeoutMS:        cfg.LLM.TimeoutMS,
		Temperature:      cfg.LLM.Temperature,
		MaxAttempts:      cfg.LLM.MaxAttempts,
		EnableAutoRepair: cfg.LLM.EnableAutoRepair,
	})

	a.mu.Lock()
	a.cfg = cfg
	a.engine = engine
	a.mu.Unlock()
	return nil
}

// improve runs a request against the current engine.
func (a *app) improve(ctx context.Context, req types.ImproveRequest) (types.ImprovementResult, error) {
	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()
	return engine.Improve(ctx, req)
}

// reload applies a changed config to the running process. Rule-set
// extensions, model selection, and timeouts take effect on the next call;
// the cache and catalog index are kept.
func (a *app) reload(cfg config.Config) {
	if err := a.rewire(cfg); err != nil {
		logger.Warn("Config reload failed; keeping previous settings", zap.Error(err))
		return
	}
	logger.Info("Config reloaded")
}

// cacheStore picks Redis when configured and reachable, otherwise the
// in-process LRU.
func (a *app) cacheStore(ctx context.Context) cache.Store {
	ttl := time.Duration(a.cfg.Cache.TTLSeconds) * time.Second
	if a.cfg.Cache.RedisURL != "" {
		r, err := cache.NewRedis(a.cfg.Cache.RedisURL, ttl)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err = r.Ping(pingCtx)
			cancel()
		}
		if err == nil {
			logger.Debug("Using Redis result cache", zap.String("url", a.cfg.Cache.RedisURL))
			a.redis = r
			return r
		}
		logger.Warn("Redis unreachable, falling back to in-memory cache", zap.Error(err))
	}
	return cache.NewMemory(a.cfg.Cache.MaxEntries, ttl)
}

// close releases store handles. Safe on a partially-constructed app.
func (a *app) close() {
	if a.metrics != nil {
		a.metrics.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	logging.CloseAll()
}
