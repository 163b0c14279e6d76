// Package cortex is the public API for embedding the Cortex knowledge-base
// server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := cortex.New(
//	    cortex.WithVersion(version),
//	    cortex.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: cortex (root) imports
// internal/*, but internal/* never imports cortex (root).
package cortex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/cortex/internal/auth"
	"github.com/ashita-ai/cortex/internal/config"
	"github.com/ashita-ai/cortex/internal/embedding"
	"github.com/ashita-ai/cortex/internal/gate"
	"github.com/ashita-ai/cortex/internal/mcp"
	"github.com/ashita-ai/cortex/internal/model"
	"github.com/ashita-ai/cortex/internal/ratelimit"
	"github.com/ashita-ai/cortex/internal/registry"
	"github.com/ashita-ai/cortex/internal/seeder"
	"github.com/ashita-ai/cortex/internal/server"
	"github.com/ashita-ai/cortex/internal/service/brains"
	"github.com/ashita-ai/cortex/internal/telemetry"
	"github.com/ashita-ai/cortex/internal/vector"
)

// App is the Cortex server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        vector.Store
	registry     *registry.Registry
	srv          *server.Server
	limiters     []ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Cortex server. It connects to the vector store, ensures
// collections exist, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.qdrantURL != "" {
		cfg.QdrantURL = o.qdrantURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("cortex starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to the vector store.
	var store vector.Store
	var embedderName string
	if cfg.QdrantURL != "" {
		qs, qErr := vector.NewQdrantStore(vector.QdrantConfig{
			URL:    cfg.QdrantURL,
			APIKey: cfg.QdrantAPIKey,
			Dims:   uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if qErr != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", qErr)
		}
		store = qs
		logger.Info("vector store: qdrant", "url", cfg.QdrantURL)
	} else {
		store = vector.NewMemoryStore()
		logger.Warn("vector store: in-memory (no CORTEX_QDRANT_URL) — nothing survives a restart")
	}
	if err := store.EnsureCollections(context.Background()); err != nil {
		closeStore(store)
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("ensure collections: %w", err)
	}

	// Create embedding provider.
	var embedder embedding.Provider
	if o.embedder != nil {
		embedder = o.embedder
		embedderName = "custom"
	} else {
		embedder, embedderName = newEmbeddingProvider(cfg, logger)
	}

	// Create JWT manager.
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		closeStore(store)
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	// Register agent credentials: admin from config plus option-supplied agents.
	credentials := auth.NewCredentialStore()
	if cfg.AdminAPIKey != "" {
		if err := credentials.Register("admin", cfg.AdminAPIKey, model.RoleAdmin); err != nil {
			closeStore(store)
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("admin credentials: %w", err)
		}
		logger.Info("admin agent registered")
	} else {
		logger.Warn("no CORTEX_ADMIN_API_KEY set — no admin agent registered")
	}
	for _, a := range o.agents {
		if err := credentials.Register(a.id, a.apiKey, a.role); err != nil {
			closeStore(store)
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("agent credentials %q: %w", a.id, err)
		}
	}

	// Core services.
	reg := registry.New(store, embedder, cfg.StatusCacheTTL, logger)
	sdr := seeder.New(store, embedder, reg, logger)
	g := gate.New(store, embedder, gate.Config{
		DuplicateSimilarity: cfg.DuplicateSimilarity,
		ConfidenceFloor:     cfg.ConfidenceFloor,
	}, logger)
	brainSvc := brains.New(reg, sdr, g, store, logger)

	// MCP server.
	mcpSrv := mcp.New(brainSvc, version, logger)

	// Rate limiters: general per-agent bucket plus tighter buckets on the
	// expensive routes (seeding, insight ingestion) and token issuance.
	var limiter, seedLimiter, insightLimiter, authLimiter ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = perMinuteLimiter(cfg.RateLimitPerMinute)
		seedLimiter = perMinuteLimiter(cfg.SeedRatePerMinute)
		insightLimiter = perMinuteLimiter(cfg.InsightRatePerMin)
		authLimiter = perMinuteLimiter(cfg.AuthRatePerMinute)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"per_minute", cfg.RateLimitPerMinute,
			"seed_per_minute", cfg.SeedRatePerMinute,
			"insight_per_minute", cfg.InsightRatePerMin,
			"auth_per_minute", cfg.AuthRatePerMinute)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		JWTMgr:              jwtMgr,
		Credentials:         credentials,
		BrainSvc:            brainSvc,
		Store:               store,
		Embedding:           embedderName,
		Logger:              logger,
		Limiter:             limiter,
		SeedLimiter:         seedLimiter,
		InsightLimiter:      insightLimiter,
		AuthLimiter:         authLimiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		registry:     reg,
		srv:          srv,
		limiters:     []ratelimit.Limiter{limiter, seedLimiter, insightLimiter, authLimiter},
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically — callers
// should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains in-flight HTTP requests, then closes the status cache,
// vector store, and OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("cortex shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.registry.Close()
	for _, l := range a.limiters {
		if l != nil {
			_ = l.Close()
		}
	}
	closeStore(a.store)
	_ = a.otelShutdown(context.Background())

	a.logger.Info("cortex stopped")
	return nil
}

// perMinuteLimiter builds a token bucket refilling at rate/minute with a
// burst of one minute's allowance.
func perMinuteLimiter(perMinute int) ratelimit.Limiter {
	if perMinute <= 0 {
		return ratelimit.NoopLimiter{}
	}
	return ratelimit.NewMemoryLimiter(float64(perMinute)/60.0, perMinute)
}

// closeStore closes the store if the backing implementation holds a
// connection (the in-memory store does not).
func closeStore(store vector.Store) {
	if c, ok := store.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

// newEmbeddingProvider selects the embedding provider from config. Returns
// the provider and its name for the health endpoint.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) (embedding.Provider, string) {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when CORTEX_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims), "noop"
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims), "noop"
		}
		return p, "openai"
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims), "ollama"
	case "noop":
		logger.Info("embedding provider: noop (semantic matching disabled)")
		return embedding.NewNoopProvider(dims), "noop"
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims), "ollama"
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return embedding.NewNoopProvider(dims), "noop"
			}
			return p, "openai"
		}
		logger.Warn("no embedding provider available, using noop (semantic matching disabled)")
		return embedding.NewNoopProvider(dims), "noop"
	}
}

func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
