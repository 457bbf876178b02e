// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package riskd provides the core risk assessment service for AleutianRisk.
//
// This package contains the main service type that coordinates all
// components of the daemon: HTTP routing, the evidence source adapters
// (Weaviate, Postgres, InfluxDB), the LLM reasoning gateway, the shared
// cache, and observability infrastructure.
//
// # Usage
//
//	cfg := riskd.Config{Port: 12250, LLMBackend: "ollama"}
//	svc, err := riskd.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// Every backend is optional except the LLM: an unset URL leaves that
// evidence source out of the fan-out and the daemon serves whatever the
// remaining sources can support.
package riskd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianRisk/pkg/retry"
	"github.com/AleutianAI/AleutianRisk/services/llm"
	"github.com/AleutianAI/AleutianRisk/services/riskd/cache"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/handlers"
	"github.com/AleutianAI/AleutianRisk/services/riskd/observability"
	"github.com/AleutianAI/AleutianRisk/services/riskd/ranking"
	"github.com/AleutianAI/AleutianRisk/services/riskd/routes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/services"
	"github.com/AleutianAI/AleutianRisk/services/riskd/sources"
)

// ServiceVersion is the risk daemon version reported on /healthz.
const ServiceVersion = "0.1.0"

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the risk daemon.
//
// # Description
//
// Service abstracts the daemon lifecycle, enabling testing and
// alternative implementations. Run() blocks and should only be called
// once per instance.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use after construction.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds risk daemon configuration options.
//
// # Description
//
// Config centralizes all configuration for the daemon. Values can be
// populated from environment variables (see cmd/riskd), config files,
// or programmatically for testing.
//
// # Required Fields
//
// None structurally, but the LLM backend needs its own environment
// (OLLAMA_BASE_URL or OPENAI_API_KEY) or New fails.
//
// # Optional Fields
//
// All backend URLs. An empty URL disables that backend: the matching
// evidence source drops out of the fan-out and /healthz reports it
// unconfigured.
type Config struct {
	// Port is the HTTP server port. Default: 12250
	Port int

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	// Default: true
	EnableMetrics bool

	// WeaviateURL is the vector database URL.
	// If empty, the vector search source is disabled.
	WeaviateURL string

	// PostgresURL is the relational feature store connection string.
	// If empty, the relational source is disabled.
	PostgresURL string

	// InfluxURL is the price history database URL.
	// If empty, the ML signal source is disabled.
	InfluxURL string

	// InfluxToken authenticates against InfluxDB. May be empty for
	// unauthenticated development instances.
	InfluxToken string

	// InfluxOrg is the InfluxDB organization. Default: "aleutian-finance"
	InfluxOrg string

	// InfluxBucket holds the OHLC bars. Default: "financial-data"
	InfluxBucket string

	// RedisAddr selects the shared Redis cache backend (host:port).
	// Takes precedence over CachePath when both are set.
	RedisAddr string

	// CachePath is the directory for the embedded Badger cache.
	// When both RedisAddr and CachePath are empty the daemon runs an
	// in-memory cache that dies with the process.
	CachePath string

	// LLMBackend specifies the LLM provider.
	// Valid values: "ollama", "openai"
	// Default: "ollama"
	LLMBackend string

	// LLMRateLimit caps LLM calls per second across all requests.
	// Zero disables limiting.
	LLMRateLimit float64

	// WeightsPath is the ranking weights yaml file, hot-reloaded on
	// change. Empty uses the compiled-in defaults.
	WeightsPath string

	// GlobalTimeout caps one assessment end to end, LLM call included.
	// Default: 1.6s
	GlobalTimeout time.Duration

	// VectorTimeout is the vector search sub-deadline. Default: 60ms
	VectorTimeout time.Duration

	// RelationalTimeout is the relational sub-deadline. Default: 40ms
	RelationalTimeout time.Duration

	// SignalTimeout is the ML signal sub-deadline. Default: 40ms
	SignalTimeout time.Duration
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12250
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.InfluxOrg == "" {
		cfg.InfluxOrg = "aleutian-finance"
	}
	if cfg.InfluxBucket == "" {
		cfg.InfluxBucket = "financial-data"
	}
	// Metrics stay on; there is no deployment where we want the daemon
	// dark.
	cfg.EnableMetrics = true
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - The three evidence source adapters
//   - The LLM reasoning gateway
//   - The shared cache backend
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	router         *gin.Engine
	store          cache.Store
	cacheEnabled   bool
	llmClient      llm.LLMClient
	vector         *sources.VectorSearchAdapter
	relational     *sources.RelationalFeatureAdapter
	signals        *sources.MLSignalAdapter
	assessment     *services.AssessmentService
	weightsWatcher *ranking.WeightsWatcher
	influxClient   influxdb2.Client
	pgPool         *pgxpool.Pool
	tracerCleanup  func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new risk daemon Service with the given configuration.
//
// # Description
//
// New initializes all daemon components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Opens the cache backend (never fatal)
//  5. Creates the source adapters for every configured backend
//  6. Creates the LLM client and reasoning gateway
//  7. Builds the ranking engine, with hot-reloaded weights when configured
//  8. Sets up HTTP routes
//
// A backend that fails to initialize degrades to "unconfigured" with a
// warning; only tracing and the LLM client are fatal.
//
// # Outputs
//
//   - Service: Ready-to-run risk daemon
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := observability.InitTracing(s.config.OTelEndpoint, "riskd-service")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for risk pipeline")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Open the cache backend. Never fatal: an unreachable cache leaves
	// the daemon slower, not down.
	s.initStore(ctx)

	// Initialize evidence source adapters (all optional)
	if err := s.initVector(ctx); err != nil {
		slog.Warn("Vector search initialization failed, source disabled",
			"error", err)
	}
	if err := s.initRelational(ctx); err != nil {
		slog.Warn("Relational feature initialization failed, source disabled",
			"error", err)
	}
	s.initSignals()

	// Initialize LLM client and reasoning gateway
	if err := s.initLLMClient(); err != nil {
		s.cleanupPartial()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	// Build the assessment pipeline
	s.initAssessment()

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting risk daemon",
		"port", s.config.Port,
		"version", ServiceVersion,
		"vector", s.vector != nil,
		"relational", s.relational != nil,
		"signals", s.signals != nil,
	)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initStore opens the configured cache backend.
//
// # Description
//
// Redis when RedisAddr is set, on-disk Badger when CachePath is set,
// in-memory Badger otherwise. Any open failure degrades to the no-op
// store with a warning; a configured-but-down Redis is NOT silently
// swapped for a local store, because a fleet splitting between shared
// and local caches would serve inconsistent assessments.
func (s *service) initStore(ctx context.Context) {
	switch {
	case s.config.RedisAddr != "":
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{Addr: s.config.RedisAddr})
		if err != nil {
			slog.Warn("Redis cache unavailable, running uncached", "addr", s.config.RedisAddr, "error", err)
			s.store = cache.NoopStore{}
			return
		}
		slog.Info("Cache backend ready", "backend", "redis", "addr", s.config.RedisAddr)
		s.store = store
	case s.config.CachePath != "":
		store, err := cache.NewBadgerStore(cache.DefaultBadgerOptions(s.config.CachePath))
		if err != nil {
			slog.Warn("Badger cache unavailable, running uncached", "path", s.config.CachePath, "error", err)
			s.store = cache.NoopStore{}
			return
		}
		slog.Info("Cache backend ready", "backend", "badger", "path", s.config.CachePath)
		s.store = store
	default:
		store, err := cache.NewInMemoryBadgerStore()
		if err != nil {
			slog.Warn("In-memory cache unavailable, running uncached", "error", err)
			s.store = cache.NoopStore{}
			return
		}
		slog.Info("Cache backend ready", "backend", "badger-inmem")
		s.store = store
	}
	s.cacheEnabled = true
}

// initVector initializes the Weaviate client and vector source.
//
// # Description
//
// Creates a Weaviate client if WeaviateURL is configured and ensures
// the RiskEvidence class exists. Schema creation retries briefly since
// Weaviate tends to come up after the daemon in compose deployments.
func (s *service) initVector(ctx context.Context) error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, vector search disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := retry.DefaultPolicy().Do(ctx, func(ctx context.Context) error {
		return datatypes.EnsureRiskEvidenceSchema(ctx, client)
	}, nil); err != nil {
		// Keep the adapter: the schema may already exist, and searches
		// against a missing class fail per-request with a source warning.
		slog.Warn("RiskEvidence schema ensure failed", "error", err)
	}

	s.vector = sources.NewVectorSearchAdapter(client, s.store)
	slog.Info("Vector search source initialized", "url", weaviateURL)
	return nil
}

// initRelational initializes the Postgres pool and relational source.
func (s *service) initRelational(ctx context.Context) error {
	if s.config.PostgresURL == "" {
		slog.Info("Postgres URL not configured, relational features disabled")
		return nil
	}

	pool, err := pgxpool.New(ctx, s.config.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping Postgres: %w", err)
	}

	s.pgPool = pool
	s.relational = sources.NewRelationalFeatureAdapter(pool)
	slog.Info("Relational feature source initialized")
	return nil
}

// initSignals initializes the InfluxDB client and ML signal source.
// InfluxDB connections are lazy, so this never fails at startup; an
// unreachable server surfaces per-request as a source failure.
func (s *service) initSignals() {
	if s.config.InfluxURL == "" {
		slog.Info("InfluxDB URL not configured, ML signals disabled")
		return
	}

	s.influxClient = influxdb2.NewClient(s.config.InfluxURL, s.config.InfluxToken)
	queryAPI := s.influxClient.QueryAPI(s.config.InfluxOrg)
	s.signals = sources.NewMLSignalAdapter(queryAPI, s.config.InfluxBucket, s.store)
	slog.Info("ML signal source initialized",
		"url", s.config.InfluxURL,
		"bucket", s.config.InfluxBucket,
	)
}

// initLLMClient initializes the LLM provider client.
func (s *service) initLLMClient() error {
	var client llm.LLMClient
	var err error

	switch s.config.LLMBackend {
	case "openai":
		var cred *llm.Credential
		cred, err = llm.SealFromEnv("OPENAI_API_KEY", "/run/secrets/openai_api_key")
		if err == nil {
			client, err = llm.NewOpenAIClient(cred)
		}
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to ollama", "backend", s.config.LLMBackend)
		client, err = llm.NewOllamaClient()
	}
	if err != nil {
		return err
	}

	// Pre-pin the model so the first assessment doesn't pay the load.
	if warmer, ok := client.(interface{ Warm(context.Context) error }); ok {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := warmer.Warm(ctx); err != nil {
				slog.Warn("Model warmup failed, first request will be slow", "error", err)
			}
		}()
	}

	if s.config.LLMRateLimit > 0 {
		client = llm.NewRateLimitedClient(client, s.config.LLMRateLimit, 1)
		slog.Info("LLM rate limiting enabled", "rps", s.config.LLMRateLimit)
	}

	s.llmClient = client
	return nil
}

// initAssessment builds the ranking engine and assessment pipeline.
func (s *service) initAssessment() {
	var weights ranking.WeightsSource
	if s.config.WeightsPath != "" {
		watcher, err := ranking.NewWeightsWatcher(s.config.WeightsPath, nil)
		if err != nil {
			slog.Warn("Weights watcher failed, using compiled-in ranking weights",
				"path", s.config.WeightsPath,
				"error", err)
		} else if err := watcher.Start(context.Background()); err != nil {
			slog.Warn("Weights watcher failed to start, using compiled-in ranking weights",
				"error", err)
		} else {
			s.weightsWatcher = watcher
			weights = watcher
		}
	}

	deps := services.AssessmentDeps{
		Engine:  ranking.NewEngine(weights),
		Gateway: services.NewReasoningGateway(s.llmClient),
		Store:   s.store,
	}
	// Assign adapters only when present; a typed nil in the interface
	// field would read as a configured source.
	if s.vector != nil {
		deps.Vector = s.vector
	}
	if s.relational != nil {
		deps.Relational = s.relational
	}
	if s.signals != nil {
		deps.Signals = s.signals
	}

	s.assessment = services.NewAssessmentService(deps, services.AssessmentConfig{
		GlobalDeadline:    s.config.GlobalTimeout,
		VectorTimeout:     s.config.VectorTimeout,
		RelationalTimeout: s.config.RelationalTimeout,
		SignalTimeout:     s.config.SignalTimeout,
	})
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("riskd-service"))

	deps := routes.Deps{
		Assessor:      s.assessment,
		Version:       ServiceVersion,
		EnableMetrics: s.config.EnableMetrics,
		Backends: handlers.BackendStatus{
			VectorSearch: s.vector != nil,
			Relational:   s.relational != nil,
			MLSignals:    s.signals != nil,
			Cache:        s.cacheEnabled,
			LLM:          s.llmClient != nil,
		},
	}
	if s.signals != nil {
		deps.Signals = s.signals
	}
	routes.SetupRoutes(s.router, deps)
}

// =============================================================================
// Cleanup
// =============================================================================

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits. Stops the weights watcher, closes the
// backend clients and cache, purges sealed credentials, and shuts the
// tracer down last so teardown spans still export.
func (s *service) cleanup() {
	if s.weightsWatcher != nil {
		s.weightsWatcher.Stop()
	}

	if s.influxClient != nil {
		s.influxClient.Close()
	}

	if s.pgPool != nil {
		s.pgPool.Close()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Cache close error", "error", err)
		}
	}

	llm.PurgeCredentials()

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// cleanupPartial releases what New managed to build before failing.
func (s *service) cleanupPartial() {
	s.cleanup()
}
