package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-triage/server/internal/a2a"
	"github.com/Chative-triage/server/internal/agent/graph"
	"github.com/Chative-triage/server/internal/agent/graph/tools"
	"github.com/Chative-triage/server/internal/agent/model"
	"github.com/Chative-triage/server/internal/agent/repo"
	"github.com/Chative-triage/server/internal/config"
	"github.com/Chative-triage/server/internal/core"
	"github.com/Chative-triage/server/internal/metrics"
	"github.com/Chative-triage/server/internal/retrieval"
	logx "github.com/Chative-triage/server/pkg/logger"
	pkgredis "github.com/Chative-triage/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the triage service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis    pkgredis.Config
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Agents           model.AgentsConfig
	AgentsConfigFile string `envconfig:"AGENTS_CONFIG_FILE"`
	Review           model.ReviewConfig
	Conversation     model.ConversationConfig

	// Collaborators
	A2A           model.A2AConfig
	MCP           model.MCPConfig
	KnowledgeBase model.KnowledgeBaseConfig
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment, initialises logging and applies
// the optional agents file.
func loadConfig() (*AppConfig, model.AgentSet, error) {
	dotenvErr := godotenv.Load(".env")

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, model.AgentSet{}, fmt.Errorf("process environment config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Env), Level: cfg.LogLevel})
	if dotenvErr != nil {
		logx.Debug().Err(dotenvErr).Msg("no .env file loaded")
	}

	agents := cfg.Agents.Settings()
	if path := strings.TrimSpace(cfg.AgentsConfigFile); path != "" {
		f, err := config.LoadAgentsFile(path)
		if err != nil {
			return nil, model.AgentSet{}, err
		}
		f.Apply(&agents, &cfg.Review)
		logx.Info().Str("path", path).Msg("agents config file applied")
	}
	if err := agents.Validate(); err != nil {
		return nil, model.AgentSet{}, fmt.Errorf("invalid agent configuration: %w", err)
	}
	return &cfg, agents, nil
}

// app bundles the wired collaborators shared by the commands.
type app struct {
	cfg      *AppConfig
	rdb      *redis.Client
	registry *prometheus.Registry
	engine   *graph.Runner
	store    *retrieval.RedisStore
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("close failed")
		}
	}
}

func parseDuration(name, v string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}

// newStoreApp connects only what the knowledge-base commands need.
func newStoreApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise Redis client: %w", err)
	}
	a := &app{cfg: cfg, rdb: rdb, closers: []func() error{rdb.Close}}

	cacheTTL, err := parseDuration("KB_CACHE_TTL", cfg.KnowledgeBase.CacheTTL, 0)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = retrieval.NewRedisStore(rdb, retrieval.Options{
		TopK:      cfg.KnowledgeBase.TopK,
		CacheSize: cfg.KnowledgeBase.CacheSize,
		CacheTTL:  cacheTTL,
	})
	return a, nil
}

// newApp wires Redis, metrics, the admin agent client, MCP discovery, the
// knowledge base and the triage engine.
func newApp(ctx context.Context, cfg *AppConfig, agents model.AgentSet) (*app, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	a, err := newStoreApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logx.Info().Msg("Connected to Redis successfully")

	ttl, err := parseDuration("RUN_TTL", cfg.Conversation.RunTTL, 0)
	if err != nil {
		a.Close()
		return nil, err
	}
	a2aTimeout, err := parseDuration("A2A_TIMEOUT", cfg.A2A.Timeout, a2a.DefaultTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	mcpTimeout, err := parseDuration("MCP_TIMEOUT", cfg.MCP.Timeout, 15*time.Second)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.NewMetrics(a.registry)

	adminAgent := a2a.NewClient(cfg.A2A.BaseURL(),
		a2a.WithTimeout(a2aTimeout),
		a2a.WithFallbackCredential(cfg.A2A.AdminAgentKey),
	)

	var mcpCache *tools.MCPToolCache
	if cfg.MCP.ServerURI != "" {
		mcpCache = tools.NewMCPToolCache(tools.DialStreamableHTTP, mcpTimeout)
		a.closers = append(a.closers, mcpCache.Close)
	}

	a.engine, err = graph.BuildEngine(ctx, graph.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Agents:       agents,
		Review:       cfg.Review,
		Conversation: cfg.Conversation,
		Repo:         repo.NewRedisRunRepository(a.rdb, ttl),
		Tools: tools.NewRegistry(tools.RegistryConfig{
			Searcher:     a.store,
			AdminAgent:   adminAgent,
			MCPCache:     mcpCache,
			MCPServerURI: cfg.MCP.ServerURI,
		}),
		Metrics: mt,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return a, nil
}
