package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ashureev/deskroute/internal/agent"
	"github.com/ashureev/deskroute/internal/api"
	"github.com/ashureev/deskroute/internal/classifier"
	"github.com/ashureev/deskroute/internal/config"
	"github.com/ashureev/deskroute/internal/directory"
	"github.com/ashureev/deskroute/internal/identity"
	"github.com/ashureev/deskroute/internal/llm"
	"github.com/ashureev/deskroute/internal/memory"
	"github.com/ashureev/deskroute/internal/middleware"
	"github.com/ashureev/deskroute/internal/orchestrator"
	"github.com/ashureev/deskroute/internal/session"
	"github.com/ashureev/deskroute/internal/store"
	"github.com/ashureev/deskroute/internal/transcript"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the helpdesk HTTP server",
	Long: `Starts the HTTP server exposing the chat, telephony, Teams and WebSocket
channel adapters, session endpoints, health checks and Prometheus metrics.`,
	RunE: runServe,
}

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Classification policy.
	policy, err := loadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}
	keywords := classifier.NewKeywordClassifier(policy)

	// Conversation memory, optionally mirrored to Redis.
	var memOpts []memory.RegistryOption
	if cfg.Memory.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Memory.RedisAddr})
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Debug("Failed to close redis client", "error", closeErr)
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unavailable, conversation memory stays in-process", "addr", cfg.Memory.RedisAddr, "error", err)
		} else {
			backend := memory.NewRedisBackend(memory.NewGoRedisKV(rdb),
				memory.WithPrefix(cfg.Memory.RedisPrefix),
				memory.WithTTL(cfg.Memory.RedisTTL))
			sink := memory.NewAsyncSink(backend, 256, 2*time.Second)
			defer sink.Close()
			memOpts = append(memOpts, memory.WithBackend(backend, sink))
			slog.Info("Conversation memory mirrored to Redis", "addr", cfg.Memory.RedisAddr)
		}
	}
	memories := memory.NewRegistry(memory.ParseMode(cfg.Memory.Mode), cfg.Memory.WindowTurns, memOpts...)

	sessions, err := session.NewStore(cfg.Session.MaxSessions,
		session.WithPersister(repo),
		session.WithEvictCallback(memories.Drop),
	)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}

	// Metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := orchestrator.NewMetrics(reg)

	// Reply generation and secondary classification.
	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		slog.Info("LLM replies enabled", "model", cfg.LLM.Model)
	} else {
		slog.Info("LLM replies disabled (ANTHROPIC_API_KEY not set), agents use fallback replies")
	}

	health := api.NewHealthHandler(5 * time.Second)
	health.AddCheck("database", repo.Ping, true)

	orchOpts := []orchestrator.Option{
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTurnTimeout(cfg.TurnTimeout),
		orchestrator.WithIdentity(cfg.AssistantName, cfg.SupportContact),
		orchestrator.WithLocalConversationLog(repo),
	}

	switch {
	case cfg.Classifier.Addr != "":
		grpcCfg := llm.DefaultGrpcClassifierConfig()
		grpcCfg.Address = cfg.Classifier.Addr
		grpcCfg.ConnectTimeout = cfg.Classifier.Timeout
		grpcClassifier, err := llm.NewGrpcClassifier(grpcCfg, logger)
		if err != nil {
			slog.Warn("Failed to connect to classifier service, secondary classification disabled", "error", err)
			break
		}
		defer grpcClassifier.Close()
		health.AddCheck("classifier", grpcClassifier.Health, false)
		orchOpts = append(orchOpts, orchestrator.WithSecondaryClassifier(grpcClassifier))
		slog.Info("Secondary classifier connected", "address", cfg.Classifier.Addr)
	case llmClient != nil:
		orchOpts = append(orchOpts, orchestrator.WithSecondaryClassifier(llm.NewPromptClassifier(llmClient)))
		slog.Info("Secondary classification uses the LLM prompt classifier")
	}

	if cfg.Directory.BaseURL != "" {
		dir := directory.NewClient(directory.Config{
			BaseURL:  cfg.Directory.BaseURL,
			Username: cfg.Directory.Username,
			Password: cfg.Directory.Password,
			Timeout:  cfg.Directory.Timeout,
		}, directory.NewTokenCache(cfg.Directory.TokenTTL))
		orchOpts = append(orchOpts,
			orchestrator.WithDirectory(dir),
			orchestrator.WithRemoteConversationLog(dir),
		)
		slog.Info("Directory service configured", "url", cfg.Directory.BaseURL)
	}

	transcripts, err := transcript.NewLogger(transcript.Config{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation transcripts: %w", err)
	}
	if transcripts != nil {
		defer func() {
			if closeErr := transcripts.Close(); closeErr != nil {
				slog.Error("Failed to close transcript logger", "error", closeErr)
			}
		}()
		orchOpts = append(orchOpts, orchestrator.WithTranscript(transcripts))
	}

	agents := agent.NewDefaultRegistry(agent.Options{
		LLM:            llmClient,
		AssistantName:  cfg.AssistantName,
		SupportContact: cfg.SupportContact,
		Observer:       metrics,
	})

	orch := orchestrator.New(sessions, memories, keywords, agents, orchOpts...)

	// Handlers.
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
	defer limiter.Close()
	chatHandler := api.NewHandler(orch, limiter)
	wsHandler := api.NewWebSocketHandler(orch, limiter, cfg.AllowedOrigin(), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{cfg.AllowedOrigin()}))

	health.RegisterHealth(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket sessions are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Background maintenance.
	session.StartSweeper(ctx, sessions, cfg.Session.SweepInterval, cfg.Session.TTL)
	startStoreCleanup(ctx, repo, cfg.Session.SweepInterval, cfg.Session.TTL)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}

// startStoreCleanup periodically deletes persisted sessions that have not
// been updated within ttl.
func startStoreCleanup(ctx context.Context, repo store.Repository, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = session.DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n, err := repo.CleanupExpiredSessions(ctx, ttl)
				if err != nil {
					slog.Error("Failed to clean up persisted sessions", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("Removed expired persisted sessions", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
