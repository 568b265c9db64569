package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/HanTheDev/llm-fusion-gateway/internal/admin"
	"github.com/HanTheDev/llm-fusion-gateway/internal/admission"
	"github.com/HanTheDev/llm-fusion-gateway/internal/analyzer"
	"github.com/HanTheDev/llm-fusion-gateway/internal/api"
	"github.com/HanTheDev/llm-fusion-gateway/internal/auth"
	"github.com/HanTheDev/llm-fusion-gateway/internal/cache"
	"github.com/HanTheDev/llm-fusion-gateway/internal/config"
	"github.com/HanTheDev/llm-fusion-gateway/internal/db"
	"github.com/HanTheDev/llm-fusion-gateway/internal/fusion"
	"github.com/HanTheDev/llm-fusion-gateway/internal/orchestrator"
	"github.com/HanTheDev/llm-fusion-gateway/internal/provider"
	"github.com/HanTheDev/llm-fusion-gateway/internal/ratelimit"
)

const systemPrompt = "You are a helpful assistant for a vehicle service business. Answer clearly and concisely in the language of the question."

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := config.ConfigureLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Admission state
	var store admission.Store
	if cfg.AdmissionBackend == config.BackendRedis {
		redisStore, err := admission.NewRedisStore(cfg.RedisURL, cfg.Tuning.Admission.IdleTTL)
		if err != nil {
			fatal(logger, "failed to initialize admission store", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		store = admission.NewMemoryStore()
	}

	controller, err := admission.NewController(cfg.Tuning.Admission, store, auth.NewValidator(cfg.JWTSecret),
		admission.WithLogger(logger))
	if err != nil {
		fatal(logger, "invalid admission config", err)
	}
	controller.Start(ctx)

	// Providers
	providerA, err := newProvider(cfg, cfg.ProviderA)
	if err != nil {
		fatal(logger, "failed to initialize provider", err)
	}
	providerB, err := newProvider(cfg, cfg.ProviderB)
	if err != nil {
		fatal(logger, "failed to initialize provider", err)
	}

	// Scoring and fusion
	var analyzerOpts []analyzer.Option
	for tier, w := range cfg.Tuning.Weights {
		analyzerOpts = append(analyzerOpts, analyzer.WithTierWeights(tier, w))
	}
	scorer, err := analyzer.New(analyzerOpts...)
	if err != nil {
		fatal(logger, "invalid analyzer weights", err)
	}
	orch, err := orchestrator.New(providerA, providerB, scorer, fusion.NewEngine(cfg.Tuning.Fusion),
		orchestrator.WithTimeout(cfg.ProviderTimeout),
		orchestrator.WithProviderOptions(provider.Options{System: systemPrompt, MaxTokens: cfg.MaxTokens}),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		fatal(logger, "failed to initialize orchestrator", err)
	}

	apiOpts := []api.Option{api.WithLogger(logger)}
	adminOpts := []admin.Option{admin.WithLogger(logger), admin.WithTokenSecret(cfg.JWTSecret)}

	// Result cache
	if cfg.ResultCacheTTL > 0 {
		resultCache, err := cache.NewResultCache(cfg.RedisURL, cfg.ResultCacheTTL)
		if err != nil {
			fatal(logger, "failed to initialize result cache", err)
		}
		defer resultCache.Close()
		apiOpts = append(apiOpts, api.WithCache(resultCache))
		adminOpts = append(adminOpts, admin.WithCacheStats(resultCache))
	}

	// Lead storage
	var leads *api.LeadRecorder
	if cfg.DatabaseURL != "" {
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "failed to connect to database", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			fatal(logger, "failed to migrate database", err)
		}
		leads = api.NewLeadRecorder(database, logger)
		apiOpts = append(apiOpts, api.WithLeadRecorder(leads))
		adminOpts = append(adminOpts, admin.WithAnalytics(database))
	} else {
		logger.Warn("DATABASE_URL not set, leads will not be recorded")
	}

	trustedProxies, err := auth.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		fatal(logger, "invalid TRUSTED_PROXIES", err)
	}

	// Initialize router
	router := mux.NewRouter()
	router.Use(auth.NewMiddleware(cfg.CallerIDSalt, trustedProxies...).Identify, api.AccessLog(logger))

	router.HandleFunc("/health", api.Health).Methods("GET")
	api.NewHandler(controller, orch, apiOpts...).RegisterRoutes(router)
	admin.NewAdminHandler(controller, adminOpts...).RegisterRoutes(router, cfg.AdminAPIKey)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.ProviderTimeout + 20*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	// Start server
	logger.Info("server starting",
		"port", cfg.ServerPort,
		"admission_backend", cfg.AdmissionBackend,
		"provider_a", cfg.ProviderA.Name,
		"provider_b", cfg.ProviderB.Name,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "server failed", err)
	}

	if leads != nil {
		leads.Wait()
	}
	logger.Info("server stopped")
}

func newProvider(cfg *config.Config, p config.Provider) (*provider.Client, error) {
	pc := provider.Config{
		Name:              p.Name,
		URL:               p.URL,
		APIKey:            p.APIKey,
		Model:             p.Model,
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             int(cfg.ProviderRPS) + 1,
	}
	if cfg.ProviderHourlyBudget > 0 {
		budget, err := ratelimit.NewBudget(cfg.RedisURL, p.Name, cfg.ProviderHourlyBudget, time.Hour)
		if err != nil {
			return nil, err
		}
		pc.Budget = budget
	}
	return provider.NewClient(pc), nil
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
