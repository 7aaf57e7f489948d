package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"intro-eligibility-api/internal/backend"
	"intro-eligibility-api/internal/cache"
	"intro-eligibility-api/internal/catalog"
	"intro-eligibility-api/internal/config"
	"intro-eligibility-api/internal/database"
	"intro-eligibility-api/internal/eligibility"
	"intro-eligibility-api/internal/events"
	"intro-eligibility-api/internal/features"
	"intro-eligibility-api/internal/handler"
	"intro-eligibility-api/internal/logging"
	"intro-eligibility-api/internal/middleware"
	"intro-eligibility-api/internal/receipt"
	"intro-eligibility-api/internal/service"
	"intro-eligibility-api/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to JSON config file")
	flag.Parse()

	// .env is optional; environment variables win either way
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	log := logging.Component("main")

	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Tracing.Environment,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	var descriptorCache cache.Cache
	if cfg.Cache.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisCache.Close()
		descriptorCache = redisCache
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("using Redis descriptor cache")
	} else {
		descriptorCache = cache.NewInMemoryCache()
		log.Info().Msg("using in-memory descriptor cache")
	}

	featureManager := features.NewManager()
	defer featureManager.Shutdown()
	featureManager.Register(features.FeatureLiveQuery, cfg.Eligibility.LiveQueryEnabled, "Use the live-query resolution strategy")
	featureManager.Register(features.FeaturePreviewMode, cfg.Eligibility.PreviewMode, "Short-circuit every eligibility check to unknown")
	featureManager.Register(features.FeatureCacheEnabled, true, "Catalog descriptor cache")
	featureManager.Register(features.FeatureEventHooksEnabled, true, "Event-driven hooks")

	productCatalog := catalog.New(db, descriptorCache,
		catalog.WithCacheTTL(time.Duration(cfg.Cache.TTLSeconds)*time.Second))
	receiptFetcher := receipt.NewFetcher(db)
	localCalculator := receipt.NewCalculator()
	backendClient := backend.NewClient(cfg.Backend.URL, time.Duration(cfg.Backend.TimeoutSeconds)*time.Second)

	// Flags are read once here; the engine never consults them again.
	checker := eligibility.NewChecker(eligibility.Config{
		PreviewMode:        featureManager.IsEnabled(features.FeaturePreviewMode),
		LiveQueryEnabled:   featureManager.IsEnabled(features.FeatureLiveQuery),
		SlowQueryThreshold: time.Duration(cfg.Eligibility.SlowQueryThresholdMS) * time.Millisecond,
	}, receiptFetcher, localCalculator, productCatalog, productCatalog, backendClient)

	eventManager := events.NewManager(featureManager.IsEnabled(features.FeatureEventHooksEnabled))
	defer eventManager.Shutdown()

	svc := service.NewService(checker, productCatalog, receiptFetcher, eventManager)
	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
	defer rateLimiter.Stop()

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware())

	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Security.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Routes
	r.Route("/eligibility", func(r chi.Router) {
		r.Post("/check", h.CheckEligibility)
	})

	r.Route("/products", func(r chi.Router) {
		r.Put("/", h.UpsertProducts)
	})

	r.Route("/users/{user_id}", func(r chi.Router) {
		r.Get("/products/{product_id}/eligibility", h.GetProductEligibility)
		r.Put("/receipt", h.StoreReceipt)
		r.Post("/redemptions", h.RecordRedemption)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info().Msg("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down server")
		}
		if err := tracing.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracing")
		}
	}()

	log.Info().
		Str("addr", addr).
		Str("database", cfg.Database.Path).
		Bool("preview_mode", cfg.Eligibility.PreviewMode).
		Bool("live_query", cfg.Eligibility.LiveQueryEnabled).
		Msg("starting server")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
