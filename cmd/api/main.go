package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/api/handlers"
	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/cache/redis"
	"github.com/restaurant-agent/backend/internal/corpus"
	"github.com/restaurant-agent/backend/internal/geocode"
	"github.com/restaurant-agent/backend/internal/llm"
	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/internal/middleware/ratelimit"
	"github.com/restaurant-agent/backend/internal/middleware/security"
	"github.com/restaurant-agent/backend/internal/middleware/validation"
	"github.com/restaurant-agent/backend/internal/places"
	"github.com/restaurant-agent/backend/internal/storage/models"
	"github.com/restaurant-agent/backend/internal/storage/sqlite"
	"github.com/restaurant-agent/backend/internal/vector/milvus"
	"github.com/restaurant-agent/backend/pkg/circuitbreaker"
	"github.com/restaurant-agent/backend/pkg/config"
	appLogger "github.com/restaurant-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting restaurant assistant API server")
	metrics.Init()

	ctx := context.Background()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(ctx); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	restaurants, err := sqliteClient.ListRestaurants(ctx)
	if err != nil {
		appLogger.Fatal("Failed to load restaurants", zap.Error(err))
	}
	reviews, err := sqliteClient.ListReviews(ctx)
	if err != nil {
		appLogger.Fatal("Failed to load reviews", zap.Error(err))
	}
	corp, err := corpus.New(restaurants, reviews)
	if err != nil {
		appLogger.Fatal("Failed to build review corpus", zap.Error(err))
	}
	metrics.RestaurantsLoaded.Set(float64(len(restaurants)))
	metrics.ReviewsLoaded.Set(float64(len(reviews)))

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		ChatModel:      cfg.LLM.ChatModel,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var embedder assistant.Embedder = llmClient
	var store assistant.SessionStore = assistant.NewMemoryStore()

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Session.TTL(),
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		embedder = llm.NewCachedEmbedder(
			llmClient,
			redisClient,
			llmClient.EmbeddingModel(),
			time.Duration(cfg.Redis.EmbeddingTTL)*time.Minute,
		)
		if cfg.Session.Store == "redis" {
			store = redisClient
		}
	}

	engineCfg, err := assistantConfig(cfg)
	if err != nil {
		appLogger.Fatal("Invalid assistant configuration", zap.Error(err))
	}

	var opts []assistant.Option
	if cfg.Vector.Enabled {
		milvusClient, err := milvus.NewClient(
			cfg.Vector.Endpoint,
			cfg.Vector.APIKey,
			cfg.Vector.CollectionName,
			cfg.Vector.VectorDim,
			cfg.Vector.SearchTopK,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		defer milvusClient.Close()

		if err := milvusClient.CreateCollection(ctx); err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}
		opts = append(opts, assistant.WithVectorIndex(milvusClient))
	}

	engine := assistant.New(corp, engineCfg, opts...)
	err = engine.Load(assistant.Capabilities{
		Embedder:   embedder,
		Classifier: llmClient,
		Summarizer: llmClient,
		Generator:  llmClient,
	})
	if err != nil {
		// Keep serving search and nearby; chat answers 503 until fixed.
		appLogger.Error("Assistant is not set up", zap.Error(err))
	}

	sessions := assistant.NewSessionManager(engine, store, sqliteClient)

	geocoder := geocode.NewClient(geocode.Config{
		BaseURL: cfg.Geocode.BaseURL,
		Lang:    cfg.Geocode.Lang,
		Timeout: time.Duration(cfg.Geocode.TimeoutSec) * time.Second,
		Breaker: newBreaker("photon"),
	})

	provider, err := placesProvider(cfg.Places, restaurants)
	if err != nil {
		appLogger.Fatal("Failed to create places provider", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:                cfg.RateLimit.Burst,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Get("/metrics", metrics.MetricsHandler())
	app.Use(limiter.Middleware())
	chatLimits := validation.Config{
		Logger: appLogger.GetLogger(),
	}
	app.Use(validation.Middleware(chatLimits))

	handlers.Register(app, handlers.Handlers{
		Chat:      handlers.NewChatHandler(sessions, sqliteClient),
		Places:    handlers.NewPlacesHandler(geocoder, provider, cfg.Places.RadiusM),
		WebSocket: handlers.NewWebSocketHandler(sessions, chatLimits),
		Health:    handlers.NewHealthHandler(sessions.Ready),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Shutdown did not complete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func assistantConfig(cfg *config.Config) (assistant.Config, error) {
	labels, err := assistant.LabelSetByName(cfg.Assistant.LabelSet)
	if err != nil {
		return assistant.Config{}, err
	}
	aggregation, err := assistant.ParseScoreAggregation(cfg.Assistant.ScoreAggregation)
	if err != nil {
		return assistant.Config{}, err
	}

	c := assistant.DefaultConfig()
	c.Labels = labels
	c.Strategy = assistant.RankingStrategy(cfg.Assistant.RankingStrategy)
	c.Aggregation = aggregation
	c.TopN = cfg.Assistant.TopN
	c.Summary = assistant.SummaryConfig{
		MaxInputChars: cfg.Assistant.SummaryMaxInput,
		MinLength:     cfg.Assistant.SummaryMinLength,
		MaxLength:     cfg.Assistant.SummaryMaxLength,
	}
	c.GenerationTokens = cfg.Assistant.GenerationTokens
	c.History = assistant.HistoryWindow{
		MaxTurns: cfg.Assistant.MaxHistoryTurns,
		MaxChars: cfg.Assistant.MaxHistoryChars,
	}
	c.CapabilityTimeout = cfg.Assistant.Timeout()
	return c, nil
}

func placesProvider(cfg config.PlacesConfig, restaurants []models.Restaurant) (places.Provider, error) {
	switch cfg.Provider {
	case "google":
		return places.NewGoogleProvider(places.GoogleConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Breaker: newBreaker("google_places"),
		}), nil
	case "fixture":
		p, err := places.NewFixtureProvider(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return places.NewDirectoryProvider(restaurants), nil
	}
}

func newBreaker(name string) *circuitbreaker.Breaker {
	return circuitbreaker.New(name, circuitbreaker.Config{
		Logger: appLogger.Named("breaker." + name),
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
	})
}
