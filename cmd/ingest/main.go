package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/cache/redis"
	"github.com/restaurant-agent/backend/internal/ingestion"
	"github.com/restaurant-agent/backend/internal/llm"
	"github.com/restaurant-agent/backend/internal/metrics"
	"github.com/restaurant-agent/backend/internal/storage/sqlite"
	"github.com/restaurant-agent/backend/internal/vector/milvus"
	"github.com/restaurant-agent/backend/pkg/config"
	appLogger "github.com/restaurant-agent/backend/pkg/logger"
)

func main() {
	var restaurantsPath, reviewsPath string
	var batchSize, concurrency int
	var reembed, skipEmbed bool
	flag.StringVar(&restaurantsPath, "restaurants", "data/processed/restaurants.csv", "restaurants CSV")
	flag.StringVar(&reviewsPath, "reviews", "data/processed/reviews.csv", "reviews CSV")
	flag.IntVar(&batchSize, "batch", 64, "reviews per embedding request")
	flag.IntVar(&concurrency, "concurrency", 4, "parallel embedding requests")
	flag.BoolVar(&reembed, "reembed", false, "recompute every embedding, not only missing ones")
	flag.BoolVar(&skipEmbed, "skip-embed", false, "store reviews without computing missing embeddings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	metrics.Init()

	ctx := context.Background()

	restaurants, err := loadFile(restaurantsPath, ingestion.LoadRestaurants)
	if err != nil {
		appLogger.Fatal("Failed to read restaurants", zap.Error(err))
	}
	reviews, err := loadFile(reviewsPath, ingestion.LoadReviews)
	if err != nil {
		appLogger.Fatal("Failed to read reviews", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(ctx); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var embedder ingestion.BatchEmbedder
	if !skipEmbed {
		llmClient := llm.NewClient(llm.Config{
			BaseURL:        cfg.LLM.BaseURL,
			APIKey:         cfg.LLM.APIKey,
			ChatModel:      cfg.LLM.ChatModel,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		})
		embedder = llmClient
	}

	var sink ingestion.VectorSink
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
		sink = milvusClient
	}

	processor := ingestion.NewProcessor(sqliteClient, embedder, sink, ingestion.Options{
		BatchSize:   batchSize,
		Concurrency: concurrency,
		ReembedAll:  reembed,
	})

	result, err := processor.Import(ctx, restaurants, reviews)
	if err != nil {
		appLogger.Fatal("Import failed", zap.Error(err))
	}

	// Cached query vectors may come from a model the reviews no longer use.
	if reembed && cfg.Redis.Enabled {
		invalidateEmbeddingCache(ctx, cfg)
	}

	fmt.Printf("imported %d restaurants, %d reviews (%d embedded, %d indexed)\n",
		result.Restaurants, result.Reviews, result.Embedded, result.Indexed)
}

func loadFile[T any](path string, load func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return load(f)
}

func invalidateEmbeddingCache(ctx context.Context, cfg *config.Config) {
	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.TTL())
	if err != nil {
		appLogger.Warn("Skipping embedding cache invalidation", zap.Error(err))
		return
	}
	defer redisClient.Close()

	n, err := redisClient.InvalidateEmbeddings(ctx)
	if err != nil {
		appLogger.Warn("Failed to invalidate embedding cache", zap.Error(err))
		return
	}
	appLogger.Info("Embedding cache invalidated", zap.Int("keys", n))
}
