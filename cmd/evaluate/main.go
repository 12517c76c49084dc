package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/restaurant-agent/backend/internal/assistant"
	"github.com/restaurant-agent/backend/internal/corpus"
	"github.com/restaurant-agent/backend/internal/evaluation"
	"github.com/restaurant-agent/backend/internal/llm"
	"github.com/restaurant-agent/backend/internal/storage/sqlite"
	"github.com/restaurant-agent/backend/pkg/config"
	appLogger "github.com/restaurant-agent/backend/pkg/logger"
)

func main() {
	var datasetPath, strategy string
	var withIntent, asJSON bool
	flag.StringVar(&datasetPath, "dataset", "data/eval/queries.json", "labeled evaluation queries")
	flag.StringVar(&strategy, "strategy", "", "ranking strategy override (embedding or bm25)")
	flag.BoolVar(&withIntent, "intent", false, "also score intent classification")
	flag.BoolVar(&asJSON, "json", false, "print the full report as JSON")
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

	if strategy == "" {
		strategy = cfg.Assistant.RankingStrategy
	}

	ctx := context.Background()

	f, err := os.Open(datasetPath)
	if err != nil {
		appLogger.Fatal("Failed to open dataset", zap.Error(err))
	}
	dataset, err := evaluation.LoadDataset(f)
	f.Close()
	if err != nil {
		appLogger.Fatal("Failed to read dataset", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

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

	llmClient := llm.NewClient(llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		ChatModel:      cfg.LLM.ChatModel,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var ranker assistant.Ranker
	switch assistant.RankingStrategy(strategy) {
	case assistant.RankByBM25:
		ranker = assistant.NewBM25Ranker(corp, nil)
	case assistant.RankByEmbedding:
		aggregation, err := assistant.ParseScoreAggregation(cfg.Assistant.ScoreAggregation)
		if err != nil {
			appLogger.Fatal("Invalid score aggregation", zap.Error(err))
		}
		ranker = assistant.NewEmbeddingRanker(llmClient, assistant.NewMemoryIndex(corp), corp.Directory(), aggregation)
	default:
		appLogger.Fatal("Unknown ranking strategy", zap.String("strategy", strategy))
	}

	var classifier *assistant.IntentClassifier
	if withIntent {
		labels, err := assistant.LabelSetByName(cfg.Assistant.LabelSet)
		if err != nil {
			appLogger.Fatal("Invalid label set", zap.Error(err))
		}
		classifier = assistant.NewIntentClassifier(llmClient, labels)
	}

	evaluator := evaluation.NewEvaluator(ranker, classifier, cfg.Assistant.TopN)
	report, err := evaluator.RunDatasetEvaluation(ctx, dataset)
	if err != nil {
		appLogger.Fatal("Evaluation failed", zap.Error(err))
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			appLogger.Fatal("Failed to write report", zap.Error(err))
		}
		return
	}
	fmt.Print(evaluation.GenerateReport(report))
}
