package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Assistant AssistantConfig
	Vector    VectorConfig
	Places    PlacesConfig
	Geocode   GeocodeConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	EmbeddingTTL int
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	Temperature    float32
	TimeoutSec     int
}

type AssistantConfig struct {
	LabelSet          string
	RankingStrategy   string
	ScoreAggregation  string
	TopN              int
	SummaryMaxInput   int
	SummaryMinLength  int
	SummaryMaxLength  int
	GenerationTokens  int
	MaxHistoryTurns   int
	MaxHistoryChars   int
	CapabilityTimeout int
}

type VectorConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
	SearchTopK     int
}

type PlacesConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	FixturePath string
	RadiusM     float64
	TimeoutSec  int
}

type GeocodeConfig struct {
	BaseURL    string
	Lang       string
	TimeoutSec int
}

type SessionConfig struct {
	Store  string
	TTLMin int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c AssistantConfig) Timeout() time.Duration {
	return time.Duration(c.CapabilityTimeout) * time.Second
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMin) * time.Minute
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/restaurant-agent")

	v.SetEnvPrefix("RESTAURANT_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Assistant.LabelSet {
	case "basic", "extended":
	default:
		return fmt.Errorf("invalid assistant.labelSet %q", c.Assistant.LabelSet)
	}
	switch c.Assistant.RankingStrategy {
	case "embedding", "bm25":
	default:
		return fmt.Errorf("invalid assistant.rankingStrategy %q", c.Assistant.RankingStrategy)
	}
	switch c.Places.Provider {
	case "google", "fixture", "directory":
	default:
		return fmt.Errorf("invalid places.provider %q", c.Places.Provider)
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid session.store %q", c.Session.Store)
	}
	if c.Session.Store == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("session.store=redis requires redis.enabled")
	}
	// Milvus returns at most vector.searchTopK reviews, so a mean over them
	// would not match the in-memory index.
	if c.Vector.Enabled && c.Assistant.RankingStrategy == "embedding" && c.Assistant.ScoreAggregation == "mean" {
		return fmt.Errorf("assistant.scoreAggregation=mean is not supported with vector.enabled")
	}
	if c.Assistant.TopN <= 0 {
		return fmt.Errorf("assistant.topN must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 1048576)
	v.SetDefault("server.allowedOrigins", []string{})
	v.SetDefault("server.development", false)

	v.SetDefault("sqlite.path", "./data/restaurants.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTL", 1440)

	v.SetDefault("llm.baseURL", "https://api.openai.com/v1")
	v.SetDefault("llm.chatModel", "gpt-4o-mini")
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeoutSec", 30)

	v.SetDefault("assistant.labelSet", "basic")
	v.SetDefault("assistant.rankingStrategy", "embedding")
	v.SetDefault("assistant.scoreAggregation", "max")
	v.SetDefault("assistant.topN", 3)
	v.SetDefault("assistant.summaryMaxInput", 2048)
	v.SetDefault("assistant.summaryMinLength", 20)
	v.SetDefault("assistant.summaryMaxLength", 100)
	v.SetDefault("assistant.generationTokens", 1000)
	v.SetDefault("assistant.maxHistoryTurns", 20)
	v.SetDefault("assistant.maxHistoryChars", 8000)
	v.SetDefault("assistant.capabilityTimeout", 20)

	v.SetDefault("vector.enabled", false)
	v.SetDefault("vector.endpoint", "localhost:19530")
	v.SetDefault("vector.collectionName", "restaurant_reviews")
	v.SetDefault("vector.vectorDim", 1536)
	v.SetDefault("vector.searchTopK", 200)

	v.SetDefault("places.provider", "directory")
	v.SetDefault("places.baseURL", "https://places.googleapis.com/v1/places:searchNearby")
	v.SetDefault("places.fixturePath", "./data/nearby_places.json")
	v.SetDefault("places.radiusM", 500.0)
	v.SetDefault("places.timeoutSec", 10)

	v.SetDefault("geocode.baseURL", "https://photon.komoot.io/api/")
	v.SetDefault("geocode.lang", "en")
	v.SetDefault("geocode.timeoutSec", 10)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttlMin", 120)

	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
