package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MilvusConfig holds the vector store connection and collection settings.
type MilvusConfig struct {
	Address        string `yaml:"address"`        // Milvus endpoint, e.g. "localhost:19530"
	CollectionName string `yaml:"collectionName"` // fact collection name
	Dim            int    `yaml:"dim"`            // embedding dimension
	IndexType      string `yaml:"indexType"`      // "HNSW", "IVF_FLAT" or "AUTOINDEX"
	MetricType     string `yaml:"metricType"`     // "COSINE", "IP" or "L2"
}

// Neo4jConfig holds the dialogue-graph store connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"` // e.g. "bolt://localhost:7687"
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig holds the counter/cache/queue store connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"` // e.g. "localhost:6379"
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig holds the dialog-update topic settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`   // dialog update topic
	GroupID string   `yaml:"groupID"` // consumer group of the dialog consumer
}

// EtcdConfig holds optional service-registration settings. Registration
// is skipped when no endpoints are configured.
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	TTL       int64    `yaml:"ttl"` // lease TTL in seconds
}

// DatabaseConfigs groups every backing store.
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`
	Neo4j  Neo4jConfig  `yaml:"neo4j"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Etcd   EtcdConfig   `yaml:"etcd"`
}

// GeminiConfig configures the Google GenAI embedding provider.
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// OllamaConfig configures the Ollama embedding provider.
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // "gemini", "openai" or "ollama"
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// FusionWeights are the coefficients of the weighted score blend.
type FusionWeights struct {
	Dense   float64 `yaml:"dense"`
	Keyword float64 `yaml:"keyword"`
	Topic   float64 `yaml:"topic"`
}

// ContextConfig tunes the dialogue context extractor.
type ContextConfig struct {
	HorizonUtterances int     `yaml:"horizonUtterances"` // utterance-count horizon
	HorizonMinutes    int     `yaml:"horizonMinutes"`    // time horizon
	DecayTauSeconds   float64 `yaml:"decayTauSeconds"`   // exponential decay constant
	CharBudget        int     `yaml:"charBudget"`        // context text budget
}

// RecallConfig tunes the retrieval and fusion pipeline.
type RecallConfig struct {
	Limit               int           `yaml:"limit"`               // max fused results
	ScoreThreshold      float64       `yaml:"scoreThreshold"`      // minimum fused score
	DedupThreshold      float64       `yaml:"dedupThreshold"`      // token-Jaccard cutoff
	Weights             FusionWeights `yaml:"weights"`             // blend coefficients
	ContextBonusCap     float64       `yaml:"contextBonusCap"`     // cap per context bonus
	SourceTimeout       string        `yaml:"sourceTimeout"`       // per-source timebox, e.g. "6s"
	CacheTTL            string        `yaml:"cacheTTL"`            // recall cache TTL, e.g. "90s"
	CooldownSeconds     int           `yaml:"cooldownSeconds"`     // per-session cooldown
	LimitPerMinute      int           `yaml:"limitPerMinute"`      // per-user minute budget
	TacticCooldownTurns int           `yaml:"tacticCooldownTurns"` // proactive-tactic cooldown
	Context             ContextConfig `yaml:"context"`
}

// SourceTimeoutDuration parses the per-source timebox.
func (r RecallConfig) SourceTimeoutDuration() time.Duration {
	return parseDurationOr(r.SourceTimeout, 6*time.Second)
}

// CacheTTLDuration parses the recall cache TTL.
func (r RecallConfig) CacheTTLDuration() time.Duration {
	return parseDurationOr(r.CacheTTL, 90*time.Second)
}

// TokenBucketConfig tunes the global admission token bucket.
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// SlidingCounterConfig tunes the sliding-window-counter limiter.
type SlidingCounterConfig struct {
	Limit      int    `yaml:"limit"`
	Window     string `yaml:"window"` // e.g. "1m"
	NumBuckets int    `yaml:"numBuckets"`
}

// CircuitBreakerConfig tunes the embedding-provider breaker.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // e.g. "30s"
}

// TimeoutDuration parses the breaker open-state timeout.
func (c CircuitBreakerConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// RateLimiterConfig enables the global in-process admission limiter.
type RateLimiterConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Algorithm      string               `yaml:"algorithm"` // "tokenBucket" (default) or "slidingCounter"
	TokenBucket    TokenBucketConfig    `yaml:"tokenBucket"`
	SlidingCounter SlidingCounterConfig `yaml:"slidingCounter"`
}

// MiddlewareConfig groups the resilience middleware settings.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppInfo carries basic application metadata.
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"` // e.g. ":8080"
}

// LoggerConfig holds the logger settings.
type LoggerConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
}

// AppConfig is the root of the YAML configuration file.
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Logger     LoggerConfig     `yaml:"logger"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Recall     RecallConfig     `yaml:"recall"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// LoadConfig reads and parses the YAML configuration at path, filling in
// defaults for any unset recall tuning knob.
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file '%s': %w", path, err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}
	cfg.Recall = cfg.Recall.WithDefaults()
	return &cfg, nil
}

// WithDefaults returns a copy of the config with every unset knob set to
// its default value.
func (r RecallConfig) WithDefaults() RecallConfig {
	if r.Limit <= 0 {
		r.Limit = 5
	}
	if r.ScoreThreshold == 0 {
		r.ScoreThreshold = 0.42
	}
	if r.DedupThreshold == 0 {
		r.DedupThreshold = 0.8
	}
	if r.Weights.Dense == 0 && r.Weights.Keyword == 0 && r.Weights.Topic == 0 {
		r.Weights = FusionWeights{Dense: 0.58, Keyword: 0.22, Topic: 0.20}
	}
	if r.ContextBonusCap == 0 {
		r.ContextBonusCap = 0.05
	}
	if r.CooldownSeconds <= 0 {
		r.CooldownSeconds = 20
	}
	if r.LimitPerMinute <= 0 {
		r.LimitPerMinute = 6
	}
	if r.TacticCooldownTurns <= 0 {
		r.TacticCooldownTurns = 3
	}
	if r.Context.HorizonUtterances <= 0 {
		r.Context.HorizonUtterances = 12
	}
	if r.Context.HorizonMinutes <= 0 {
		r.Context.HorizonMinutes = 30
	}
	if r.Context.DecayTauSeconds <= 0 {
		r.Context.DecayTauSeconds = 1800
	}
	if r.Context.CharBudget <= 0 {
		r.Context.CharBudget = 1000
	}
	return r
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
