package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	DefaultStorageRoot     = "/tmp/postvec"
	DefaultTable           = "wordpress_posts"
	DefaultDimension       = 1536
	DefaultMaxInputTokens  = 8191
	DefaultEmbeddingsModel = "text-embedding-3-small"
	DefaultEmbedTimeoutMS  = 30000
)

type Config struct {
	StorageRoot     string            `json:"storage_root"`
	TableName       string            `json:"table_name"`
	Dimension       int               `json:"dimension"`
	Metric          string            `json:"metric"`
	MaxInputTokens  int               `json:"max_input_tokens"`
	EmbeddingsModel string            `json:"embeddings_model"`
	ChunkMode       string            `json:"chunk_mode"`
	AtomicUpsert    bool              `json:"atomic_upsert"`
	Timeouts        TimeoutConfig     `json:"timeouts"`
	Embedder        EmbedderConfig    `json:"embedder"`
	EmbedCache      EmbedCacheConfig  `json:"embed_cache"`
	SnapshotStore   FileStoreConfig   `json:"snapshot_store"`
	Ingest          IngestConfig      `json:"ingest"`
	Server          ServerConfig      `json:"server"`
	Jobs            JobsConfig        `json:"jobs"`
	LogConfig       logger.LogConfig  `json:"log_config"`
	APIKeys         map[string]string `json:"-"`
}

type TimeoutConfig struct {
	StorageMS int `json:"storage_ms"`
	EmbedMS   int `json:"embed_ms"`
}

// EmbedderConfig selects an embedding provider. Fallbacks are tried in order
// when the primary fails.
type EmbedderConfig struct {
	Provider  string           `json:"provider"`
	Data      interface{}      `json:"data"`
	Fallbacks []EmbedderConfig `json:"fallbacks"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds"`
	DB            bool `json:"db"`
	MaxAgeDays    int  `json:"max_age_days"`
}

// FileStoreConfig is decoded by the store registered under Type.
type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type IngestConfig struct {
	Concurrency int     `json:"concurrency"`
	RPS         float64 `json:"rps"`
}

type ServerConfig struct {
	Port        int      `json:"port"`
	JWTSecret   string   `json:"jwt_secret"`
	CORSOrigins []string `json:"cors_origins"`
	RateLimitMS int      `json:"rate_limit_ms"`
}

type JobsConfig struct {
	SchemaCheckCron  string `json:"schema_check_cron"`
	CacheCleanupCron string `json:"cache_cleanup_cron"`
}

// Default is the configuration used when no config file is given.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := finalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func finalize(cfg *Config) error {
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	return validate(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = DefaultStorageRoot
	}
	if cfg.TableName == "" {
		cfg.TableName = DefaultTable
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Metric == "" {
		cfg.Metric = "l2"
	}
	if cfg.MaxInputTokens == 0 {
		cfg.MaxInputTokens = DefaultMaxInputTokens
	}
	if cfg.EmbeddingsModel == "" {
		cfg.EmbeddingsModel = DefaultEmbeddingsModel
	}
	if cfg.ChunkMode == "" {
		cfg.ChunkMode = "line"
	}
	if cfg.Timeouts.EmbedMS == 0 {
		cfg.Timeouts.EmbedMS = DefaultEmbedTimeoutMS
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "openai"
	}
	if cfg.EmbedCache.MaxAgeDays == 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitMS == 0 {
		cfg.Server.RateLimitMS = 200
	}
	if cfg.Jobs.SchemaCheckCron == "" {
		cfg.Jobs.SchemaCheckCron = "0 3 * * *"
	}
	if cfg.Jobs.CacheCleanupCron == "" {
		cfg.Jobs.CacheCleanupCron = "30 3 * * *"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
}

func validate(cfg *Config) error {
	if cfg.Dimension < 0 {
		return fmt.Errorf("dimension must be positive")
	}
	if cfg.MaxInputTokens < 0 {
		return fmt.Errorf("max_input_tokens must be positive")
	}
	switch cfg.Metric {
	case "l2", "cosine":
	default:
		return fmt.Errorf("metric must be l2 or cosine")
	}
	switch cfg.ChunkMode {
	case "line", "structured":
	default:
		return fmt.Errorf("chunk_mode must be line or structured")
	}
	if cfg.Ingest.Concurrency < 0 || cfg.Ingest.RPS < 0 {
		return fmt.Errorf("ingest concurrency and rps must not be negative")
	}
	switch strings.ToLower(cfg.SnapshotStore.Type) {
	case "", "local", "s3":
	default:
		return fmt.Errorf("snapshot_store.type must be local or s3")
	}
	return nil
}

// applyEnv lets the environment override the file. The NPA_RAG_ names are
// kept for existing deployments.
func applyEnv(cfg *Config) error {
	if v := firstEnv("POSTVEC_MAX_INPUT_TOKENS", "NPA_RAG_MAX_INPUT_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse max input tokens %q: %w", v, err)
		}
		cfg.MaxInputTokens = n
	}
	if v := firstEnv("POSTVEC_EMBEDDINGS_MODEL", "NPA_RAG_EMBEDDINGS_MODEL"); v != "" {
		cfg.EmbeddingsModel = v
	}
	if v := os.Getenv("POSTVEC_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
	}
	cfg.APIKeys = map[string]string{}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.APIKeys["openai"] = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.APIKeys["gemini"] = v
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
