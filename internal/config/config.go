package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
)

const (
	defaultChunkSize     = 1000
	defaultChunkOverlap  = 200
	defaultTopK          = 5
	defaultFetchTimeout  = 30
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultMaxUploadSize = 20 * 1024 * 1024
	defaultAITimeout     = 120
	defaultLRUTTL        = 7200
	defaultTemperature   = 0.7
)

type Config struct {
	Port            int               `json:"port"`
	DBPath          string            `json:"db_path"`
	LogConfig       logger.LogConfig  `json:"log_config"`
	FileStore       FileStoreConfig   `json:"file_store"`
	VectorStore     VectorStoreConfig `json:"vector_store"`
	AI              AIConfig          `json:"ai"`
	Sampling        SamplingConfig    `json:"sampling"`
	Chunker         ChunkerConfig     `json:"chunker"`
	Retrieval       RetrievalConfig   `json:"retrieval"`
	Extractor       ExtractorConfig   `json:"extractor"`
	EmbedCache      EmbedCacheConfig  `json:"embed_cache"`
	Jobs            JobsConfig        `json:"jobs"`
	CORSAllowlist   []string          `json:"cors_allowlist"`
	ChatRateLimitMS int64             `json:"chat_rate_limit_ms"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ProviderConfig selects one ai provider. Data is decoded by the provider factory.
type ProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators []ProviderConfig `json:"generators"`
	Embedders  []ProviderConfig `json:"embedders"`
	Timeout    int              `json:"timeout"`
}

type SamplingConfig struct {
	// nil picks the default; 0 asks for greedy decoding.
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

type ChunkerConfig struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}

type RetrievalConfig struct {
	TopK int `json:"top_k"`
}

type ExtractorConfig struct {
	FetchTimeout  int    `json:"fetch_timeout"`
	UserAgent     string `json:"user_agent"`
	MaxUploadSize int64  `json:"max_upload_size"`
}

type EmbedCacheConfig struct {
	LRUSize    int  `json:"lru_size"`
	LRUTTL     int  `json:"lru_ttl"`
	DBEnabled  bool `json:"db_enabled"`
	MaxAgeDays int  `json:"max_age_days"`
}

type JobsConfig struct {
	ReconcileCron             string `json:"reconcile_cron"`
	EmbeddingCacheCleanupCron string `json:"embedding_cache_cleanup_cron"`
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
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Type == "sqlite" && cfg.VectorStore.Data == nil {
		cfg.VectorStore.Data = map[string]interface{}{"path": cfg.DBPath + ".vectors"}
	}
	if cfg.FileStore.Type == "local" && cfg.FileStore.Data == nil {
		cfg.FileStore.Data = map[string]interface{}{"dir": filepath.Join(filepath.Dir(cfg.DBPath), "uploads")}
	}
	if len(cfg.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators is required")
	}
	if len(cfg.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders is required")
	}
	for i, item := range cfg.AI.Generators {
		if strings.TrimSpace(item.Provider) == "" || strings.TrimSpace(item.Model) == "" {
			return fmt.Errorf("ai.generators[%d] provider/model are required", i)
		}
	}
	for i, item := range cfg.AI.Embedders {
		if strings.TrimSpace(item.Provider) == "" || strings.TrimSpace(item.Model) == "" {
			return fmt.Errorf("ai.embedders[%d] provider/model are required", i)
		}
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = defaultAITimeout
	}
	if cfg.Sampling.Temperature == nil {
		temperature := defaultTemperature
		cfg.Sampling.Temperature = &temperature
	}
	if *cfg.Sampling.Temperature < 0 {
		return fmt.Errorf("sampling.temperature must not be negative")
	}
	if cfg.Sampling.TopP == 0 {
		cfg.Sampling.TopP = 0.9
	}
	if cfg.Sampling.MaxTokens == 0 {
		cfg.Sampling.MaxTokens = 1000
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = defaultChunkSize
		if cfg.Chunker.Overlap == 0 {
			cfg.Chunker.Overlap = defaultChunkOverlap
		}
	}
	if cfg.Chunker.Overlap < 0 || cfg.Chunker.Overlap >= cfg.Chunker.ChunkSize {
		return fmt.Errorf("chunker.overlap must be in [0, chunk_size)")
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = defaultTopK
	}
	if cfg.Extractor.FetchTimeout <= 0 {
		cfg.Extractor.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Extractor.UserAgent == "" {
		cfg.Extractor.UserAgent = defaultUserAgent
	}
	if cfg.Extractor.MaxUploadSize <= 0 {
		cfg.Extractor.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.EmbedCache.LRUSize > 0 && cfg.EmbedCache.LRUTTL <= 0 {
		cfg.EmbedCache.LRUTTL = defaultLRUTTL
	}
	if cfg.EmbedCache.MaxAgeDays <= 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	return nil
}
