package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = 8080
	defaultUploadMaxBytes   = 20 * 1024 * 1024
	defaultDimension        = 384
	defaultCacheSize        = 4096
	defaultCacheTTLSeconds  = 3600
	defaultCacheMaxAgeDays  = 30
	defaultLLMTimeout       = 60
	defaultMaxContextTokens = 3000
	defaultWindowSize       = 400
	defaultOverlap          = 50
	defaultTopK             = 3
	defaultOverFetch        = 4
	defaultFlushCron        = "*/1 * * * *"
	defaultCacheCleanupCron = "30 3 * * *"
	defaultHistorySize      = 1024
	defaultHistoryTTL       = 86400
	defaultHistoryTurns     = 20
	defaultRateLimitSeconds = 1
	defaultLocalStoreDir    = "./data/uploads"
)

type Config struct {
	Port             int              `json:"port"`
	LogConfig        logger.LogConfig `json:"log_config"`
	Database         DatabaseConfig   `json:"database"`
	FileStore        FileStoreConfig  `json:"file_store"`
	UploadMaxBytes   int64            `json:"upload_max_bytes"`
	Embedding        EmbeddingConfig  `json:"embedding"`
	LLM              LLMConfig        `json:"llm"`
	Retrieval        RetrievalConfig  `json:"retrieval"`
	Index            IndexConfig      `json:"index"`
	Chat             ChatConfig       `json:"chat"`
	CORSAllowlist    []string         `json:"cors_allowlist"`
	RateLimitSeconds int              `json:"rate_limit_seconds"`
}

type DatabaseConfig struct {
	DSN          string `json:"dsn"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	DBName       string `json:"dbname"`
	SSLMode      string `json:"sslmode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslmode)
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type EmbeddingConfig struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Dimension        int    `json:"dimension"`
	APIKey           string `json:"api_key"`
	APIKeyEnv        string `json:"api_key_env"`
	BaseURL          string `json:"base_url"`
	BatchSize        int    `json:"batch_size"`
	CacheSize        int    `json:"cache_size"`
	CacheTTLSeconds  int64  `json:"cache_ttl_seconds"`
	DBCache          bool   `json:"db_cache"`
	CacheMaxAgeDays  int    `json:"cache_max_age_days"`
	CacheCleanupCron string `json:"cache_cleanup_cron"`
}

type LLMProviderConfig struct {
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	APIKeyEnv string `json:"api_key_env"`
	BaseURL   string `json:"base_url"`
	MaxTokens int    `json:"max_tokens"`
}

type LLMConfig struct {
	Providers        []LLMProviderConfig `json:"providers"`
	Timeout          int64               `json:"timeout"`
	MaxContextTokens int                 `json:"max_context_tokens"`
}

type RetrievalConfig struct {
	WindowSize int `json:"window_size"`
	Overlap    int `json:"overlap"`
	TopK       int `json:"top_k"`
	OverFetch  int `json:"over_fetch"`
}

type IndexConfig struct {
	FlushCron string `json:"flush_cron"`
	Persist   *bool  `json:"persist"`
}

func (c IndexConfig) PersistEnabled() bool {
	return c.Persist == nil || *c.Persist
}

type ChatConfig struct {
	HistorySize       int   `json:"history_size"`
	HistoryTTLSeconds int64 `json:"history_ttl_seconds"`
	HistoryTurns      int   `json:"history_turns"`
}

// Load reads a JSON config, or YAML when the file ends in .yaml/.yml. A .env
// file in the working directory is loaded first so api_key_env names can
// point at it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func Parse(raw []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		raw = data
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	if c.FileStore.Type == "local" && c.FileStore.Data == nil {
		c.FileStore.Data = map[string]interface{}{"dir": defaultLocalStoreDir}
	}
	if c.UploadMaxBytes == 0 {
		c.UploadMaxBytes = defaultUploadMaxBytes
	}
	e := &c.Embedding
	if e.Provider == "" {
		e.Provider = "hashing"
	}
	if e.Dimension == 0 {
		e.Dimension = defaultDimension
	}
	if e.CacheSize == 0 {
		e.CacheSize = defaultCacheSize
	}
	if e.CacheTTLSeconds == 0 {
		e.CacheTTLSeconds = defaultCacheTTLSeconds
	}
	if e.CacheMaxAgeDays == 0 {
		e.CacheMaxAgeDays = defaultCacheMaxAgeDays
	}
	if e.CacheCleanupCron == "" {
		e.CacheCleanupCron = defaultCacheCleanupCron
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = defaultLLMTimeout
	}
	if c.LLM.MaxContextTokens == 0 {
		c.LLM.MaxContextTokens = defaultMaxContextTokens
	}
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].Name == "" {
			c.LLM.Providers[i].Name = c.LLM.Providers[i].Provider
		}
	}
	r := &c.Retrieval
	if r.WindowSize == 0 {
		r.WindowSize = defaultWindowSize
		if r.Overlap == 0 {
			r.Overlap = defaultOverlap
		}
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if r.OverFetch == 0 {
		r.OverFetch = defaultOverFetch
	}
	if c.Index.FlushCron == "" {
		c.Index.FlushCron = defaultFlushCron
	}
	if c.Chat.HistorySize == 0 {
		c.Chat.HistorySize = defaultHistorySize
	}
	if c.Chat.HistoryTTLSeconds == 0 {
		c.Chat.HistoryTTLSeconds = defaultHistoryTTL
	}
	if c.Chat.HistoryTurns == 0 {
		c.Chat.HistoryTurns = defaultHistoryTurns
	}
	if c.RateLimitSeconds == 0 {
		c.RateLimitSeconds = defaultRateLimitSeconds
	}
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	switch c.FileStore.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	if c.UploadMaxBytes < 0 {
		return fmt.Errorf("upload_max_bytes must not be negative")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	for i, p := range c.LLM.Providers {
		if p.Provider == "" {
			return fmt.Errorf("llm.providers[%d].provider is required", i)
		}
		if p.Model == "" {
			return fmt.Errorf("llm.providers[%d].model is required", i)
		}
	}
	r := c.Retrieval
	if r.WindowSize <= 0 {
		return fmt.Errorf("retrieval.window_size must be positive")
	}
	if r.Overlap < 0 || r.Overlap >= r.WindowSize {
		return fmt.Errorf("retrieval.overlap must be in [0, window_size)")
	}
	if r.TopK <= 0 || r.OverFetch <= 0 {
		return fmt.Errorf("retrieval.top_k and retrieval.over_fetch must be positive")
	}
	return nil
}
