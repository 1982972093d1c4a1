package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"knowbase/internal/domain/knowledge"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string           `json:"log_level"`
	LogFormat string           `json:"log_format"`
	Server    ServerConfig     `json:"server"`
	Database  DatabaseConfig   `json:"database"`
	Redis     RedisConfig      `json:"redis"`
	Auth      AuthConfig       `json:"auth"`
	OpenAI    OpenAIConfig     `json:"openai"`
	Runtime   RuntimeConfig    `json:"runtime"`
	Knowledge knowledge.Config `json:"knowledge"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// DatabaseConfig PostgreSQL 连接（可选：仅用于文档目录持久化）。
type DatabaseConfig struct {
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// RedisConfig Redis 连接（可选：仅用于入库单飞锁）。
type RedisConfig struct {
	URL string `json:"url"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer"`
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type RuntimeConfig struct {
	ShutdownTimeoutSeconds      int `json:"shutdown_timeout_seconds"`
	DBPingTimeoutSeconds        int `json:"db_ping_timeout_seconds"`
	RedisPingTimeoutSeconds     int `json:"redis_ping_timeout_seconds"`
	EmbeddingHTTPTimeoutSeconds int `json:"embedding_http_timeout_seconds"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
		},
		Database: DatabaseConfig{
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Runtime: RuntimeConfig{
			ShutdownTimeoutSeconds:      10,
			DBPingTimeoutSeconds:        5,
			RedisPingTimeoutSeconds:     5,
			EmbeddingHTTPTimeoutSeconds: 60,
		},
		Knowledge: *knowledge.DefaultConfig(),
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("JWT_SECRET", &c.Auth.JWTSecret)
	applyString("JWT_ISSUER", &c.Auth.JWTIssuer)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)

	applyInt("SHUTDOWN_TIMEOUT", &c.Runtime.ShutdownTimeoutSeconds)

	// 知识检索模块
	applyString("KB_DATA_DIR", &c.Knowledge.DataDir)
	applyString("KB_COLLECTION", &c.Knowledge.Collection)
	applyBool("KB_COMPRESS", &c.Knowledge.Compress)
	applyInt("KB_CHUNK_TARGET_SIZE", &c.Knowledge.ChunkTargetSize)
	applyInt("KB_CHUNK_OVERLAP", &c.Knowledge.ChunkOverlap)
	applyInt("KB_CHUNK_MIN_SIZE", &c.Knowledge.ChunkMinSize)
	applyInt("KB_DEFAULT_TOP_K", &c.Knowledge.DefaultTopK)
	applyString("KB_EMBEDDING_MODEL", &c.Knowledge.EmbeddingModel)
	applyInt("KB_EMBEDDING_DIMS", &c.Knowledge.EmbeddingDims)
	applyInt("KB_EMBEDDING_BATCH_SIZE", &c.Knowledge.EmbeddingBatchSize)
	applyInt("KB_INDEX_WORKERS", &c.Knowledge.IndexWorkers)
	applyInt("KB_MAX_FILE_SIZE", &c.Knowledge.MaxFileSize)
}

func (c *AppConfig) normalize() {
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.Knowledge.Collection == "" {
		c.Knowledge.Collection = "knowledge"
	}
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.Knowledge.DataDir) == "" {
		return fmt.Errorf("KB_DATA_DIR is required")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
