package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Store  StoreConfig
	Engine EngineConfig
	AI     AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Log:    LogConfig{Level: getEnvOrDefault("LOG_LEVEL", "info"), Format: getEnvOrDefault("LOG_FORMAT", "text")},
		Store:  store,
		Engine: engine,
		AI:     ai,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// RateLimitRPS 为 0 时不限流。
	RateLimitRPS   float64
	RateLimitBurst int
}

// loadServerConfig 解析服务器监听地址与限流参数。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{RateLimitBurst: 20}
	switch {
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
	default:
		cfg.Addr = ":" + port
	}

	rps, err := parseOptionalFloatEnv("RATE_LIMIT_RPS")
	if err != nil {
		return ServerConfig{}, err
	}
	if rps != nil {
		if *rps < 0 {
			return ServerConfig{}, fmt.Errorf("invalid RATE_LIMIT_RPS value %v: must not be negative", *rps)
		}
		cfg.RateLimitRPS = *rps
	}

	burst, err := parseOptionalIntEnv("RATE_LIMIT_BURST")
	if err != nil {
		return ServerConfig{}, err
	}
	if burst != nil {
		if *burst < 1 {
			return ServerConfig{}, fmt.Errorf("invalid RATE_LIMIT_BURST value %d: must be positive", *burst)
		}
		cfg.RateLimitBurst = *burst
	}
	return cfg, nil
}

// LogConfig 描述日志级别与格式。
type LogConfig struct {
	Level  string
	Format string
}

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// StoreConfig 描述画像持久化后端。
type StoreConfig struct {
	Backend     string
	RedisURL    string
	RedisPrefix string
	RedisTTL    time.Duration
	SQLitePath  string
	Timeout     time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	timeout, err := parseDurationEnv("STORE_TIMEOUT", 2*time.Second)
	if err != nil {
		return StoreConfig{}, err
	}
	// 未设置时 Redis 记录永不过期。
	ttl, err := parseDurationEnv("REDIS_TTL", 0)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Backend:     strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendMemory)),
		RedisURL:    getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix: getEnvOrDefault("REDIS_KEY_PREFIX", "rapport"),
		RedisTTL:    ttl,
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "rapport.db"),
		Timeout:     timeout,
	}
	switch cfg.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value %q: want memory, redis or sqlite", cfg.Backend)
	}
	return cfg, nil
}

// EngineConfig 描述对话引擎的容量与可选覆盖项。
type EngineConfig struct {
	MaxUsers     int
	RetainUsers  int
	HistoryLimit int
	// Seed 非空时模板选择可复现。
	Seed        *uint64
	LexiconPath string
	PersonaID   string
}

func loadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		MaxUsers:     1000,
		RetainUsers:  800,
		HistoryLimit: 100,
		LexiconPath:  strings.TrimSpace(os.Getenv("ENGINE_LEXICON_PATH")),
		PersonaID:    getEnvOrDefault("PERSONA_ID", "aria"),
	}

	for key, dst := range map[string]*int{
		"ENGINE_MAX_USERS":     &cfg.MaxUsers,
		"ENGINE_RETAIN_USERS":  &cfg.RetainUsers,
		"ENGINE_HISTORY_LIMIT": &cfg.HistoryLimit,
	} {
		val, err := parseOptionalIntEnv(key)
		if err != nil {
			return EngineConfig{}, err
		}
		if val == nil {
			continue
		}
		if *val < 1 {
			return EngineConfig{}, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
		}
		*dst = *val
	}
	if cfg.RetainUsers >= cfg.MaxUsers {
		return EngineConfig{}, fmt.Errorf("ENGINE_RETAIN_USERS (%d) must be below ENGINE_MAX_USERS (%d)", cfg.RetainUsers, cfg.MaxUsers)
	}

	if raw := strings.TrimSpace(os.Getenv("ENGINE_RANDOM_SEED")); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("invalid ENGINE_RANDOM_SEED value %q: %w", raw, err)
		}
		cfg.Seed = &seed
	}
	return cfg, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	// ResponsesEnabled 让大模型代替模板生成回复。
	ResponsesEnabled bool
	// SentimentLLMEnabled 让大模型参与情感极性判断。
	SentimentLLMEnabled bool
	Timeout             time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	responses, err := parseBoolEnv("AI_RESPONSES_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	sentiment, err := parseBoolEnv("AI_SENTIMENT_LLM_ENABLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 8*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:              strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:           strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:           strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:               strings.TrimSpace(os.Getenv("Model")),
		BaseURL:             getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:              getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:         temperature,
		TopP:                topP,
		MaxTokens:           maxTokens,
		ResponsesEnabled:    responses,
		SentimentLLMEnabled: sentiment,
		Timeout:             timeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 接受 Go 时长写法（如 "2s"）或纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		raw = strconv.Itoa(secs) + "s"
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
