// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides redis connection settings shared by the queue,
// the dedup store, and the thread lease.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// QueueConfig provides settings for the asynq worker and client.
type QueueConfig interface {
	RedisConfig
	GetQueueConcurrency() int
	GetQueueMaxRetry() int
}

// LanguageConfig provides settings for the language service client.
type LanguageConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetLanguageCallTimeout() time.Duration
}

// QdrantConfig provides settings for the Qdrant knowledge index.
type QdrantConfig interface {
	GetQdrantURL() string
	GetQdrantAPIKey() string
	GetQdrantCollection() string
	IsQdrantEnabled() bool
}

// EmbeddingConfig provides settings for the embedding API service.
type EmbeddingConfig interface {
	GetEmbeddingAPIURL() string
	GetEmbeddingAPIKey() string
	GetEmbeddingModel() string
	GetEmbeddingDimensions() int
	IsEmbeddingEnabled() bool
}

// WhatsAppConfig provides settings for the outbound WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// EngineConfig provides the decision engine tunables. The engine receives
// these as an explicit struct at construction, never from ambient state.
type EngineConfig interface {
	GetContextWindow() int
	GetPipelineTimeout() time.Duration
	GetCallTimeout() time.Duration
	GetUrgentKeywords() []string
	GetFallbackReply() string
	GetHandoffReply() string
	GetOperatorIDs() []string
}

// GatewayConfig provides settings for the webhook gateway.
type GatewayConfig interface {
	GetHTTPAddr() string
	GetWebhookAPIKey() string
	GetRateLimitRPS() float64
	GetRateLimitBurst() int
}

// =============================================================================
// Config
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	HTTPAddr       string
	WebhookAPIKey  string
	RateLimitRPS   float64
	RateLimitBurst int

	DatabaseURL string

	RedisURL         string
	RedisTLSInsecure bool
	QueueConcurrency int
	QueueMaxRetry    int

	GeminiAPIKey        string
	GeminiModel         string
	LanguageCallTimeout time.Duration

	QdrantURL           string
	QdrantAPIKey        string
	QdrantCollection    string
	EmbeddingAPIURL     string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int

	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string

	ContextWindow   int
	PipelineTimeout time.Duration
	CallTimeout     time.Duration
	UrgentKeywords  []string
	FallbackReply   string
	HandoffReply    string
	OperatorIDs     []string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// QueueConfig implementation
func (c *Config) GetQueueConcurrency() int { return c.QueueConcurrency }
func (c *Config) GetQueueMaxRetry() int    { return c.QueueMaxRetry }

// LanguageConfig implementation
func (c *Config) GetGeminiAPIKey() string               { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string                { return c.GeminiModel }
func (c *Config) GetLanguageCallTimeout() time.Duration { return c.LanguageCallTimeout }

// QdrantConfig implementation
func (c *Config) GetQdrantURL() string        { return c.QdrantURL }
func (c *Config) GetQdrantAPIKey() string     { return c.QdrantAPIKey }
func (c *Config) GetQdrantCollection() string { return c.QdrantCollection }
func (c *Config) IsQdrantEnabled() bool {
	return c.QdrantURL != "" && c.QdrantCollection != ""
}

// EmbeddingConfig implementation
func (c *Config) GetEmbeddingAPIURL() string  { return c.EmbeddingAPIURL }
func (c *Config) GetEmbeddingAPIKey() string  { return c.EmbeddingAPIKey }
func (c *Config) GetEmbeddingModel() string   { return c.EmbeddingModel }
func (c *Config) GetEmbeddingDimensions() int { return c.EmbeddingDimensions }
func (c *Config) IsEmbeddingEnabled() bool    { return c.EmbeddingAPIURL != "" }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// EngineConfig implementation
func (c *Config) GetContextWindow() int             { return c.ContextWindow }
func (c *Config) GetPipelineTimeout() time.Duration { return c.PipelineTimeout }
func (c *Config) GetCallTimeout() time.Duration     { return c.CallTimeout }
func (c *Config) GetUrgentKeywords() []string       { return c.UrgentKeywords }
func (c *Config) GetFallbackReply() string          { return c.FallbackReply }
func (c *Config) GetHandoffReply() string           { return c.HandoffReply }
func (c *Config) GetOperatorIDs() []string          { return c.OperatorIDs }

// GatewayConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetWebhookAPIKey() string { return c.WebhookAPIKey }
func (c *Config) GetRateLimitRPS() float64 { return c.RateLimitRPS }
func (c *Config) GetRateLimitBurst() int   { return c.RateLimitBurst }

// defaultUrgentKeywords is the pt-BR urgent phrase list used when
// URGENT_KEYWORDS is not configured. Matching is diacritic-insensitive.
const defaultUrgentKeywords = "sangrando,sangramento,emergência,urgente,urgência,dor insuportável,dor muito forte,desmaiou,desmaiei,não consigo respirar,falta de ar,inchaço no rosto,febre alta"

const defaultFallbackReply = "Desculpe, estamos com uma instabilidade no momento. Já recebemos sua mensagem e em instantes retornaremos."

const defaultHandoffReply = "Entendi! Vou te transferir para um de nossos atendentes, que já vai continuar o seu atendimento por aqui."

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080"),
		WebhookAPIKey:       getEnv("WEBHOOK_API_KEY", ""),
		RateLimitRPS:        mustFloat(getEnv("RATE_LIMIT_RPS", "20")),
		RateLimitBurst:      mustInt(getEnv("RATE_LIMIT_BURST", "40")),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		QueueConcurrency:    mustInt(getEnv("QUEUE_CONCURRENCY", "10")),
		QueueMaxRetry:       mustInt(getEnv("QUEUE_MAX_RETRY", "3")),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		LanguageCallTimeout: mustDuration(getEnv("LANGUAGE_CALL_TIMEOUT", "10s")),
		QdrantURL:           getEnv("QDRANT_URL", ""),
		QdrantAPIKey:        getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:    getEnv("QDRANT_COLLECTION", "playbooks"),
		EmbeddingAPIURL:     getEnv("EMBEDDING_API_URL", ""),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "bge-m3"),
		EmbeddingDimensions: mustInt(getEnv("EMBEDDING_DIMENSIONS", "1024")),
		WhatsAppURL:         getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:         getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:    getEnv("WHATSAPP_DEVICE_ID", ""),
		ContextWindow:       mustInt(getEnv("ENGINE_CONTEXT_WINDOW", "5")),
		PipelineTimeout:     mustDuration(getEnv("ENGINE_PIPELINE_TIMEOUT", "30s")),
		CallTimeout:         mustDuration(getEnv("ENGINE_CALL_TIMEOUT", "10s")),
		UrgentKeywords:      splitCSV(getEnv("URGENT_KEYWORDS", defaultUrgentKeywords)),
		FallbackReply:       getEnv("ENGINE_FALLBACK_REPLY", defaultFallbackReply),
		HandoffReply:        getEnv("ENGINE_HANDOFF_REPLY", defaultHandoffReply),
		OperatorIDs:         splitCSV(getEnv("ESCALATION_OPERATOR_IDS", "")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.QueueMaxRetry < 0 {
		return nil, fmt.Errorf("QUEUE_MAX_RETRY cannot be negative")
	}
	if cfg.ContextWindow < 1 {
		cfg.ContextWindow = 5
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
