package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string
	Environment     string
	DatabaseURL     string
	TablePrefix     string
	Storage         string // "postgres" or "memory"
	SupabaseURL     string
	SupabaseJWKSURL string // Constructed from SupabaseURL + /auth/v1/.well-known/jwks.json
	JWTSecret       string // Legacy HS256 secret; used instead of JWKS when set
	DevUserID       string
	CORSOrigins     string
	// Logging
	LogDir      string
	LogMaxFiles int
	// Fan-out relay and change feed
	RedisURL     string
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string
	// Attachment blobs
	BlobBucket string
	BlobRegion string
	// Revision provider
	AnthropicAPIKey  string
	RevisionProvider string
	RevisionModel    string
	// Debug flags
	Debug bool // Enables DEBUG features like SSE event IDs

	Engine EngineConfig
}

// EngineConfig holds tuning knobs read from the optional ENGINE_CONFIG yaml file
type EngineConfig struct {
	Hub      HubConfig      `yaml:"hub"`
	Revision RevisionConfig `yaml:"revision"`
	Timeline TimelineConfig `yaml:"timeline"`
}

type HubConfig struct {
	Shards     int           `yaml:"shards"`
	BufferSize int           `yaml:"buffer_size"`
	KeepAlive  time.Duration `yaml:"keepalive"`
}

type RevisionConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxPayloadBytes int           `yaml:"max_payload_bytes"`
}

type TimelineConfig struct {
	MaxSummaryLength int `yaml:"max_summary_length"`
}

// DefaultEngineConfig returns the tuning used when no yaml file is given
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Hub: HubConfig{
			Shards:     16,
			BufferSize: 256,
			KeepAlive:  15 * time.Second,
		},
		Revision: RevisionConfig{
			Timeout:         2 * time.Minute,
			MaxPayloadBytes: MaxPayloadBytes,
		},
		Timeline: TimelineConfig{
			MaxSummaryLength: MaxSummaryLength,
		},
	}
}

func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)
	supabaseURL := getEnv("SUPABASE_URL", "")

	// Construct JWKS URL from Supabase URL
	var jwksURL string
	if supabaseURL != "" {
		jwksURL = supabaseURL + "/auth/v1/.well-known/jwks.json"
	}

	logMaxFiles, err := strconv.Atoi(getEnv("LOG_MAX_FILES", "10"))
	if err != nil {
		return nil, fmt.Errorf("LOG_MAX_FILES: %w", err)
	}

	engine, err := LoadEngineConfig(getEnv("ENGINE_CONFIG", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		Environment:     env,
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		TablePrefix:     tablePrefix,
		Storage:         getEnv("STORAGE", getDefaultStorage(env)),
		SupabaseURL:     supabaseURL,
		SupabaseJWKSURL: jwksURL,
		JWTSecret:       getEnv("SUPABASE_JWT_SECRET", ""),
		DevUserID:       getEnv("DEV_USER_ID", "00000000-0000-0000-0000-000000000001"),
		CORSOrigins:     getEnv("CORS_ORIGINS", "http://localhost:3000"),
		LogDir:          getEnv("LOG_DIR", ""),
		LogMaxFiles:     logMaxFiles,
		RedisURL:        getEnv("REDIS_URL", ""),
		RedisChannel:    getEnv("REDIS_CHANNEL", "folio:events"),
		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "folio.changes"),
		BlobBucket:      getEnv("BLOB_BUCKET", ""),
		BlobRegion:      getEnv("BLOB_REGION", "us-east-1"),
		// Revision provider
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		RevisionProvider: getEnv("REVISION_PROVIDER", "lorem"),
		RevisionModel:    getEnv("REVISION_MODEL", "claude-haiku-4-5-20251001"),
		// Debug flags - default to true in dev/test, false in production
		Debug:  getEnv("DEBUG", getDefaultDebug(env)) == "true",
		Engine: engine,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the assembled configuration
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.By(isNumeric)),
		validation.Field(&c.Environment, validation.Required, validation.In("dev", "test", "prod")),
		validation.Field(&c.Storage, validation.Required, validation.In("postgres", "memory")),
		validation.Field(&c.DatabaseURL, validation.When(c.Storage == "postgres", validation.Required)),
		validation.Field(&c.RevisionProvider, validation.In("lorem", "anthropic")),
		validation.Field(&c.AnthropicAPIKey, validation.When(c.RevisionProvider == "anthropic", validation.Required)),
		validation.Field(&c.LogMaxFiles, validation.Min(1)),
	)
	if err != nil {
		return err
	}
	if c.Environment == "prod" && c.SupabaseURL == "" && c.JWTSecret == "" {
		return errors.New("SUPABASE_URL or SUPABASE_JWT_SECRET is required in prod")
	}
	return c.Engine.Validate()
}

// Validate checks the engine tuning values
func (e *EngineConfig) Validate() error {
	return validation.Errors{
		"hub.shards":                  validation.Validate(e.Hub.Shards, validation.Min(1)),
		"hub.buffer_size":             validation.Validate(e.Hub.BufferSize, validation.Min(1)),
		"hub.keepalive":               validation.Validate(e.Hub.KeepAlive, validation.Min(time.Second)),
		"revision.timeout":            validation.Validate(e.Revision.Timeout, validation.Min(time.Second)),
		"revision.max_payload_bytes":  validation.Validate(e.Revision.MaxPayloadBytes, validation.Min(1)),
		"timeline.max_summary_length": validation.Validate(e.Timeline.MaxSummaryLength, validation.Min(1)),
	}.Filter()
}

// LoadEngineConfig overlays the yaml file at path onto the defaults.
// An empty path or a missing file yields the defaults.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read engine config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse engine config %s: %w", path, err)
	}
	return cfg, nil
}

func isNumeric(value interface{}) error {
	s, _ := value.(string)
	if _, err := strconv.Atoi(s); err != nil {
		return errors.New("must be numeric")
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

// getDefaultStorage uses the in-memory store for tests
func getDefaultStorage(env string) string {
	if env == "test" {
		return "memory"
	}
	return "postgres"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
