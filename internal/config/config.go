// Package config loads healthqa configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// file, and HEALTHQA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Generation    GenerationConfig    `koanf:"generation"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Grading       GradingConfig       `koanf:"grading"`
	Clarify       ClarifyConfig       `koanf:"clarify"`
	Session       SessionConfig       `koanf:"session"`
	Events        EventsConfig        `koanf:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string `koanf:"cors_origins"`
}

// ObservabilityConfig holds logging and OpenTelemetry settings.
type ObservabilityConfig struct {
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// VectorStoreConfig selects and configures the knowledge-base index.
type VectorStoreConfig struct {
	Provider   string        `koanf:"provider"`
	Collection string        `koanf:"collection"`
	Chromem    ChromemConfig `koanf:"chromem"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go index.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC index.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// EmbeddingsConfig selects the embedding provider used for KB search.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	Dimension int    `koanf:"dimension"`
}

// GenerationConfig configures the OpenAI-compatible completion service.
type GenerationConfig struct {
	BaseURL               string   `koanf:"base_url"`
	Model                 string   `koanf:"model"`
	APIKey                Secret   `koanf:"api_key"`
	Temperature           float64  `koanf:"temperature"`
	MaxTokens             int      `koanf:"max_tokens"`
	Timeout               Duration `koanf:"timeout"`
	RateLimit             float64  `koanf:"rate_limit"`
	Burst                 int      `koanf:"burst"`
	MaxRetries            int      `koanf:"max_retries"`
	HistoryTurns          int      `koanf:"history_turns"`
	AnswerWithoutEvidence bool     `koanf:"answer_without_evidence"`
}

// RetrievalConfig bounds knowledge-base lookups.
type RetrievalConfig struct {
	TopK     int      `koanf:"top_k"`
	Timeout  Duration `koanf:"timeout"`
	MinScore float64  `koanf:"min_score"`
}

// GradingConfig points at an optional evidence rules file.
type GradingConfig struct {
	RulesFile string `koanf:"rules_file"`
	Watch     bool   `koanf:"watch"`
}

// ClarifyConfig tunes the clarification policy.
type ClarifyConfig struct {
	HistoryWindow     int      `koanf:"history_window"`
	ShortMessageRunes int      `koanf:"short_message_runes"`
	Classifier        bool     `koanf:"classifier"`
	ClassifierTimeout Duration `koanf:"classifier_timeout"`
}

// SessionConfig selects the session backend.
type SessionConfig struct {
	Backend         string      `koanf:"backend"`
	TTL             Duration    `koanf:"ttl"`
	MaxSessions     int         `koanf:"max_sessions"`
	MaxHistoryTurns int         `koanf:"max_history_turns"`
	// LockTTL bounds a redis session lock held by a crashed replica.
	LockTTL Duration    `koanf:"lock_ttl"`
	Redis   RedisConfig `koanf:"redis"`
}

// RedisConfig configures the redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password Secret `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// EventsConfig configures turn event publishing over NATS.
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be fastembed, tei or openai, got %q", c.Embeddings.Provider))
	}

	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.Redis.Addr == "" {
			errs = append(errs, errors.New("session.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend must be memory or redis, got %q", c.Session.Backend))
	}

	// One turn is a user/assistant pair; less would drop a pending clarification.
	if c.Session.MaxHistoryTurns < 2 {
		errs = append(errs, fmt.Errorf("session.max_history_turns must be at least 2, got %d", c.Session.MaxHistoryTurns))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("retrieval.timeout must be positive"))
	}
	if c.Generation.Timeout.Duration() <= 0 {
		errs = append(errs, errors.New("generation.timeout must be positive"))
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature must be within [0, 2], got %v", c.Generation.Temperature))
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.sample_rate must be within [0, 1], got %v", c.Observability.SampleRate))
	}
	if c.Events.Enabled && c.Events.URL == "" {
		errs = append(errs, errors.New("events.url is required when events are enabled"))
	}

	return errors.Join(errs...)
}

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "healthqa"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "health_knowledge"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/healthqa/kb"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-zh-v1.5"
	}
	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://api.deepseek.com/v1"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "deepseek-chat"
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.3
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 2000
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}
	if cfg.Generation.RateLimit == 0 {
		cfg.Generation.RateLimit = 5
	}
	if cfg.Generation.Burst == 0 {
		cfg.Generation.Burst = 5
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 2
	}
	if cfg.Generation.HistoryTurns == 0 {
		cfg.Generation.HistoryTurns = 6
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = Duration(10 * time.Second)
	}

	if cfg.Clarify.HistoryWindow == 0 {
		cfg.Clarify.HistoryWindow = 4
	}
	if cfg.Clarify.ShortMessageRunes == 0 {
		cfg.Clarify.ShortMessageRunes = 5
	}
	if cfg.Clarify.ClassifierTimeout == 0 {
		cfg.Clarify.ClassifierTimeout = Duration(3 * time.Second)
	}

	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = Duration(2 * time.Hour)
	}
	if cfg.Session.LockTTL == 0 {
		cfg.Session.LockTTL = Duration(2 * time.Minute)
	}
	if cfg.Session.MaxSessions == 0 {
		cfg.Session.MaxSessions = 10000
	}
	if cfg.Session.MaxHistoryTurns == 0 {
		cfg.Session.MaxHistoryTurns = 40
	}
	if cfg.Session.Redis.Prefix == "" {
		cfg.Session.Redis.Prefix = "healthqa:session:"
	}

	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "healthqa.turns"
	}
}
