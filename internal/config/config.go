// Package config loads waqfqa configuration from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/waqfqa/internal/errs"
)

// Config holds the complete waqfqa configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	OpenAI    OpenAIConfig    `koanf:"openai"`
	Corpus    CorpusConfig    `koanf:"corpus"`
	Splitter  SplitterConfig  `koanf:"splitter"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Upload    UploadConfig    `koanf:"upload"`
	Chat      ChatConfig      `koanf:"chat"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// OpenAIConfig holds provider credentials, models and client-side pacing.
type OpenAIConfig struct {
	APIKey            Secret  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url"`
	ChatModel         string  `koanf:"chat_model"`
	RAGModel          string  `koanf:"rag_model"`
	EmbeddingModel    string  `koanf:"embedding_model"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// CorpusConfig points at the bundled reference documents.
type CorpusConfig struct {
	EnglishPath string `koanf:"english_path"`
	UrduPath    string `koanf:"urdu_path"`
	// Eager builds both corpora at startup instead of on first question.
	Eager bool `koanf:"eager"`
}

// SplitterConfig holds chunking parameters in code points.
type SplitterConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// RetrievalConfig holds retrieval parameters.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	MaxBytes        int64 `koanf:"max_bytes"`
	MaxContextChars int   `koanf:"max_context_chars"`
}

// ChatConfig holds free-chat parameters.
type ChatConfig struct {
	HistoryWindow int     `koanf:"history_window"`
	Temperature   float64 `koanf:"temperature"`
	MaxTokens     int     `koanf:"max_tokens"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	SamplingRate   float64 `koanf:"sampling_rate"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		OpenAI: OpenAIConfig{
			ChatModel:         "gpt-4-turbo-preview",
			RAGModel:          "gpt-4-1106-preview",
			EmbeddingModel:    "text-embedding-ada-002",
			RequestsPerSecond: 3,
			Burst:             3,
		},
		Corpus: CorpusConfig{
			EnglishPath: "data/english_document.pdf",
			UrduPath:    "data/urdu_document.pdf",
		},
		Splitter: SplitterConfig{
			ChunkSize:    800,
			ChunkOverlap: 150,
		},
		Retrieval: RetrievalConfig{TopK: 4},
		Upload: UploadConfig{
			MaxBytes: 10 * 1024 * 1024,
		},
		Chat: ChatConfig{
			HistoryWindow: 20,
			Temperature:   0.3,
			MaxTokens:     1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "waqfqa",
			ServiceVersion: "0.1.0",
			SamplingRate:   1.0,
		},
	}
}

// Validate validates the configuration. Every failure matches errs.ErrConfig.
// Corpus paths are not checked here: a missing corpus disables only its
// language.
func (c *Config) Validate() error {
	var problems []error

	if !c.OpenAI.APIKey.IsSet() {
		problems = append(problems, errors.New("openai.api_key is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		problems = append(problems, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Splitter.ChunkSize <= 0 {
		problems = append(problems, fmt.Errorf("splitter.chunk_size must be positive, got %d", c.Splitter.ChunkSize))
	}
	if c.Splitter.ChunkOverlap < 0 || c.Splitter.ChunkOverlap >= c.Splitter.ChunkSize {
		problems = append(problems, fmt.Errorf("splitter.chunk_overlap %d must be in [0, chunk_size %d)",
			c.Splitter.ChunkOverlap, c.Splitter.ChunkSize))
	}
	if c.Upload.MaxBytes <= 0 {
		problems = append(problems, errors.New("upload.max_bytes must be positive"))
	}
	if c.Upload.MaxContextChars < 0 {
		problems = append(problems, errors.New("upload.max_context_chars must not be negative"))
	}
	if c.Chat.HistoryWindow <= 0 {
		problems = append(problems, errors.New("chat.history_window must be positive"))
	}
	if c.OpenAI.RequestsPerSecond < 0 {
		problems = append(problems, errors.New("openai.requests_per_second must not be negative"))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		problems = append(problems, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			problems = append(problems, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol))
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			problems = append(problems, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate))
		}
	}

	if len(problems) > 0 {
		return errs.New(errs.ErrConfig, "config.Validate", errors.Join(problems...))
	}
	return nil
}
