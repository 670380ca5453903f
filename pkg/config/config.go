package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

var (
	// ErrMissingCredential is returned when no API key is configured for the selected provider.
	ErrMissingCredential = errors.New("missing API credential")
	// ErrUnknownProvider is returned for an LLM_PROVIDER other than openai or google.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

type Config struct {
	Provider       string  `yaml:"provider"`
	OpenAIApiKey   string  `yaml:"openai_api_key"`
	GoogleApiKey   string  `yaml:"google_api_key"`
	ChatModel      string  `yaml:"chat_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	CrawlRPS         float64 `yaml:"crawl_rps"`
	CrawlConcurrency int     `yaml:"crawl_concurrency"`
	MaxPages         int     `yaml:"max_pages"`

	TopK          int           `yaml:"top_k"`
	AnswerWorkers int           `yaml:"answer_workers"`
	CallTimeout   time.Duration `yaml:"call_timeout"`

	VectorBackend string `yaml:"vector_backend"`
	DatabaseURL   string `yaml:"database_url"`
	ChromaURL     string `yaml:"chroma_url"`

	Port string `yaml:"port"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Provider:         ProviderOpenAI,
		Temperature:      0.1,
		ChunkSize:        1000,
		ChunkOverlap:     200,
		CrawlRPS:         5,
		CrawlConcurrency: 4,
		TopK:             4,
		AnswerWorkers:    4,
		CallTimeout:      60 * time.Second,
		VectorBackend:    "memory",
		ChromaURL:        "http://localhost:8000",
		Port:             "8081",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// SITEGPT_CONFIG and finally the environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("SITEGPT_CONFIG"))
}

// LoadFrom is Load with an explicit YAML path. An empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyModelDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Provider = getEnv("LLM_PROVIDER", c.Provider)
	c.OpenAIApiKey = getEnv("OPENAI_API_KEY", c.OpenAIApiKey)
	c.GoogleApiKey = getEnv("GOOGLE_API_KEY", c.GoogleApiKey)
	c.ChatModel = getEnv("CHAT_MODEL", c.ChatModel)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.Temperature = getEnvAsFloat("TEMPERATURE", c.Temperature)
	c.ChunkSize = getEnvAsInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvAsInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.CrawlRPS = getEnvAsFloat("CRAWL_RPS", c.CrawlRPS)
	c.CrawlConcurrency = getEnvAsInt("CRAWL_CONCURRENCY", c.CrawlConcurrency)
	c.MaxPages = getEnvAsInt("MAX_PAGES", c.MaxPages)
	c.TopK = getEnvAsInt("TOP_K", c.TopK)
	c.AnswerWorkers = getEnvAsInt("ANSWER_WORKERS", c.AnswerWorkers)
	c.CallTimeout = getEnvAsDuration("CALL_TIMEOUT", c.CallTimeout)
	c.VectorBackend = getEnv("VECTOR_BACKEND", c.VectorBackend)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.ChromaURL = getEnv("CHROMA_URL", c.ChromaURL)
	c.Port = getEnv("PORT", c.Port)
}

func (c *Config) applyModelDefaults() {
	switch c.Provider {
	case ProviderGoogle:
		if c.ChatModel == "" {
			c.ChatModel = "gemini-3-flash-preview"
		}
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = "gemini-embedding-001"
		}
	default:
		if c.ChatModel == "" {
			c.ChatModel = "gpt-4.1-nano-2025-04-14"
		}
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = "text-embedding-3-small"
		}
	}
}

// APIKey returns the credential of the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderGoogle {
		return c.GoogleApiKey
	}
	return c.OpenAIApiKey
}

// SetAPIKey stores key as the credential of the selected provider.
func (c *Config) SetAPIKey(key string) {
	if c.Provider == ProviderGoogle {
		c.GoogleApiKey = key
		return
	}
	c.OpenAIApiKey = key
}

// Validate checks the settings that must hold before any indexing or query work.
func (c *Config) Validate() error {
	if c.Provider != ProviderOpenAI && c.Provider != ProviderGoogle {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("%w for provider %s", ErrMissingCredential, c.Provider)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	if c.CrawlRPS <= 0 {
		return fmt.Errorf("crawl rate must be positive, got %v", c.CrawlRPS)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %v", c.Temperature)
	}
	switch c.VectorBackend {
	case "memory", "chroma":
	case "pgvector":
		if c.DatabaseURL == "" {
			return fmt.Errorf("vector backend pgvector requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown vector backend %q", c.VectorBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
