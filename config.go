package shopbot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Desarso/shopbot/stores"
	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	// HTTP listen address, e.g. ":8000"
	Address string `env:"ADDRESS" envDefault:":8000"`

	LLMProvider     string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"OPENAI_BASE_URL"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	VisionMaxTokens int    `env:"VISION_MAX_TOKENS" envDefault:"300"`

	CatalogBaseURL  string        `env:"CATALOG_BASE_URL" envDefault:"http://10.10.7.77:3000"`
	CatalogPageSize int           `env:"CATALOG_PAGE_SIZE" envDefault:"100"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	VisionTimeout   time.Duration `env:"VISION_TIMEOUT" envDefault:"60s"`

	StoreType       string `env:"STORE_TYPE" envDefault:"sqlite"`
	StoreDSN        string `env:"STORE_DSN" envDefault:"checkpoints.sqlite"`
	MongoDatabase   string `env:"MONGODB_DATABASE" envDefault:"langgraph"`
	MongoCollection string `env:"MONGODB_COLLECTION" envDefault:"checkpoints"`

	MaxRounds       int           `env:"MAX_ROUNDS" envDefault:"5"`
	UploadDir       string        `env:"UPLOAD_DIR" envDefault:"uploads"`
	UploadTTL       time.Duration `env:"UPLOAD_TTL" envDefault:"24h"`
	UploadSweepCron string        `env:"UPLOAD_SWEEP_CRON" envDefault:"@every 1h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// LoadConfig loads .env (if present) and parses environment variables into Config.
func LoadConfig() (*Config, error) {
	// Load .env if available; ignore error if file does not exist
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate reports configuration that would keep the service from answering
// chat turns.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.LLMProvider) {
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai"))
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider))
	}

	switch c.StoreType {
	case "memory":
	case "sqlite", "postgres", "bolt", "mongo":
		if c.StoreDSN == "" {
			errs = append(errs, fmt.Errorf("STORE_DSN is required for STORE_TYPE=%s", c.StoreType))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORE_TYPE %q", c.StoreType))
	}

	if c.CatalogBaseURL == "" {
		errs = append(errs, errors.New("CATALOG_BASE_URL is required"))
	}
	if c.MaxRounds < 1 {
		errs = append(errs, errors.New("MAX_ROUNDS must be at least 1"))
	}
	return errors.Join(errs...)
}

// StoreConfig translates the store settings for stores.NewStore.
func (c *Config) StoreConfig() *stores.StoreConfig {
	sc := stores.NewStoreConfig(c.StoreType, c.StoreDSN)
	if c.StoreType == "mongo" {
		sc.WithOption(stores.OptionMongoDatabase, c.MongoDatabase).
			WithOption(stores.OptionMongoCollection, c.MongoCollection)
	}
	return sc
}

// WithStore selects a checkpoint backend
func (c *Config) WithStore(storeType, dsn string) *Config {
	c.StoreType = storeType
	c.StoreDSN = dsn
	return c
}

// WithMemoryStore keeps checkpoints in process memory
func (c *Config) WithMemoryStore() *Config {
	return c.WithStore("memory", "")
}

// WithProvider selects the chat model provider and its key
func (c *Config) WithProvider(provider, apiKey string) *Config {
	c.LLMProvider = provider
	switch provider {
	case "gemini":
		c.GeminiAPIKey = apiKey
	default:
		c.OpenAIAPIKey = apiKey
	}
	return c
}

// WithCatalog points the catalog and vocabulary clients at baseURL
func (c *Config) WithCatalog(baseURL string) *Config {
	c.CatalogBaseURL = baseURL
	return c
}

// WithMaxRounds sets the tool round ceiling per turn
func (c *Config) WithMaxRounds(n int) *Config {
	c.MaxRounds = n
	return c
}
