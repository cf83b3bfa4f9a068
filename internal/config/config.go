// Package config turns viper state into typed application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/llm"
)

// Output layout defaults.
const (
	DefaultOutputDir = "processed"
	DatabaseFile     = "manifest.db"
	ArtifactSubdir   = "ecg"
)

// Config is the resolved application configuration.
type Config struct {
	RawRoot      string
	OutputDir    string
	DatabasePath string
	MetricsFile  string
	LLM          llm.Config
	Workers      int
}

// apiKeyEnv lists the provider-specific variables consulted when llm.api_key is unset.
var apiKeyEnv = map[string][]string{
	llm.ProviderOpenAI: {"GROQ_API_KEY", "OPENAI_API_KEY"},
	llm.ProviderGroq:   {"GROQ_API_KEY", "OPENAI_API_KEY"},
	llm.ProviderGemini: {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("llm.provider", llm.ProviderGroq)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.rate_limit", 30)
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom resolves configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		RawRoot:      ExpandPath(v.GetString("raw.root")),
		OutputDir:    ExpandPath(v.GetString("output.dir")),
		DatabasePath: ExpandPath(v.GetString("database.path")),
		MetricsFile:  ExpandPath(v.GetString("metrics.file")),
		Workers:      v.GetInt("ingest.workers"),
		LLM: llm.Config{
			Provider:   strings.ToLower(v.GetString("llm.provider")),
			Model:      v.GetString("llm.model"),
			BaseURL:    v.GetString("llm.base_url"),
			APIKey:     v.GetString("llm.api_key"),
			Timeout:    v.GetDuration("llm.timeout"),
			RetryDelay: v.GetDuration("llm.retry_delay"),
			MaxRetries: v.GetInt("llm.max_retries"),
			RateLimit:  v.GetInt("llm.rate_limit"),
		},
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.OutputDir, DatabaseFile)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = lookupAPIKey(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that viper cannot enforce.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: ingest.workers must be at least 1, got %d", common.ErrInvalidConfig, c.Workers)
	}
	if _, ok := apiKeyEnv[c.LLM.Provider]; !ok {
		return fmt.Errorf("%w: unknown llm.provider %q", common.ErrInvalidConfig, c.LLM.Provider)
	}
	if c.LLM.Timeout < 0 || c.LLM.RetryDelay < 0 {
		return fmt.Errorf("%w: llm durations cannot be negative", common.ErrInvalidConfig)
	}
	if c.LLM.MaxRetries < 0 || c.LLM.RateLimit < 0 {
		return fmt.Errorf("%w: llm.max_retries and llm.rate_limit cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

// RequireRawRoot reports a missing raw.root, which only ingestion needs.
func (c *Config) RequireRawRoot() error {
	if c.RawRoot == "" {
		return fmt.Errorf("%w: raw.root (set --raw-root or TRIFETCH_RAW_ROOT)", common.ErrMissingConfig)
	}
	return nil
}

// ArtifactDir is where canonical waveform artifacts are written.
func (c *Config) ArtifactDir() string {
	return filepath.Join(c.OutputDir, ArtifactSubdir)
}

func lookupAPIKey(provider string) string {
	for _, name := range apiKeyEnv[provider] {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// ExpandPath expands a leading ~ and $VAR references.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~" || strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return os.ExpandEnv(path)
}
