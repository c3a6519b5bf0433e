// Package config loads the application configuration: a YAML file for
// shape, environment variables for secrets. A missing file yields the
// defaults; secrets never live in the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_secs"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// EmbedderConfig selects the embedding provider: "hash" needs no network,
// "remote" calls an OpenAI-compatible endpoint.
type EmbedderConfig struct {
	Type      string `yaml:"type"`
	Dimension int    `yaml:"dimension"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type ChunkerConfig struct {
	TargetSize int `yaml:"target_size"`
	Overlap    int `yaml:"overlap"`
}

type IndexConfig struct {
	Path string `yaml:"path"`
}

type GraniteConfig struct {
	BaseURL   string `yaml:"base_url"`
	ModelID   string `yaml:"model_id"`
	ProjectID string `yaml:"project_id"`
	TokenURL  string `yaml:"token_url"`
	// APIKeyEnv names the environment variable holding the IAM api key.
	APIKeyEnv         string  `yaml:"api_key_env"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

func (g GraniteConfig) APIKey() string { return os.Getenv(g.APIKeyEnv) }

type TwilioConfig struct {
	AccountSIDEnv string `yaml:"account_sid_env"`
	AuthTokenEnv  string `yaml:"auth_token_env"`
	From          string `yaml:"from"`
	BaseURL       string `yaml:"base_url"`
}

func (t TwilioConfig) AccountSID() string { return os.Getenv(t.AccountSIDEnv) }
func (t TwilioConfig) AuthToken() string  { return os.Getenv(t.AuthTokenEnv) }

type StoreConfig struct {
	Path string `yaml:"path"`
}

type SchedulerConfig struct {
	PollIntervalSecs int      `yaml:"poll_interval_secs"`
	DigestSchedule   string   `yaml:"digest_schedule"`
	DigestOwners     []string `yaml:"digest_owners"`
}

type RetrievalConfig struct {
	MaxChunks    int     `yaml:"max_chunks"`
	MinScore     float64 `yaml:"min_score"`
	MaxPromptLen int     `yaml:"max_prompt_len"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Index     IndexConfig     `yaml:"index"`
	Granite   GraniteConfig   `yaml:"granite"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

func (c *AppConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// Load reads the YAML file at path, after loading a .env file when one is
// present in the working directory. A missing config file is not an error;
// the defaults stand in.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaults() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hash"
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Type == "remote" {
		if cfg.Embedder.BaseURL == "" {
			cfg.Embedder.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.APIKeyEnv == "" {
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.TimeoutSecs == 0 {
			cfg.Embedder.TimeoutSecs = 30
		}
	}
	if cfg.Chunker.TargetSize == 0 {
		cfg.Chunker.TargetSize = 800
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 120
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = "data/index.json"
	}
	if cfg.Granite.BaseURL == "" {
		cfg.Granite.BaseURL = "https://us-south.ml.cloud.ibm.com"
	}
	if cfg.Granite.ModelID == "" {
		cfg.Granite.ModelID = "ibm/granite-3-8b-instruct"
	}
	if cfg.Granite.TokenURL == "" {
		cfg.Granite.TokenURL = "https://iam.cloud.ibm.com/identity/token"
	}
	if cfg.Granite.APIKeyEnv == "" {
		cfg.Granite.APIKeyEnv = "WATSONX_API_KEY"
	}
	if cfg.Granite.TimeoutSecs == 0 {
		cfg.Granite.TimeoutSecs = 60
	}
	if cfg.Granite.RequestsPerSecond == 0 {
		cfg.Granite.RequestsPerSecond = 2
	}
	if cfg.Twilio.AccountSIDEnv == "" {
		cfg.Twilio.AccountSIDEnv = "TWILIO_ACCOUNT_SID"
	}
	if cfg.Twilio.AuthTokenEnv == "" {
		cfg.Twilio.AuthTokenEnv = "TWILIO_AUTH_TOKEN"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/assistant.db"
	}
	if cfg.Scheduler.PollIntervalSecs == 0 {
		cfg.Scheduler.PollIntervalSecs = 30
	}
	if cfg.Retrieval.MaxChunks == 0 {
		cfg.Retrieval.MaxChunks = 5
	}
	if cfg.Retrieval.MaxPromptLen == 0 {
		cfg.Retrieval.MaxPromptLen = 4000
	}
	if cfg.Retrieval.SystemPrompt == "" {
		cfg.Retrieval.SystemPrompt = "You are a personal assistant. Answer from the provided context when it is relevant and say when you are unsure."
	}
}
