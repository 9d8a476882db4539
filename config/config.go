package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	HTTP string `yaml:"http,omitempty"` // TCP address (default: ":8080")
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path           string `yaml:"path,omitempty"`            // SQLite database file (default: "recall.db")
	MigrationsPath string `yaml:"migrations_path,omitempty"` // Directory with migration files (default: "./migrations")
}

// OllamaConfig represents configuration for the Ollama backend.
type OllamaConfig struct {
	Host       string `yaml:"host,omitempty"`        // Ollama host (default: environment or http://localhost:11434)
	ChatModel  string `yaml:"chat_model,omitempty"`  // Chat completion model
	EmbedModel string `yaml:"embed_model,omitempty"` // Embedding model
}

// OpenAIConfig represents configuration for an OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey     string `yaml:"api_key,omitempty"`     // API key (overridable via RECALL_OPENAI_API_KEY)
	BaseURL    string `yaml:"base_url,omitempty"`    // Custom base URL (default: official API)
	ChatModel  string `yaml:"chat_model,omitempty"`  // Chat completion model
	EmbedModel string `yaml:"embed_model,omitempty"` // Embedding model
}

// MemoryConfig holds the memory pipeline knobs. All four are required by the
// pipeline; Defaults supplies working values for local development.
type MemoryConfig struct {
	ShortTermWindow        int `yaml:"short_term_window,omitempty"`         // Recent turns included verbatim in the prompt
	SummarizeEveryUserMsgs int `yaml:"summarize_every_user_msgs,omitempty"` // Session summarization cadence (user messages)
	EpisodeExtractionLimit int `yaml:"episode_extraction_limit,omitempty"`  // Max facts extracted per utterance
	EpisodeRetrievalK      int `yaml:"episode_retrieval_k,omitempty"`       // Top-k episodic facts retrieved per turn
}

// MaintenanceConfig holds optional background maintenance settings.
type MaintenanceConfig struct {
	// LifetimeRefreshSchedule is a cron expression (5 or 6 field) or a Go
	// duration string ("6h"). Empty disables the maintenance job.
	LifetimeRefreshSchedule string `yaml:"lifetime_refresh_schedule,omitempty"`
}

// Config is the root daemon configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server,omitempty"`
	Database    DatabaseConfig    `yaml:"database,omitempty"`
	Provider    string            `yaml:"provider,omitempty"` // "ollama" or "openai"
	Ollama      OllamaConfig      `yaml:"ollama,omitempty"`
	OpenAI      OpenAIConfig      `yaml:"openai,omitempty"`
	Memory      MemoryConfig      `yaml:"memory,omitempty"`
	Maintenance MaintenanceConfig `yaml:"maintenance,omitempty"`
}

// Defaults returns the baseline configuration merged under every loaded file.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTP: ":8080",
		},
		Database: DatabaseConfig{
			Path:           "recall.db",
			MigrationsPath: "./migrations",
		},
		Provider: "ollama",
		Ollama: OllamaConfig{
			ChatModel:  "llama3.2:3b",
			EmbedModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			ChatModel:  "gpt-4o-mini",
			EmbedModel: "text-embedding-3-small",
		},
		Memory: MemoryConfig{
			ShortTermWindow:        8,
			SummarizeEveryUserMsgs: 5,
			EpisodeExtractionLimit: 3,
			EpisodeRetrievalK:      4,
		},
	}
}

// Load reads the YAML config at path, merges it over Defaults, applies
// environment overrides, and validates the result. A missing file is not an
// error; defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path) //nolint:gosec // G304: user-specified config path is intentional
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fall through to defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := mergo.Merge(cfg, Defaults()); err != nil {
		return nil, fmt.Errorf("merge config defaults: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RECALL_HTTP_ADDR"); v != "" {
		cfg.Server.HTTP = v
	}
	if v := os.Getenv("RECALL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RECALL_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && cfg.Ollama.Host == "" {
		cfg.Ollama.Host = v
	}
}

// Validate checks the invariants the memory pipeline depends on.
func (c *Config) Validate() error {
	switch c.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown provider %q (expected \"ollama\" or \"openai\")", c.Provider)
	}
	if c.Provider == "openai" && c.OpenAI.APIKey == "" {
		return fmt.Errorf("config: openai provider selected but openai.api_key is empty")
	}
	if c.Memory.ShortTermWindow <= 0 {
		return fmt.Errorf("config: memory.short_term_window must be positive, got %d", c.Memory.ShortTermWindow)
	}
	if c.Memory.SummarizeEveryUserMsgs <= 0 {
		return fmt.Errorf("config: memory.summarize_every_user_msgs must be positive, got %d", c.Memory.SummarizeEveryUserMsgs)
	}
	if c.Memory.EpisodeExtractionLimit <= 0 {
		return fmt.Errorf("config: memory.episode_extraction_limit must be positive, got %d", c.Memory.EpisodeExtractionLimit)
	}
	if c.Memory.EpisodeRetrievalK <= 0 {
		return fmt.Errorf("config: memory.episode_retrieval_k must be positive, got %d", c.Memory.EpisodeRetrievalK)
	}
	return nil
}
