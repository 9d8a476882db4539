package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %q", cfg.Provider)
	}
	if cfg.Memory.ShortTermWindow != 8 {
		t.Errorf("expected default short-term window 8, got %d", cfg.Memory.ShortTermWindow)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	body := `
memory:
  short_term_window: 12
server:
  http: ":9090"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Memory.ShortTermWindow != 12 {
		t.Errorf("expected short-term window 12, got %d", cfg.Memory.ShortTermWindow)
	}
	if cfg.Server.HTTP != ":9090" {
		t.Errorf("expected http :9090, got %q", cfg.Server.HTTP)
	}
	// Unset fields keep their defaults.
	if cfg.Memory.SummarizeEveryUserMsgs != 5 {
		t.Errorf("expected default summarize cadence 5, got %d", cfg.Memory.SummarizeEveryUserMsgs)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "bedrock" }},
		{"openai without key", func(c *Config) { c.Provider = "openai"; c.OpenAI.APIKey = "" }},
		{"zero window", func(c *Config) { c.Memory.ShortTermWindow = 0 }},
		{"zero cadence", func(c *Config) { c.Memory.SummarizeEveryUserMsgs = 0 }},
		{"zero extraction limit", func(c *Config) { c.Memory.EpisodeExtractionLimit = 0 }},
		{"zero retrieval k", func(c *Config) { c.Memory.EpisodeRetrievalK = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
