package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (REPOQUERY_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	// Overlay environment variables: REPOQUERY_PROVIDER -> provider,
	// REPOQUERY_RETRIEVAL_TOP_K -> retrieval.top_k, etc.
	if err := k.Load(env.Provider("REPOQUERY_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "REPOQUERY_"))
		for _, section := range []string{"chunking", "retrieval", "session", "server"} {
			if strings.HasPrefix(key, section+"_") {
				return section + "." + strings.TrimPrefix(key, section+"_")
			}
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// validProviders is the set of recognized provider values.
var validProviders = map[ProviderType]bool{
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderOllama:    true,
}

// validModes is the set of recognized retrieval modes.
var validModes = map[RetrievalMode]bool{
	ModeSinglePass: true,
	ModeTwoPass:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if !validProviders[c.Provider] {
		return fmt.Errorf("invalid provider %q: must be one of openai, anthropic, ollama", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.EmbeddingProvider != "" && !validProviders[c.EmbeddingProvider] {
		return fmt.Errorf("invalid embedding_provider %q", c.EmbeddingProvider)
	}
	if c.EmbeddingProvider == ProviderAnthropic {
		return fmt.Errorf("anthropic does not expose an embedding API; use openai or ollama")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be non-negative")
	}

	if c.Chunking.MaxChunkSize < 256 {
		return fmt.Errorf("chunking.max_chunk_size must be at least 256")
	}

	r := c.Retrieval
	if r.Mode != "" && !validModes[r.Mode] {
		return fmt.Errorf("invalid retrieval.mode %q: must be single-pass or two-pass", r.Mode)
	}
	if r.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}
	if r.MaxSubQuestions < 0 {
		return fmt.Errorf("retrieval.max_subquestions must be non-negative")
	}
	if r.ContextBudget < c.Chunking.MaxChunkSize {
		return fmt.Errorf("retrieval.context_budget must be at least chunking.max_chunk_size")
	}
	if r.MaxPromptSize < r.ContextBudget {
		return fmt.Errorf("retrieval.max_prompt_size must be at least retrieval.context_budget")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return ""
	}
}
